// Package config loads the robot's runtime configuration from its home
// directory: feature flags from the CLI, Twitter credentials from
// <home>/auth.yaml with environment overrides, and an optional <home>/.env.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures runtime settings for one robot home directory.
type Config struct {
	// Home is the robot's working directory holding auth.yaml, the
	// brain database and the run-lock marker.
	Home string
	// DoReply enables sending replies. Off means dry-run.
	DoReply bool
	// DoRetweet enables performing retweets. Off means dry-run.
	DoRetweet bool
	// MetricsAddr, when set, serves /metrics and /health on this address.
	MetricsAddr string

	Credentials CredentialsConfig
}

// CredentialsConfig holds OAuth 1.0a credentials for the Twitter API.
type CredentialsConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessKey      string
	AccessSecret   string
}

// authFile mirrors the auth.yaml layout.
type authFile struct {
	Twitter struct {
		Consumer struct {
			Key    string `yaml:"key"`
			Secret string `yaml:"secret"`
		} `yaml:"consumer"`
		Access struct {
			Key    string `yaml:"key"`
			Secret string `yaml:"secret"`
		} `yaml:"access"`
	} `yaml:"twitter"`
}

const authFileExample = `twitter:
  consumer:
    key: 'YOUR-CONSUMER-KEY'
    secret: 'YOUR-CONSUMER-SECRET'
  access:
    key: 'YOUR-ACCESS-KEY'
    secret: 'YOUR-ACCESS-SECRET'
`

// New validates the home directory and builds a Config without reading
// credentials. Use Load to also resolve credentials.
func New(home string, doReply, doRetweet bool) (Config, error) {
	info, err := os.Stat(home)
	if err != nil || !info.IsDir() {
		return Config{}, fmt.Errorf("specified home %q not found", home)
	}
	return Config{Home: home, DoReply: doReply, DoRetweet: doRetweet}, nil
}

// Load builds a Config and resolves credentials from <home>/.env,
// <home>/auth.yaml and the environment, in that order of increasing
// precedence for the environment variables.
func Load(home string, doReply, doRetweet bool) (Config, error) {
	cfg, err := New(home, doReply, doRetweet)
	if err != nil {
		return cfg, err
	}
	// Optional .env with TWITTER_* variables.
	_ = godotenv.Load(filepath.Join(home, ".env"))
	if err := cfg.readAuthFile(); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if err := cfg.Credentials.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) readAuthFile() error {
	path := c.AuthPath()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Credentials may come entirely from the environment.
		return nil
	}
	if err != nil {
		return err
	}
	var af authFile
	if err := yaml.Unmarshal(b, &af); err != nil {
		return fmt.Errorf("please check file %q for proper contents:\n%s", path, authFileExample)
	}
	c.Credentials = CredentialsConfig{
		ConsumerKey:    af.Twitter.Consumer.Key,
		ConsumerSecret: af.Twitter.Consumer.Secret,
		AccessKey:      af.Twitter.Access.Key,
		AccessSecret:   af.Twitter.Access.Secret,
	}
	return nil
}

// ResolveEnv fills in credentials from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ConsumerKey == "" {
		c.Credentials.ConsumerKey = os.Getenv("TWITTER_CONSUMER_KEY")
	}
	if c.Credentials.ConsumerSecret == "" {
		c.Credentials.ConsumerSecret = os.Getenv("TWITTER_CONSUMER_SECRET")
	}
	if c.Credentials.AccessKey == "" {
		c.Credentials.AccessKey = os.Getenv("TWITTER_ACCESS_KEY")
	}
	if c.Credentials.AccessSecret == "" {
		c.Credentials.AccessSecret = os.Getenv("TWITTER_ACCESS_SECRET")
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = os.Getenv("METRICS_ADDR")
	}
}

func (cr CredentialsConfig) validate() error {
	if cr.ConsumerKey == "" || cr.ConsumerSecret == "" || cr.AccessKey == "" || cr.AccessSecret == "" {
		return fmt.Errorf("missing Twitter credentials, please provide auth.yaml:\n%s", authFileExample)
	}
	return nil
}

// AuthPath returns the credentials file path.
func (c Config) AuthPath() string { return filepath.Join(c.Home, "auth.yaml") }

// BrainPath returns the brain database path.
func (c Config) BrainPath() string { return filepath.Join(c.Home, "brain.db") }

// LockPath returns the run-lock marker path.
func (c Config) LockPath() string { return filepath.Join(c.Home, "lock") }
