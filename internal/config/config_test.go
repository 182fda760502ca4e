package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsMissingHome(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope"), false, false); err == nil {
		t.Fatal("expected error for missing home")
	}
}

func TestLoadReadsAuthYaml(t *testing.T) {
	home := t.TempDir()
	auth := `twitter:
  consumer:
    key: 'ck'
    secret: 'cs'
  access:
    key: 'ak'
    secret: 'as'
`
	if err := os.WriteFile(filepath.Join(home, "auth.yaml"), []byte(auth), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(home, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Credentials.ConsumerKey != "ck" || cfg.Credentials.AccessSecret != "as" {
		t.Fatalf("credentials not read: %+v", cfg.Credentials)
	}
	if !cfg.DoReply || cfg.DoRetweet {
		t.Fatalf("flags not carried: %+v", cfg)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	for _, v := range []string{"TWITTER_CONSUMER_KEY", "TWITTER_CONSUMER_SECRET", "TWITTER_ACCESS_KEY", "TWITTER_ACCESS_SECRET"} {
		t.Setenv(v, "")
	}
	_, err := Load(t.TempDir(), false, false)
	if err == nil || !strings.Contains(err.Error(), "auth.yaml") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestLoadRejectsUnparsableAuthYaml(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "auth.yaml"), []byte(":\n :::"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(home, false, false); err == nil {
		t.Fatal("expected error for broken auth.yaml")
	}
}

func TestPaths(t *testing.T) {
	home := t.TempDir()
	cfg, err := New(home, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BrainPath() != filepath.Join(home, "brain.db") {
		t.Fatalf("brain path: %s", cfg.BrainPath())
	}
	if cfg.LockPath() != filepath.Join(home, "lock") {
		t.Fatalf("lock path: %s", cfg.LockPath())
	}
}
