package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/schlind/karlsruher/internal/brain"
	"github.com/schlind/karlsruher/internal/cmdlog"
	"github.com/schlind/karlsruher/internal/config"
	"github.com/schlind/karlsruher/internal/lock"
	"github.com/schlind/karlsruher/internal/logging"
	"github.com/schlind/karlsruher/internal/metrics"
	"github.com/schlind/karlsruher/internal/robot"
	"github.com/schlind/karlsruher/internal/theme"
	"github.com/schlind/karlsruher/internal/twitter"
)

const helpText = `Usage: karlsruher -home=/PATH [options] <read|talk|housekeeping>

Commands:
  read          read the mention timeline (dry run unless -retweet/-reply)
  talk          read with -retweet and -reply enabled
  housekeeping  import followers and friends, then exit.
                Due to API rate limits this takes up to 1 hour per
                1000 followers/friends. Run nightly once per day.

Options:
  -home PATH     robot home directory (auth.yaml, brain.db, lock)
  -retweet       enable the retweet feature
  -reply         publicly reply on some tweets
  -metrics ADDR  serve /metrics and /health on ADDR
  -debug         set console logging from info to debug
  -version       print version information and exit

Cronjobs:
  # read mentions, every 5 minutes:
  */5 * * * * karlsruher -home=/PATH talk >/dev/null 2>&1
  # housekeeping, once per day, nightly:
  3 3 * * * karlsruher -home=/PATH housekeeping >/dev/null 2>&1
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("karlsruher", flag.ContinueOnError)
	home := fs.String("home", "", "robot home directory")
	doRetweet := fs.Bool("retweet", false, "enable the retweet feature")
	doReply := fs.Bool("reply", false, "publicly reply on some tweets")
	metricsAddr := fs.String("metrics", "", "serve /metrics and /health on this address")
	debug := fs.Bool("debug", false, "set console logging to debug")
	version := fs.Bool("version", false, "print version information and exit")
	fs.Usage = func() {
		theme.PrintBanner()
		fmt.Print(helpText)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *version {
		theme.PrintBanner()
		return 0
	}

	cmd := fs.Arg(0)
	switch cmd {
	case "read", "talk", "housekeeping":
	default:
		fs.Usage()
		return 1
	}
	if *home == "" {
		fmt.Println(`Please specify a home directory with "-home=/PATH".`)
		return 1
	}
	if cmd == "talk" {
		*doRetweet = true
		*doReply = true
	}

	logging.SetDebug(*debug)
	cfg, err := config.Load(*home, *doReply, *doRetweet)
	if err != nil {
		fmt.Println(err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	metrics.StartServer(cfg.MetricsAddr)

	b, err := brain.Open(cfg.BrainPath())
	if err != nil {
		fmt.Println(err)
		return 1
	}
	defer b.Close()

	ctx := context.Background()
	client := twitter.NewHTTPClient(
		cfg.Credentials.ConsumerKey, cfg.Credentials.ConsumerSecret,
		cfg.Credentials.AccessKey, cfg.Credentials.AccessSecret,
	)
	r, err := robot.New(ctx, cfg, b, lock.New(cfg.LockPath()), client)
	if err != nil {
		fmt.Println(err)
		return 1
	}

	err = cmdlog.Run(cmd, func() error {
		if cmd == "housekeeping" {
			return r.Housekeeping(ctx)
		}
		return robot.NewKarlsruher(r).ReadMentions(ctx)
	})
	if err != nil {
		fmt.Println(err)
		return 1
	}
	return 0
}
