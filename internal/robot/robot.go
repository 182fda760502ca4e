// Package robot implements the mention decision engine and the
// housekeeping routine of the Karlsruher retweet robot.
package robot

import (
	"context"
	"strings"

	"github.com/schlind/karlsruher/internal/brain"
	"github.com/schlind/karlsruher/internal/config"
	"github.com/schlind/karlsruher/internal/lock"
	"github.com/schlind/karlsruher/internal/logging"
	"github.com/schlind/karlsruher/internal/model"
	"github.com/schlind/karlsruher/internal/twitter"
)

// Outcome reports whether an action attempt applied to a mention.
// Failures travel in the accompanying error, not in the Outcome.
type Outcome int

const (
	NotApplicable Outcome = iota
	Applied
)

// Robot wires the collaborators a robot run needs: configuration, the
// brain, the run lock and the Twitter client, plus the bot's own
// identity resolved at construction time.
type Robot struct {
	cfg     config.Config
	brain   *brain.Brain
	lock    *lock.Lock
	twitter twitter.Client
	self    model.User
}

// New resolves the bot identity and builds a Robot. The brain metrics
// summary is logged once at startup.
func New(ctx context.Context, cfg config.Config, b *brain.Brain, l *lock.Lock, client twitter.Client) (*Robot, error) {
	self, err := client.Me(ctx)
	if err != nil {
		return nil, err
	}
	r := &Robot{cfg: cfg, brain: b, lock: l, twitter: client, self: self}
	logging.Info("robot_ready", map[string]any{
		"screen_name": self.ScreenName,
		"brain":       b.Metrics(),
	})
	return r, nil
}

// isFollower indicates whether the user currently follows the bot,
// according to the brain.
func (r *Robot) isFollower(userID string) (bool, error) {
	return r.brain.HasUser(brain.Follower, userID)
}

// reply sends a reply to the given tweet. The placeholder "%name%" in
// the status is replaced with the mentioned author; when the author is
// not mentioned at all it is prepended, as the API requires for
// replies. Gated by the DoReply flag (dry run otherwise).
func (r *Robot) reply(ctx context.Context, tweet model.Tweet, status string) error {
	requiredName := "@" + tweet.Author.ScreenName
	if strings.Contains(status, "%name%") {
		status = strings.ReplaceAll(status, "%name%", requiredName)
	}
	if !strings.Contains(status, requiredName) {
		status = requiredName + ": " + status
	}
	if !r.cfg.DoReply {
		logging.Debug("would_reply", map[string]any{"status": status})
		return nil
	}
	logging.Debug("reply", map[string]any{"status": status})
	_, err := r.twitter.UpdateStatus(ctx, status, tweet.ID)
	return err
}

// retweet republishes the given tweet. Gated by the DoRetweet flag
// (dry run otherwise).
func (r *Robot) retweet(ctx context.Context, tweet model.Tweet) error {
	ref := "@" + tweet.Author.ScreenName + "/" + tweet.ID
	if !r.cfg.DoRetweet {
		logging.Debug("would_retweet", map[string]any{"tweet": ref})
		return nil
	}
	logging.Debug("retweet", map[string]any{"tweet": ref})
	_, err := r.twitter.Retweet(ctx, tweet.ID)
	return err
}
