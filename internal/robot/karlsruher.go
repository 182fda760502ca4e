package robot

import (
	"context"
	"strings"
	"time"

	"github.com/schlind/karlsruher/internal/logging"
	"github.com/schlind/karlsruher/internal/metrics"
	"github.com/schlind/karlsruher/internal/model"
	"github.com/schlind/karlsruher/internal/util"
)

// TweetKind scopes this engine's rows in the brain's tweets table, so
// multiple engines sharing one brain never collide on tweet ids.
const TweetKind = "mention"

// advisorsListSlug is the bot-owned Twitter list whose members may give
// advice.
const advisorsListSlug = "advisors"

// sleepKey is the brain config key suppressing the retweet action.
const sleepKey = "retweet.disabled"

// Acknowledgement replies, with the %name% placeholder convention.
const (
	replyAdviceSleep  = "Ok %name%, ich retweete nicht mehr... (Automatische Antwort)"
	replyAdviceWakeup = "Ok %name%, ich retweete wieder... (Automatische Antwort)"
)

// Advice vocabulary, matched case-insensitively by prefix.
const (
	adviceGoSleep = "geh schlafen!"
	adviceWakeUp  = "wach auf!"
)

// Karlsruher reads the mentions timeline and applies at most one action
// per mention. The advisor set is an instance field rebuilt on every
// run, never shared process state.
type Karlsruher struct {
	*Robot
	advisors map[string]struct{}
}

// NewKarlsruher builds the mention engine on top of a Robot.
func NewKarlsruher(r *Robot) *Karlsruher {
	return &Karlsruher{Robot: r, advisors: make(map[string]struct{})}
}

// ReadMentions runs one mention-reading session under the run lock:
// rebuild the advisor set, fetch one batch of mentions and read each in
// upstream order. Errors fetching advisors or mentions abort the run;
// the lock is released either way.
func (k *Karlsruher) ReadMentions(ctx context.Context) error {
	if err := k.lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = k.lock.Release() }()
	start := time.Now()
	logging.Info("read_mentions_start", nil)
	defer func() {
		logging.Info("read_mentions_done", map[string]any{"elapsed": time.Since(start).String()})
		metrics.ObserveDuration(metrics.ReadDuration, start)
	}()
	if err := k.fetchAdvisors(ctx); err != nil {
		return err
	}
	mentions, err := k.twitter.MentionsTimeline(ctx)
	if err != nil {
		return err
	}
	for _, mention := range mentions {
		k.readMention(ctx, mention)
	}
	return nil
}

// fetchAdvisors replaces the advisor set with the current members of
// the advisors list.
func (k *Karlsruher) fetchAdvisors(ctx context.Context) error {
	k.advisors = make(map[string]struct{})
	members, err := k.twitter.ListMembers(ctx, k.self.ScreenName, advisorsListSlug)
	if err != nil {
		return err
	}
	for _, member := range members {
		k.advisors[member.ID] = struct{}{}
	}
	logging.Debug("advisors_fetched", map[string]any{"count": len(members)})
	return nil
}

// readMention reads a single mention and applies actions, only once.
// Self-authored mentions are ignored without recording; previously seen
// mentions are skipped. Otherwise exactly one of advice_action,
// retweet_action or read_mention is recorded. A failing action is
// logged and does not abort the surrounding loop; the mention is still
// recorded (acting and recording are not atomic, so a crash in between
// may act twice on the next run).
//
// Returns true when the mention was read for the first time.
func (k *Karlsruher) readMention(ctx context.Context, tweet model.Tweet) bool {
	ref := "@" + tweet.Author.ScreenName + "/" + tweet.ID

	if tweet.Author.ScreenName == k.self.ScreenName {
		logging.Debug("mention_by_myself", map[string]any{"tweet": ref})
		return false
	}
	seen, err := k.brain.HasTweet(TweetKind, tweet.ID)
	if err != nil {
		logging.Error("brain_has_tweet_failed", map[string]any{"tweet": ref, "error": err.Error()})
		return false
	}
	if seen {
		logging.Info("mention_read_before", map[string]any{"tweet": ref})
		return false
	}

	comment := "read_mention"
	attempts := []struct {
		name   string
		action func(context.Context, model.Tweet) (Outcome, error)
	}{
		{"advice_action", k.adviceAction},
		{"retweet_action", k.retweetAction},
	}
	for _, attempt := range attempts {
		outcome, err := attempt.action(ctx, tweet)
		if err != nil {
			logging.Warn("action_failed", map[string]any{
				"tweet": ref, "action": attempt.name, "error": err.Error(),
			})
			metrics.ActionErrors.Inc()
			break
		}
		if outcome == Applied {
			comment = attempt.name
			break
		}
	}

	if _, err := k.brain.AddTweet(TweetKind, tweet, comment); err != nil {
		logging.Error("brain_add_tweet_failed", map[string]any{"tweet": ref, "error": err.Error()})
	}
	metrics.MentionsRead.Inc()
	metrics.Actions.WithLabelValues(comment).Inc()
	logging.Info("mention_applied", map[string]any{"tweet": ref, "action": comment})
	return true
}

// adviceAction takes an advice. Members of the advisors list can tell
// the bot to go to sleep (stop retweeting) or to wake up again, via a
// mention starting with "@<botname>!". An advisor mention that does not
// parse as advice is not applicable and stays eligible for retweeting.
func (k *Karlsruher) adviceAction(ctx context.Context, tweet model.Tweet) (Outcome, error) {
	if _, ok := k.advisors[tweet.Author.ID]; !ok {
		logging.Debug("not_an_advisor", map[string]any{"screen_name": tweet.Author.ScreenName})
		return NotApplicable, nil
	}
	trigger := "@" + strings.ToLower(k.self.ScreenName) + "!"
	if !strings.HasPrefix(strings.ToLower(tweet.Text), trigger) {
		logging.Debug("no_advice", map[string]any{"screen_name": tweet.Author.ScreenName})
		return NotApplicable, nil
	}
	advice := util.NormalizeWhitespace(tweet.Text[len(trigger):])

	switch {
	case util.HasPrefixFold(advice, adviceGoSleep):
		logging.Info("going_to_sleep", map[string]any{"advisor": tweet.Author.ScreenName})
		if _, err := k.brain.Set(sleepKey, true); err != nil {
			return NotApplicable, err
		}
		k.acknowledge(ctx, tweet, replyAdviceSleep)
		return Applied, nil
	case util.HasPrefixFold(advice, adviceWakeUp):
		logging.Info("waking_up", map[string]any{"advisor": tweet.Author.ScreenName})
		if _, err := k.brain.Set(sleepKey, nil); err != nil {
			return NotApplicable, err
		}
		k.acknowledge(ctx, tweet, replyAdviceWakeup)
		return Applied, nil
	}
	return NotApplicable, nil
}

// acknowledge replies to a taken advice. The acknowledgement is best
// effort: a failed reply does not undo the advice.
func (k *Karlsruher) acknowledge(ctx context.Context, tweet model.Tweet, status string) {
	if err := k.reply(ctx, tweet, status); err != nil {
		logging.Warn("acknowledge_failed", map[string]any{"tweet": tweet.ID, "error": err.Error()})
	}
}

// retweetAction maybe retweets the given mention. Rejection checks run
// in fixed order with no side effects on failure: sleeping, authored by
// the bot, protected author, a reply, author not a follower. The actual
// retweet is gated by DoRetweet; a dry run still counts as applied.
func (k *Karlsruher) retweetAction(ctx context.Context, tweet model.Tweet) (Outcome, error) {
	if sleeping, _ := k.brain.Get(sleepKey, false).(bool); sleeping {
		logging.Debug("sleeping_no_retweet", nil)
		return NotApplicable, nil
	}
	if tweet.Author.ScreenName == k.self.ScreenName {
		logging.Debug("own_tweet_no_retweet", nil)
		return NotApplicable, nil
	}
	if tweet.Author.Protected {
		logging.Debug("protected_no_retweet", map[string]any{"screen_name": tweet.Author.ScreenName})
		return NotApplicable, nil
	}
	if tweet.InReplyToID != "" {
		logging.Debug("reply_no_retweet", map[string]any{"screen_name": tweet.Author.ScreenName})
		return NotApplicable, nil
	}
	follower, err := k.isFollower(tweet.Author.ID)
	if err != nil {
		return NotApplicable, err
	}
	if !follower {
		logging.Debug("not_following_no_retweet", map[string]any{"screen_name": tweet.Author.ScreenName})
		return NotApplicable, nil
	}
	if err := k.retweet(ctx, tweet); err != nil {
		return NotApplicable, err
	}
	return Applied, nil
}
