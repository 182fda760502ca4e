package robot

import (
	"context"
	"testing"

	"github.com/schlind/karlsruher/internal/brain"
	"github.com/schlind/karlsruher/internal/config"
	"github.com/schlind/karlsruher/internal/lock"
	"github.com/schlind/karlsruher/internal/model"
	"github.com/schlind/karlsruher/internal/twitter"
)

// fakeTwitter implements twitter.Client, capturing write calls.
type fakeTwitter struct {
	me          model.User
	mentions    []model.Tweet
	mentionsErr error

	advisors  []model.User
	listErr   error
	listCalls int

	followerBatches [][]model.User
	followersErr    error
	friends         []model.User

	statusUpdates []string
	retweets      []string
	updateErr     error
	retweetErr    error
}

var _ twitter.Client = (*fakeTwitter)(nil)

func (f *fakeTwitter) Me(ctx context.Context) (model.User, error) { return f.me, nil }

func (f *fakeTwitter) MentionsTimeline(ctx context.Context) ([]model.Tweet, error) {
	return f.mentions, f.mentionsErr
}

func (f *fakeTwitter) ListMembers(ctx context.Context, owner, slug string) ([]model.User, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.advisors, nil
}

func (f *fakeTwitter) Followers(ctx context.Context) ([]model.User, error) {
	if f.followersErr != nil {
		return nil, f.followersErr
	}
	if len(f.followerBatches) == 0 {
		return nil, nil
	}
	batch := f.followerBatches[0]
	if len(f.followerBatches) > 1 {
		f.followerBatches = f.followerBatches[1:]
	}
	return batch, nil
}

func (f *fakeTwitter) Friends(ctx context.Context) ([]model.User, error) { return f.friends, nil }

func (f *fakeTwitter) UpdateStatus(ctx context.Context, status, inReplyToID string) (model.Tweet, error) {
	if f.updateErr != nil {
		return model.Tweet{}, f.updateErr
	}
	f.statusUpdates = append(f.statusUpdates, status)
	return model.Tweet{ID: "900"}, nil
}

func (f *fakeTwitter) Retweet(ctx context.Context, tweetID string) (model.Tweet, error) {
	if f.retweetErr != nil {
		return model.Tweet{}, f.retweetErr
	}
	f.retweets = append(f.retweets, tweetID)
	return model.Tweet{ID: "901"}, nil
}

// Shared fixtures.
var (
	self              = model.User{ID: "42", ScreenName: "TestBot"}
	advisor1          = model.User{ID: "501", ScreenName: "adv1"}
	advisor2          = model.User{ID: "502", ScreenName: "adv2"}
	follower1         = model.User{ID: "101", ScreenName: "f1"}
	follower2         = model.User{ID: "102", ScreenName: "f2"}
	protectedFollower = model.User{ID: "103", ScreenName: "pf", Protected: true}
	nonFollower       = model.User{ID: "201", ScreenName: "nf"}
	anyUser           = model.User{ID: "777", ScreenName: "any"}
)

func mention(id string, author model.User, text string) model.Tweet {
	return model.Tweet{ID: id, Author: author, Text: text}
}

func replyMention(id string, author model.User, text, inReplyTo string) model.Tweet {
	return model.Tweet{ID: id, Author: author, Text: text, InReplyToID: inReplyTo}
}

func newFakeTwitter() *fakeTwitter {
	return &fakeTwitter{
		me:              self,
		advisors:        []model.User{advisor1, advisor2},
		followerBatches: [][]model.User{{follower1, follower2, protectedFollower}},
		friends:         []model.User{follower1},
	}
}

// newTestKarlsruher builds an engine on an in-memory brain with the
// follower set already imported, like a completed housekeeping run.
func newTestKarlsruher(t *testing.T, fake *fakeTwitter, doReply, doRetweet bool) *Karlsruher {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.New(t.TempDir(), doReply, doRetweet)
	if err != nil {
		t.Fatal(err)
	}
	b, err := brain.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	l := lock.New(cfg.LockPath())
	r, err := New(ctx, cfg, b, l, fake)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Housekeeping(ctx); err != nil {
		t.Fatal(err)
	}
	return NewKarlsruher(r)
}

func mustFetchAdvisors(t *testing.T, k *Karlsruher) {
	t.Helper()
	if err := k.fetchAdvisors(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestCanHaveAdvisors(t *testing.T) {
	fake := newFakeTwitter()
	k := newTestKarlsruher(t, fake, false, false)
	if err := k.ReadMentions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fake.listCalls != 1 {
		t.Fatalf("expected 1 list call, got %d", fake.listCalls)
	}
	if len(k.advisors) != 2 {
		t.Fatalf("expected 2 advisors, got %d", len(k.advisors))
	}
	for _, id := range []string{advisor1.ID, advisor2.ID} {
		if _, ok := k.advisors[id]; !ok {
			t.Fatalf("missing advisor %s", id)
		}
	}
	if _, ok := k.advisors[anyUser.ID]; ok {
		t.Fatal("any user must not be an advisor")
	}
}

func TestReadMentionsHandlesLock(t *testing.T) {
	k := newTestKarlsruher(t, newFakeTwitter(), false, false)
	if err := k.lock.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := k.ReadMentions(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if !k.lock.IsAcquired() {
		t.Fatal("foreign lock must stay in place")
	}
}

func TestReadMentionsReleasesLock(t *testing.T) {
	k := newTestKarlsruher(t, newFakeTwitter(), false, false)
	if err := k.ReadMentions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if k.lock.IsAcquired() {
		t.Fatal("lock must be released after the run")
	}
}

func TestReadMentionsReleasesLockOnFetchError(t *testing.T) {
	fake := newFakeTwitter()
	fake.mentionsErr = &twitter.RemoteError{Op: "mentions_timeline"}
	k := newTestKarlsruher(t, fake, false, false)
	if err := k.ReadMentions(context.Background()); err == nil {
		t.Fatal("expected fetch error to abort the run")
	}
	if k.lock.IsAcquired() {
		t.Fatal("lock must be released after an aborted run")
	}
}

func TestReadMentionOnlyOnce(t *testing.T) {
	k := newTestKarlsruher(t, newFakeTwitter(), false, false)
	mustFetchAdvisors(t, k)
	m := mention("10", nonFollower, "hi @TestBot")
	if !k.readMention(context.Background(), m) {
		t.Fatal("first read must apply")
	}
	if k.readMention(context.Background(), m) {
		t.Fatal("second read must be a no-op")
	}
	count, err := k.brain.CountTweets(TweetKind, "")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded tweet, got %d", count)
	}
}

func TestIgnoreMyself(t *testing.T) {
	k := newTestKarlsruher(t, newFakeTwitter(), false, false)
	mustFetchAdvisors(t, k)
	if k.readMention(context.Background(), mention("11", self, "i am the bot")) {
		t.Fatal("own mention must not be read")
	}
	count, err := k.brain.CountTweets("", "")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("own mention must not be recorded, got %d", count)
	}
}

func TestReadMentionsTimeline(t *testing.T) {
	fake := newFakeTwitter()
	fake.mentions = []model.Tweet{
		mention("1", self, "talking to myself"),
		mention("2", nonFollower, "hello @TestBot"),
		mention("3", follower1, "look at this @TestBot"),
		replyMention("4", follower1, "@TestBot in a thread", "9"),
		mention("5", protectedFollower, "@TestBot something private"),
		mention("6", advisor1, "@TestBot! geh schlafen!"),
		mention("7", follower2, "@TestBot now sleeping"),
		mention("8", advisor2, "@TestBot! wach auf!"),
		mention("9", follower2, "@TestBot awake again"),
		mention("10", advisor1, "@TestBot! mach was anderes!"),
	}
	k := newTestKarlsruher(t, fake, true, true)
	if err := k.ReadMentions(context.Background()); err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{"": 9, "read_mention": 5, "advice_action": 2, "retweet_action": 2}
	for comment, want := range counts {
		got, err := k.brain.CountTweets(TweetKind, comment)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("count(%q): expected %d, got %d", comment, want, got)
		}
	}
	if len(fake.retweets) != 2 {
		t.Fatalf("expected 2 retweet calls, got %v", fake.retweets)
	}
	// Sleep advice was ack'd and cleared again by the wake advice.
	if len(fake.statusUpdates) != 2 {
		t.Fatalf("expected 2 acknowledgements, got %v", fake.statusUpdates)
	}
	if got := k.brain.Get(sleepKey, nil); got != nil {
		t.Fatalf("sleep flag must be unset after wake advice, got %v", got)
	}
}

func TestActionErrorDoesNotAbortRun(t *testing.T) {
	fake := newFakeTwitter()
	fake.retweetErr = &twitter.RemoteError{Op: "retweet"}
	fake.mentions = []model.Tweet{
		mention("1", follower1, "@TestBot one"),
		mention("2", follower2, "@TestBot two"),
	}
	k := newTestKarlsruher(t, fake, false, true)
	if err := k.ReadMentions(context.Background()); err != nil {
		t.Fatal(err)
	}
	count, err := k.brain.CountTweets(TweetKind, "read_mention")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("failed actions must still record read_mention, got %d", count)
	}
}
