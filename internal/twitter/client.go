// Package twitter provides the robot's view of the Twitter API: the
// Client interface the decision engine depends on and an OAuth 1.0a
// HTTP implementation of the v1.1 endpoints.
package twitter

import (
	"context"
	"fmt"

	"github.com/schlind/karlsruher/internal/model"
)

// Client is the facade the robot acts through. All calls may fail with
// a *RemoteError (auth, rate limit, transient network failure).
type Client interface {
	// Me returns the authenticated account.
	Me(ctx context.Context) (model.User, error)
	// MentionsTimeline returns one batch of recent mentions, in
	// upstream order.
	MentionsTimeline(ctx context.Context) ([]model.Tweet, error)
	// ListMembers returns the members of the owner's list with the
	// given slug.
	ListMembers(ctx context.Context, ownerScreenName, slug string) ([]model.User, error)
	// Followers returns the accounts following the authenticated
	// account. May block for a long time due to upstream paging.
	Followers(ctx context.Context) ([]model.User, error)
	// Friends returns the accounts the authenticated account follows.
	Friends(ctx context.Context) ([]model.User, error)
	// UpdateStatus posts a status, optionally as a reply.
	UpdateStatus(ctx context.Context, status, inReplyToID string) (model.Tweet, error)
	// Retweet republishes the tweet with the given id.
	Retweet(ctx context.Context, tweetID string) (model.Tweet, error)
}

// RemoteError indicates a failure of the Twitter API.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string { return fmt.Sprintf("twitter %s: %v", e.Op, e.Err) }

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteErr(op string, err error) *RemoteError { return &RemoteError{Op: op, Err: err} }
