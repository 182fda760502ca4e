package model

import "time"

// User represents the subset of Twitter user fields the robot reads.
type User struct {
	ID         string
	ScreenName string
	Name       string
	Protected  bool
}

// Tweet represents the subset of tweet fields the robot reads.
// InReplyToID is empty for standalone tweets.
type Tweet struct {
	ID          string
	Author      User
	Text        string
	InReplyToID string
	CreatedAt   time.Time
}
