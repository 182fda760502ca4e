// Package brain provides the robot's persistent memory: named config
// values, seen tweets and follower/friend relation sets, stored in a
// SQLite database.
package brain

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/schlind/karlsruher/internal/logging"
	"github.com/schlind/karlsruher/internal/model"
)

// Relation selects one of the user membership sets.
type Relation int

const (
	Follower Relation = iota
	Friend
)

func (r Relation) String() string {
	switch r {
	case Follower:
		return "follower"
	case Friend:
		return "friend"
	}
	return "unknown"
}

// User lifecycle states used by the import protocol.
const (
	StateDeleted  = 0
	StateActive   = 1
	StateLimbo    = 2
	StateImported = 3
)

// UserSource enumerates users from an external system. It may return a
// partial batch together with an error when enumeration fails mid-stream.
type UserSource func(ctx context.Context) ([]model.User, error)

// Brain is the durable key/value and membership store. It does not
// serialize its own operations; callers hold the run lock around
// multi-step sequences such as ImportUsers.
type Brain struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for an
// ephemeral store in tests.
func Open(path string) (*Brain, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	b := &Brain{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Brain) Close() error { return b.db.Close() }

func (b *Brain) migrate() error {
	_, err := b.db.Exec(`
	CREATE TABLE IF NOT EXISTS config (
	  name TEXT PRIMARY KEY,
	  value TEXT DEFAULT NULL,
	  timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS tweets (
	  kind TEXT NOT NULL,
	  id TEXT NOT NULL,
	  screen_name TEXT NOT NULL,
	  comment TEXT NOT NULL,
	  timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	  PRIMARY KEY (kind, id)
	);
	CREATE TABLE IF NOT EXISTS users (
	  relation TEXT NOT NULL,
	  id TEXT NOT NULL,
	  screen_name TEXT NOT NULL,
	  state INTEGER DEFAULT 0,
	  timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	  PRIMARY KEY (relation, id)
	);
	`)
	return err
}

// Set stores a named value. A nil value deletes the row instead of
// storing a tombstone. Returns the affected row count.
func (b *Brain) Set(name string, value any) (int64, error) {
	if value == nil {
		logging.Debug("brain_unset", map[string]any{"name": name})
		res, err := b.db.Exec(`DELETE FROM config WHERE name = ?`, name)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	logging.Debug("brain_set", map[string]any{"name": name})
	res, err := b.db.Exec(
		`INSERT INTO config (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, timestamp = CURRENT_TIMESTAMP`,
		name, encodeValue(value),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get returns the stored value for name, or def when absent. The strings
// "True" and "False" are coerced to booleans. Get never fails: storage
// errors are logged and def returned.
func (b *Brain) Get(name string, def any) any {
	var value string
	err := b.db.QueryRow(`SELECT value FROM config WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return def
	}
	if err != nil {
		logging.Error("brain_get_failed", map[string]any{"name": name, "error": err.Error()})
		return def
	}
	return decodeValue(value)
}

func encodeValue(v any) string {
	if bv, ok := v.(bool); ok {
		if bv {
			return "True"
		}
		return "False"
	}
	return fmt.Sprintf("%v", v)
}

func decodeValue(s string) any {
	switch s {
	case "True":
		return true
	case "False":
		return false
	}
	return s
}

// HasUser indicates whether an active user exists for the relation.
func (b *Brain) HasUser(rel Relation, userID string) (bool, error) {
	var id string
	err := b.db.QueryRow(
		`SELECT id FROM users WHERE relation = ? AND state > ? AND id = ?`,
		rel.String(), StateDeleted, userID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Users returns the ids of all active users for the relation.
func (b *Brain) Users(rel Relation) ([]string, error) {
	rows, err := b.db.Query(
		`SELECT id FROM users WHERE relation = ? AND state > ?`,
		rel.String(), StateDeleted,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddUser upserts a single membership row with the given state.
func (b *Brain) AddUser(rel Relation, user model.User, state int) (int64, error) {
	logging.Debug("brain_add_user", map[string]any{
		"relation": rel.String(), "screen_name": user.ScreenName, "state": state,
	})
	res, err := b.db.Exec(
		`INSERT INTO users (relation, id, screen_name, state) VALUES (?, ?, ?, ?)
		 ON CONFLICT(relation, id) DO UPDATE SET
		   screen_name = excluded.screen_name,
		   state = excluded.state,
		   timestamp = CURRENT_TIMESTAMP`,
		rel.String(), user.ID, user.ScreenName, state,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ImportUsers replaces the active set for the relation with exactly the
// users the source enumerates, without a destructive delete:
//
//	1. active users go limbo
//	2. enumerated users are upserted as imported
//	3. remaining limbo users go deleted (orphaned, retained for audit)
//	4. imported users go active
//
// When the source fails mid-stream the partial batch is kept at the
// imported state and the error returned; limbo rows remain recoverable.
func (b *Brain) ImportUsers(ctx context.Context, rel Relation, source UserSource) error {
	limbo, err := b.updateState(rel, StateActive, StateLimbo)
	if err != nil {
		return fmt.Errorf("import %s: %w", rel, err)
	}
	users, srcErr := source(ctx)
	for _, user := range users {
		if _, err := b.AddUser(rel, user, StateImported); err != nil {
			return fmt.Errorf("import %s: %w", rel, err)
		}
	}
	if srcErr != nil {
		return fmt.Errorf("import %s: %w", rel, srcErr)
	}
	lost, err := b.updateState(rel, StateLimbo, StateDeleted)
	if err != nil {
		return fmt.Errorf("import %s: %w", rel, err)
	}
	imported, err := b.updateState(rel, StateImported, StateActive)
	if err != nil {
		return fmt.Errorf("import %s: %w", rel, err)
	}
	logging.Info("brain_import_users", map[string]any{
		"relation": rel.String(), "updated": limbo, "imported": imported, "lost": lost,
	})
	return nil
}

func (b *Brain) updateState(rel Relation, from, to int) (int64, error) {
	res, err := b.db.Exec(
		`UPDATE users SET state = ? WHERE relation = ? AND state = ?`,
		to, rel.String(), from,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasTweet indicates whether a tweet id was recorded for the kind.
func (b *Brain) HasTweet(kind, id string) (bool, error) {
	var got string
	err := b.db.QueryRow(`SELECT id FROM tweets WHERE kind = ? AND id = ?`, kind, id).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddTweet records a tweet once. Re-insertion of the same (kind, id) is
// a no-op and returns 0 affected rows, never an update.
func (b *Brain) AddTweet(kind string, tweet model.Tweet, comment string) (int64, error) {
	logging.Debug("brain_add_tweet", map[string]any{"kind": kind, "id": tweet.ID, "comment": comment})
	res, err := b.db.Exec(
		`INSERT OR IGNORE INTO tweets (kind, id, screen_name, comment) VALUES (?, ?, ?, ?)`,
		kind, tweet.ID, tweet.Author.ScreenName, comment,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountTweets counts recorded tweets, optionally filtered by kind and
// comment; empty strings mean no filter.
func (b *Brain) CountTweets(kind, comment string) (int, error) {
	query := `SELECT COUNT(id) FROM tweets`
	var args []any
	switch {
	case kind != "" && comment != "":
		query += ` WHERE kind = ? AND comment = ?`
		args = []any{kind, comment}
	case kind != "":
		query += ` WHERE kind = ?`
		args = []any{kind}
	case comment != "":
		query += ` WHERE comment = ?`
		args = []any{comment}
	}
	var count int
	if err := b.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Metrics returns a human-readable summary for operational logging.
func (b *Brain) Metrics() string {
	count := func(query string, args ...any) int {
		var n int
		if err := b.db.QueryRow(query, args...).Scan(&n); err != nil {
			logging.Error("brain_metrics_failed", map[string]any{"error": err.Error()})
		}
		return n
	}
	tweets := count(`SELECT COUNT(id) FROM tweets`)
	followers := count(`SELECT COUNT(id) FROM users WHERE relation = ? AND state > 0`, Follower.String())
	orphanFollowers := count(`SELECT COUNT(id) FROM users WHERE relation = ? AND state = 0`, Follower.String())
	friends := count(`SELECT COUNT(id) FROM users WHERE relation = ? AND state > 0`, Friend.String())
	orphanFriends := count(`SELECT COUNT(id) FROM users WHERE relation = ? AND state = 0`, Friend.String())
	configs := count(`SELECT COUNT(name) FROM config`)
	return fmt.Sprintf(
		"%d tweets, %d(%d) followers, %d(%d) friends, %d config values",
		tweets, followers, orphanFollowers, friends, orphanFriends, configs,
	)
}
