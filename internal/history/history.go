// Package history stores finalized typing sessions.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrDuplicateUser = errors.New("username already taken")
)

// DefaultLimit is the number of records returned by Recent when no limit is given
const DefaultLimit = 10

// Record is one saved piece of typed text
type Record struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"userId"`
	Text        string    `json:"text"`
	DateCreated time.Time `json:"dateCreated"`
}

// NewRecord is the input for SaveTypingHistory
type NewRecord struct {
	UserID *int64 `json:"userId,omitempty"`
	Text   string `json:"text"`
}

// Validate checks a record before it is stored
func (r NewRecord) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.Join(ErrInvalidRecord, errors.New("text is required"))
	}
	if r.UserID != nil && *r.UserID < 1 {
		return errors.Join(ErrInvalidRecord, errors.New("userId must be positive"))
	}
	return nil
}

// User owns typing history records
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// NewUser is the input for CreateUser
type NewUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store persists users and typing history
type Store interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)

	SaveTypingHistory(ctx context.Context, r NewRecord) (Record, error)
	TypingHistoryByUser(ctx context.Context, userID int64) ([]Record, error)
	RecentTypingHistory(ctx context.Context, limit int) ([]Record, error)

	Close() error
}

// Open returns a SQLite store at path, or an in-memory store when path is
// empty or the database cannot be opened
func Open(path string, logger *zap.SugaredLogger) Store {
	if path == "" {
		logger.Infow("no database configured, using in-memory history")
		return NewMemoryStore()
	}
	s, err := OpenSQLite(path)
	if err != nil {
		logger.Warnw("database unavailable, falling back to in-memory history", "path", path, "error", err)
		return NewMemoryStore()
	}
	logger.Infow("using SQLite history", "path", path)
	return s
}

// Saver stores finalized text for a user
type Saver struct {
	Store  Store
	UserID *int64
}

// Finalize saves text as a new typing history record
func (s Saver) Finalize(ctx context.Context, text string) error {
	_, err := s.Store.SaveTypingHistory(ctx, NewRecord{UserID: s.UserID, Text: text})
	return err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
