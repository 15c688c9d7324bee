package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLiteStore keeps history in a SQLite database
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path and applies migrations
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases and foreign keys consistent
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS typing_history (
			id INTEGER PRIMARY KEY,
			user_id INTEGER REFERENCES users(id),
			text TEXT NOT NULL,
			date_created TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_typing_history_date ON typing_history(date_created);`,
		`CREATE INDEX IF NOT EXISTS idx_typing_history_user ON typing_history(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password FROM users WHERE id = ?`, id)
	return scanUser(row, fmt.Sprintf("user %d", id))
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, password FROM users WHERE username = ?`, username)
	return scanUser(row, fmt.Sprintf("user %q", username))
}

func scanUser(row *sql.Row, what string) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	if nu.Username == "" || nu.Password == "" {
		return User{}, fmt.Errorf("username and password are required: %w", ErrInvalidRecord)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, nu.Username, nu.Password)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Username: nu.Username, Password: nu.Password}, nil
}

func (s *SQLiteStore) SaveTypingHistory(ctx context.Context, nr NewRecord) (Record, error) {
	if err := nr.Validate(); err != nil {
		return Record{}, err
	}
	created := s.now().UTC()

	var userID any
	if nr.UserID != nil {
		userID = *nr.UserID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO typing_history (user_id, text, date_created) VALUES (?, ?, ?)`,
		userID, nr.Text, created.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert typing history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, UserID: nr.UserID, Text: nr.Text, DateCreated: created}, nil
}

func (s *SQLiteStore) TypingHistoryByUser(ctx context.Context, userID int64) ([]Record, error) {
	return s.queryRecords(ctx,
		`SELECT id, user_id, text, date_created FROM typing_history
		 WHERE user_id = ?
		 ORDER BY date_created DESC, id DESC`, userID)
}

func (s *SQLiteStore) RecentTypingHistory(ctx context.Context, limit int) ([]Record, error) {
	return s.queryRecords(ctx,
		`SELECT id, user_id, text, date_created FROM typing_history
		 ORDER BY date_created DESC, id DESC
		 LIMIT ?`, normalizeLimit(limit))
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []Record
	for rows.Next() {
		var (
			r       Record
			userID  sql.NullInt64
			created string
		)
		if err := rows.Scan(&r.ID, &userID, &r.Text, &created); err != nil {
			return nil, err
		}
		if userID.Valid {
			id := userID.Int64
			r.UserID = &id
		}
		if r.DateCreated, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("record %d has bad date %q: %w", r.ID, created, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
