package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFactory func(t *testing.T, clock func() time.Time) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock func() time.Time) Store {
			m := NewMemoryStore()
			m.now = clock
			return m
		},
		"sqlite": func(t *testing.T, clock func() time.Time) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
			require.NoError(t, err)
			s.now = clock
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// steppingClock advances by one second on every call
func steppingClock() func() time.Time {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestStores(t *testing.T) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			t.Run("users", func(t *testing.T) {
				ctx := context.Background()
				s := open(t, steppingClock())

				u, err := s.CreateUser(ctx, NewUser{Username: "ana", Password: "pw"})
				require.NoError(t, err)
				assert.Equal(t, int64(1), u.ID)

				_, err = s.CreateUser(ctx, NewUser{Username: "ana", Password: "other"})
				assert.ErrorIs(t, err, ErrDuplicateUser)

				_, err = s.CreateUser(ctx, NewUser{Username: "", Password: "pw"})
				assert.ErrorIs(t, err, ErrInvalidRecord)

				got, err := s.GetUser(ctx, u.ID)
				require.NoError(t, err)
				assert.Equal(t, "ana", got.Username)

				got, err = s.GetUserByUsername(ctx, "ana")
				require.NoError(t, err)
				assert.Equal(t, u.ID, got.ID)

				_, err = s.GetUser(ctx, 42)
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = s.GetUserByUsername(ctx, "nobody")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("recent is newest first and limited", func(t *testing.T) {
				ctx := context.Background()
				s := open(t, steppingClock())

				for _, text := range []string{"one", "two", "three"} {
					_, err := s.SaveTypingHistory(ctx, NewRecord{Text: text})
					require.NoError(t, err)
				}

				recent, err := s.RecentTypingHistory(ctx, 2)
				require.NoError(t, err)
				require.Len(t, recent, 2)
				assert.Equal(t, "three", recent[0].Text)
				assert.Equal(t, "two", recent[1].Text)
				assert.Nil(t, recent[0].UserID)

				all, err := s.RecentTypingHistory(ctx, 0)
				require.NoError(t, err)
				assert.Len(t, all, 3)
			})

			t.Run("by user", func(t *testing.T) {
				ctx := context.Background()
				s := open(t, steppingClock())

				u, err := s.CreateUser(ctx, NewUser{Username: "bo", Password: "pw"})
				require.NoError(t, err)

				_, err = s.SaveTypingHistory(ctx, NewRecord{UserID: &u.ID, Text: "first"})
				require.NoError(t, err)
				_, err = s.SaveTypingHistory(ctx, NewRecord{Text: "anonymous"})
				require.NoError(t, err)
				saved, err := s.SaveTypingHistory(ctx, NewRecord{UserID: &u.ID, Text: "second"})
				require.NoError(t, err)
				require.NotNil(t, saved.UserID)
				assert.Equal(t, u.ID, *saved.UserID)

				records, err := s.TypingHistoryByUser(ctx, u.ID)
				require.NoError(t, err)
				require.Len(t, records, 2)
				assert.Equal(t, "second", records[0].Text)
				assert.Equal(t, "first", records[1].Text)

				none, err := s.TypingHistoryByUser(ctx, 99)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("rejects empty text", func(t *testing.T) {
				s := open(t, steppingClock())
				_, err := s.SaveTypingHistory(context.Background(), NewRecord{Text: "   "})
				assert.ErrorIs(t, err, ErrInvalidRecord)
			})
		})
	}
}

func TestMemoryStoreTieBreak(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryStore()
	m.now = func() time.Time { return fixed }

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := m.SaveTypingHistory(ctx, NewRecord{Text: text})
		require.NoError(t, err)
	}

	recent, err := m.RecentTypingHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{recent[0].Text, recent[1].Text, recent[2].Text})
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	saved, err := s.SaveTypingHistory(context.Background(), NewRecord{Text: "hello world"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.RecentTypingHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, saved.ID, recent[0].ID)
	assert.Equal(t, "hello world", recent[0].Text)
	assert.True(t, saved.DateCreated.Equal(recent[0].DateCreated))
}

func TestOpenFallsBackToMemory(t *testing.T) {
	logger := zap.NewNop().Sugar()

	s := Open("", logger)
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)

	// A directory cannot be opened as a database file
	dir := t.TempDir()
	s = Open(dir, logger)
	_, ok = s.(*MemoryStore)
	assert.True(t, ok)

	s = Open(filepath.Join(dir, "ok.db"), logger)
	defer s.Close()
	_, ok = s.(*SQLiteStore)
	assert.True(t, ok)
}

func TestSaver(t *testing.T) {
	m := NewMemoryStore()
	uid := int64(7)
	saver := Saver{Store: m, UserID: &uid}

	require.NoError(t, saver.Finalize(context.Background(), "HELLO "))

	records, err := m.TypingHistoryByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "HELLO ", records[0].Text)
}
