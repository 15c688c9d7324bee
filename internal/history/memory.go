package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps history in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[int64]User
	records map[int64]Record
	nextUID int64
	nextRID int64
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int64]User),
		records: make(map[int64]Record),
		nextUID: 1,
		nextRID: 1,
		now:     time.Now,
	}
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func (m *MemoryStore) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	if nu.Username == "" || nu.Password == "" {
		return User{}, fmt.Errorf("username and password are required: %w", ErrInvalidRecord)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == nu.Username {
			return User{}, ErrDuplicateUser
		}
	}
	u := User{ID: m.nextUID, Username: nu.Username, Password: nu.Password}
	m.nextUID++
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) SaveTypingHistory(ctx context.Context, nr NewRecord) (Record, error) {
	if err := nr.Validate(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := Record{
		ID:          m.nextRID,
		UserID:      nr.UserID,
		Text:        nr.Text,
		DateCreated: m.now().UTC(),
	}
	m.nextRID++
	m.records[r.ID] = r
	return r, nil
}

func (m *MemoryStore) TypingHistoryByUser(ctx context.Context, userID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) RecentTypingHistory(ctx context.Context, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func sortNewestFirst(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].DateCreated.Equal(records[j].DateCreated) {
			return records[i].DateCreated.After(records[j].DateCreated)
		}
		return records[i].ID > records[j].ID
	})
}
