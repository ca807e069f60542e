package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"friendline/models"
)

type memoryRecord struct {
	rec     *models.Relationship
	version int64
}

// MemoryRelationships keeps relationship records in process memory.
type MemoryRelationships struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

func NewMemoryRelationships() *MemoryRelationships {
	return &MemoryRelationships{records: make(map[string]memoryRecord)}
}

func (s *MemoryRelationships) Load(_ context.Context, userID string) (*models.Relationship, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[userID]
	if !ok {
		return models.NewRelationship(userID), 0, nil
	}
	return entry.rec.Clone(), entry.version, nil
}

func (s *MemoryRelationships) CompareAndSwap(_ context.Context, rec *models.Relationship, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.records[rec.UserID]
	if current.version != version {
		return ErrVersionConflict
	}
	s.records[rec.UserID] = memoryRecord{rec: rec.Clone(), version: version + 1}
	return nil
}

// MemoryUsers is an in-process user directory.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]*models.User)}
}

func (s *MemoryUsers) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryUsers) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[id]
	return ok, nil
}

func (s *MemoryUsers) Summaries(_ context.Context, ids []string) ([]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u.ToSummary())
		}
	}
	return out, nil
}

func (s *MemoryUsers) ListExcept(_ context.Context, id string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryUsers) UpdateProfile(_ context.Context, id, displayName, avatarURL string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if displayName != "" {
		u.DisplayName = displayName
	}
	if avatarURL != "" {
		u.AvatarURL = avatarURL
	}
	cp := *u
	return &cp, nil
}

// MemoryMessages keeps direct messages in insertion order.
type MemoryMessages struct {
	mu       sync.RWMutex
	messages []*models.Message
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{}
}

func (s *MemoryMessages) Create(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func between(m *models.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (s *MemoryMessages) Conversation(_ context.Context, a, b string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if between(m, a, b) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryMessages) MarkRead(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.messages {
		if m.SenderID == from && m.ReceiverID == to && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryMessages) UnreadCount(_ context.Context, from, to string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages {
		if m.SenderID == from && m.ReceiverID == to && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *MemoryMessages) Last(_ context.Context, a, b string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *models.Message
	for _, m := range s.messages {
		if between(m, a, b) && (last == nil || !m.CreatedAt.Before(last.CreatedAt)) {
			last = m
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}
