// Package store persists users, relationship records and direct messages.
//
// Relationship records are versioned documents keyed by user id. Writers go
// through Relationships.Update, which re-reads and retries on version
// conflicts so that edits to the same record from different pair transitions
// are never lost.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"friendline/models"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrDuplicateEmail  = errors.New("store: email already registered")
	ErrVersionConflict = errors.New("store: version conflict")
)

// RelationshipStore is the document interface relationship records live in.
// Load returns an empty record at version 0 when none exists yet.
type RelationshipStore interface {
	Load(ctx context.Context, userID string) (*models.Relationship, int64, error)
	CompareAndSwap(ctx context.Context, rec *models.Relationship, version int64) error
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Summaries returns summaries in the order of ids, skipping unknown ids.
	Summaries(ctx context.Context, ids []string) ([]models.UserSummary, error)
	ListExcept(ctx context.Context, id string) ([]models.User, error)
	// UpdateProfile changes the non-empty fields only.
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string) (*models.User, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	// Conversation returns every message between a and b, oldest first.
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
	// MarkRead flags unread messages sent by from to to as read.
	MarkRead(ctx context.Context, from, to string) (int64, error)
	UnreadCount(ctx context.Context, from, to string) (int64, error)
	// Last returns the newest message between a and b, or nil.
	Last(ctx context.Context, a, b string) (*models.Message, error)
}

const DefaultMaxAttempts = 5

// Relationships wraps a RelationshipStore with optimistic read-modify-write.
type Relationships struct {
	backend     RelationshipStore
	maxAttempts int
}

func NewRelationships(backend RelationshipStore, maxAttempts int) *Relationships {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Relationships{backend: backend, maxAttempts: maxAttempts}
}

// Get returns a private copy of the current record.
func (r *Relationships) Get(ctx context.Context, userID string) (*models.Relationship, error) {
	rec, _, err := r.backend.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MaxAttempts is how many times a versioned write is tried before giving up.
func (r *Relationships) MaxAttempts() int {
	return r.maxAttempts
}

// Load returns a private copy of the record and the version it was read at.
func (r *Relationships) Load(ctx context.Context, userID string) (*models.Relationship, int64, error) {
	return r.backend.Load(ctx, userID)
}

// Write stores rec only if the record is still at version. It returns
// ErrVersionConflict otherwise and never retries.
func (r *Relationships) Write(ctx context.Context, rec *models.Relationship, version int64) error {
	next := rec.Clone()
	next.Normalize()
	return r.backend.CompareAndSwap(ctx, next, version)
}

// Update applies fn to the latest version of the record and writes it back,
// retrying on version conflicts. If fn returns an error nothing is written.
func (r *Relationships) Update(ctx context.Context, userID string, fn func(*models.Relationship) error) (*models.Relationship, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		rec, version, err := r.backend.Load(ctx, userID)
		if err != nil {
			return nil, err
		}

		next := rec.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.UserID = userID
		next.Normalize()

		err = r.backend.CompareAndSwap(ctx, next, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"function": "Update",
			"user_id":  userID,
			"attempt":  attempt,
			"version":  version,
		}).Warn("relationship record changed concurrently, retrying")
	}

	return nil, fmt.Errorf("update %s: %w after %d attempts", userID, ErrVersionConflict, r.maxAttempts)
}
