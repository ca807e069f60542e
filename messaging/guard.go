package messaging

import (
	"context"

	"friendline/models"
	"friendline/utils"
)

var (
	ErrNotFriends  = utils.Forbidden("You can only message your friends.")
	ErrSendBlocked = utils.Forbidden("You cannot message this user.")
	ErrViewBlocked = utils.Forbidden("You cannot view messages with this user.")
)

// RelationshipReader loads the current persisted relationship record.
type RelationshipReader interface {
	Get(ctx context.Context, userID string) (*models.Relationship, error)
}

// Guard checks message permissions against persisted relationship state.
// Nothing is cached: a block takes effect on the very next call.
type Guard struct {
	records RelationshipReader
}

func NewGuard(records RelationshipReader) *Guard {
	return &Guard{records: records}
}

// CanSend requires a friendship and no block in either direction.
func (g *Guard) CanSend(ctx context.Context, sender, receiver string) error {
	s, r, err := g.load(ctx, sender, receiver)
	if err != nil {
		return err
	}
	if s.HasBlocked(receiver) || r.HasBlocked(sender) {
		return ErrSendBlocked
	}
	if !s.IsFriend(receiver) {
		return ErrNotFriends
	}
	return nil
}

// CanView only requires that neither side blocks the other.
func (g *Guard) CanView(ctx context.Context, viewer, other string) error {
	v, o, err := g.load(ctx, viewer, other)
	if err != nil {
		return err
	}
	if v.HasBlocked(other) || o.HasBlocked(viewer) {
		return ErrViewBlocked
	}
	return nil
}

func (g *Guard) load(ctx context.Context, a, b string) (*models.Relationship, *models.Relationship, error) {
	ra, err := g.records.Get(ctx, a)
	if err != nil {
		return nil, nil, utils.Internal("failed to load relationships", err)
	}
	rb, err := g.records.Get(ctx, b)
	if err != nil {
		return nil, nil, utils.Internal("failed to load relationships", err)
	}
	return ra, rb, nil
}
