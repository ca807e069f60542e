// Package relation implements friendship, request and block transitions
// between two users.
//
// Every transition reads both users' records, decides the new edge each
// record holds towards the other, writes both records and only then unicasts
// an event to the counterpart. Transitions on the same unordered pair are
// serialized in-process by a per-pair lock. Each record is written against
// the version the decision was based on; a conflict on either side undoes
// the other and re-runs the decision, which keeps pairs consistent when
// several processes share one database.
package relation

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"friendline/models"
	"friendline/store"
	"friendline/utils"
)

var (
	ErrSelfReference   = utils.Validation("You cannot perform this action on yourself.")
	ErrAlreadyRelated  = utils.Validation("Friend request already sent or already friends.")
	ErrUserNotFound    = utils.NotFound("User not found.")
	ErrRequestNotFound = utils.NotFound("Friend request not found.")
)

// Notifier delivers an event to a user's live channel, if any.
type Notifier interface {
	Notify(userID string, ev models.Event)
}

// UserDirectory answers whether a user id refers to a registered user.
type UserDirectory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Outcome tells a caller of SendRequest what the request turned into.
type Outcome int

const (
	OutcomeRequestSent Outcome = iota
	// OutcomeAccepted means an opposing request was pending and the pair
	// became friends instead.
	OutcomeAccepted
)

// Machine applies relationship transitions and notifies the counterpart of
// each committed change.
type Machine struct {
	users    UserDirectory
	records  *store.Relationships
	notifier Notifier
	locks    *pairLocks
}

// NewMachine returns a Machine that checks targets against users, persists
// through records and delivers events to notifier, which may be nil.
func NewMachine(users UserDirectory, records *store.Relationships, notifier Notifier) *Machine {
	return &Machine{
		users:    users,
		records:  records,
		notifier: notifier,
		locks:    newPairLocks(),
	}
}

// decision is the result of evaluating a transition against the current edges.
type decision struct {
	actor  models.Edge // actor's new edge towards target
	target models.Edge // target's new edge towards actor
	event  string      // event for target; empty for none
}

// Record returns the user's current relationship record.
func (m *Machine) Record(ctx context.Context, userID string) (*models.Relationship, error) {
	rec, err := m.records.Get(ctx, userID)
	if err != nil {
		return nil, utils.Internal("failed to load relationships", err)
	}
	return rec, nil
}

// SendRequest asks target for friendship. A pending request in the opposite
// direction is accepted instead. Any existing friendship, pending request or
// block in either direction rejects the request.
func (m *Machine) SendRequest(ctx context.Context, actor, target string) (Outcome, error) {
	var outcome Outcome
	err := m.transition(ctx, "SendRequest", actor, target, true, func(a, b models.Edge) (decision, error) {
		outcome = OutcomeRequestSent
		switch {
		case a.Blocked || b.Blocked:
			return decision{}, ErrAlreadyRelated
		case a.Friend || b.Friend:
			return decision{}, ErrAlreadyRelated
		case a.Sent || b.Received:
			return decision{}, ErrAlreadyRelated
		case a.Received || b.Sent:
			// The target already asked: collapse both requests into a friendship.
			outcome = OutcomeAccepted
			return decision{
				actor:  models.Edge{Friend: true},
				target: models.Edge{Friend: true},
				event:  models.EventFriendRequestAccepted,
			}, nil
		}
		return decision{
			actor:  models.Edge{Sent: true},
			target: models.Edge{Received: true},
			event:  models.EventFriendRequestReceived,
		}, nil
	})
	return outcome, err
}

// AcceptRequest turns requester's pending request to actor into a friendship.
func (m *Machine) AcceptRequest(ctx context.Context, actor, requester string) error {
	return m.transition(ctx, "AcceptRequest", actor, requester, true, func(a, b models.Edge) (decision, error) {
		if !(a.Received || b.Sent) || a.Blocked || b.Blocked {
			return decision{}, ErrRequestNotFound
		}
		return decision{
			actor:  models.Edge{Friend: true},
			target: models.Edge{Friend: true},
			event:  models.EventFriendRequestAccepted,
		}, nil
	})
}

// DeclineRequest removes a pending request from requester. Declining a
// request that does not exist succeeds without changes or events.
func (m *Machine) DeclineRequest(ctx context.Context, actor, requester string) error {
	return m.transition(ctx, "DeclineRequest", actor, requester, true, func(a, b models.Edge) (decision, error) {
		if !(a.Received || b.Sent) {
			return decision{actor: a, target: b}, nil
		}
		a.Received = false
		b.Sent = false
		return decision{actor: a, target: b, event: models.EventFriendRequestDeclined}, nil
	})
}

// RemoveFriend clears friendship and any pending request in both directions.
// It is valid from every state; block edges are left alone.
func (m *Machine) RemoveFriend(ctx context.Context, actor, friend string) error {
	if actor == friend {
		return ErrSelfReference
	}
	if err := m.requireUser(ctx, friend); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	return m.transition(ctx, "RemoveFriend", actor, friend, false, func(a, b models.Edge) (decision, error) {
		return decision{
			actor:  models.Edge{Blocked: a.Blocked},
			target: models.Edge{Blocked: b.Blocked},
			event:  models.EventFriendRemoved,
		}, nil
	})
}

// Block strips friendship and requests between the pair and records the
// block on the actor's side. Blocking twice is a no-op.
func (m *Machine) Block(ctx context.Context, actor, target string) error {
	return m.transition(ctx, "Block", actor, target, true, func(a, b models.Edge) (decision, error) {
		d := decision{
			actor:  models.Edge{Blocked: true},
			target: models.Edge{Blocked: b.Blocked},
		}
		if !a.Blocked {
			d.event = models.EventUserBlocked
		}
		return d, nil
	})
}

// Unblock lifts the actor's block only; friendship and requests cleared by
// the block are not restored.
func (m *Machine) Unblock(ctx context.Context, actor, target string) error {
	return m.transition(ctx, "Unblock", actor, target, true, func(a, b models.Edge) (decision, error) {
		d := decision{actor: a, target: b}
		if a.Blocked {
			d.actor.Blocked = false
			d.event = models.EventUserUnblocked
		}
		return d, nil
	})
}

func (m *Machine) requireUser(ctx context.Context, id string) error {
	exists, err := m.users.Exists(ctx, id)
	if err != nil {
		return utils.Internal("failed to look up user", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

// Exclusive runs fn while holding the lock of the pair a, b, so no
// transition between them commits in this process until fn returns.
func (m *Machine) Exclusive(a, b string, fn func() error) error {
	unlock := m.locks.lock(a, b)
	defer unlock()
	return fn()
}

// transition runs decide under the pair lock and persists its result.
//
// Both records are written against the versions decide was shown. When either
// write loses to another writer the first write is undone and the decision is
// taken again from fresh state, so a pair is never left half-updated by a
// concurrent transition running in another process.
func (m *Machine) transition(ctx context.Context, op, actor, target string, checkTarget bool, decide func(a, b models.Edge) (decision, error)) error {
	if actor == target {
		return ErrSelfReference
	}
	if checkTarget {
		if err := m.requireUser(ctx, target); err != nil {
			return err
		}
	}

	unlock := m.locks.lock(actor, target)
	defer unlock()

	log := logrus.WithFields(logrus.Fields{
		"function": op,
		"actor":    actor,
		"target":   target,
	})

	var lastErr error
	for attempt := 1; attempt <= m.records.MaxAttempts(); attempt++ {
		d, err := m.apply(ctx, log, actor, target, decide)
		if err == nil {
			log.WithFields(logrus.Fields{
				"event":   d.event,
				"attempt": attempt,
			}).Debug("relationship transition committed")

			if d.event != "" && m.notifier != nil {
				m.notifier.Notify(target, models.NewFromEvent(d.event, actor))
			}
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}

		lastErr = err
		log.WithField("attempt", attempt).Warn("relationship pair changed concurrently, retrying")
		if err := backoff(ctx, attempt); err != nil {
			return utils.Internal("relationship update cancelled", err)
		}
	}
	return storeError(lastErr)
}

// apply makes one read-decide-write pass. A lost version race is returned
// as store.ErrVersionConflict with nothing left behind.
func (m *Machine) apply(ctx context.Context, log *logrus.Entry, actor, target string, decide func(a, b models.Edge) (decision, error)) (decision, error) {
	actorRec, actorVersion, err := m.records.Load(ctx, actor)
	if err != nil {
		return decision{}, utils.Internal("failed to load relationships", err)
	}
	targetRec, targetVersion, err := m.records.Load(ctx, target)
	if err != nil {
		return decision{}, utils.Internal("failed to load relationships", err)
	}

	before := decision{actor: actorRec.Edge(target), target: targetRec.Edge(actor)}
	d, err := decide(before.actor, before.target)
	if err != nil {
		return decision{}, err
	}

	actorChanged := d.actor != before.actor
	if actorChanged {
		actorRec.SetEdge(target, d.actor)
		if err := m.records.Write(ctx, actorRec, actorVersion); err != nil {
			return decision{}, writeError(err)
		}
	}
	if d.target != before.target {
		targetRec.SetEdge(actor, d.target)
		if err := m.records.Write(ctx, targetRec, targetVersion); err != nil {
			if actorChanged {
				m.undo(ctx, log, actor, target, d.actor, before.actor)
			}
			return decision{}, writeError(err)
		}
	}
	return d, nil
}

var errEdgeMoved = errors.New("relation: edge changed after write")

// undo puts owner's edge towards peer back to prev, unless another
// transition has already replaced the edge this one wrote.
func (m *Machine) undo(ctx context.Context, log *logrus.Entry, owner, peer string, wrote, prev models.Edge) {
	_, err := m.records.Update(ctx, owner, func(r *models.Relationship) error {
		if r.Edge(peer) != wrote {
			return errEdgeMoved
		}
		r.SetEdge(peer, prev)
		return nil
	})
	if err != nil && !errors.Is(err, errEdgeMoved) {
		log.WithField("error", err).Error("failed to roll back relationship edge")
	}
}

// backoff waits a short, growing, jittered interval so that two writers
// racing on the same pair stop colliding.
func backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(rand.IntN(attempt*2)+1) * time.Millisecond
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeError(err error) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return err
	}
	return utils.Internal("failed to update relationships", err)
}

func storeError(err error) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return utils.Conflict("The relationship changed concurrently, please retry.", err)
	}
	return utils.Internal("failed to update relationships", err)
}
