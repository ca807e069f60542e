package messaging

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"friendline/blob"
	"friendline/models"
	"friendline/store"
	"friendline/utils"
)

var ErrEmptyMessage = utils.Validation("Message must contain text or an image.")

// sidebarConcurrency bounds the per-friend lookups of one sidebar request.
const sidebarConcurrency = 8

type Notifier interface {
	Notify(userID string, ev models.Event)
}

// ImageStore turns an uploaded image data URI into a URL.
type ImageStore interface {
	PutImageDataURI(ctx context.Context, uri string) (string, error)
}

// PairLocker runs fn while no relationship transition between a and b can
// commit in this process.
type PairLocker interface {
	Exclusive(a, b string, fn func() error) error
}

type Service struct {
	guard    *Guard
	pairs    PairLocker
	records  RelationshipReader
	users    store.UserStore
	messages store.MessageStore
	images   ImageStore
	notifier Notifier
	now      func() time.Time
}

func NewService(guard *Guard, records RelationshipReader, users store.UserStore, messages store.MessageStore, images ImageStore, notifier Notifier) *Service {
	return &Service{
		guard:    guard,
		records:  records,
		users:    users,
		messages: messages,
		images:   images,
		notifier: notifier,
		now:      time.Now,
	}
}

// UsePairLock makes Send store messages under the relationship pair lock, so
// a block committed while an image uploads is honoured. Across processes the
// creation-time check stays best-effort.
func (s *Service) UsePairLock(pairs PairLocker) {
	s.pairs = pairs
}

type SendInput struct {
	Text  string
	Image string // data URI
}

// Send stores a message from sender to receiver and pushes it to the
// receiver's channel.
func (s *Service) Send(ctx context.Context, sender, receiver string, in SendInput) (*models.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == "" {
		return nil, ErrEmptyMessage
	}

	if err := s.guard.CanSend(ctx, sender, receiver); err != nil {
		return nil, err
	}

	var imageURL string
	if in.Image != "" {
		if s.images == nil {
			return nil, utils.Validation("Image messages are not supported.")
		}
		url, err := s.images.PutImageDataURI(ctx, in.Image)
		if err != nil {
			return nil, blob.AsClientError(err)
		}
		imageURL = url
	}

	msg := &models.Message{
		ID:         utils.GenerateUUID(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		ImageURL:   imageURL,
		IsRead:     false,
		CreatedAt:  s.now().UTC().Truncate(time.Microsecond),
	}

	commit := func() error {
		// Checked again here: the relationship may have changed during the upload.
		if err := s.guard.CanSend(ctx, sender, receiver); err != nil {
			return err
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return utils.Internal("failed to save message", err)
		}
		return nil
	}

	var err error
	if s.pairs != nil {
		err = s.pairs.Exclusive(sender, receiver, commit)
	} else {
		err = commit()
	}
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Notify(receiver, models.Event{Event: models.EventNewMessage, Data: msg})
	}
	return msg, nil
}

// History returns the conversation between viewer and peer, oldest first.
func (s *Service) History(ctx context.Context, viewer, peer string) ([]models.Message, error) {
	if err := s.guard.CanView(ctx, viewer, peer); err != nil {
		return nil, err
	}
	msgs, err := s.messages.Conversation(ctx, viewer, peer)
	if err != nil {
		return nil, utils.Internal("failed to load messages", err)
	}
	return msgs, nil
}

// MarkRead flags every unread message from peer to reader as read.
func (s *Service) MarkRead(ctx context.Context, reader, peer string) (int64, error) {
	n, err := s.messages.MarkRead(ctx, peer, reader)
	if err != nil {
		return 0, utils.Internal("failed to mark messages as read", err)
	}
	return n, nil
}

type sidebarRow struct {
	visible bool
	unread  int64
	last    *models.Message
}

// Sidebar lists the user's friends that neither block nor are blocked by the
// user, with unread counts and the latest message, newest conversation first.
func (s *Service) Sidebar(ctx context.Context, userID string) ([]models.PeerSummary, error) {
	me, err := s.records.Get(ctx, userID)
	if err != nil {
		return nil, utils.Internal("failed to load relationships", err)
	}

	friends := me.Friends
	rows := make([]sidebarRow, len(friends))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sidebarConcurrency)
	for i, friend := range friends {
		if me.HasBlocked(friend) {
			continue
		}
		g.Go(func() error {
			rec, err := s.records.Get(gctx, friend)
			if err != nil {
				return err
			}
			if rec.HasBlocked(userID) {
				return nil
			}
			unread, err := s.messages.UnreadCount(gctx, friend, userID)
			if err != nil {
				return err
			}
			last, err := s.messages.Last(gctx, userID, friend)
			if err != nil {
				return err
			}
			rows[i] = sidebarRow{visible: true, unread: unread, last: last}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, utils.Internal("failed to build sidebar", err)
	}

	visible := make([]string, 0, len(friends))
	byID := make(map[string]sidebarRow, len(friends))
	for i, friend := range friends {
		if rows[i].visible {
			visible = append(visible, friend)
			byID[friend] = rows[i]
		}
	}

	summaries, err := s.users.Summaries(ctx, visible)
	if err != nil {
		return nil, utils.Internal("failed to load users", err)
	}

	out := make([]models.PeerSummary, 0, len(summaries))
	for _, u := range summaries {
		row := byID[u.ID]
		out = append(out, models.PeerSummary{
			UserSummary: u,
			UnreadCount: row.unread,
			LastMessage: row.last,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})

	logrus.WithFields(logrus.Fields{
		"function": "Sidebar",
		"user_id":  userID,
		"peers":    len(out),
	}).Debug("sidebar built")

	return out, nil
}

// lastActivity treats peers without messages as the epoch so they sort last.
func lastActivity(p models.PeerSummary) time.Time {
	if p.LastMessage == nil {
		return time.Unix(0, 0)
	}
	return p.LastMessage.CreatedAt
}
