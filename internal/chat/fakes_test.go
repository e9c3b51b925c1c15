package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"autohub-chat/internal/notify"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeConn records every frame it is sent.
type fakeConn struct {
	id       string
	identity Identity

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, identity: Identity{UserID: userID}}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) Identity() Identity { return c.identity }

func (c *fakeConn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) all(t *testing.T) []Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) events(t *testing.T, name string) []Frame {
	t.Helper()
	var out []Frame
	for _, f := range c.all(t) {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func decode[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

// memStore is an in-memory MessageStore and ConversationIndex.
type memStore struct {
	mu            sync.Mutex
	messages      []*Message
	convs         map[string]*Conversation
	ts            int64
	failAppend    bool
	failHistory   bool
	failUpsert    bool
	upserts       int
	panicOnAppend bool
}

var errStoreDown = errors.New("connection refused")

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*Conversation), ts: 1_700_000_000_000}
}

func (s *memStore) Append(_ context.Context, requestID, senderID, partnerID string, sender Role, body string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnAppend {
		panic("driver bug")
	}
	if s.failAppend {
		return nil, errors.Join(ErrPersistence, errStoreDown)
	}
	s.ts++
	m := &Message{
		ID: uuid.NewString(), RequestID: requestID, UserID: senderID, PartnerID: partnerID,
		Sender: sender, Body: body, Timestamp: s.ts,
	}
	s.messages = append(s.messages, m)
	cp := *m
	return &cp, nil
}

func (s *memStore) History(_ context.Context, requestID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHistory {
		return nil, errors.Join(ErrPersistence, errStoreDown)
	}
	out := make([]*Message, 0)
	for _, m := range s.messages {
		if m.RequestID == requestID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, requestID string, actingSide Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.RequestID == requestID && m.Sender != actingSide && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) UnreadCount(_ context.Context, requestID string, actingSide Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.RequestID == requestID && m.Sender != actingSide && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UpsertOnMessage(_ context.Context, requestID, userID, partnerID string, sender Role, body string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return errors.Join(ErrPersistence, errStoreDown)
	}
	s.upserts++
	c, ok := s.convs[requestID]
	if !ok {
		c = &Conversation{RequestID: requestID, UserID: userID, PartnerID: partnerID}
		s.convs[requestID] = c
	}
	c.LastMessage = body
	c.LastMessageAt = ts
	if sender == RoleUser {
		c.UnreadCounts.Partner++
	} else {
		c.UnreadCounts.User++
	}
	return nil
}

func (s *memStore) RecentChats(_ context.Context, userID, partnerID string) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conversation, 0)
	for _, c := range s.convs {
		if (userID == "" || c.UserID == userID) && (partnerID == "" || c.PartnerID == partnerID) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ResetUnread(_ context.Context, requestID string, side Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[requestID]; ok {
		if side == RoleUser {
			c.UnreadCounts.User = 0
		} else {
			c.UnreadCounts.Partner = 0
		}
	}
	return nil
}

func (s *memStore) conv(requestID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[requestID]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

type sentPush struct {
	Target   string
	Push     notify.Push
	Category string
}

// fakeNotifier records pushes. block, when set, holds SendPush until closed.
type fakeNotifier struct {
	mu     sync.Mutex
	pushes []sentPush
	owners map[string]string
	err    error
	block  chan struct{}
}

func (n *fakeNotifier) SendPush(_ context.Context, target string, p notify.Push, category string) error {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes = append(n.pushes, sentPush{Target: target, Push: p, Category: category})
	return n.err
}

func (n *fakeNotifier) ResolveUserIDFromOwnerID(_ context.Context, ownerID string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.owners[ownerID], nil
}

func (n *fakeNotifier) sent() []sentPush {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentPush(nil), n.pushes...)
}
