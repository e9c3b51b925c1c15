package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autohub-chat/internal/notify"
)

// Notifier is what the chat core needs from push delivery.
type Notifier interface {
	SendPush(ctx context.Context, targetUserID string, p notify.Push, category string) error
	ResolveUserIDFromOwnerID(ctx context.Context, ownerID string) (string, error)
}

const (
	pushCategory   = "chat_message"
	pushTitle      = "New message"
	pushBodyLimit  = 120
	defaultTimeout = 5 * time.Second
)

type Option func(*Handler)

// WithClock overrides the clock used for non-durable fallback messages.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(h *Handler) { h.persistTimeout = d }
}

func WithPushTimeout(d time.Duration) Option {
	return func(h *Handler) { h.pushTimeout = d }
}

// Handler runs the per-connection event state machine: join, send, typing
// and read receipts. It is the error boundary for the live path; nothing a
// dependency returns reaches the client or closes the connection.
type Handler struct {
	messages MessageStore
	index    ConversationIndex
	rooms    *Registry
	notifier Notifier
	log      *logrus.Logger

	now            func() time.Time
	persistTimeout time.Duration
	pushTimeout    time.Duration

	sendBuffer     int
	maxMessageSize int64

	pushes sync.WaitGroup
}

func NewHandler(messages MessageStore, index ConversationIndex, rooms *Registry, notifier Notifier, logger *logrus.Logger, opts ...Option) *Handler {
	h := &Handler{
		messages:       messages,
		index:          index,
		rooms:          rooms,
		notifier:       notifier,
		log:            logger,
		now:            time.Now,
		persistTimeout: defaultTimeout,
		pushTimeout:    10 * time.Second,
		sendBuffer:     256,
		maxMessageSize: maxMessageSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches one decoded event. It never panics out.
func (h *Handler) Handle(ctx context.Context, conn Conn, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.WithFields(logrus.Fields{
				"conn_id": conn.ID(),
				"panic":   fmt.Sprint(rec),
			}).Error("event handler panicked")
		}
	}()

	switch e := ev.(type) {
	case JoinChat:
		h.Join(ctx, conn, e)
	case SendMessage:
		h.Send(ctx, conn, e)
	case Typing:
		h.Typing(conn, e)
	case MarkRead:
		h.MarkRead(conn, e)
	}
}

// HandleRaw decodes a frame and dispatches it; undecodable frames are dropped.
func (h *Handler) HandleRaw(ctx context.Context, conn Conn, raw []byte) {
	ev, err := DecodeEvent(raw)
	if err != nil {
		h.log.WithError(err).WithField("conn_id", conn.ID()).Debug("dropping inbound frame")
		return
	}
	h.Handle(ctx, conn, ev)
}

func (h *Handler) Join(ctx context.Context, conn Conn, e JoinChat) {
	requestID := strings.TrimSpace(e.RequestID)
	if requestID == "" {
		return
	}

	h.rooms.Join(conn, requestID, Identity{UserID: e.UserID, PartnerID: e.PartnerID})

	fields := logrus.Fields{"conn_id": conn.ID(), "request_id": requestID}
	h.log.WithFields(fields).Debug("joined chat")

	histCtx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	history, err := h.messages.History(histCtx, requestID)
	cancel()
	if err != nil {
		// Membership stays: live messages still arrive.
		h.log.WithError(err).WithFields(fields).Error("failed to load chat history")
		return
	}

	frame, err := EncodeFrame(EventChatHistory, history)
	if err != nil {
		h.log.WithError(err).WithFields(fields).Error("failed to encode chat history")
		return
	}
	if !conn.Send(frame) {
		h.log.WithFields(fields).Warn("could not deliver chat history")
	}
}

func (h *Handler) Send(ctx context.Context, conn Conn, e SendMessage) {
	requestID := strings.TrimSpace(e.RequestID)
	if requestID == "" || e.Message == "" || !e.Sender.Valid() {
		h.log.WithFields(logrus.Fields{
			"conn_id":    conn.ID(),
			"request_id": e.RequestID,
			"sender":     e.Sender,
		}).Debug("dropping invalid send_message")
		return
	}

	id := h.rooms.Identity(conn)
	fields := logrus.Fields{
		"conn_id":    conn.ID(),
		"request_id": requestID,
		"user_id":    id.UserID,
		"partner_id": id.PartnerID,
		"sender":     e.Sender,
	}

	persistCtx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()

	msg, err := h.messages.Append(persistCtx, requestID, id.UserID, id.PartnerID, e.Sender, e.Message)
	if err != nil {
		// Live members still see the message; it will be missing from history.
		h.log.WithError(err).WithFields(fields).Error("message not persisted, broadcasting non-durable copy")
		msg = &Message{
			ID:        uuid.NewString(),
			RequestID: requestID,
			UserID:    id.UserID,
			PartnerID: id.PartnerID,
			Sender:    e.Sender,
			Body:      e.Message,
			Timestamp: h.now().UnixMilli(),
		}
	} else {
		userID, partnerID := id.UserID, id.PartnerID
		if e.Sender == RolePartner {
			userID, partnerID = id.PartnerID, id.UserID
		}
		if err := h.index.UpsertOnMessage(persistCtx, requestID, userID, partnerID, e.Sender, msg.Body, msg.Timestamp); err != nil {
			h.log.WithError(err).WithFields(fields).Error("conversation summary not updated")
		}
	}

	if err := h.rooms.Broadcast(requestID, EventMessageNew, msg); err != nil {
		h.log.WithError(err).WithFields(fields).Error("failed to broadcast message")
	}
	if err := h.rooms.Broadcast(requestID, EventConversationUpdated, ConversationUpdated{
		RequestID:     requestID,
		LastMessage:   msg.Body,
		LastMessageAt: msg.Timestamp,
	}); err != nil {
		h.log.WithError(err).WithFields(fields).Error("failed to broadcast conversation update")
	}

	h.dispatchPush(msg)
}

// dispatchPush runs detached from the event: its latency and failures never
// reach the sender.
func (h *Handler) dispatchPush(msg *Message) {
	if h.notifier == nil {
		return
	}

	h.pushes.Add(1)
	go func() {
		defer h.pushes.Done()
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("panic", fmt.Sprint(rec)).Error("push dispatch panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), h.pushTimeout)
		defer cancel()

		fields := logrus.Fields{
			"request_id": msg.RequestID,
			"message_id": msg.ID,
			"sender":     msg.Sender,
			"recipient":  msg.Sender.Other(),
		}

		target := msg.PartnerID
		if msg.Sender == RoleUser && target != "" {
			resolved, err := h.notifier.ResolveUserIDFromOwnerID(ctx, target)
			if err != nil {
				h.log.WithError(fmt.Errorf("%w: %w", ErrDispatch, err)).WithFields(fields).Warn("could not resolve partner owner")
				return
			}
			target = resolved
		}
		if target == "" {
			h.log.WithFields(fields).Debug("no push target for message")
			return
		}

		push := notify.Push{
			Title: pushTitle,
			Body:  TruncateBody(msg.Body),
			Data: map[string]string{
				"type":      pushCategory,
				"requestId": msg.RequestID,
				"messageId": msg.ID,
				"sender":    string(msg.Sender),
			},
			Sound: "default",
			Badge: 1,
		}
		if err := h.notifier.SendPush(ctx, target, push, pushCategory); err != nil {
			h.log.WithError(fmt.Errorf("%w: %w", ErrDispatch, err)).WithFields(fields).Warn("push not delivered")
		}
	}()
}

// TruncateBody caps push bodies at 120 characters plus an ellipsis.
func TruncateBody(body string) string {
	if utf8.RuneCountInString(body) <= pushBodyLimit {
		return body
	}
	return string([]rune(body)[:pushBodyLimit]) + "..."
}

func (h *Handler) Typing(conn Conn, e Typing) {
	requestID := strings.TrimSpace(e.RequestID)
	if requestID == "" || !e.Sender.Valid() {
		return
	}

	event := EventTypingStop
	if e.Start {
		event = EventTypingStart
	}

	id := h.rooms.Identity(conn)
	err := h.rooms.BroadcastExceptSender(requestID, event, TypingSignal{
		Sender:    e.Sender,
		UserID:    id.UserID,
		PartnerID: id.PartnerID,
	}, conn)
	if err != nil {
		h.log.WithError(err).WithField("request_id", requestID).Warn("failed to relay typing signal")
	}
}

// MarkRead only relays a read receipt; durable read flags are flipped
// through MarkThreadRead.
func (h *Handler) MarkRead(conn Conn, e MarkRead) {
	requestID := strings.TrimSpace(e.RequestID)
	if requestID == "" || e.MessageID == "" {
		return
	}

	id := h.rooms.Identity(conn)
	readBy := id.UserID
	if readBy == "" {
		readBy = id.PartnerID
	}

	err := h.rooms.BroadcastExceptSender(requestID, EventMessageRead, ReadReceipt{
		MessageID: e.MessageID,
		ReadBy:    readBy,
	}, conn)
	if err != nil {
		h.log.WithError(err).WithField("request_id", requestID).Warn("failed to relay read receipt")
	}
}

// Disconnect drops conn from every room.
func (h *Handler) Disconnect(conn Conn) {
	h.rooms.OnDisconnect(conn)
}

// MarkThreadRead flips read flags for messages from the other side and
// resets the acting side's unread counter. The counter reset is best-effort.
func (h *Handler) MarkThreadRead(ctx context.Context, requestID string, side Role) (int64, error) {
	if requestID == "" || !side.Valid() {
		return 0, ErrValidation
	}

	n, err := h.messages.MarkRead(ctx, requestID, side)
	if err != nil {
		return 0, err
	}
	if err := h.index.ResetUnread(ctx, requestID, side); err != nil {
		h.log.WithError(err).WithField("request_id", requestID).Warn("unread counter not reset")
	}
	return n, nil
}

// Wait blocks until in-flight push dispatches finish.
func (h *Handler) Wait() {
	h.pushes.Wait()
}
