package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Conn is one live connection as seen by the registry.
type Conn interface {
	ID() string
	// Identity is the connect-time identity.
	Identity() Identity
	// Send queues a frame without blocking. false means the connection is
	// gone or too slow and should be dropped.
	Send(frame []byte) bool
	Close()
}

// Relay carries room broadcasts between server processes.
type Relay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
}

type RelayEnvelope struct {
	RequestID     string          `json:"requestId"`
	Frame         json.RawMessage `json:"frame"`
	ExcludeConnID string          `json:"excludeConnId,omitempty"`
}

type room struct {
	mu      sync.Mutex
	members map[string]Conn
}

type membership struct {
	conn     Conn
	identity Identity
	rooms    map[string]struct{}
}

// Registry maps thread ids to the connections joined to them. State is
// process local unless a Relay is attached.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	conns map[string]*membership

	relay        Relay
	relayTimeout time.Duration
	log          *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		rooms:        make(map[string]*room),
		conns:        make(map[string]*membership),
		relayTimeout: 2 * time.Second,
		log:          logger,
	}
}

// UseRelay routes broadcasts through relay. Delivery to local members then
// happens when the relayed envelope comes back via DeliverRelayed.
func (r *Registry) UseRelay(relay Relay) {
	r.mu.Lock()
	r.relay = relay
	r.mu.Unlock()
}

// Join adds conn to the room for requestID. Empty identity fields keep the
// previously known values.
func (r *Registry) Join(conn Conn, requestID string, id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[conn.ID()]
	if !ok {
		m = &membership{conn: conn, identity: conn.Identity(), rooms: make(map[string]struct{})}
		r.conns[conn.ID()] = m
	}
	if id.UserID != "" {
		m.identity.UserID = id.UserID
	}
	if id.PartnerID != "" {
		m.identity.PartnerID = id.PartnerID
	}
	m.rooms[requestID] = struct{}{}

	rm, ok := r.rooms[requestID]
	if !ok {
		rm = &room{members: make(map[string]Conn)}
		r.rooms[requestID] = rm
	}
	rm.mu.Lock()
	rm.members[conn.ID()] = conn
	rm.mu.Unlock()
}

// Identity returns the identity stored for conn, or its connect-time
// identity when it never joined.
func (r *Registry) Identity(conn Conn) Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.conns[conn.ID()]; ok {
		return m.identity
	}
	return conn.Identity()
}

func (r *Registry) Broadcast(requestID, event string, payload interface{}) error {
	return r.broadcast(requestID, event, payload, "")
}

func (r *Registry) BroadcastExceptSender(requestID, event string, payload interface{}, sender Conn) error {
	return r.broadcast(requestID, event, payload, sender.ID())
}

func (r *Registry) broadcast(requestID, event string, payload interface{}, excludeID string) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}

	r.mu.RLock()
	relay := r.relay
	r.mu.RUnlock()

	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.relayTimeout)
		err := relay.Publish(ctx, RelayEnvelope{RequestID: requestID, Frame: frame, ExcludeConnID: excludeID})
		cancel()
		if err == nil {
			return nil
		}
		r.log.WithError(err).WithField("request_id", requestID).Warn("relay publish failed, delivering locally")
	}

	r.deliver(requestID, frame, excludeID)
	return nil
}

// DeliverRelayed hands an envelope received from the relay to local members.
func (r *Registry) DeliverRelayed(env RelayEnvelope) {
	r.deliver(env.RequestID, env.Frame, env.ExcludeConnID)
}

// deliver holds the room lock for the whole fan-out so every member sees
// broadcasts in the same order.
func (r *Registry) deliver(requestID string, frame []byte, excludeID string) {
	r.mu.RLock()
	rm, ok := r.rooms[requestID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	var dead []Conn
	rm.mu.Lock()
	for id, c := range rm.members {
		if id == excludeID {
			continue
		}
		if !c.Send(frame) {
			dead = append(dead, c)
		}
	}
	rm.mu.Unlock()

	for _, c := range dead {
		r.log.WithField("conn_id", c.ID()).Warn("dropping unresponsive connection")
		r.OnDisconnect(c)
		c.Close()
	}
}

// OnDisconnect removes conn from every room it joined.
func (r *Registry) OnDisconnect(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.conns[conn.ID()]
	if !ok {
		return
	}
	delete(r.conns, conn.ID())

	for requestID := range m.rooms {
		rm, ok := r.rooms[requestID]
		if !ok {
			continue
		}
		rm.mu.Lock()
		delete(rm.members, conn.ID())
		empty := len(rm.members) == 0
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, requestID)
		}
	}
}

// RoomSize reports how many local connections are joined to requestID.
func (r *Registry) RoomSize(requestID string) int {
	r.mu.RLock()
	rm, ok := r.rooms[requestID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}
