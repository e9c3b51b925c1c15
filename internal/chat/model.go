package chat

// Role is the side of a thread a participant belongs to.
type Role string

const (
	RoleUser    Role = "user"
	RolePartner Role = "partner"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RolePartner
}

// Other returns the receiving side for a message sent by r.
func (r Role) Other() Role {
	if r == RoleUser {
		return RolePartner
	}
	return RoleUser
}

// Message is immutable after Append except for IsRead, which only goes false -> true.
// UserID is the sender's id and PartnerID the optional counterparty id.
type Message struct {
	ID        string `json:"id"`
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
	Sender    Role   `json:"sender"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	IsRead    bool   `json:"isRead"`
}

type UnreadCounts struct {
	User    int `json:"user"`
	Partner int `json:"partner"`
}

// Conversation is the per-thread summary row used for recent-chat listings.
type Conversation struct {
	RequestID     string       `json:"requestId"`
	UserID        string       `json:"userId"`
	PartnerID     string       `json:"partnerId"`
	LastMessage   string       `json:"lastMessage"`
	LastMessageAt int64        `json:"lastMessageAt"`
	UnreadCounts  UnreadCounts `json:"unreadCounts"`
}

// Identity is attached to a live connection at connect time and may be
// overridden per join.
type Identity struct {
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
}

// ---------------------------------------------
// Outbound payloads
// ---------------------------------------------

type ConversationUpdated struct {
	RequestID     string `json:"requestId"`
	LastMessage   string `json:"lastMessage"`
	LastMessageAt int64  `json:"lastMessageAt"`
}

type TypingSignal struct {
	Sender    Role   `json:"sender"`
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
}

type ReadReceipt struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// Outbound event names.
const (
	EventChatHistory         = "chat:history"
	EventMessageNew          = "message:new"
	EventConversationUpdated = "conversation:updated"
	EventTypingStart         = "typing:start"
	EventTypingStop          = "typing:stop"
	EventMessageRead         = "message:read"
)
