package models

import (
	"strings"
	"unicode"
)

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// AdminUID is the fixed principal id used for operator-authored messages.
const AdminUID = "admin"

// AdminName is the display name shown for operator-authored messages.
const AdminName = "Administrator"

// User represents a registered account in the primary store.
type User struct {
	UID       string `json:"uid" msgpack:"uid"`
	Name      string `json:"name" msgpack:"name"`
	Email     string `json:"email" msgpack:"email"`
	Phone     string `json:"phone" msgpack:"phone"`
	Avatar    string `json:"avatar" msgpack:"avatar"`
	Online    bool   `json:"online" msgpack:"online"`
	Blocked   bool   `json:"blocked" msgpack:"blocked"`
	CreatedAt int64  `json:"createdAt" msgpack:"createdAt"` // Unix milliseconds
	LastSeen  int64  `json:"lastSeen" msgpack:"lastSeen"`   // Unix milliseconds
}

// NewUser builds a user profile for a fresh registration.
// The avatar glyph is the upper-cased first rune of the name.
func NewUser(uid, name, email, phone string) (User, error) {
	if uid == "" {
		return User{}, &ValidationError{Field: "uid", Reason: "required"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, &ValidationError{Field: "name", Reason: "required"}
	}
	if email == "" {
		return User{}, &ValidationError{Field: "email", Reason: "required"}
	}
	return User{
		UID:    uid,
		Name:   name,
		Email:  email,
		Phone:  phone,
		Avatar: avatarGlyph(name),
	}, nil
}

func avatarGlyph(name string) string {
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "U"
}

// Message is a single chat message. Immutable once written; the
// timestamp is assigned by the store at append time, never by the
// sending client.
type Message struct {
	ID         string `json:"id,omitempty" msgpack:"id,omitempty"`
	Text       string `json:"text" msgpack:"text"`
	SenderID   string `json:"senderId" msgpack:"senderId"`
	SenderName string `json:"senderName" msgpack:"senderName"`
	Timestamp  int64  `json:"timestamp" msgpack:"timestamp"` // Unix milliseconds
}

// NewMessage validates the message fields. Text must already be
// trimmed; empty text is the caller's no-op case, not an error here.
func NewMessage(text, senderID, senderName string) (Message, error) {
	if text == "" {
		return Message{}, &ValidationError{Field: "text", Reason: "required"}
	}
	if senderID == "" {
		return Message{}, &ValidationError{Field: "senderId", Reason: "required"}
	}
	return Message{
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
	}, nil
}

// Stamp records the store-assigned write time.
func (m *Message) Stamp(ts int64) {
	m.Timestamp = ts
}

// Conversation is the denormalized metadata kept next to a direct
// conversation's message log.
type Conversation struct {
	LastMessage     string          `json:"lastMessage" msgpack:"lastMessage"`
	LastMessageTime int64           `json:"lastMessageTime" msgpack:"lastMessageTime"`
	Participants    map[string]bool `json:"participants" msgpack:"participants"`
}

// RoomMember is one entry in a private room's membership mapping.
type RoomMember struct {
	Name     string `json:"name" msgpack:"name"`
	JoinedAt int64  `json:"joinedAt" msgpack:"joinedAt"`
}

// Room is a private chat joined by an 8-character code.
type Room struct {
	Code       string                `json:"code" msgpack:"code"`
	CreatedBy  string                `json:"createdBy" msgpack:"createdBy"`
	CreatedAt  int64                 `json:"createdAt" msgpack:"createdAt"`
	MaxMembers int                   `json:"maxMembers" msgpack:"maxMembers"`
	Members    map[string]RoomMember `json:"members" msgpack:"members"`
}

func (r Room) MemberCount() int {
	return len(r.Members)
}

func (r Room) HasMember(uid string) bool {
	_, ok := r.Members[uid]
	return ok
}

// Ticket is a support conversation between one user and the operators.
// Keyed by the requesting user's uid; reopened by toggling Status,
// never deleted in normal flow.
type Ticket struct {
	UserName  string       `json:"userName" msgpack:"userName"`
	UserEmail string       `json:"userEmail" msgpack:"userEmail"`
	Status    TicketStatus `json:"status" msgpack:"status"`
	CreatedAt int64        `json:"createdAt" msgpack:"createdAt"`
}

type ActivityKind string

const (
	ActivityRegistration ActivityKind = "registration"
	ActivitySupport      ActivityKind = "support"
)

// Activity is one entry in the moderation dashboard's recent feed.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	Text      string       `json:"text"`
	Timestamp int64        `json:"timestamp"`
}

// DashboardStats is the aggregate block on the moderation dashboard.
type DashboardStats struct {
	TotalUsers    int `json:"totalUsers"`
	OnlineUsers   int `json:"onlineUsers"`
	MessagesToday int `json:"messagesToday"`
	PrivateRooms  int `json:"privateRooms"`
}

// Settings are the operator-tunable switches stored under settings/.
type Settings struct {
	Maintenance        bool `json:"maintenance" msgpack:"maintenance"`
	AllowRegistrations bool `json:"allowRegistrations" msgpack:"allowRegistrations"`
	AutoDeleteDays     int  `json:"autoDeleteDays" msgpack:"autoDeleteDays"`
}

// DefaultSettings matches a store with no settings written yet.
func DefaultSettings() Settings {
	return Settings{AllowRegistrations: true, AutoDeleteDays: 30}
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
