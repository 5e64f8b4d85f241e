package ws

import (
	"neonchat/internal/models"
)

type ClientMessageType string

const (
	// ClientMessageTypeSelect switches the active conversation.
	ClientMessageTypeSelect ClientMessageType = "select"
	// ClientMessageTypeSend appends a message to the active conversation.
	ClientMessageTypeSend ClientMessageType = "send"
	// ClientMessageTypeTyping reports a keystroke in the active
	// direct conversation.
	ClientMessageTypeTyping ClientMessageType = "typing"
)

type ClientMessage struct {
	Type   ClientMessageType `json:"type"`
	Kind   string            `json:"kind,omitempty"`
	Target string            `json:"target,omitempty"`
	Text   string            `json:"text,omitempty"`
}

type ServerMessageType string

const (
	ServerMessageTypeMessages ServerMessageType = "messages"
	ServerMessageTypeUsers    ServerMessageType = "users"
	ServerMessageTypeRooms    ServerMessageType = "rooms"
	ServerMessageTypeError    ServerMessageType = "error"
)

// ServerMessage is one push frame. Messages frames carry the full
// current window for the conversation named by Kind/Target; the client
// replaces its view rather than appending.
type ServerMessage struct {
	Type     ServerMessageType `json:"type"`
	Kind     string            `json:"kind,omitempty"`
	Target   string            `json:"target,omitempty"`
	Messages []models.Message  `json:"messages,omitempty"`
	Users    []models.User     `json:"users,omitempty"`
	Rooms    []models.Room     `json:"rooms,omitempty"`
	Error    string            `json:"error,omitempty"`
}
