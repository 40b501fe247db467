package domain

import (
	"encoding/json"
	"time"
)

// Kind is the wire "type" of an outbound event.
type Kind string

const (
	KindMessage      Kind = "message"
	KindSticker      Kind = "sticker"
	KindPublicKey    Kind = "publicKey"
	KindPrivate      Kind = "private_message"
	KindNotification Kind = "notification"
	KindUsers        Kind = "users"
	KindHistory      Kind = "history"
	KindSession      Kind = "session"
	KindError        Kind = "error"
	KindPong         Kind = "pong"
)

// Content is the payload of a chat message. Which fields are set depends on
// the message kind.
type Content struct {
	Text      string `json:"text,omitempty" validate:"max=4000,safetext"`
	Emoji     string `json:"emoji,omitempty" validate:"max=64,safetext"`
	StickerID string `json:"sticker_id,omitempty" validate:"max=128,safetext"`
}

func (c Content) Empty() bool {
	return c.Text == "" && c.Emoji == "" && c.StickerID == ""
}

// Event is anything the server writes to a connection.
type Event interface {
	Kind() Kind
	isEvent()
}

// ChatMessage is a message or sticker. It is the unit of the durable log.
type ChatMessage struct {
	Type      Kind      `json:"type"`
	Username  Identity  `json:"username"`
	Content   Content   `json:"content"`
	RoomID    RoomID    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type PublicKeyMessage struct {
	Type      Kind      `json:"type"`
	Username  Identity  `json:"username"`
	PublicKey string    `json:"publicKey"`
	RoomID    RoomID    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type PrivateMessage struct {
	Type      Kind      `json:"type"`
	Username  Identity  `json:"username"`
	To        Identity  `json:"to"`
	Content   Content   `json:"content"`
	RoomID    RoomID    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type Notification struct {
	Type      Kind      `json:"type"`
	Content   string    `json:"content"`
	RoomID    RoomID    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type UsersSnapshot struct {
	Type   Kind       `json:"type"`
	Users  []Identity `json:"users"`
	RoomID RoomID     `json:"roomId"`
}

type History struct {
	Type     Kind          `json:"type"`
	Messages []ChatMessage `json:"messages"`
	RoomID   RoomID        `json:"roomId"`
}

type SessionEvent struct {
	Type      Kind     `json:"type"`
	SessionID string   `json:"sessionId"`
	Username  Identity `json:"username"`
	RoomID    RoomID   `json:"roomId"`
}

type ErrorEvent struct {
	Type   Kind   `json:"type"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type Pong struct {
	Type Kind `json:"type"`
}

func (m ChatMessage) Kind() Kind      { return m.Type }
func (m PublicKeyMessage) Kind() Kind { return KindPublicKey }
func (m PrivateMessage) Kind() Kind   { return KindPrivate }
func (n Notification) Kind() Kind     { return KindNotification }
func (u UsersSnapshot) Kind() Kind    { return KindUsers }
func (h History) Kind() Kind          { return KindHistory }
func (s SessionEvent) Kind() Kind     { return KindSession }
func (e ErrorEvent) Kind() Kind       { return KindError }
func (p Pong) Kind() Kind             { return KindPong }

func (ChatMessage) isEvent()      {}
func (PublicKeyMessage) isEvent() {}
func (PrivateMessage) isEvent()   {}
func (Notification) isEvent()     {}
func (UsersSnapshot) isEvent()    {}
func (History) isEvent()          {}
func (SessionEvent) isEvent()     {}
func (ErrorEvent) isEvent()       {}
func (Pong) isEvent()             {}

func NewNotification(room RoomID, text string) Notification {
	return Notification{Type: KindNotification, Content: text, RoomID: room, Timestamp: time.Now().UTC()}
}

func NewUsersSnapshot(room RoomID, users []Identity) UsersSnapshot {
	if users == nil {
		users = []Identity{}
	}
	return UsersSnapshot{Type: KindUsers, Users: users, RoomID: room}
}

func NewHistory(room RoomID, msgs []ChatMessage) History {
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return History{Type: KindHistory, Messages: msgs, RoomID: room}
}

func NewSessionEvent(room RoomID, token string, id Identity) SessionEvent {
	return SessionEvent{Type: KindSession, SessionID: token, Username: id, RoomID: room}
}

func NewErrorEvent(code, detail string) ErrorEvent {
	return ErrorEvent{Type: KindError, Error: code, Detail: detail}
}

// Encode renders an event as a JSON text frame.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
