package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const MaxPublicKeyLen = 8192

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnsafeContent  = errors.New("content contains markup that is not allowed")
	ErrEmptyContent   = errors.New("empty content")
)

// Inbound is a decoded client frame. Decoding never yields a frame of a kind
// it cannot describe: unrecognized types come back as UnknownFrame.
type Inbound interface {
	isInbound()
}

type ChatFrame struct {
	Kind      Kind
	Content   Content
	Room      RoomID
	Timestamp time.Time
}

type PublicKeyFrame struct {
	PublicKey string
	Room      RoomID
	Timestamp time.Time
}

type PrivateFrame struct {
	To        Identity
	Content   Content
	Room      RoomID
	Timestamp time.Time
}

type PingFrame struct{}

type UnknownFrame struct {
	Type string
}

func (ChatFrame) isInbound()      {}
func (PublicKeyFrame) isInbound() {}
func (PrivateFrame) isInbound()   {}
func (PingFrame) isInbound()      {}
func (UnknownFrame) isInbound()   {}

// FlexibleID accepts both JSON strings and numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("room id %q: %w", n.String(), ErrInvalidRoom)
	}
	*f = FlexibleID(n.String())
	return nil
}

type rawFrame struct {
	Type      string          `json:"type" validate:"required,max=32"`
	Content   json.RawMessage `json:"content"`
	RoomID    FlexibleID      `json:"roomId" validate:"max=64"`
	Timestamp string          `json:"timestamp"`
	PublicKey string          `json:"publicKey" validate:"max=8192"`
	To        string          `json:"to" validate:"max=36"`
}

// DecodeFrame parses and validates one client text frame.
func DecodeFrame(data []byte) (Inbound, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}
	room := RoomID(strings.TrimSpace(string(raw.RoomID)))

	switch Kind(raw.Type) {
	case KindMessage, KindSticker:
		c, err := decodeContent(raw.Content)
		if err != nil {
			return nil, err
		}
		if Kind(raw.Type) == KindSticker {
			c = stickerFallback(c)
		}
		if c.Empty() {
			return nil, ErrEmptyContent
		}
		return ChatFrame{Kind: Kind(raw.Type), Content: c, Room: room, Timestamp: ts}, nil
	case KindPublicKey:
		key := raw.PublicKey
		if key == "" {
			// Some clients put the key blob in content.
			var s string
			if len(raw.Content) > 0 && json.Unmarshal(raw.Content, &s) == nil {
				key = s
			}
		}
		if key == "" || len(key) > MaxPublicKeyLen {
			return nil, fmt.Errorf("%w: publicKey missing", ErrMalformedFrame)
		}
		return PublicKeyFrame{PublicKey: key, Room: room, Timestamp: ts}, nil
	case KindPrivate:
		to, err := NewIdentity(raw.To)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient: %v", ErrMalformedFrame, err)
		}
		c, err := decodeContent(raw.Content)
		if err != nil {
			return nil, err
		}
		if c.Empty() {
			return nil, ErrEmptyContent
		}
		return PrivateFrame{To: to, Content: c, Room: room, Timestamp: ts}, nil
	case "ping":
		return PingFrame{}, nil
	}
	return UnknownFrame{Type: raw.Type}, nil
}

// DecodeContent accepts either a bare string or a content object.
func DecodeContent(raw json.RawMessage) (Content, error) {
	return decodeContent(raw)
}

func decodeContent(raw json.RawMessage) (Content, error) {
	var c Content
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return c, nil
	}
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &c.Text); err != nil {
			return c, fmt.Errorf("%w: content: %v", ErrMalformedFrame, err)
		}
	} else if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: content: %v", ErrMalformedFrame, err)
	}
	if err := ValidateContent(c); err != nil {
		return c, err
	}
	return c, nil
}

// ValidateContent runs the content field rules. Script markup is reported as
// ErrUnsafeContent so callers can tell the client why the frame was refused.
func ValidateContent(c Content) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "safetext" {
				return ErrUnsafeContent
			}
		}
	}
	return fmt.Errorf("%w: content: %v", ErrMalformedFrame, err)
}

func stickerFallback(c Content) Content {
	if c.StickerID != "" {
		return c
	}
	switch {
	case c.Text != "":
		c.StickerID = c.Text
	case c.Emoji != "":
		c.StickerID = c.Emoji
	default:
		c.StickerID = "unknown"
	}
	return c
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// ISO-8601 without a zone is read as UTC.
		var lerr error
		if ts, lerr = time.Parse("2006-01-02T15:04:05.999999999", s); lerr != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedFrame, err)
		}
	}
	return ts.UTC(), nil
}
