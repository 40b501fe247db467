package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Message(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"message","content":"hello","roomId":42,"timestamp":"2025-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	f, ok := in.(ChatFrame)
	require.True(t, ok)
	assert.Equal(t, KindMessage, f.Kind)
	assert.Equal(t, Content{Text: "hello"}, f.Content)
	assert.Equal(t, RoomID("42"), f.Room)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), f.Timestamp)

	in, err = DecodeFrame([]byte(`{"type":"message","content":{"text":"hi","emoji":"👋"},"roomId":"lobby"}`))
	require.NoError(t, err)
	f = in.(ChatFrame)
	assert.Equal(t, Content{Text: "hi", Emoji: "👋"}, f.Content)
	assert.Equal(t, RoomID("lobby"), f.Room)
	assert.True(t, f.Timestamp.IsZero())
}

func TestDecodeFrame_Timestamps(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"message","content":"x","timestamp":"2025-03-01T10:00:00.123456"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC), in.(ChatFrame).Timestamp)

	_, err = DecodeFrame([]byte(`{"type":"message","content":"x","timestamp":"yesterday"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrame_StickerFallback(t *testing.T) {
	cases := map[string]string{
		`{"type":"sticker","content":{"sticker_id":"s1","text":"t"}}`: "s1",
		`{"type":"sticker","content":{"text":"t","emoji":"e"}}`:       "t",
		`{"type":"sticker","content":{"emoji":"e"}}`:                  "e",
		`{"type":"sticker"}`:                                          "unknown",
	}
	for raw, want := range cases {
		in, err := DecodeFrame([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, in.(ChatFrame).Content.StickerID, raw)
	}
}

func TestDecodeFrame_PublicKey(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"publicKey","publicKey":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, PublicKeyFrame{PublicKey: "abc"}, in)

	in, err = DecodeFrame([]byte(`{"type":"publicKey","content":"from-content"}`))
	require.NoError(t, err)
	assert.Equal(t, "from-content", in.(PublicKeyFrame).PublicKey)

	_, err = DecodeFrame([]byte(`{"type":"publicKey"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrame_PrivateAndControl(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"private_message","to":" bob ","content":"psst"}`))
	require.NoError(t, err)
	assert.Equal(t, PrivateFrame{To: "bob", Content: Content{Text: "psst"}}, in)

	_, err = DecodeFrame([]byte(`{"type":"private_message","content":"psst"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	in, err = DecodeFrame([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, PingFrame{}, in)

	in, err = DecodeFrame([]byte(`{"type":"typing","whatever":true}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownFrame{Type: "typing"}, in)
}

func TestDecodeFrame_Rejections(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"content":"no type"}`,
		`{"type":"message","content":42}`,
		`{"type":"message","roomId":1.5,"content":"x"}`,
		`{"type":"message","content":"` + strings.Repeat("a", 4001) + `"}`,
	} {
		_, err := DecodeFrame([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}

	_, err := DecodeFrame([]byte(`{"type":"message","content":""}`))
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestDecodeFrame_UnsafeContent(t *testing.T) {
	for _, text := range []string{
		`<script>alert(1)</script>`,
		`< SCRIPT src=x>`,
		`<iframe src=x>`,
		`javascript:alert(1)`,
		`<img src=x onerror=alert(1)>`,
	} {
		_, err := DecodeContent([]byte(`"` + strings.ReplaceAll(text, `"`, `\"`) + `"`))
		assert.ErrorIs(t, err, ErrUnsafeContent, text)
	}
	c, err := DecodeContent([]byte(`"a <b>bold</b> claim, 2 < 3"`))
	require.NoError(t, err)
	assert.Equal(t, "a <b>bold</b> claim, 2 < 3", c.Text)
}

func TestRoomOptions_Normalize(t *testing.T) {
	got, err := RoomOptions{RoomID: "1", Visibility: Public, MaxConnectionsPerIP: 5}.Normalize()
	require.NoError(t, err)
	assert.Zero(t, got.MaxConnectionsPerIP)
	_, ok := got.Ceiling()
	assert.False(t, ok)

	got, err = RoomOptions{RoomID: "1", Visibility: Private, MaxConnectionsPerIP: 2}.Normalize()
	require.NoError(t, err)
	limit, ok := got.Ceiling()
	assert.True(t, ok)
	assert.Equal(t, 2, limit)

	_, err = RoomOptions{RoomID: "1", Visibility: Private}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidCeiling)
	_, err = RoomOptions{RoomID: "1", Visibility: "hidden"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestIdentityRoomAndVisibility(t *testing.T) {
	id, err := NewIdentity("  alice ")
	require.NoError(t, err)
	assert.Equal(t, Identity("alice"), id)
	_, err = NewIdentity("   ")
	assert.ErrorIs(t, err, ErrUsernameEmpty)
	_, err = NewIdentity(strings.Repeat("x", MaxUsernameLen+1))
	assert.ErrorIs(t, err, ErrUsernameTooLong)

	_, err = NewRoomID("")
	assert.ErrorIs(t, err, ErrInvalidRoom)

	v, err := ParseVisibility(" Private ")
	require.NoError(t, err)
	assert.Equal(t, Private, v)
	_, err = ParseVisibility("secret")
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestEncode(t *testing.T) {
	data, err := Encode(NewUsersSnapshot("42", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"users","users":[],"roomId":"42"}`, string(data))

	data, err = Encode(NewErrorEvent("rate_limited", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"rate_limited"}`, string(data))
}
