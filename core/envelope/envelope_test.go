package envelope_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/envelope"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("decodes a valid chat frame", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{"kind":"chat","room":"r1","payload":{"content":"hello"}}`)
		env, err := envelope.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, envelope.KindChat, env.Kind)
		assert.Equal(t, "r1", env.Room)

		var p envelope.ChatPayload
		require.NoError(t, env.DecodePayload(&p))
		assert.Equal(t, "hello", p.Content)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		t.Parallel()

		_, err := envelope.Decode([]byte(`{not json`))
		require.ErrorIs(t, err, envelope.ErrMalformedFrame)
	})

	t.Run("rejects missing kind", func(t *testing.T) {
		t.Parallel()

		_, err := envelope.Decode([]byte(`{"room":"r1"}`))
		require.ErrorIs(t, err, envelope.ErrMalformedFrame)
	})

	t.Run("rejects server-only kinds", func(t *testing.T) {
		t.Parallel()

		for _, kind := range []string{"ack", "error", "system_join", "system_leave", "thread_created", "notification", "bogus"} {
			_, err := envelope.Decode([]byte(`{"kind":"` + kind + `"}`))
			require.ErrorIs(t, err, envelope.ErrUnknownKind, "kind %q", kind)
		}
	})

	t.Run("rejects oversized frames", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{"kind":"chat","payload":{"content":"` + strings.Repeat("x", envelope.MaxFrameSize) + `"}}`)
		_, err := envelope.Decode(raw)
		require.ErrorIs(t, err, envelope.ErrFrameTooLarge)
	})
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	t.Run("empty payload is malformed", func(t *testing.T) {
		t.Parallel()

		env, err := envelope.Decode([]byte(`{"kind":"chat","room":"r1"}`))
		require.NoError(t, err)

		var p envelope.ChatPayload
		require.ErrorIs(t, env.DecodePayload(&p), envelope.ErrMalformedFrame)
	})

	t.Run("wrong payload shape is malformed", func(t *testing.T) {
		t.Parallel()

		env, err := envelope.Decode([]byte(`{"kind":"read","room":"r1","payload":{"message_ids":"not-a-list"}}`))
		require.NoError(t, err)

		var p envelope.ReadPayload
		require.ErrorIs(t, env.DecodePayload(&p), envelope.ErrMalformedFrame)
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("builds an outbound envelope with timestamp", func(t *testing.T) {
		t.Parallel()

		env, err := envelope.New(envelope.KindSystemJoin, "r1", "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, envelope.KindSystemJoin, env.Kind)
		assert.Equal(t, "r1", env.Room)
		assert.Equal(t, "u1", env.Sender)
		assert.False(t, env.Timestamp.IsZero())
		assert.Empty(t, env.Payload)
	})

	t.Run("round-trips through Encode", func(t *testing.T) {
		t.Parallel()

		env, err := envelope.New(envelope.KindAck, "r1", "", envelope.AckPayload{MessageID: "m1"})
		require.NoError(t, err)

		raw, err := envelope.Encode(env)
		require.NoError(t, err)

		var decoded envelope.Envelope
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, envelope.KindAck, decoded.Kind)

		var p envelope.AckPayload
		require.NoError(t, decoded.DecodePayload(&p))
		assert.Equal(t, "m1", p.MessageID)
	})
}

func TestNewError(t *testing.T) {
	t.Parallel()

	env := envelope.NewError(envelope.CodeNotMember, "not a member of r1")
	assert.Equal(t, envelope.KindError, env.Kind)

	var p envelope.ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, envelope.CodeNotMember, p.Code)
	assert.Equal(t, "not a member of r1", p.Message)
}
