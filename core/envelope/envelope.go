package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the envelope union. Every wire frame carries exactly
// one kind; payload shape is determined by it.
type Kind string

const (
	// Client-originated kinds.
	KindChat         Kind = "chat"
	KindTyping       Kind = "typing"
	KindRead         Kind = "read"
	KindSubscribe    Kind = "subscribe"
	KindUnsubscribe  Kind = "unsubscribe"
	KindCreateThread Kind = "create_thread"

	// Server-originated kinds.
	KindSystemJoin    Kind = "system_join"
	KindSystemLeave   Kind = "system_leave"
	KindThreadCreated Kind = "thread_created"
	KindAck           Kind = "ack"
	KindError         Kind = "error"
	KindNotification  Kind = "notification"
)

var clientKinds = map[Kind]struct{}{
	KindChat:         {},
	KindTyping:       {},
	KindRead:         {},
	KindSubscribe:    {},
	KindUnsubscribe:  {},
	KindCreateThread: {},
}

// FromClient reports whether the kind is accepted on inbound frames.
func (k Kind) FromClient() bool {
	_, ok := clientKinds[k]
	return ok
}

// Envelope is the wire message exchanged between client and server.
// Payload is kind-specific and stays raw until the dispatch point decodes it.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	Room      string          `json:"room,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// ChatPayload carries message content; the server fills ID from the store.
type ChatPayload struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
}

// TypingPayload signals typing state changes.
type TypingPayload struct {
	Active bool `json:"active"`
}

// ReadPayload acknowledges messages as read by the sender.
type ReadPayload struct {
	MessageIDs []string `json:"message_ids"`
}

// CreateThreadPayload requests creation of a new chat thread.
type CreateThreadPayload struct {
	Title string `json:"title"`
}

// ThreadCreatedPayload is the reply to a successful create_thread.
type ThreadCreatedPayload struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
}

// AckPayload confirms persisted delivery of a chat frame to its sender.
type AckPayload struct {
	MessageID string `json:"message_id"`
}

// ErrorPayload is the reply for rejected frames. Code is machine-readable.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used in ErrorPayload.
const (
	CodeDecodeError  = "decode_error"
	CodeNotMember    = "not_member"
	CodeInvalidFrame = "invalid_frame"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// MaxFrameSize bounds inbound frames; larger frames are decode errors.
const MaxFrameSize = 64 * 1024

// Decode parses a raw inbound frame into an Envelope and verifies that its
// kind is one a client may send. It does not decode the payload; that
// belongs to the dispatch point.
func Decode(raw []byte) (Envelope, error) {
	if len(raw) > MaxFrameSize {
		return Envelope{}, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrFrameTooLarge, len(raw), MaxFrameSize)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrMalformedFrame)
	}
	if !env.Kind.FromClient() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Kind, err)
	}
	return raw, nil
}

// DecodePayload unmarshals the kind-specific payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for kind %q", ErrMalformedFrame, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: payload for kind %q: %v", ErrMalformedFrame, e.Kind, err)
	}
	return nil
}

// New builds an outbound envelope with a marshaled payload and the current
// UTC timestamp. Payload may be nil for kinds without one.
func New(kind Kind, room, sender string, payload any) (Envelope, error) {
	env := Envelope{
		Kind:      kind,
		Room:      room,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// NewError builds an error reply envelope.
func NewError(code, message string) Envelope {
	raw, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return Envelope{
		Kind:      KindError,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
}
