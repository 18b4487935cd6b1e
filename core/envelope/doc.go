// Package envelope defines the JSON wire protocol exchanged between chat
// clients and the relay: a discriminated union over a kind field with a
// kind-specific payload, decoded at a single dispatch point.
//
// Inbound frames are parsed with Decode, which enforces a frame size limit
// and rejects kinds a client may not send. Payloads stay raw until the
// protocol handler decodes them with DecodePayload:
//
//	env, err := envelope.Decode(raw)
//	if err != nil { ... }
//	var p envelope.ChatPayload
//	if err := env.DecodePayload(&p); err != nil { ... }
//
// Outbound frames are built with New (or NewError) and serialized with
// Encode.
package envelope
