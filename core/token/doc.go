// Package token is the identity collaborator: it resolves the bearer token
// presented at WebSocket upgrade time into the user identity attached to the
// connection. Validation happens once per connection, never per frame.
//
// JWTValidator is the default implementation over HMAC-signed JWTs; Mint
// issues tokens for the login layer and for tests.
package token
