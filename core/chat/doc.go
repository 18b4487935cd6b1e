// Package chat is the persistence collaborator for the relay: thread and
// message records, message read marks, and bounded history pages.
//
// The Store interface is what the protocol handler consumes. PostgresStore
// is the production implementation over a pgx pool with its schema managed
// by the embedded goose migrations; MemoryStore serves tests and local
// development.
package chat
