package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/token"
)

// newTestConn builds a connection without a transport, suitable for
// exercising queue and teardown semantics directly.
func newTestConn(userID string, queueSize int) *Conn {
	_, cancel := context.WithCancel(context.Background())
	cfg := DefaultConfig()
	cfg.SendQueueSize = queueSize
	return newConn(nil, token.Identity{UserID: userID}, cancel, cfg, logger.Discard())
}

func TestConn_TrySend(t *testing.T) {
	t.Parallel()

	t.Run("accepts up to queue capacity", func(t *testing.T) {
		t.Parallel()

		conn := newTestConn("u1", 2)
		assert.True(t, conn.TrySend([]byte("a")))
		assert.True(t, conn.TrySend([]byte("b")))
		assert.False(t, conn.TrySend([]byte("overflow")))
	})

	t.Run("never blocks on a full queue", func(t *testing.T) {
		t.Parallel()

		conn := newTestConn("u1", 1)
		require.True(t, conn.TrySend([]byte("a")))

		done := make(chan bool, 1)
		go func() {
			done <- conn.TrySend([]byte("b"))
		}()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-waitTimeout(t):
			t.Fatal("TrySend blocked on a full queue")
		}
	})

	t.Run("rejects after termination", func(t *testing.T) {
		t.Parallel()

		conn := newTestConn("u1", 8)
		conn.Terminate()
		assert.False(t, conn.TrySend([]byte("a")))
	})
}

func TestConn_Terminate(t *testing.T) {
	t.Parallel()

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		conn := newTestConn("u1", 8)
		conn.Terminate()
		assert.NotPanics(t, conn.Terminate)

		select {
		case <-conn.Done():
		default:
			t.Fatal("Done not closed after Terminate")
		}
	})

	t.Run("fires the shared cancellation signal", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		conn := newConn(nil, token.Identity{UserID: "u1"}, cancel, DefaultConfig(), logger.Discard())

		conn.Terminate()
		select {
		case <-ctx.Done():
		default:
			t.Fatal("cancellation signal not fired")
		}
	})
}

func TestConn_RoomSet(t *testing.T) {
	t.Parallel()

	conn := newTestConn("u1", 8)
	assert.False(t, conn.InRoom("r1"))

	conn.joinRoom("r1")
	conn.joinRoom("r2")
	assert.True(t, conn.InRoom("r1"))
	assert.ElementsMatch(t, []string{"r1", "r2"}, conn.Rooms())

	conn.leaveRoom("r1")
	assert.False(t, conn.InRoom("r1"))
	assert.True(t, conn.InRoom("r2"))

	conn.leaveAllRooms()
	assert.Empty(t, conn.Rooms())
}
