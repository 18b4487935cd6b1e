package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/envelope"
)

func waitTimeout(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(time.Second)
}

// startCoordinator runs a coordinator loop for the duration of the test.
func startCoordinator(t *testing.T, opts ...CoordinatorOption) *Coordinator {
	t.Helper()

	coord := NewCoordinator(opts...)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return coord
}

// recvFrame pops the next frame from a connection's delivery queue.
func recvFrame(t *testing.T, conn *Conn) []byte {
	t.Helper()
	select {
	case raw := <-conn.send:
		return raw
	case <-waitTimeout(t):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// recvEnvelope pops and unmarshals the next frame.
func recvEnvelope(t *testing.T, conn *Conn) envelope.Envelope {
	t.Helper()
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(recvFrame(t, conn), &env))
	return env
}

// expectNoFrame asserts the delivery queue stays empty for a short window.
func expectNoFrame(t *testing.T, conn *Conn) {
	t.Helper()
	select {
	case raw := <-conn.send:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}
