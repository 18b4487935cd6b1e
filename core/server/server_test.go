package server_test

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/server"
)

func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServer_StartAndStop(t *testing.T) {
	t.Parallel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))
	srv := server.New(addr, server.WithShutdownTimeout(2*time.Second))

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx, mux)
	}()

	// The listener comes up asynchronously.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not return after context cancellation")
	}
	require.NoError(t, srv.Stop())
}

func TestServer_StartTwice(t *testing.T) {
	t.Parallel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))
	srv := server.New(addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx, http.NewServeMux())
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	err := srv.Start(ctx, http.NewServeMux())
	assert.ErrorIs(t, err, server.ErrServerAlreadyRunning)

	cancel()
	<-errCh
	require.NoError(t, srv.Stop())
}

func TestServer_StopWhenNotRunning(t *testing.T) {
	t.Parallel()

	srv := server.New("127.0.0.1:0")
	assert.NoError(t, srv.Stop())
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))
	srv := server.New(addr)

	ctx, cancel := context.WithCancel(context.Background())
	run := srv.Run(ctx, http.NewServeMux())

	done := make(chan error, 1)
	go func() { done <- run() }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean exit")
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()

		srv, err := server.NewFromConfig(server.DefaultConfig())
		require.NoError(t, err)
		assert.NotNil(t, srv)
	})

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()

		_, err := server.NewFromConfig(server.Config{})
		assert.ErrorIs(t, err, server.ErrMissingAddress)
	})

	t.Run("bad certificate path fails startup", func(t *testing.T) {
		t.Parallel()

		cfg := server.DefaultConfig()
		cfg.TLSCertFile = "testdata/missing.crt"
		cfg.TLSKeyFile = "testdata/missing.key"
		_, err := server.NewFromConfig(cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, server.ErrFailedLoadCert))
	})
}

func TestNewTLSConfig(t *testing.T) {
	t.Parallel()

	cfg := server.NewTLSConfig(server.WithTLSMinVersion(tls.VersionTLS13))
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	def := server.DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), def.MinVersion)
	assert.NotEmpty(t, def.CipherSuites)
}
