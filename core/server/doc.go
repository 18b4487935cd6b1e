// Package server wraps http.Server with graceful shutdown, functional
// options, and environment-driven configuration for the chat backend's
// upgrade and health endpoints.
//
// # Usage
//
//	var cfg server.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	srv, err := server.NewFromConfig(cfg, server.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	if err := srv.Start(ctx, mux); err != nil && !errors.Is(err, context.Canceled) {
//		log.Fatal(err)
//	}
//	_ = srv.Stop()
//
// Start blocks until the context is canceled or the listener fails. Stop
// drains in-flight requests within the configured shutdown timeout; hijacked
// WebSocket connections are closed by their own teardown path, not by the
// HTTP server.
//
// Run returns a closure compatible with errgroup for coordinated lifecycle
// management of several servers or workers.
//
// TLS is optional: set SERVER_TLS_CERT_FILE and SERVER_TLS_KEY_FILE, or pass
// WithTLS with a config built by NewTLSConfig.
package server
