// Package pg provides PostgreSQL connection management with migrations and
// health checking for the chat backend.
//
// It wraps the pgx driver with retry logic on connect, connection pool
// tuning, and goose migration support over an embedded filesystem.
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, chat.Migrations, cfg, logger); err != nil {
//		log.Fatal(err)
//	}
//
// Connection establishment retries with a backoff so several instances
// restarting at once do not hammer the database.
//
// # Health Checking
//
// Healthcheck returns a ping function suitable for readiness probes:
//
//	check := pg.Healthcheck(pool)
//	http.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
//		if err := check(r.Context()); err != nil {
//			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
//			return
//		}
//		w.WriteHeader(http.StatusOK)
//	})
//
// # Transactions
//
// WithTx and TxFromContext propagate a pgx.Tx through context so a storage
// implementation can participate in a caller-managed transaction:
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback(ctx) // safe even after commit
//
//	ctx = pg.WithTx(ctx, tx)
//	if _, err := store.CreateMessage(ctx, roomID, senderID, content); err != nil {
//		return err
//	}
//	return tx.Commit(ctx)
//
// Error classification helpers (IsNotFoundError, IsDuplicateKeyError,
// IsForeignKeyViolationError) cover the common PostgreSQL error patterns.
package pg
