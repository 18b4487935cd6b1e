package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/chatrelay/core/chat"
	"github.com/dmitrymomot/chatrelay/core/config"
	"github.com/dmitrymomot/chatrelay/core/health"
	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
	"github.com/dmitrymomot/chatrelay/core/relay"
	"github.com/dmitrymomot/chatrelay/core/server"
	"github.com/dmitrymomot/chatrelay/core/token"
	"github.com/dmitrymomot/chatrelay/integration/database/pg"
	"github.com/dmitrymomot/chatrelay/integration/database/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg Config
	config.MustLoad(&cfg) // panic on error

	log := logger.New(logger.WithDevelopment(cfg.AppName))
	if cfg.Environment == "production" {
		log = logger.New(logger.WithProduction(cfg.AppName))
	}

	// Postgres connection handles auto-retry and ping inside the function.
	db, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		log.Error("Failed to connect to database", logger.Component("database"), logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations automatically on app start.
	if err := pg.Migrate(ctx, db, chat.Migrations, cfg.DB, log.With("component", "migration")); err != nil {
		log.Error("Failed to migrate database", logger.Component("database.migration"), logger.Error(err))
		os.Exit(1)
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("Failed to connect to redis", logger.Component("redis"), logger.Error(err))
		os.Exit(1)
	}
	defer rdb.Close()

	validator, err := token.NewJWTValidator(token.Config{
		SigningKey: cfg.JwtSigningKey,
		Issuer:     cfg.AppName,
	})
	if err != nil {
		log.Error("Failed to create token validator", logger.Component("token"), logger.Error(err))
		os.Exit(1)
	}

	store := chat.NewPostgresStore(db)
	bus := pubsub.NewRedisBroker(rdb, pubsub.WithRedisBrokerLogger(log.With("component", "pubsub")))

	coord := relay.NewCoordinator(relay.WithCoordinatorLogger(log.With("component", "coordinator")))
	roomRelay := relay.NewRoomRelay(bus, coord, relay.WithRoomRelayLogger(log.With("component", "relay")))
	roomRelay.Start(ctx)

	proto := relay.NewProtocol(coord, store, cfg.Relay,
		relay.WithProtocolLogger(log.With("component", "protocol")),
		relay.WithRoomRelay(roomRelay),
	)
	wsHandler := relay.NewHandler(coord, proto, validator, bus, cfg.Relay,
		relay.WithHandlerLogger(log.With("component", "ws")),
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/health/live", health.Liveness)
	mux.HandleFunc("/health/ready", health.Readiness(log,
		pg.Healthcheck(db),
		redis.Healthcheck(rdb),
	))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		// Cancellation is the normal shutdown path for the coordinator.
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	s, err := server.NewFromConfig(cfg.Server, server.WithLogger(log.With("component", "server")))
	if err != nil {
		log.Error("Failed to create server", logger.Component("server"), logger.Error(err))
		os.Exit(1)
	}
	eg.Go(s.Run(ctx, mux))

	log.Info("chatrelay started",
		logger.Component("app"),
		logger.Event("startup"))

	if err := eg.Wait(); err != nil {
		log.Error("Failed to run server", logger.Component("server"), logger.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped")
}
