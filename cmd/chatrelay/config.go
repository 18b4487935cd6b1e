package main

import (
	"github.com/dmitrymomot/chatrelay/core/relay"
	"github.com/dmitrymomot/chatrelay/core/server"
	"github.com/dmitrymomot/chatrelay/integration/database/pg"
	"github.com/dmitrymomot/chatrelay/integration/database/redis"
)

// Config aggregates all service configuration, loaded from the environment.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"chatrelay"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	// JwtSigningKey signs and verifies connection tokens.
	JwtSigningKey string `env:"JWT_SIGNING_KEY,required"`

	Server server.Config
	Relay  relay.Config
	DB     pg.Config
	Redis  redis.Config
}
