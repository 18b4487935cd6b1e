// Package redis provides Redis client initialization and health checking
// for the pub/sub substrate behind cross-process fan-out.
//
// Connect validates the URL, establishes the client with retries, and
// verifies connectivity with a ping before returning it. Both redis:// and
// rediss:// (TLS) schemes are supported.
//
// # Usage
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	bus := pubsub.NewRedisBroker(client)
//
// # Health Checking
//
// Healthcheck returns a ping function suitable for readiness probes; wire
// it next to the database check on the health endpoint.
package redis
