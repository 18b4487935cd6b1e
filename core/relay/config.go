package relay

import "time"

// Config holds tunables for connections and history replay.
type Config struct {
	// SendQueueSize bounds each connection's outbound delivery queue.
	// Overflow terminates the connection.
	SendQueueSize int `env:"RELAY_SEND_QUEUE_SIZE" envDefault:"64"`

	// MaxMessageSize bounds inbound frames at the transport level. The
	// handler never sets the transport limit below twice the protocol
	// frame cap, so frames over the cap get a decode error reply rather
	// than a transport close.
	MaxMessageSize int64 `env:"RELAY_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// WriteWait is the deadline for a single transport write.
	WriteWait time.Duration `env:"RELAY_WRITE_WAIT" envDefault:"10s"`

	// PongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out every PingInterval, which must be
	// shorter than PongWait.
	PongWait     time.Duration `env:"RELAY_PONG_WAIT" envDefault:"60s"`
	PingInterval time.Duration `env:"RELAY_PING_INTERVAL" envDefault:"54s"`

	// HistoryPageSize bounds the history page replayed on subscribe.
	HistoryPageSize int `env:"RELAY_HISTORY_PAGE_SIZE" envDefault:"50"`

	// HistoryRate throttles history replay, in frames per second, so a
	// fresh subscriber's queue is not saturated by its own history.
	HistoryRate float64 `env:"RELAY_HISTORY_RATE" envDefault:"100"`

	// FrameRate and FrameBurst rate-limit inbound frames per connection
	// with a token bucket. Frames over the limit get an error reply and
	// are otherwise dropped.
	FrameRate  float64 `env:"RELAY_FRAME_RATE" envDefault:"25"`
	FrameBurst int     `env:"RELAY_FRAME_BURST" envDefault:"50"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		SendQueueSize:   64,
		MaxMessageSize:  65536,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    54 * time.Second,
		HistoryPageSize: 50,
		HistoryRate:     100,
		FrameRate:       25,
		FrameBurst:      50,
	}
}

// withDefaults fills zero values so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = def.HistoryPageSize
	}
	if c.HistoryRate <= 0 {
		c.HistoryRate = def.HistoryRate
	}
	if c.FrameRate <= 0 {
		c.FrameRate = def.FrameRate
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = def.FrameBurst
	}
	return c
}
