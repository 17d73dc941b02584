package server

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxBodySize     = 1 << 20 // 1 MiB
	defaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Clock clockwork.Clock

	// AuthToken guards the API routes. The legacy submission route stays
	// open for fielded devices that predate tokens.
	AuthToken string

	MaxBodySize     int64
	ShutdownTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return errors.New("auth token is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
