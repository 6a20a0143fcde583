package vppcall

import (
	"log/slog"
	"time"

	"github.com/ggoodman/vppcall-go/api"
	"github.com/ggoodman/vppcall-go/internal/dispatch"
)

// Observer is told about the calls and notifications of a connection.
// metrics.Metrics is the Prometheus implementation.
type Observer = dispatch.Observer

// Outcome names how a call was resolved.
type Outcome = dispatch.Outcome

// Option customizes a Connection.
type Option func(*Connection)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCodec overrides the codec used to frame messages. The default is the
// JSON envelope codec.
func WithCodec(codec api.Codec) Option {
	return func(c *Connection) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithCallTimeout fails calls that have not been resolved after d with
// api.ErrCallTimeout. Zero, the default, disables the timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Connection) {
		if d >= 0 {
			c.callTimeout = d
		}
	}
}

// WithObserver installs o to watch the connection's traffic.
func WithObserver(o Observer) Option {
	return func(c *Connection) {
		if o != nil {
			c.observer = o
		}
	}
}
