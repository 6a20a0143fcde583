package vppcall

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-driven configuration of a client process.
type Config struct {
	// Name is the session name announced to the engine.
	Name        string        `env:"VPPCALL_NAME,default=vppcall"`
	CallTimeout time.Duration `env:"VPPCALL_CALL_TIMEOUT,default=0s"`

	// Socket is the engine API socket. When empty no socket transport is
	// configured.
	Socket     string        `env:"VPPCALL_SOCKET"`
	SocketWait time.Duration `env:"VPPCALL_SOCKET_WAIT,default=0s"`

	// RedisAddr selects the Redis Streams transport when set.
	RedisAddr   string `env:"VPPCALL_REDIS_ADDR"`
	RedisPrefix string `env:"VPPCALL_REDIS_PREFIX,default=vppcall:"`
}

// ConfigFromEnv loads Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode vppcall config: %w", err)
	}
	return cfg, nil
}

// Options translates the connection-level settings of cfg into Options.
func (cfg Config) Options() []Option {
	return []Option{WithCallTimeout(cfg.CallTimeout)}
}
