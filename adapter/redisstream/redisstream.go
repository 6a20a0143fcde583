// Package redisstream provides an adapter.Adapter over Redis Streams. Each
// session uses two streams, one per direction, so a client and an engine
// (or an engine proxy) on different hosts can exchange frames through a
// shared Redis deployment.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/vppcall-go/adapter"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Role selects which stream an adapter writes to and which it reads from.
type Role int

const (
	RoleClient Role = iota
	RoleEngine
)

const (
	defaultKeyPrefix    = "vppcall:"
	defaultBlockTimeout = 500 * time.Millisecond
	defaultMaxLen       = 10000
	payloadField        = "d"
)

// Config for the Redis Streams adapter. Defaults can be loaded via
// envdecode.
type Config struct {
	// Client is the Redis client to use. If nil, one is created for RedisAddr
	// and closed with the adapter.
	Client redis.UniversalClient
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: VPPCALL_REDIS_PREFIX
	KeyPrefix string `env:"VPPCALL_REDIS_PREFIX,default=vppcall:"`
	// BlockTimeout bounds each blocking read. ENV: VPPCALL_REDIS_BLOCK
	BlockTimeout time.Duration `env:"VPPCALL_REDIS_BLOCK,default=500ms"`
	// MaxLen caps each stream (approximately). ENV: VPPCALL_REDIS_MAXLEN
	MaxLen int64 `env:"VPPCALL_REDIS_MAXLEN,default=10000"`

	Role   Role
	Logger *slog.Logger
}

// Adapter is a Redis Streams adapter.
type Adapter struct {
	client       redis.UniversalClient
	ownsClient   bool
	keyPrefix    string
	blockTimeout time.Duration
	maxLen       int64
	role         Role
	log          *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	txKey   string
	rxKey   string
	cancel  context.CancelFunc
}

// New creates an adapter from cfg, applying defaults for empty fields.
func New(cfg Config) *Adapter {
	a := &Adapter{
		client:       cfg.Client,
		keyPrefix:    cfg.KeyPrefix,
		blockTimeout: cfg.BlockTimeout,
		maxLen:       cfg.MaxLen,
		role:         cfg.Role,
		log:          cfg.Logger,
	}
	if a.client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		a.client = redis.NewClient(&redis.Options{Addr: addr})
		a.ownsClient = true
	}
	if a.keyPrefix == "" {
		a.keyPrefix = defaultKeyPrefix
	}
	if a.blockTimeout <= 0 {
		a.blockTimeout = defaultBlockTimeout
	}
	if a.maxLen <= 0 {
		a.maxLen = defaultMaxLen
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// NewFromEnv builds an adapter for role using envdecode to populate Config.
func NewFromEnv(role Role) (*Adapter, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis stream config: %w", err)
	}
	cfg.Role = role
	return New(cfg), nil
}

func (a *Adapter) streamKey(name, direction string) string {
	return a.keyPrefix + "session:" + name + ":" + direction
}

// Connect implements adapter.Adapter.Connect. Frames already present on the
// inbound stream are skipped; everything appended afterwards is delivered.
func (a *Adapter) Connect(ctx context.Context, name string, recv adapter.ReceiveFunc, lost adapter.LostFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return adapter.ErrClosed
	}
	if a.started {
		return nil
	}

	toEngine, toClient := a.streamKey(name, "to-engine"), a.streamKey(name, "to-client")
	a.txKey, a.rxKey = toEngine, toClient
	if a.role == RoleEngine {
		a.txKey, a.rxKey = toClient, toEngine
	}

	start := "0-0"
	last, err := a.client.XRevRangeN(ctx, a.rxKey, "+", "-", 1).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read position of %s: %w", a.rxKey, err)
	}
	if len(last) > 0 {
		start = last[0].ID
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.started = true
	go a.readLoop(loopCtx, start, recv, lost)
	a.log.Debug("redis stream connected", slog.String("session", name), slog.String("rx", a.rxKey), slog.String("tx", a.txKey))
	return nil
}

// readLoop retries transient read errors. A client closed underneath the
// adapter ends the loop and is reported as lost.
func (a *Adapter) readLoop(ctx context.Context, start string, recv adapter.ReceiveFunc, lost adapter.LostFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := a.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{a.rxKey, start},
			Count:   64,
			Block:   a.blockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.ErrClosed) {
				a.log.Warn("redis client closed", slog.String("stream", a.rxKey))
				if lost != nil {
					lost(err)
				}
				return
			}
			a.log.Warn("redis stream read failed", slog.String("stream", a.rxKey), slog.String("err", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.blockTimeout):
			}
			continue
		}

		for _, stream := range res {
			for _, m := range stream.Messages {
				start = m.ID
				var payload []byte
				switch v := m.Values[payloadField].(type) {
				case string:
					payload = []byte(v)
				case []byte:
					payload = v
				default:
					a.log.Warn("skipping malformed stream entry", slog.String("stream", a.rxKey), slog.String("id", m.ID))
					continue
				}
				if ctx.Err() != nil {
					return
				}
				recv(payload)
			}
		}
	}
}

// Send implements adapter.Adapter.Send.
func (a *Adapter) Send(ctx context.Context, frame []byte) error {
	a.mu.Lock()
	closed, started, key := a.closed, a.started, a.txKey
	a.mu.Unlock()
	if closed {
		return adapter.ErrClosed
	}
	if !started {
		return adapter.ErrNotConnected
	}

	err := a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: a.maxLen,
		Approx: true,
		Values: map[string]any{payloadField: frame},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to stream %s: %w", key, err)
	}
	return nil
}

// Close implements adapter.Adapter.Close. The client side also deletes the
// session's streams.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	var errs []error
	if started && a.role == RoleClient {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.client.Del(ctx, a.txKey, a.rxKey).Err(); err != nil && err != redis.Nil {
			errs = append(errs, fmt.Errorf("cleanup session streams: %w", err))
		}
		cancel()
	}
	if a.ownsClient {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ adapter.Adapter = (*Adapter)(nil)
