package redissource

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrBadURL is returned when the connection URL cannot be parsed.
	ErrBadURL = errors.New("redissource: failed to parse redis connection string")
	// ErrNotReady is returned when Redis did not answer PING in time.
	ErrNotReady = errors.New("redissource: redis not ready")
)

// ConnectConfig describes how to reach Redis.
type ConnectConfig struct {
	URL            string        `env:"REDIS_URL" yaml:"url"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" yaml:"retry_attempts"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" yaml:"retry_interval"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" yaml:"connect_timeout"`
}

// Connect dials Redis and retries PING until it answers, the attempts are
// used up or ConnectTimeout elapses.
func Connect(ctx context.Context, cfg ConnectConfig) (*redis.Client, error) {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrBadURL, err)
	}
	for range cfg.RetryAttempts {
		c := redis.NewClient(opt)
		if err := c.Ping(ctx).Err(); err == nil {
			return c, nil
		}
		_ = c.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrNotReady
}
