package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/slok/taskbroker/internal/kv"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
)

// StoreConfig is the configuration for the Redis store.
type StoreConfig struct {
	Client *goredis.Client
	// KeyPrefix namespaces every key of the store.
	KeyPrefix string
	Logger    log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("redis client is required")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "taskbroker:"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "kv.Redis"})
	return nil
}

// Store is a Redis backed kv.Store, shared by all the broker instances.
type Store struct {
	cli    *goredis.Client
	prefix string
	logger log.Logger
}

var _ kv.Store = &Store{}

// NewStore returns a new Redis store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Store{
		cli:    cfg.Client,
		prefix: cfg.KeyPrefix,
		logger: cfg.Logger,
	}, nil
}

// NewClient creates a Redis client from a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse redis url: %w", err)
	}

	cli := goredis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return cli, nil
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.cli.SetNX(ctx, s.prefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("could not set key: %w", err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.cli.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not get key: %w", err)
	}
	return v, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("could not delete key: %w", err)
	}
	s.logger.Debugf("Deleted key %s", key)
	return nil
}
