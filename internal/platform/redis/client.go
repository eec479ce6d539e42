// Package redis opens the connection pool behind the redis ledger store.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"coldchain/internal/platform/config"
)

type Client struct {
	*redis.Client
}

// New dials redis and fails unless the server answers a PING.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis at %s: %w", opts.Addr, err), rdb.Close())
	}
	return &Client{Client: rdb}, nil
}

// Options parses cfg.URL and applies the pool and timeout settings that are
// set. Zero values keep the go-redis defaults.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	setIfPositive(&opts.PoolSize, cfg.PoolSize)
	setIfPositive(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfPositive(&opts.DialTimeout, cfg.DialTimeout)
	setIfPositive(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfPositive(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfPositive[T ~int | ~int64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
