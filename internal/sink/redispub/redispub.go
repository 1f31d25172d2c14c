// Package redispub mirrors snapshots into Redis: the latest document under
// a key with TTL, and every snapshot on a pub/sub channel.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quotefeed/internal/provider"
	"quotefeed/internal/snapshot"
)

// Client is the subset of *redis.Client the sink needs.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Dial connects and pings.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type Sink struct {
	client Client
	prefix string
	ttl    time.Duration
}

// New returns a sink writing to "<prefix>:latest" and "<prefix>:quote:<KEY>"
// and publishing on "<prefix>:snapshots". ttl <= 0 means no expiry.
func New(client Client, prefix string, ttl time.Duration) *Sink {
	if prefix == "" {
		prefix = "quotefeed"
	}
	return &Sink{client: client, prefix: prefix, ttl: ttl}
}

func (s *Sink) Name() string { return "redis" }

func (s *Sink) LatestKey() string { return s.prefix + ":latest" }

func (s *Sink) Channel() string { return s.prefix + ":snapshots" }

func (s *Sink) QuoteKey(key string) string { return s.prefix + ":quote:" + key }

func (s *Sink) Publish(ctx context.Context, snap *snapshot.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.LatestKey(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest snapshot in redis: %w", err)
	}
	for key, q := range snap.Currencies().All() {
		if err := s.setQuote(ctx, key, q); err != nil {
			return err
		}
	}
	for key, q := range snap.Indices().All() {
		if err := s.setQuote(ctx, key, q); err != nil {
			return err
		}
	}
	if err := s.client.Publish(ctx, s.Channel(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (s *Sink) setQuote(ctx context.Context, key string, q provider.Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.QuoteKey(key), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set quote %s in redis: %w", key, err)
	}
	return nil
}
