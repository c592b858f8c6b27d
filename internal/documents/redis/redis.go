// Package redis stores user documents as plain string values in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"worktracker/internal/documents"
)

const DefaultPrefix = "worktracker:users:"

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements documents.Store.
type Store struct {
	client goredis.Cmdable
	prefix string
	close  func() error
}

// New wraps an existing client. The caller keeps ownership of it.
func New(client goredis.Cmdable, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, close: func() error { return nil }}
}

// Dial connects to cfg.Addr and verifies the connection with PING.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := New(client, cfg.Prefix)
	s.close = client.Close
	return s, nil
}

func (s *Store) Key(userID string) string {
	return s.prefix + userID
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get %q: %w", key, documents.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (s *Store) Set(ctx context.Context, key string, body []byte) error {
	if key == "" {
		return errors.New("set document: empty key")
	}
	if err := s.client.Set(ctx, s.Key(key), body, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the client when the Store created it.
func (s *Store) Close() error {
	return s.close()
}
