package media

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyPrefix = "media:"
	namesKey  = "media:names"
)

type RedisStore struct {
	client *redis.Client
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("module", "media").Str("addr", opts.Addr).Msg("redis store connected")
	return &RedisStore{client: client}, nil
}

// Save writes the blob and indexes its name in one MULTI/EXEC. Re-adding an
// existing name to the index is a no-op, so a refused SETNX leaves it intact.
func (s *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	var created *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, keyPrefix+name, data, 0)
		pipe.SAdd(ctx, namesKey, name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %q: %w", name, err)
	}
	if !created.Val() {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	return data, nil
}

func (s *RedisStore) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, namesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
