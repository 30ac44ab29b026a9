package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared status store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to Redis and verifies the connection with a ping.
// Finished records expire ttl after their last save; pending and running
// records are kept until they finish.
func NewRedis(ctx context.Context, opts RedisOptions) (Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "reader:job:"
	}
	return &redisStore{client: client, ttl: opts.TTL, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Save(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	// Unfinished jobs never expire; SET without a TTL also clears any
	// expiry left by an earlier save.
	var expiry time.Duration
	if job.Status.Done() && s.ttl > 0 {
		expiry = s.ttl
	}
	if err := s.client.Set(ctx, s.key(job.ID), data, expiry).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// Prune is a no-op; Redis expires keys on its own.
func (s *redisStore) Prune(context.Context) error {
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
