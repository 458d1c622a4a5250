package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v9"
)

// Store is a flat key/value blob store. Map configs live in one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Returned by every Store when a key has never been written.
var Missing = fmt.Errorf("asset missing")

type FSStore string

func (f FSStore) getPath(key string) string {
	return filepath.Join(string(f), filepath.Base(key))
}

func (f FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	target := f.getPath(key)

	if !FileExists(target) {
		return nil, Missing
	}

	return os.ReadFile(target)
}

func (f FSStore) Set(ctx context.Context, key string, data []byte) error {
	err := os.MkdirAll(string(f), 0755)
	if err != nil {
		return err
	}

	target := f.getPath(key)
	return WriteBytes(data, target)
}

const (
	REDIS_KEY = "renderer-%s"
)

type RedisStore struct {
	client *redis.Client
	expiry time.Duration
}

// NewRedisStore keeps keys forever when expiry is zero.
func NewRedisStore(client *redis.Client, expiry time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		expiry: expiry,
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	key := fmt.Sprintf(REDIS_KEY, id)
	data, err := r.client.Get(ctx, key).Bytes()

	if err == redis.Nil {
		return nil, Missing
	}

	if err != nil {
		return nil, err
	}

	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, id string, data []byte) error {
	key := fmt.Sprintf(REDIS_KEY, id)
	return r.client.Set(ctx, key, data, r.expiry).Err()
}

var _ Store = (*FSStore)(nil)
var _ Store = (*RedisStore)(nil)
var _ Store = (*SQLStore)(nil)
