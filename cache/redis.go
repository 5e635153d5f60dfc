package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

type RedisKVConfig struct {
	Host               string        `yaml:"host" json:"host"`
	Port               int           `yaml:"port" json:"port"`
	Password           string        `yaml:"password" json:"password"`
	DB                 int           `yaml:"db" json:"db"`
	PoolSize           int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConnections int           `yaml:"min_idle_connections" json:"min_idle_connections"`
	DialTimeout        time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix          string        `yaml:"key_prefix" json:"key_prefix"`
}

// RedisKV backs the persistent tier with Redis. A Redis instance
// running with maxmemory and no eviction policy answers overfull writes
// with an OOM error, which is surfaced as ErrStoreQuotaExceeded so the
// cache store can run its own eviction pass.
type RedisKV struct {
	client *redis.Client
	config *RedisKVConfig
}

func NewRedisKV(config interface{}) (*RedisKV, error) {
	kvConfig := &RedisKVConfig{
		Host:               "localhost",
		Port:               6379,
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "sai-relay",
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, kvConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis kv config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", kvConfig.Host, kvConfig.Port),
		Password:     kvConfig.Password,
		DB:           kvConfig.DB,
		PoolSize:     kvConfig.PoolSize,
		MinIdleConns: kvConfig.MinIdleConnections,
		DialTimeout:  kvConfig.DialTimeout,
		ReadTimeout:  kvConfig.ReadTimeout,
		WriteTimeout: kvConfig.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), kvConfig.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return &RedisKV{
		client: client,
		config: kvConfig,
	}, nil
}

// NewRedisKVFromClient wraps an existing client. Used by tests that
// point the store at miniredis.
func NewRedisKVFromClient(client *redis.Client, keyPrefix string) *RedisKV {
	return &RedisKV{
		client: client,
		config: &RedisKVConfig{KeyPrefix: keyPrefix},
	}
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	result, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, types.WrapError(err, "failed to get redis key")
	}

	return result, true, nil
}

func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	err := s.client.Set(ctx, s.fullKey(key), value, 0).Err()
	if err != nil {
		if isRedisOOM(err) {
			return types.Errorf(types.ErrStoreQuotaExceeded, "redis maxmemory reached: %v", err)
		}
		return types.WrapError(err, "failed to set redis key")
	}

	return nil
}

func (s *RedisKV) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	if err := s.client.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return types.WrapError(err, "failed to delete redis key")
	}
	return nil
}

func (s *RedisKV) Keys(ctx context.Context) ([]string, error) {
	pattern := s.fullKey("*")
	prefix := s.fullKey("")

	var keys []string
	var cursor uint64

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, types.WrapError(err, "failed to scan redis keys")
		}

		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (s *RedisKV) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisKV) Close() error {
	return s.client.Close()
}

func (s *RedisKV) fullKey(key string) string {
	return s.config.KeyPrefix + ":" + key
}

func isRedisOOM(err error) bool {
	return err != nil && strings.Contains(err.Error(), "OOM")
}
