package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riftproxy/riftproxy/internal/config"
	"github.com/riftproxy/riftproxy/internal/core"
)

// Redis key suffixes, appended to the configured prefix.
const (
	redisSummonersKey = "summoners"
	redisVersionKey   = "versions"
	redisChampionsKey = "champions"
)

// redisKV is the subset of the redis client used by RedisStore.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore persists each entity set as one JSON value in redis.
type RedisStore struct {
	client redisKV
	prefix string
}

// OpenRedisStore connects to redis and verifies the connection.
func OpenRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	store := newRedisStore(client, cfg.Prefix)
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

func newRedisStore(client redisKV, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// LoadSummoners reads the summoner document. A missing key yields no summoners.
func (r *RedisStore) LoadSummoners(ctx context.Context) ([]core.Summoner, error) {
	var doc summonersDocument
	found, err := r.get(ctx, redisSummonersKey, &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.Summoners, nil
}

// SaveSummoners writes the summoner document.
func (r *RedisStore) SaveSummoners(ctx context.Context, summoners []core.Summoner) error {
	if summoners == nil {
		summoners = []core.Summoner{}
	}
	return r.set(ctx, redisSummonersKey, summonersDocument{Summoners: summoners})
}

// LoadStaticVersion reads the stored version. A missing key yields a zero version.
func (r *RedisStore) LoadStaticVersion(ctx context.Context) (core.StaticVersion, error) {
	var version core.StaticVersion
	if _, err := r.get(ctx, redisVersionKey, &version); err != nil {
		return core.StaticVersion{}, err
	}
	return version, nil
}

// SaveStaticVersion writes the stored version.
func (r *RedisStore) SaveStaticVersion(ctx context.Context, version core.StaticVersion) error {
	return r.set(ctx, redisVersionKey, version)
}

// LoadCatalog reads the champion catalog. A missing key yields an empty catalog.
func (r *RedisStore) LoadCatalog(ctx context.Context) (core.ChampionCatalog, error) {
	var catalog core.ChampionCatalog
	if _, err := r.get(ctx, redisChampionsKey, &catalog); err != nil {
		return core.ChampionCatalog{}, err
	}
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	return catalog, nil
}

// SaveCatalog writes the champion catalog.
func (r *RedisStore) SaveCatalog(ctx context.Context, catalog core.ChampionCatalog) error {
	if catalog.Data == nil {
		catalog.Data = map[string]core.ChampionEntry{}
	}
	return r.set(ctx, redisChampionsKey, catalog)
}

// Close releases the redis connection pool.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

func (r *RedisStore) get(ctx context.Context, name string, into any) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	val, err := r.client.Get(ctx, r.key(name)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", r.key(name), err)
	}
	if strings.TrimSpace(val) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(val), into); err != nil {
		return false, fmt.Errorf("decode %s: %w", r.key(name), err)
	}
	return true, nil
}

func (r *RedisStore) set(ctx context.Context, name string, value any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.key(name), err)
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key(name), err)
	}
	return nil
}
