package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rcliao/agent-context/internal/model"
)

const redisName = "redis"

// Redis implements Backend with one JSON value per key and a sorted set
// indexing keys by sequence number.
type Redis struct {
	client *redis.Client
	prefix string
	ids    *idSource
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis backend connected to addr.
func NewRedis(addr string, opts ...RedisOption) *Redis {
	return NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

// NewRedisFromClient creates a Redis backend from an existing client.
func NewRedisFromClient(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "agent-context:memory:",
		ids:    newIDSource(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Name() string { return redisName }

func (r *Redis) key(k string) string { return r.prefix + "rec:" + k }
func (r *Redis) indexKey() string    { return r.prefix + "index" }
func (r *Redis) seqKey() string      { return r.prefix + "seq" }

func (r *Redis) Put(ctx context.Context, m model.Memory) (model.Memory, error) {
	m = stamp(m.Clone())
	recKey := r.key(m.Key)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, recKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			seq, err := tx.Incr(ctx, r.seqKey()).Result()
			if err != nil {
				return err
			}
			m.ID, m.Seq = r.ids.next(), seq
		case err != nil:
			return err
		default:
			var old model.Memory
			if err := json.Unmarshal(prev, &old); err != nil {
				return fmt.Errorf("decode existing record: %w", err)
			}
			m.ID, m.Seq = old.ID, old.Seq
		}

		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, recKey, data, 0)
			pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(m.Seq), Member: m.Key})
			return nil
		})
		return err
	}, recKey)
	if err != nil {
		return model.Memory{}, backendErr(redisName, "put", m.Key, err)
	}
	return m, nil
}

func (r *Redis) Get(ctx context.Context, key string) (model.Memory, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Memory{}, notFound(key)
	}
	if err != nil {
		return model.Memory{}, backendErr(redisName, "get", key, err)
	}
	var m model.Memory
	if err := json.Unmarshal(val, &m); err != nil {
		return model.Memory{}, backendErr(redisName, "get", key, err)
	}
	return m, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.key(key))
	pipe.ZRem(ctx, r.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return backendErr(redisName, "delete", key, err)
	}
	if del.Val() == 0 {
		return notFound(key)
	}
	return nil
}

// List walks the index in sequence order. Index members whose record has
// disappeared are removed lazily.
func (r *Redis) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	keys, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, backendErr(redisName, "list", "", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	recKeys := make([]string, len(keys))
	for i, k := range keys {
		recKeys[i] = r.key(k)
	}
	vals, err := r.client.MGet(ctx, recKeys...).Result()
	if err != nil {
		return nil, backendErr(redisName, "list", "", err)
	}

	var out []model.Memory
	var stale []interface{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, keys[i])
			continue
		}
		var m model.Memory
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, backendErr(redisName, "list", keys[i], err)
		}
		if f.Match(m) {
			out = append(out, m)
		}
	}
	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			return nil, backendErr(redisName, "list", "", err)
		}
	}
	return out, nil
}

// Close closes the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
