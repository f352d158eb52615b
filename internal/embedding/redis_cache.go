package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisCache stores vectors as little-endian float32 blobs.
type RedisCache struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheWithClient(rdb, ttl), nil
}

func NewRedisCacheWithClient(rdb goredis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "mindmesh:emb:", ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, keys []string) ([][]float32, error) {
	if len(keys) == 0 {
		return [][]float32{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	vals, err := r.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = decodeVector([]byte(s))
	}
	return out, nil
}

func (r *RedisCache) Set(ctx context.Context, keys []string, vecs [][]float32) error {
	if len(keys) != len(vecs) {
		return fmt.Errorf("redis cache: %d keys for %d vectors", len(keys), len(vecs))
	}
	pipe := r.rdb.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, r.prefix+k, encodeVector(vecs[i]), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCache) Close() error { return r.rdb.Close() }

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
