// Package redissource loads cache values from Redis.
//
// Values are stored as plain strings or bytes under prefix+key and decoded
// with a Decoder. A missing Redis key is a load failure wrapping
// ErrNotFound, so combined with cache.Config.NegativeTTL absent keys are
// not re-fetched on every miss.
package redissource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/IvanBrykalov/heapcache/cache"
)

// ErrNotFound is returned for keys that do not exist in Redis.
var ErrNotFound = errors.New("redissource: key not found")

// Client is the subset of go-redis used by the sources. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// Decoder turns a stored value into V.
type Decoder[V any] func([]byte) (V, error)

// String stores values verbatim.
func String(b []byte) (string, error) { return string(b), nil }

// Bytes stores values verbatim.
func Bytes(b []byte) ([]byte, error) { return b, nil }

// JSON decodes values stored as JSON documents.
func JSON[V any]() Decoder[V] {
	return func(b []byte) (V, error) {
		var v V
		err := json.Unmarshal(b, &v)
		return v, err
	}
}

// Options configure a source.
type Options[K comparable, V any] struct {
	// Prefix is prepended to every Redis key.
	Prefix string
	// Key renders a cache key; defaults to fmt.Sprint.
	Key func(K) string
	// Decode is required.
	Decode Decoder[V]
}

func (o Options[K, V]) redisKey(k K) string {
	if o.Key != nil {
		return o.Prefix + o.Key(k)
	}
	return o.Prefix + fmt.Sprint(k)
}

// Single returns a source issuing one GET per key.
func Single[K comparable, V any](c Client, opt Options[K, V]) *cache.Source[K, V] {
	return cache.SingleSource(func(ctx context.Context, k K) (V, error) {
		var zero V
		rk := opt.redisKey(k)
		b, err := c.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, rk)
		}
		if err != nil {
			return zero, err
		}
		return opt.Decode(b)
	})
}

// Bulk returns a source issuing one MGET per batch. Keys that are absent
// or fail to decode are reported per key: they fail with
// cache.ErrIncompleteLoad wrapping ErrNotFound or the decode error.
func Bulk[K comparable, V any](c Client, opt Options[K, V]) *cache.Source[K, V] {
	return cache.BulkSource(func(ctx context.Context, keys []K) (map[K]V, error) {
		rks := make([]string, len(keys))
		for i, k := range keys {
			rks[i] = opt.redisKey(k)
		}
		vals, err := c.MGet(ctx, rks...).Result()
		if err != nil {
			return nil, err
		}
		if len(vals) != len(keys) {
			return nil, fmt.Errorf("redissource: MGET returned %d values for %d keys", len(vals), len(keys))
		}
		out := make(map[K]V, len(keys))
		var errs cache.KeyErrors[K]
		fail := func(k K, err error) {
			if errs == nil {
				errs = make(cache.KeyErrors[K])
			}
			errs[k] = err
		}
		for i, raw := range vals {
			var b []byte
			switch x := raw.(type) {
			case nil:
				fail(keys[i], fmt.Errorf("%w: %s", ErrNotFound, rks[i]))
				continue
			case string:
				b = []byte(x)
			case []byte:
				b = x
			default:
				fail(keys[i], fmt.Errorf("redissource: %s: unexpected value type %T", rks[i], raw))
				continue
			}
			v, err := opt.Decode(b)
			if err != nil {
				fail(keys[i], fmt.Errorf("redissource: decode %s: %w", rks[i], err))
				continue
			}
			out[keys[i]] = v
		}
		if errs != nil {
			return out, errs
		}
		return out, nil
	})
}
