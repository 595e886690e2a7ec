package redissource

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/heapcache/cache"
)

// fakeRedis serves canned values and records the keys it was asked for.
type fakeRedis struct {
	mu    sync.Mutex
	data  map[string]string
	err   error
	gets  []string
	mgets [][]string
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, key)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mgets = append(f.mgets, keys)
	if f.err != nil {
		return redis.NewSliceResult(nil, f.err)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			out[i] = v
		}
	}
	return redis.NewSliceResult(out, nil)
}

type user struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestSingle_LoadsThroughCache(t *testing.T) {
	t.Parallel()

	r := &fakeRedis{data: map[string]string{"user:1": `{"name":"ann","age":31}`}}
	c, err := cache.New(cache.Options[int, user]{
		Source: Single(r, Options[int, user]{Prefix: "user:", Decode: JSON[user]()}),
	})
	require.NoError(t, err)
	defer c.Close()

	u, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, user{Name: "ann", Age: 31}, u)

	_, err = c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1"}, r.gets, "second get is a hit")

	_, err = c.Get(context.Background(), 2)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, cache.ErrLoadFailed)
}

func TestSingle_ErrorsAndDecode(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	r := &fakeRedis{err: down}
	src := Single(r, Options[string, string]{Decode: String})
	c, err := cache.New(cache.Options[string, string]{Source: src})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(context.Background(), "k")
	require.ErrorIs(t, err, down)

	r2 := &fakeRedis{data: map[string]string{"k": "not json"}}
	c2, err := cache.New(cache.Options[string, user]{Source: Single(r2, Options[string, user]{Decode: JSON[user]()})})
	require.NoError(t, err)
	defer c2.Close()
	_, err = c2.Get(context.Background(), "k")
	require.ErrorIs(t, err, cache.ErrLoadFailed)
}

func TestBulk_OneRoundTrip(t *testing.T) {
	t.Parallel()

	r := &fakeRedis{data: map[string]string{"a": "1", "b": "2", "c": "3"}}
	c, err := cache.New(cache.Options[string, []byte]{
		Source: Bulk(r, Options[string, []byte]{Decode: Bytes}),
	})
	require.NoError(t, err)
	defer c.Close()

	got, err := c.GetAll(context.Background(), []string{"a", "b", "c", "zz"})
	require.ErrorIs(t, err, cache.ErrIncompleteLoad)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}, got)
	require.Len(t, r.mgets, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c", "zz"}, r.mgets[0])

	// A single miss on a bulk source is a batch of one.
	_, err = c.Get(context.Background(), "q")
	require.ErrorIs(t, err, cache.ErrIncompleteLoad)
	require.Len(t, r.mgets, 2)
	assert.Equal(t, []string{"q"}, r.mgets[1])
}

func TestBulk_DecodeErrorIsKeptPerKey(t *testing.T) {
	t.Parallel()

	r := &fakeRedis{data: map[string]string{"good": `{"name":"ann"}`, "bad": "not json"}}
	c, err := cache.New(cache.Options[string, user]{
		Source: Bulk(r, Options[string, user]{Decode: JSON[user]()}),
	})
	require.NoError(t, err)
	defer c.Close()

	got, err := c.GetAll(context.Background(), []string{"good", "bad"})
	require.ErrorIs(t, err, cache.ErrIncompleteLoad)
	assert.Contains(t, err.Error(), "decode bad")
	assert.NotErrorIs(t, err, ErrNotFound)
	require.Len(t, got, 1)
	assert.Equal(t, "ann", got["good"].Name)
}

func TestBulk_CustomKeyAndErrors(t *testing.T) {
	t.Parallel()

	r := &fakeRedis{data: map[string]string{"p/ONE": "1"}}
	src := Bulk(r, Options[string, string]{
		Prefix: "p/",
		Key:    func(k string) string { return map[string]string{"one": "ONE"}[k] },
		Decode: String,
	})
	c, err := cache.New(cache.Options[string, string]{Source: src})
	require.NoError(t, err)
	defer c.Close()

	v, err := c.Get(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	r.mu.Lock()
	r.err = errors.New("timeout")
	r.mu.Unlock()
	_, err = c.GetAll(context.Background(), []string{"two", "three"})
	require.ErrorIs(t, err, cache.ErrLoadFailed)
}

func TestConnect_BadURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), ConnectConfig{URL: "://nope"})
	require.ErrorIs(t, err, ErrBadURL)
}
