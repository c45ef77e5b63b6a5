package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uniedit/sitecache/internal/port/outbound"
)

// Name is the registry name of the Redis backend.
const Name = "redis"

const (
	defaultKeyPrefix = "cache:"
	valueSegment     = "val:"
	tagSetSegment    = "tag:"
	indexSetSegment  = "idx:"
)

// addMembershipScript adds the membership in both directions and ties the
// sets to the entry's TTL. The index set expires with the entry. The tag set
// lives as long as its longest lived member and is persistent once any
// member is.
//
// KEYS: value key, tag set, index set. ARGV: entry key, tag key.
var addMembershipScript = redis.NewScript(`
	local ttl = redis.call('PTTL', KEYS[1])
	local existed = redis.call('EXISTS', KEYS[2])
	redis.call('SADD', KEYS[2], ARGV[1])
	redis.call('SADD', KEYS[3], ARGV[2])

	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[3], ttl)
		local tagTTL = redis.call('PTTL', KEYS[2])
		if existed == 0 or (tagTTL > 0 and tagTTL < ttl) then
			redis.call('PEXPIRE', KEYS[2], ttl)
		end
	else
		redis.call('PERSIST', KEYS[2])
		redis.call('PERSIST', KEYS[3])
	end
	return 1
`)

// cacheBackend implements outbound.CacheBackend on Redis.
//
// Every physical key is <prefix><segment><key>, with one segment per kind so
// no entry or tag key can address another kind's key. Values live under val:
// with native TTL. Tag memberships live in two sets per relation: tag:<tagKey>
// holds entry keys and idx:<entryKey> holds tag keys.
type cacheBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewCacheBackend creates a Redis cache backend. An empty prefix uses "cache:".
func NewCacheBackend(client redis.UniversalClient, prefix string) outbound.CacheBackend {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &cacheBackend{client: client, prefix: prefix}
}

func (b *cacheBackend) valueKey(key string) string {
	return b.prefix + valueSegment + key
}

func (b *cacheBackend) tagSetKey(tagKey string) string {
	return b.prefix + tagSetSegment + tagKey
}

func (b *cacheBackend) indexSetKey(entryKey string) string {
	return b.prefix + indexSetSegment + entryKey
}

func (b *cacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, outbound.ErrCacheMiss
		}
		return nil, outbound.Unavailable(Name, "get", err)
	}
	return data, nil
}

func (b *cacheBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return outbound.Unavailable(Name, "set", b.client.Set(ctx, b.valueKey(key), value, ttl).Err())
}

func (b *cacheBackend) Delete(ctx context.Context, key string) error {
	return outbound.Unavailable(Name, "del", b.client.Del(ctx, b.valueKey(key)).Err())
}

func (b *cacheBackend) DeleteMultiple(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	physical := make([]string, len(keys))
	for i, key := range keys {
		physical[i] = b.valueKey(key)
	}
	return outbound.Unavailable(Name, "del", b.client.Del(ctx, physical...).Err())
}

func (b *cacheBackend) AddTagMembership(ctx context.Context, tagKey, entryKey string) error {
	keys := []string{b.valueKey(entryKey), b.tagSetKey(tagKey), b.indexSetKey(entryKey)}
	err := addMembershipScript.Run(ctx, b.client, keys, entryKey, tagKey).Err()
	return outbound.Unavailable(Name, "sadd", err)
}

func (b *cacheBackend) RemoveTagMembership(ctx context.Context, tagKey, entryKey string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, b.tagSetKey(tagKey), entryKey)
		pipe.SRem(ctx, b.indexSetKey(entryKey), tagKey)
		return nil
	})
	return outbound.Unavailable(Name, "srem", err)
}

// IDsForTag returns the members of tagKey whose values still exist.
// Members whose values expired or were removed are dropped from the index.
func (b *cacheBackend) IDsForTag(ctx context.Context, tagKey string) ([]string, error) {
	setKey := b.tagSetKey(tagKey)
	members, err := b.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, outbound.Unavailable(Name, "smembers", err)
	}
	if len(members) == 0 {
		return members, nil
	}

	exists := make([]*redis.IntCmd, len(members))
	_, err = b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, entryKey := range members {
			exists[i] = pipe.Exists(ctx, b.valueKey(entryKey))
		}
		return nil
	})
	if err != nil {
		return nil, outbound.Unavailable(Name, "exists", err)
	}

	live := make([]string, 0, len(members))
	var stale []string
	for i, entryKey := range members {
		if exists[i].Val() > 0 {
			live = append(live, entryKey)
		} else {
			stale = append(stale, entryKey)
		}
	}
	if len(stale) == 0 {
		return live, nil
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entryKey := range stale {
			pipe.SRem(ctx, setKey, entryKey)
			pipe.SRem(ctx, b.indexSetKey(entryKey), tagKey)
		}
		return nil
	})
	if err != nil {
		return nil, outbound.Unavailable(Name, "srem", err)
	}
	return live, nil
}

func (b *cacheBackend) TagsForID(ctx context.Context, entryKey string) ([]string, error) {
	tags, err := b.client.SMembers(ctx, b.indexSetKey(entryKey)).Result()
	if err != nil {
		return nil, outbound.Unavailable(Name, "smembers", err)
	}
	return tags, nil
}

func (b *cacheBackend) ClearTag(ctx context.Context, tagKey string) error {
	setKey := b.tagSetKey(tagKey)
	members, err := b.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return outbound.Unavailable(Name, "smembers", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entryKey := range members {
			pipe.SRem(ctx, b.indexSetKey(entryKey), tagKey)
		}
		pipe.Del(ctx, setKey)
		return nil
	})
	return outbound.Unavailable(Name, "del", err)
}

func (b *cacheBackend) Close() error {
	return b.client.Close()
}

// Compile-time check
var _ outbound.CacheBackend = (*cacheBackend)(nil)
