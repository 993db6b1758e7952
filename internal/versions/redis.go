package versions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "codecollab:versions:"

// RedisStore keeps history as one list per room, newest at the head
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(ctx, redis.NewClient(opts))
}

func NewRedisStoreFromClient(ctx context.Context, rdb *redis.Client) (*RedisStore, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func redisKey(roomID string) string {
	return redisKeyPrefix + roomID
}

func (r *RedisStore) Append(ctx context.Context, roomID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.rdb.LPush(ctx, redisKey(roomID), payload).Err()
}

func (r *RedisStore) List(ctx context.Context, roomID string) ([]Snapshot, error) {
	items, err := r.rdb.LRange(ctx, redisKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(items))
	for _, item := range items {
		var snap Snapshot
		if err := json.Unmarshal([]byte(item), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot for room %s: %w", roomID, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (r *RedisStore) Count(ctx context.Context, roomID string) (int, error) {
	n, err := r.rdb.LLen(ctx, redisKey(roomID)).Result()
	return int(n), err
}

func (r *RedisStore) Prune(ctx context.Context, roomID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	key := redisKey(roomID)

	var before *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		before = pipe.LLen(ctx, key)
		if keep == 0 {
			pipe.Del(ctx, key)
		} else {
			pipe.LTrim(ctx, key, 0, int64(keep-1))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := int(before.Val()) - keep
	if removed < 0 {
		removed = 0
	}
	return removed, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
