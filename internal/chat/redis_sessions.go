package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessions keeps session state in redis so several bot processes can
// share it. Expiry is handled by the key TTL.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{client: client, ttl: ttl}
}

func sessionKey(identity int64) string {
	return "session:" + strconv.FormatInt(identity, 10)
}

func (r *RedisSessions) Get(ctx context.Context, identity int64) (Session, bool, error) {
	data, err := r.client.Get(ctx, sessionKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisSessions) Put(ctx context.Context, identity int64, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(identity), data, r.ttl).Err()
}

func (r *RedisSessions) Clear(ctx context.Context, identity int64) error {
	return r.client.Del(ctx, sessionKey(identity)).Err()
}

func (r *RedisSessions) Stale(context.Context, time.Time) ([]int64, error) {
	// Redis evicts sessions via the key TTL.
	return nil, nil
}
