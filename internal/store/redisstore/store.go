package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects and pings. A nil Store and an error mean Redis is unavailable.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewWithClient(rdb, ttl), nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func summaryKey(userID uint64) string {
	return fmt.Sprintf("studio:summaries:%d", userID)
}

func (s *Store) GetSummaries(ctx context.Context, userID uint64) ([]studio.SessionSummary, bool, error) {
	b, err := s.rdb.Get(ctx, summaryKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var list []studio.SessionSummary
	if err := json.Unmarshal(b, &list); err != nil {
		// corrupt entry: treat as a miss and drop it
		_ = s.rdb.Del(ctx, summaryKey(userID)).Err()
		return nil, false, nil
	}
	return list, true, nil
}

func (s *Store) SetSummaries(ctx context.Context, userID uint64, list []studio.SessionSummary) error {
	if list == nil {
		list = []studio.SessionSummary{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, summaryKey(userID), b, s.ttl).Err()
}

func (s *Store) InvalidateSummaries(ctx context.Context, userID uint64) error {
	return s.rdb.Del(ctx, summaryKey(userID)).Err()
}
