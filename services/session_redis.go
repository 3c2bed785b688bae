package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"clinic-portal/models"
)

const deactivateRetries = 3

// RedisSessionStore keeps each session as a JSON value that Redis expires at
// the session's expiry. A set per principal indexes its session ids.
type RedisSessionStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(rdb redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "clinic"
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + ":session:" + id
}

func (s *RedisSessionStore) principalKey(variant models.Variant, principalID string) string {
	return s.prefix + ":principal_sessions:" + string(variant) + ":" + principalID
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	key := s.key(session.ID)
	indexKey := s.principalKey(session.Variant, session.PrincipalID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.ExpireAt(ctx, key, session.ExpiresAt)
		pipe.SAdd(ctx, indexKey, session.ID)
		// Fixed TTL means the newest session always expires last.
		pipe.ExpireAt(ctx, indexKey, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) FindActive(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	session, err := s.get(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.ValidAt(now) {
		return nil, nil
	}
	return session, nil
}

// Deactivate rewrites the record under WATCH and keeps its remaining TTL.
func (s *RedisSessionStore) Deactivate(ctx context.Context, id string, now time.Time) error {
	key := s.key(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		if !session.IsActive {
			return nil
		}

		session.IsActive = false
		session.LogoutTime = &now
		updated, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < deactivateRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// sessionsFor loads every indexed session of a principal that still exists.
func (s *RedisSessionStore) sessionsFor(ctx context.Context, indexKey string) ([]*models.Session, []string, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read session index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	var sessions []*models.Session
	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, nil, fmt.Errorf("failed to decode session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, missing, nil
}

func (s *RedisSessionStore) ListActive(ctx context.Context, variant models.Variant, principalID string, now time.Time) ([]*models.Session, error) {
	all, _, err := s.sessionsFor(ctx, s.principalKey(variant, principalID))
	if err != nil {
		return nil, err
	}

	active := []*models.Session{}
	for _, session := range all {
		if session.ValidAt(now) {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LoginTime.After(active[j].LoginTime)
	})
	return active, nil
}

func (s *RedisSessionStore) DeactivateForPrincipal(ctx context.Context, variant models.Variant, principalID string, now time.Time) (int64, error) {
	active, err := s.ListActive(ctx, variant, principalID, now)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, session := range active {
		if err := s.Deactivate(ctx, session.ID, now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DeleteExpired walks the principal indexes, deleting records that are past
// their expiry and pruning ids Redis has already expired.
func (s *RedisSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	iter := s.rdb.Scan(ctx, 0, s.prefix+":principal_sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		sessions, missing, err := s.sessionsFor(ctx, indexKey)
		if err != nil {
			return deleted, err
		}

		var expiredKeys []string
		stale := missing
		for _, session := range sessions {
			if !now.Before(session.ExpiresAt) {
				expiredKeys = append(expiredKeys, s.key(session.ID))
				stale = append(stale, session.ID)
			}
		}

		if len(expiredKeys) > 0 {
			n, err := s.rdb.Del(ctx, expiredKeys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete expired sessions: %w", err)
			}
			deleted += n
		}
		if len(stale) > 0 {
			members := make([]interface{}, len(stale))
			for i, id := range stale {
				members[i] = id
			}
			if err := s.rdb.SRem(ctx, indexKey, members...).Err(); err != nil {
				return deleted, fmt.Errorf("failed to prune session index %s: %w", strings.TrimPrefix(indexKey, s.prefix+":"), err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan session indexes: %w", err)
	}
	return deleted, nil
}

// Ping verifies the Redis connection at startup.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
