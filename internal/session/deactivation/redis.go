// Package deactivation keeps subject deactivation flags outside the
// session database.
package deactivation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the flag keys.
const DefaultKeyPrefix = "tokenkeeper:deactivated:"

// RedisSource stores one key per deactivated subject. A missing key means
// the subject is active.
type RedisSource struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisSource creates a source over client. An empty prefix uses
// DefaultKeyPrefix.
func NewRedisSource(client redis.Cmdable, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisSource{client: client, prefix: prefix, now: time.Now}
}

// IsDeactivated reports whether the subject's flag is set.
func (s *RedisSource) IsDeactivated(ctx context.Context, subjectID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(subjectID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// SetDeactivated sets or clears the flag. The value is the unix time the
// flag was set, read back by DeactivatedSince.
func (s *RedisSource) SetDeactivated(ctx context.Context, subjectID string, deactivated bool) error {
	if !deactivated {
		if err := s.client.Del(ctx, s.key(subjectID)).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}

	stamp := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.client.Set(ctx, s.key(subjectID), stamp, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeactivatedSince returns when the flag was set, or ok=false if it isn't.
func (s *RedisSource) DeactivatedSince(ctx context.Context, subjectID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.key(subjectID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("redis get: %w", err)
	}

	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Set by hand; still deactivated.
		return time.Time{}, true, nil
	}
	return time.Unix(sec, 0).UTC(), true, nil
}

func (s *RedisSource) key(subjectID string) string {
	return s.prefix + subjectID
}
