package redis

// Package redis provides Redis-based adapters for the portal.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/dernekportal/portal-api/internal/domain/auth"
)

const (
	defaultSessionPrefix = "session:"
	userIndexPrefix      = "user-sessions:"
	userIndexTTL         = 31 * 24 * time.Hour
)

// SessionStore keeps remote account sessions in Redis.
// Keys expire with the session; a per-user set indexes live session ids for revocation.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, defaultSessionPrefix)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) key(id string) string      { return s.prefix + id }
func (s *SessionStore) userKey(uid string) string { return s.prefix + userIndexPrefix + uid }

func (s *SessionStore) Save(ctx context.Context, sess domainauth.RemoteSession) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		if sess.UserID != "" {
			// Stale ids left in the index are harmless; revocation deletes missing keys as no-ops.
			idx := s.userKey(sess.UserID)
			pipe.SAdd(ctx, idx, sess.ID)
			pipe.Expire(ctx, idx, userIndexTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.RemoteSession, error) {
	if id == "" {
		return domainauth.RemoteSession{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.RemoteSession{}, ErrNotFound
		}
		return domainauth.RemoteSession{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.RemoteSession
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.RemoteSession{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	// Redis TTL normally handles this; clock skew between hosts can leave a short window.
	if !sess.ExpiresAt.After(s.now()) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.RemoteSession{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.RemoteSession{}, ErrNotFound
	}

	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	data, err := s.client.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("redis delete: %w", err)
	}

	var sess domainauth.RemoteSession
	if json.Unmarshal([]byte(data), &sess) == nil && sess.UserID != "" {
		if remErr := s.client.SRem(ctx, s.userKey(sess.UserID), id).Err(); remErr != nil {
			return fmt.Errorf("redis unindex session: %w", remErr)
		}
	}
	return nil
}

// DeleteAllForUser revokes every live session of userID and reports how many were removed.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	idx := s.userKey(userID)
	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// One DEL per key keeps the pipeline valid on cluster deployments.
	cmds := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.Del(ctx, s.key(id)))
		}
		pipe.Del(ctx, idx)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis revoke user sessions: %w", err)
	}
	removed := 0
	for _, c := range cmds {
		removed += int(c.Val())
	}
	return removed, nil
}

// ErrNotFound is returned when a session is not found. It matches auth.ErrSessionNotFound.
var ErrNotFound = domainauth.ErrSessionNotFound
