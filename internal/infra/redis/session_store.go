package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

// SessionStore keeps session records in Redis as JSON.
// Keys:
//
//	trivia:session:{id}  -> session JSON
//	trivia:code:{code}   -> session id
//	trivia:sessions      -> set of known ids (for listing and sweeping)
//
// Records carry ttl so abandoned rooms vanish even without the sweeper.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

const sessionsKey = "trivia:sessions"

func (s *SessionStore) sessionKey(id string) string {
	return "trivia:session:" + id
}

func (s *SessionStore) codeKey(code string) string {
	return "trivia:code:" + code
}

func (s *SessionStore) Create(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	codeKey := s.codeKey(session.JoinCode)

	// WATCH the code key so two rooms drawing the same code cannot both win.
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		holderID, err := tx.Get(ctx, codeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read join code: %w", err)
		}
		if holderID != "" {
			holder, err := s.get(ctx, tx, holderID)
			if err == nil && holder.Status != domain.StatusFinished {
				return domain.ErrJoinCodeTaken
			}
			if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
			pipe.Set(ctx, codeKey, session.ID, s.ttl)
			pipe.SAdd(ctx, sessionsKey, session.ID)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return domain.ErrJoinCodeTaken
		}
		return err
	}, codeKey)
}

func (s *SessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	return s.get(ctx, s.client, id)
}

func (s *SessionStore) get(ctx context.Context, c redis.Cmdable, id string) (domain.Session, error) {
	raw, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) GetByJoinCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve join code: %w", err)
	}
	return s.Get(ctx, id)
}

// Update replaces the whole record, keeping its expiry.
func (s *SessionStore) Update(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.client.SetArgs(ctx, s.sessionKey(session.ID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return s.client.SRem(ctx, sessionsKey, id).Err()
	}
	if err != nil {
		return err
	}
	return s.remove(ctx, session)
}

func (s *SessionStore) remove(ctx context.Context, session domain.Session) error {
	codeKey := s.codeKey(session.JoinCode)
	holder, err := s.client.Get(ctx, codeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read join code: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(session.ID))
	pipe.SRem(ctx, sessionsKey, session.ID)
	if holder == session.ID {
		pipe.Del(ctx, codeKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListPublicWaiting returns public lobbies that can still be joined, oldest first.
func (s *SessionStore) ListPublicWaiting(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Session, 0, len(sessions))
	for _, session := range sessions {
		if session.Status == domain.StatusWaiting && session.Settings.Visibility == domain.VisibilityPublic {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) Sweep(ctx context.Context, now time.Time, maxAge, finishedGrace time.Duration) ([]string, error) {
	ids, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var removed []string
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			// expired through its ttl
			if err := s.client.SRem(ctx, sessionsKey, id).Err(); err != nil {
				return removed, fmt.Errorf("prune session index: %w", err)
			}
			removed = append(removed, id)
		case err != nil:
			return removed, err
		case memory.Expired(session, now, maxAge, finishedGrace):
			if err := s.remove(ctx, session); err != nil {
				return removed, err
			}
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// Len reports how many sessions are indexed.
func (s *SessionStore) Len(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, sessionsKey).Result()
}

func (s *SessionStore) all(ctx context.Context) ([]domain.Session, error) {
	ids, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func decodeSession(raw []byte) (domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
