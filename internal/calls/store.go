package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	callKeyPrefix       = "outreach:call:"
	transcriptKeyPrefix = "outreach:call:transcript:"
	callTTL             = 24 * time.Hour
)

// SessionStore keeps call sessions and their transcripts in Redis so the
// provider webhooks and the poller see the same state.
type SessionStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewSessionStore creates a store backed by Redis.
func NewSessionStore(rdb redis.UniversalClient) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: callTTL}
}

func callKey(sid string) string {
	return callKeyPrefix + sid
}

func transcriptKey(sid string) string {
	return transcriptKeyPrefix + sid
}

// Save persists the session without its transcript.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SID == "" {
		return fmt.Errorf("call session: sid required")
	}
	stored := *sess
	stored.Transcript = nil
	stored.CustomerResponses = nil
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("call session: marshal: %w", err)
	}
	return s.rdb.Set(ctx, callKey(sess.SID), data, s.ttl).Err()
}

// Get returns the stored session, or nil when none exists.
func (s *SessionStore) Get(ctx context.Context, sid string) (*Session, error) {
	data, err := s.rdb.Get(ctx, callKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("call session: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("call session: unmarshal: %w", err)
	}
	return &sess, nil
}

// Merge saves sess, keeping the stored duration when sess has none. The
// status callback may have recorded it before the poller saw the change.
// sess is updated in place with the merged values.
func (s *SessionStore) Merge(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SID == "" {
		return fmt.Errorf("call session: sid required")
	}
	stored, err := s.Get(ctx, sess.SID)
	if err != nil {
		return err
	}
	if stored != nil && sess.DurationSeconds == 0 {
		sess.DurationSeconds = stored.DurationSeconds
	}
	return s.Save(ctx, sess)
}

// UpdateStatus records a provider status callback. Unknown sessions are ignored.
func (s *SessionStore) UpdateStatus(ctx context.Context, sid string, status Status, durationSeconds int) error {
	sess, err := s.Get(ctx, sid)
	if err != nil || sess == nil {
		return err
	}
	sess.Status = status
	if durationSeconds > 0 {
		sess.DurationSeconds = durationSeconds
	}
	sess.UpdatedAt = time.Now().UTC()
	return s.Save(ctx, sess)
}

// AppendTurn adds a transcript turn to the call.
func (s *SessionStore) AppendTurn(ctx context.Context, sid string, turn Turn) error {
	if sid == "" {
		return fmt.Errorf("call transcript: sid required")
	}
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("call transcript: marshal: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, transcriptKey(sid), data)
	pipe.Expire(ctx, transcriptKey(sid), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("call transcript: append: %w", err)
	}
	return nil
}

// Turns returns the recorded turns in order.
func (s *SessionStore) Turns(ctx context.Context, sid string) ([]Turn, error) {
	data, err := s.rdb.LRange(ctx, transcriptKey(sid), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("call transcript: get: %w", err)
	}
	turns := make([]Turn, 0, len(data))
	for _, d := range data {
		var turn Turn
		if err := json.Unmarshal([]byte(d), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Transcript assembles the conversation: the agent's script followed by the
// turns captured during the call.
func (s *SessionStore) Transcript(ctx context.Context, sid string) ([]Turn, error) {
	sess, err := s.Get(ctx, sid)
	if err != nil {
		return nil, err
	}
	turns, err := s.Turns(ctx, sid)
	if err != nil {
		return nil, err
	}
	out := make([]Turn, 0, len(turns)+1)
	if sess != nil && sess.Script != "" {
		out = append(out, Turn{Role: RoleAgent, Text: sess.Script, At: sess.StartedAt})
	}
	return append(out, turns...), nil
}
