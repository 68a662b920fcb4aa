package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/balidesk/oracle/pkg/oerr"
)

// DefaultSessionTTL expires idle conversations.
const DefaultSessionTTL = 24 * time.Hour

// RedisStore keeps sessions in Redis so multiple instances share history.
// Session metadata lives in a JSON value, turns in a list; both carry the
// same TTL, refreshed on every append.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.NewRedisStore",
			fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err))
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func metaKey(sessionID string) string  { return "session:" + sessionID }
func turnsKey(sessionID string) string { return "session:" + sessionID + ":turns" }

func (s *RedisStore) Create(ctx context.Context, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	existing, err := s.Get(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !oerr.Is(err, oerr.KindNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{ID: sessionID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	raw, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, metaKey(sessionID), raw, s.ttl).Err(); err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Create", err)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.client.Get(ctx, metaKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, oerr.E(oerr.KindNotFound, "session.Get", fmt.Errorf("session %s not found", sessionID))
	}
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Get", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn *Turn) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	sess.UpdatedAt = time.Now().UTC()
	meta, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(sessionID), raw)
	pipe.Set(ctx, metaKey(sessionID), meta, s.ttl)
	pipe.Expire(ctx, turnsKey(sessionID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]*Turn, error) {
	if n <= 0 {
		n = DefaultRecentTurns
	}
	raws, err := s.client.LRange(ctx, turnsKey(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Recent", err)
	}

	turns := make([]*Turn, 0, len(raws))
	for _, raw := range raws {
		var t Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, &t)
	}
	return turns, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, metaKey(sessionID), turnsKey(sessionID)).Err(); err != nil {
		return oerr.E(oerr.KindTransport, "session.Delete", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
