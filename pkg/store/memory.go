package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// UserProfile identifies a user and their access level.
type UserProfile struct {
	ID                string
	Email             string
	Name              string
	Role              string
	PreferredLanguage string
	Level             int
}

// UserMemory is the accumulated per-user memory row.
type UserMemory struct {
	UserID       string
	ProfileFacts []string
	Summary      string
	Counters     map[string]int
	UpdatedAt    time.Time
}

// GetUserByEmail looks a user up by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*UserProfile, error) {
	var u UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, preferred_language, level
		FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PreferredLanguage, &u.Level)
	if err != nil {
		return nil, s.mapErr("store.GetUserByEmail", err)
	}
	return &u, nil
}

// UpsertUser writes a user profile.
func (s *Store) UpsertUser(ctx context.Context, u *UserProfile) error {
	return s.withTx(ctx, "store.UpsertUser", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, name, role, preferred_language, level)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				email = excluded.email,
				name = excluded.name,
				role = excluded.role,
				preferred_language = excluded.preferred_language,
				level = excluded.level`,
			u.ID, u.Email, u.Name, u.Role, u.PreferredLanguage, u.Level)
		return err
	})
}

// GetUserMemory fetches the memory row for a user.
func (s *Store) GetUserMemory(ctx context.Context, userID string) (*UserMemory, error) {
	var m UserMemory
	var counters []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, profile_facts, summary, counters, updated_at
		FROM user_memory WHERE user_id = $1`, userID).
		Scan(&m.UserID, pq.Array(&m.ProfileFacts), &m.Summary, &counters, &m.UpdatedAt)
	if err != nil {
		return nil, s.mapErr("store.GetUserMemory", err)
	}
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &m.Counters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory counters: %w", err)
		}
	}
	return &m, nil
}

// UpsertUserMemory writes the memory row. Callers are responsible for the
// fact cap and dedup rules; the store persists what it is given.
func (s *Store) UpsertUserMemory(ctx context.Context, m *UserMemory) error {
	counters, err := json.Marshal(m.Counters)
	if err != nil {
		return fmt.Errorf("failed to marshal memory counters: %w", err)
	}
	return s.withTx(ctx, "store.UpsertUserMemory", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_memory (user_id, profile_facts, summary, counters, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				profile_facts = excluded.profile_facts,
				summary = excluded.summary,
				counters = excluded.counters,
				updated_at = NOW()`,
			m.UserID, pq.Array(m.ProfileFacts), m.Summary, counters)
		return err
	})
}
