package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/welanie/dealpipe/internal/notify"
)

// UserStore persists the Telegram users registered for operator
// notifications.
type UserStore struct {
	pool dbPool
}

// NewUserStoreWithPool constructs a UserStore from an existing pool.
func NewUserStoreWithPool(pool dbPool) (*UserStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &UserStore{pool: pool}, nil
}

// EnsureSchema creates the user table if it does not exist yet.
func (s *UserStore) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS telegram_users (
	id BIGINT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	user_data JSONB
)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure user schema: %w", err)
	}
	return nil
}

// Upsert registers a user, replacing the previous registration for the
// same ID.
func (s *UserStore) Upsert(ctx context.Context, user notify.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user data: %w", err)
	}
	query := `
INSERT INTO telegram_users (id, first_name, last_name, user_data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	user_data = EXCLUDED.user_data`
	if _, err := s.pool.Exec(ctx, query, user.ID, user.FirstName, user.LastName, data); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Get returns one registered user or notify.ErrUserNotFound.
func (s *UserStore) Get(ctx context.Context, id int64) (notify.User, error) {
	query := `SELECT user_data FROM telegram_users WHERE id = $1`
	var data []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notify.User{}, notify.ErrUserNotFound
		}
		return notify.User{}, fmt.Errorf("get user: %w", err)
	}
	var user notify.User
	if err := json.Unmarshal(data, &user); err != nil {
		return notify.User{}, fmt.Errorf("unmarshal user data: %w", err)
	}
	return user, nil
}

// List returns all registered users.
func (s *UserStore) List(ctx context.Context) ([]notify.User, error) {
	query := `SELECT user_data FROM telegram_users ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []notify.User
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		var user notify.User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("unmarshal user data: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return users, nil
}
