package repositories

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore serves both the identity and the history contracts from PostgreSQL.
type PostgresStore struct {
	pool          *pgxpool.Pool
	limitMessages *int
}

// NewPostgresStore creates a PostgreSQL store with a connection pool.
// limitMessages caps Conversation to the most recent messages, nil returns them all.
func NewPostgresStore(ctx context.Context, databaseURL string, limitMessages *int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, limitMessages: limitMessages}, nil
}

// Migrate creates the users and messages tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			sender_id BIGINT NOT NULL REFERENCES users(id),
			receiver_id BIGINT NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, id)
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts the message; id and timestamp are assigned by the database.
func (s *PostgresStore) Append(ctx context.Context, newMessage domain.NewMessage) (domain.Message, error) {
	var msg domain.Message
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (sender_id, receiver_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, sender_id, receiver_id, content, timestamp,
			(SELECT username FROM users WHERE id = $1)
	`, int64(newMessage.SenderID), int64(newMessage.ReceiverID), newMessage.Content).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msg.Timestamp,
		&msg.SenderName,
	)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}

// Conversation returns the messages of a pair in both directions, oldest first.
// Ids give the order. With limitMessages set only the most recent messages are returned.
func (s *PostgresStore) Conversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	// LIMIT NULL is no limit
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, content, timestamp, username FROM (
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.timestamp, u.username
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
			ORDER BY m.id DESC
			LIMIT $3
		) recent
		ORDER BY id
	`, int64(a), int64(b), s.limitMessages)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.Timestamp, &msg.SenderName); err != nil {
			return nil, err
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error) {
	user := domain.User{Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, username, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, errors.ErrUserAlreadyExists
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, password, created_at FROM users WHERE id = $1`, int64(id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, password, created_at FROM users WHERE username = $1`, username)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrUserNotFound, arg)
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, exclude domain.UserID) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username FROM users WHERE id != $1 ORDER BY id`, int64(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
