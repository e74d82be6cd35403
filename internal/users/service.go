// Package users is the user directory: the mapping between internal user
// ids and external identities (Telegram ids, web logins).
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/donnahq/donna/internal/db"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrUsernameTaken      = errors.New("username already taken")
)

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "users")),
	}
}

const userColumns = `id, telegram_id, username, display_name, is_active, created_at, updated_at`

func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	if s.pool == nil {
		return User{}, fmt.Errorf("user pool not configured")
	}
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return User{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, pgID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetOrCreateByTelegramID resolves a Telegram sender to an internal user,
// creating the row on first contact. The upsert keeps concurrent first
// messages from the same sender from racing into duplicate users.
func (s *Service) GetOrCreateByTelegramID(ctx context.Context, telegramID int64, displayName string) (User, error) {
	if s.pool == nil {
		return User{}, fmt.Errorf("user pool not configured")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET updated_at = now()
		RETURNING `+userColumns,
		telegramID, strings.TrimSpace(displayName),
	)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("resolve telegram user: %w", err)
	}
	if !u.IsActive {
		return User{}, ErrInactiveUser
	}
	return u, nil
}

// Register creates a web-login user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if s.pool == nil {
		return User{}, fmt.Errorf("user pool not configured")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return User{}, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(req.Password) == "" {
		return User{}, fmt.Errorf("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		username, string(hashed), displayName,
	)
	u, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Login validates a web user's password and returns the user.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	if s.pool == nil {
		return User{}, fmt.Errorf("user pool not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return User{}, ErrInvalidCredentials
	}

	var hash pgtype.Text
	row := s.pool.QueryRow(ctx, `
		SELECT id, telegram_id, username, display_name, is_active, created_at, updated_at, password_hash
		FROM users WHERE username = $1`, username)

	var (
		id         pgtype.UUID
		telegramID pgtype.Int8
		uname      pgtype.Text
		display    string
		isActive   bool
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &telegramID, &uname, &display, &isActive, &createdAt, &updatedAt, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !isActive {
		return User{}, ErrInactiveUser
	}
	if !hash.Valid || bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return User{
		ID:          db.UUIDToString(id),
		TelegramID:  telegramID.Int64,
		Username:    uname.String,
		DisplayName: display,
		IsActive:    isActive,
		CreatedAt:   db.TimeFromPg(createdAt),
		UpdatedAt:   db.TimeFromPg(updatedAt),
	}, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("user pool not configured")
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id         pgtype.UUID
		telegramID pgtype.Int8
		username   pgtype.Text
		display    string
		isActive   bool
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &telegramID, &username, &display, &isActive, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	return User{
		ID:          db.UUIDToString(id),
		TelegramID:  telegramID.Int64,
		Username:    username.String,
		DisplayName: display,
		IsActive:    isActive,
		CreatedAt:   db.TimeFromPg(createdAt),
		UpdatedAt:   db.TimeFromPg(updatedAt),
	}, nil
}
