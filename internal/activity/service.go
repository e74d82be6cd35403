// Package activity persists an audit trail of routing and credential
// events. Callers treat writes as best-effort: a failed insert is logged
// and swallowed so it can never break message handling.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donnahq/donna/internal/db"
)

// Entry is one recorded activity row.
type Entry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"`
	Action    string         `json:"action"`
	Extra     map[string]any `json:"extra"`
	CreatedAt time.Time      `json:"created_at"`
}

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
		logger: log.With(slog.String("service", "activity")),
	}
}

// Log records one activity row. Errors are swallowed after logging; the
// router and handlers call this inline and must not fail on audit trouble.
func (s *Service) Log(ctx context.Context, userID, source, action string, extra map[string]any) {
	if s.pool == nil {
		return
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		extraJSON = []byte("{}")
	}

	var pgID pgtype.UUID
	if userID != "" {
		if parsed, err := db.ParseUUID(userID); err == nil {
			pgID = parsed
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO activity_logs (user_id, source, action, extra_data)
		VALUES ($1, $2, $3, $4)`,
		pgID, source, action, extraJSON,
	)
	if err != nil {
		s.logger.Warn("activity insert failed",
			slog.String("user_id", userID),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// Recent returns the newest entries for a user, capped at limit.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if s.pool == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, source, action, extra_data, created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, pgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var (
			id        pgtype.UUID
			uid       pgtype.UUID
			source    string
			action    string
			extraJSON []byte
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &uid, &source, &action, &extraJSON, &createdAt); err != nil {
			return nil, err
		}
		entry := Entry{
			ID:        db.UUIDToString(id),
			UserID:    db.UUIDToString(uid),
			Source:    source,
			Action:    action,
			CreatedAt: db.TimeFromPg(createdAt),
		}
		if len(extraJSON) > 0 {
			_ = json.Unmarshal(extraJSON, &entry.Extra)
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}
