// Package tokenstore persists per-user OAuth credentials with secrets
// encrypted at rest. It is the only component allowed to touch token columns.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donnahq/donna/internal/db"
)

// Store reads and writes Credential rows, sealing token fields via SecretBox.
type Store struct {
	pool   *pgxpool.Pool
	box    *SecretBox
	logger *slog.Logger
}

// NewStore creates a credential store backed by the given pool and cipher.
func NewStore(log *slog.Logger, pool *pgxpool.Pool, box *SecretBox) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		box:    box,
		logger: log.With(slog.String("service", "tokenstore")),
	}
}

const credentialColumns = `id, user_id, service_name, access_token, refresh_token, expires_at, extra_data, created_at, updated_at`

// Get returns the credential for (userID, service), or ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, service string) (Credential, error) {
	if s.pool == nil {
		return Credential{}, fmt.Errorf("token store not configured")
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return Credential{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = $1 AND service_name = $2`,
		pgUserID, normalizeService(service),
	)
	cred, err := s.scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, err
	}
	return cred, nil
}

// Put upserts the credential for (userID, service). Token fields are replaced;
// extra_data is merged into whatever is already stored.
func (s *Store) Put(ctx context.Context, userID, service string, params PutParams) (Credential, error) {
	if s.pool == nil {
		return Credential{}, fmt.Errorf("token store not configured")
	}
	if strings.TrimSpace(params.AccessToken) == "" {
		return Credential{}, fmt.Errorf("access token is required")
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return Credential{}, err
	}
	sealedAccess, err := s.box.Seal(params.AccessToken)
	if err != nil {
		return Credential{}, fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := s.box.Seal(params.RefreshToken)
	if err != nil {
		return Credential{}, fmt.Errorf("seal refresh token: %w", err)
	}
	extra, err := json.Marshal(nonNilMap(params.ExtraData))
	if err != nil {
		return Credential{}, fmt.Errorf("marshal extra data: %w", err)
	}

	refreshValue := pgtype.Text{String: sealedRefresh, Valid: sealedRefresh != ""}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO credentials (user_id, service_name, access_token, refresh_token, expires_at, extra_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, service_name) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, credentials.refresh_token),
			expires_at = EXCLUDED.expires_at,
			extra_data = credentials.extra_data || EXCLUDED.extra_data,
			updated_at = now()
		RETURNING `+credentialColumns,
		pgUserID, normalizeService(service), sealedAccess, refreshValue, db.TimeToPg(params.ExpiresAt), extra,
	)
	cred, err := s.scanCredential(row)
	if err != nil {
		return Credential{}, fmt.Errorf("upsert credential: %w", err)
	}
	return cred, nil
}

// Delete removes the credential for (userID, service), or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, userID, service string) error {
	if s.pool == nil {
		return fmt.Errorf("token store not configured")
	}
	pgUserID, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM credentials WHERE user_id = $1 AND service_name = $2`,
		pgUserID, normalizeService(service),
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanCredential(row pgx.Row) (Credential, error) {
	var (
		id        pgtype.UUID
		userID    pgtype.UUID
		service   string
		access    string
		refresh   pgtype.Text
		expiresAt pgtype.Timestamptz
		extra     []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &service, &access, &refresh, &expiresAt, &extra, &createdAt, &updatedAt); err != nil {
		return Credential{}, err
	}

	accessToken, err := s.box.Open(access)
	if err != nil {
		return Credential{}, err
	}
	refreshToken, err := s.box.Open(db.TextToString(refresh))
	if err != nil {
		return Credential{}, err
	}

	extraData := map[string]any{}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &extraData); err != nil {
			s.logger.Warn("malformed extra data", slog.String("credential_id", db.UUIDToString(id)), slog.Any("error", err))
			extraData = map[string]any{}
		}
	}

	return Credential{
		ID:           db.UUIDToString(id),
		UserID:       db.UUIDToString(userID),
		Service:      service,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    db.TimeFromPg(expiresAt),
		ExtraData:    extraData,
		CreatedAt:    db.TimeFromPg(createdAt),
		UpdatedAt:    db.TimeFromPg(updatedAt),
	}, nil
}

func normalizeService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
