package tokenstore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donnahq/donna/internal/db"
	"github.com/donnahq/donna/internal/tokenstore"
)

type storeFixture struct {
	pool    *pgxpool.Pool
	store   *tokenstore.Store
	userID  string
	cleanup func()
}

func setupStoreIntegrationTest(t *testing.T) storeFixture {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}

	box, err := tokenstore.NewSecretBox(bytes.Repeat([]byte{0x24}, 32))
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := tokenstore.NewStore(logger, pool, box)

	var pgID pgtype.UUID
	row := pool.QueryRow(ctx, `INSERT INTO users (display_name) VALUES ('token store test') RETURNING id`)
	if err := row.Scan(&pgID); err != nil {
		pool.Close()
		t.Fatalf("create test user: %v", err)
	}
	userID := db.UUIDToString(pgID)

	return storeFixture{
		pool:   pool,
		store:  store,
		userID: userID,
		cleanup: func() {
			_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, pgID)
			pool.Close()
		},
	}
}

func TestStorePutOverwritesAndMergesExtraData(t *testing.T) {
	f := setupStoreIntegrationTest(t)
	defer f.cleanup()
	ctx := context.Background()

	first, err := f.store.Put(ctx, f.userID, "gmail", tokenstore.PutParams{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		ExtraData:    map[string]any{"scope": "mail.read", "kept": "yes"},
	})
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}

	second, err := f.store.Put(ctx, f.userID, "gmail", tokenstore.PutParams{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC),
		ExtraData:    map[string]any{"scope": "mail.send"},
	})
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %s != %s", second.ID, first.ID)
	}

	got, err := f.store.Get(ctx, f.userID, "gmail")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want access-2", got.AccessToken)
	}
	if got.RefreshToken != "refresh-2" {
		t.Errorf("RefreshToken = %q, want refresh-2", got.RefreshToken)
	}
	if !got.ExpiresAt.Equal(time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ExpiresAt = %v, want second expiry", got.ExpiresAt)
	}
	if got.ExtraData["scope"] != "mail.send" {
		t.Errorf("ExtraData[scope] = %v, want mail.send", got.ExtraData["scope"])
	}
	if got.ExtraData["kept"] != "yes" {
		t.Errorf("ExtraData[kept] = %v, want merged original key", got.ExtraData["kept"])
	}
}

func TestStorePutKeepsRefreshTokenOnEmptyInput(t *testing.T) {
	f := setupStoreIntegrationTest(t)
	defer f.cleanup()
	ctx := context.Background()

	if _, err := f.store.Put(ctx, f.userID, "google_calendar", tokenstore.PutParams{
		AccessToken:  "access-1",
		RefreshToken: "refresh-original",
	}); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	updated, err := f.store.Put(ctx, f.userID, "google_calendar", tokenstore.PutParams{
		AccessToken: "access-2",
	})
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if updated.RefreshToken != "refresh-original" {
		t.Errorf("RefreshToken = %q, want the original kept", updated.RefreshToken)
	}

	got, err := f.store.Get(ctx, f.userID, "google_calendar")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "access-2" || got.RefreshToken != "refresh-original" {
		t.Errorf("Get = (%q, %q), want (access-2, refresh-original)", got.AccessToken, got.RefreshToken)
	}
}

func TestStoreGetAfterKeyRotationIsErrDecrypt(t *testing.T) {
	f := setupStoreIntegrationTest(t)
	defer f.cleanup()
	ctx := context.Background()

	if _, err := f.store.Put(ctx, f.userID, "ticktick", tokenstore.PutParams{
		AccessToken: "access-1",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rotated, err := tokenstore.NewSecretBox(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewSecretBox: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	rotatedStore := tokenstore.NewStore(logger, f.pool, rotated)

	if _, err := rotatedStore.Get(ctx, f.userID, "ticktick"); !errors.Is(err, tokenstore.ErrDecrypt) {
		t.Fatalf("Get with rotated key = %v, want ErrDecrypt", err)
	}
}

func TestStoreDeleteThenGetIsErrNotFound(t *testing.T) {
	f := setupStoreIntegrationTest(t)
	defer f.cleanup()
	ctx := context.Background()

	if _, err := f.store.Put(ctx, f.userID, "gmail", tokenstore.PutParams{AccessToken: "access-1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := f.store.Delete(ctx, f.userID, "gmail"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.Get(ctx, f.userID, "gmail"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := f.store.Delete(ctx, f.userID, "gmail"); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
}
