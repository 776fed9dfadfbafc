package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestEmbeddedDialectsShareVersions(t *testing.T) {
	pgFS, err := Migrations(goose.DialectPostgres)
	require.NoError(t, err)
	liteFS, err := Migrations(goose.DialectSQLite3)
	require.NoError(t, err)

	pg, err := validateFS(pgFS)
	require.NoError(t, err)
	lite, err := validateFS(liteFS)
	require.NoError(t, err)

	require.NotEmpty(t, pg)
	require.Equal(t, len(pg), len(lite))
	for version, name := range pg {
		require.Equal(t, name, lite[version], "sqlite migration for %s", version)
	}
}

func TestPostgresMigrationsDeclareConstraints(t *testing.T) {
	fsys, err := Migrations(goose.DialectPostgres)
	require.NoError(t, err)

	checks := map[string][]string{
		"20260301090000_create_cards.sql": {
			"CONSTRAINT cards_upstream_card_id_key UNIQUE (upstream_card_id)",
			"CONSTRAINT cards_pan_alias_key UNIQUE (pan_alias)",
			"DROP TABLE IF EXISTS cards",
		},
		"20260301090100_create_card_operations.sql": {
			"CONSTRAINT card_operations_idempotency_key_key UNIQUE (idempotency_key)",
			"REFERENCES cards(id) ON DELETE CASCADE",
			"DROP TABLE IF EXISTS card_operations",
		},
	}
	for file, subs := range checks {
		data, err := fs.ReadFile(fsys, file)
		require.NoError(t, err)
		for _, sub := range subs {
			require.Contains(t, string(data), sub, file)
		}
	}
}

func TestUpAppliesSQLiteMigrations(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_up?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	results, err := Up(ctx, sqlDB, "sqlite")
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, table := range []string{"cards", "card_operations", "webhook_events"} {
		var count int64
		require.NoError(t, conn.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count).Error)
		require.Equal(t, int64(1), count, table)
	}

	status, err := Run(ctx, sqlDB, "sqlite", "status")
	require.NoError(t, err)
	require.Contains(t, status, "create_webhook_events.sql")

	require.NoError(t, MigrateToVersion(ctx, sqlDB, "sqlite", "20260301090000"))
	var count int64
	require.NoError(t, conn.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'card_operations'").Scan(&count).Error)
	require.Zero(t, count)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("")
	require.NoError(t, err)
	require.Equal(t, goose.DialectPostgres, d)

	_, err = DialectFor("mysql")
	require.Error(t, err)
}

func TestCreateAndValidateDir(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Card Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_card_index.sql"), path)
	require.NoError(t, ValidateDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644))
	require.Error(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}
