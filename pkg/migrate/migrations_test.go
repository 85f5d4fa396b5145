package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-inventory/pkg/db"
	"github.com/angelmondragon/packfinderz-inventory/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func assertContainsAll(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestStockItemsMigrationContainsConstraints(t *testing.T) {
	assertContainsAll(t, readMigration(t, "create_stock_items"), []string{
		"CREATE TABLE IF NOT EXISTS stock_items",
		"item_id text PRIMARY KEY",
		"CHECK (on_hand >= 0)",
		"CHECK (held >= 0)",
		"CHECK (available >= 0)",
		"min_level integer NOT NULL DEFAULT 5",
		"max_level integer NOT NULL DEFAULT 1000",
		"reorder_point integer NOT NULL DEFAULT 10",
		"'discontinued'",
		"DROP TABLE IF EXISTS stock_items",
	})
}

func TestReservationsMigrationContainsConstraints(t *testing.T) {
	sql := readMigration(t, "create_reservations")
	assertContainsAll(t, sql, []string{
		"CREATE TABLE IF NOT EXISTS reservations",
		"CHECK (quantity > 0)",
		"idx_reservations_item_id ON reservations (item_id)",
		"WHERE status = 'pending'",
		"DROP TABLE IF EXISTS reservations",
	})
	require.NotContains(t, sql, "REFERENCES stock_items", "reservations must survive item deletion")
}

func TestOutboxMigrationContainsTables(t *testing.T) {
	assertContainsAll(t, readMigration(t, "create_outbox"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"ux_outbox_dlq_event_id",
		"idx_outbox_dlq_failed_at ON outbox_dlq (failed_at)",
		"DROP TABLE IF EXISTS outbox_events",
	})
}

func TestMigrationDirectoryIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_no_down.sql"), []byte("-- +goose Up\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Reservation Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_reservation_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestAutoMigrateModelsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, migrate.AutoMigrateModels(db.NewFromGorm(conn)))
	for _, table := range []string{"stock_items", "reservations", "outbox_events", "outbox_dlq"} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestValidateDirRejectsDuplicateVersionsAndOrder(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_b.sql"), body, 0o644))
	require.ErrorContains(t, migrate.ValidateDir(dir), "duplicate migration version")

	dir = t.TempDir()
	swapped := []byte("-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_swapped.sql"), swapped, 0o644))
	require.ErrorContains(t, migrate.ValidateDir(dir), "precedes")
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	_, err := migrate.CreateSQLMigration(t.TempDir(), "!!!")
	require.Error(t, err)
}
