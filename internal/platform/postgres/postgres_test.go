package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"tracecore/pkg/platform/sentinel"
)

func TestUpSection(t *testing.T) {
	sql := "-- +migrate Up\nCREATE TABLE a();\n-- +migrate Down\nDROP TABLE a;"
	assert.Equal(t, "\nCREATE TABLE a();\n", upSection(sql))
	assert.Equal(t, "SELECT 1", upSection("SELECT 1"))
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, TranslateError(nil))
	assert.ErrorIs(t, TranslateError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), sentinel.ErrNotFound)
	assert.ErrorIs(t, TranslateError(&pgconn.PgError{Code: "23505", ConstraintName: "entities_batch_key_key"}), sentinel.ErrConflict)
	assert.ErrorIs(t, TranslateError(&pgconn.PgError{Code: "23503", ConstraintName: "compliance_checks_rule_id_fkey"}), sentinel.ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, TranslateError(other))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	content, err := migrationFS.ReadFile("migrations/0001_init.sql")
	assert.NoError(t, err)
	assert.Contains(t, upSection(string(content)), "CREATE TABLE IF NOT EXISTS compliance_status")
}
