package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notifyhub/notification-relay/internal/db"
)

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/relay":   "pgx5://u:p@localhost:5432/relay",
		"postgresql://u:p@localhost:5432/relay": "pgx5://u:p@localhost:5432/relay",
		"pgx5://u:p@localhost:5432/relay":       "pgx5://u:p@localhost:5432/relay",
	}
	for in, want := range tests {
		assert.Equal(t, want, db.MigrationURL(in), in)
	}
}
