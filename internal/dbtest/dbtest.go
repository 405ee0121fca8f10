// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"
	"time"

	"order-settlement/internal/client"
	"order-settlement/internal/config"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// New returns a migrated in-memory SQLite database private to the test.
// The pool is limited to one connection so concurrent transactions serialize,
// which is what row locks give us on a real server.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := client.OpenDatabase(config.Database{
		Driver:          "sqlite",
		URL:             "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000",
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
