package repository

import (
	"context"
	"errors"
	"fmt"

	"order-settlement/internal/apperror"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate is dropped by the sqlite dialect, which locks the whole database instead.
var forUpdate = clause.Locking{Strength: "UPDATE"}

// IsLockTimeout reports whether err means the row lock could not be acquired in time.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_WAIT_TIMEOUT, ER_LOCK_DEADLOCK
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// translate maps storage errors onto the application taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NotFound(what + " not found")
	case IsLockTimeout(err):
		return apperror.Retry(err, "lock "+what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// createIfAbsent inserts value unless a row with the same unique key exists.
func createIfAbsent(ctx context.Context, tx *gorm.DB, value any) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(value)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
