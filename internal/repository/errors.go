// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to
// distinguish between different failure scenarios without depending on
// driver-specific error types.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write cannot be applied because of the
// current state of the row, such as a listing whose price changed between
// read and booking.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when an account with the same email exists.
var ErrEmailExists = errors.New("email already exists")

// ErrUnavailable wraps connectivity failures of the database.
var ErrUnavailable = errors.New("store unavailable")

const mysqlDuplicateEntry = 1062

// classify converts driver errors into the sentinels above. Errors that are
// already sentinels, or that are not recognised, are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
