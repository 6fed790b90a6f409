// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as services
// and handlers to distinguish between "not found", "already exists" and
// genuine storage failures without inspecting driver errors themselves.
package repository

import (
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrSongNotFound is returned when a catalog song does not exist.
var ErrSongNotFound = errors.New("song not found")

// ErrSetlistSongNotFound is returned when a setlist song does not exist or
// does not belong to the requested show.
var ErrSetlistSongNotFound = errors.New("setlist song not found")

// ErrDuplicateVote is returned by InsertVote when the (user, setlist song)
// unique key rejects the row.
var ErrDuplicateVote = errors.New("duplicate vote")

// ErrSongAlreadyListed is returned when a song is already part of a setlist.
var ErrSongAlreadyListed = errors.New("song already on setlist")

// MySQL server error numbers the repositories react to.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// IsDuplicateKey reports whether err is a MySQL unique-key violation.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// IsRetryable reports whether err is a lock wait timeout, a deadlock or a
// dropped connection, i.e. a failure the caller may safely retry.
func IsRetryable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock
}
