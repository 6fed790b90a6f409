package repository

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateKey(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'u1-7' for key 'uq_votes_user_song'"}

	assert.True(t, IsDuplicateKey(dup))
	assert.True(t, IsDuplicateKey(fmt.Errorf("insert vote: %w", dup)))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKey(sql.ErrNoRows))
	assert.False(t, IsDuplicateKey(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: 1205}))
	assert.True(t, IsRetryable(fmt.Errorf("lock user: %w", &mysql.MySQLError{Number: 1213})))
	assert.True(t, IsRetryable(fmt.Errorf("begin: %w", driver.ErrBadConn)))
	assert.True(t, IsRetryable(mysql.ErrInvalidConn))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'user_id'"}))
	assert.False(t, IsRetryable(errors.New("connection refused")))
}
