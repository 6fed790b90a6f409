// Package service holds the business rules of setlist voting: vote
// admission against the per-show and daily quotas, trending score
// recalculation and the show lifecycle job.
package service

import "errors"

var (
	// ErrUnavailable means the ledger could not reach a decision (begin,
	// lock wait, deadlock, lost connection, commit or deadline failure).
	// Nothing was written; the caller may retry.
	ErrUnavailable = errors.New("vote ledger unavailable")
	// ErrStorage means a ledger statement failed in a way a retry will not
	// fix.  Nothing was written.
	ErrStorage = errors.New("vote ledger rejected the write")
	// ErrSongNotFound means the setlist song does not exist or belongs to a
	// different show.
	ErrSongNotFound = errors.New("setlist song not found for show")
	// ErrUnauthenticated is returned by read operations that need a user.
	ErrUnauthenticated = errors.New("unauthenticated")
)
