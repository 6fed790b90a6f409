package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/setlist-vote/internal/model"
)

// LedgerTx is one vote admission transaction.  Every method runs inside the
// same database transaction; nothing is visible to other sessions until
// Commit.  Rollback after Commit is a no-op.
type LedgerTx interface {
	// LockUser takes the per-user admission lock.  It is held until the
	// transaction ends, so two admissions for the same user never overlap
	// while admissions for different users do not block each other.
	LockUser(ctx context.Context, userID string) error
	// SongInShow resolves a setlist song and checks that it belongs to the
	// show.  It returns the catalog song ID or ErrSetlistSongNotFound.
	SongInShow(ctx context.Context, setlistSongID, showID uint64) (uint64, error)
	HasVoted(ctx context.Context, userID string, setlistSongID uint64) (bool, error)
	CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error)
	// CountVotesBetween counts the user's votes with from <= created_at < to.
	CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	// InsertVote stores the vote and fills in its ID.  A unique-key
	// violation is reported as ErrDuplicateVote.
	InsertVote(ctx context.Context, v *model.Vote) error
	// IncrementTally adds one to the song's vote_count and returns the new
	// value.
	IncrementTally(ctx context.Context, setlistSongID uint64) (uint32, error)
	RecordAnalytics(ctx context.Context, a model.VoteAnalytics) error
	Commit() error
	Rollback() error
}

// VoteRepo stores votes and exposes the admission transaction.
type VoteRepo struct {
	db *sql.DB
}

// NewVoteRepo returns a new VoteRepo bound to db.
func NewVoteRepo(db *sql.DB) *VoteRepo { return &VoteRepo{db: db} }

// Begin opens an admission transaction at READ COMMITTED, so the quota
// counts taken after LockUser see every vote committed before the lock was
// granted.
func (r *VoteRepo) Begin(ctx context.Context) (LedgerTx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &ledgerTx{tx: tx}, nil
}

// CountShowVotes counts the user's votes for one show outside of any
// admission.
func (r *VoteRepo) CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error) {
	return countShowVotes(ctx, r.db, userID, showID)
}

// CountVotesBetween counts the user's votes cast in [from, to).
func (r *VoteRepo) CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return countVotesBetween(ctx, r.db, userID, from, to)
}

// VotedSongIDs returns the setlist songs of the show the user voted for,
// oldest vote first.
func (r *VoteRepo) VotedSongIDs(ctx context.Context, userID string, showID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT setlist_song_id FROM votes WHERE user_id = ? AND show_id = ? ORDER BY created_at, id`,
		userID, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Analytics returns the user's per-day counters for the show.
func (r *VoteRepo) Analytics(ctx context.Context, userID string, showID uint64) ([]model.VoteAnalytics, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, show_id, vote_day, votes FROM vote_analytics WHERE user_id = ? AND show_id = ? ORDER BY vote_day`,
		userID, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VoteAnalytics
	for rows.Next() {
		var a model.VoteAnalytics
		if err := rows.Scan(&a.UserID, &a.ShowID, &a.VoteDay, &a.Votes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func countShowVotes(ctx context.Context, q querier, userID string, showID uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE user_id = ? AND show_id = ?`, userID, showID).Scan(&n)
	return n, err
}

func countVotesBetween(ctx context.Context, q querier, userID string, from, to time.Time) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

type ledgerTx struct {
	tx *sql.Tx
}

func (l *ledgerTx) LockUser(ctx context.Context, userID string) error {
	// The upsert takes an exclusive row lock on the user's ledger row,
	// creating it on first use.
	_, err := l.tx.ExecContext(ctx,
		`INSERT INTO vote_ledger_locks (user_id, updated_at) VALUES (?, UTC_TIMESTAMP(3))
         ON DUPLICATE KEY UPDATE updated_at = UTC_TIMESTAMP(3)`, userID)
	return err
}

func (l *ledgerTx) SongInShow(ctx context.Context, setlistSongID, showID uint64) (uint64, error) {
	const q = `SELECT ss.song_id
               FROM setlist_songs ss
               JOIN setlists sl ON sl.id = ss.setlist_id
               WHERE ss.id = ? AND sl.show_id = ?`
	var songID uint64
	err := l.tx.QueryRowContext(ctx, q, setlistSongID, showID).Scan(&songID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSetlistSongNotFound
	}
	return songID, err
}

func (l *ledgerTx) HasVoted(ctx context.Context, userID string, setlistSongID uint64) (bool, error) {
	var one int
	err := l.tx.QueryRowContext(ctx,
		`SELECT 1 FROM votes WHERE user_id = ? AND setlist_song_id = ?`, userID, setlistSongID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (l *ledgerTx) CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error) {
	return countShowVotes(ctx, l.tx, userID, showID)
}

func (l *ledgerTx) CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	return countVotesBetween(ctx, l.tx, userID, from, to)
}

func (l *ledgerTx) InsertVote(ctx context.Context, v *model.Vote) error {
	res, err := l.tx.ExecContext(ctx,
		`INSERT INTO votes (user_id, setlist_song_id, show_id, created_at) VALUES (?, ?, ?, ?)`,
		v.UserID, v.SetlistSongID, v.ShowID, v.CreatedAt.UTC())
	if err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateVote
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

func (l *ledgerTx) IncrementTally(ctx context.Context, setlistSongID uint64) (uint32, error) {
	res, err := l.tx.ExecContext(ctx,
		`UPDATE setlist_songs SET vote_count = vote_count + 1 WHERE id = ?`, setlistSongID)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, ErrSetlistSongNotFound
	}
	// The row is locked by the update, so this read sees our own increment
	// and nobody else's.
	var count uint32
	err = l.tx.QueryRowContext(ctx, `SELECT vote_count FROM setlist_songs WHERE id = ?`, setlistSongID).Scan(&count)
	return count, err
}

func (l *ledgerTx) RecordAnalytics(ctx context.Context, a model.VoteAnalytics) error {
	_, err := l.tx.ExecContext(ctx,
		`INSERT INTO vote_analytics (user_id, show_id, vote_day, votes) VALUES (?, ?, ?, 1)
         ON DUPLICATE KEY UPDATE votes = votes + 1`,
		a.UserID, a.ShowID, a.VoteDay.Format("2006-01-02"))
	return err
}

func (l *ledgerTx) Commit() error { return l.tx.Commit() }

func (l *ledgerTx) Rollback() error {
	err := l.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
