package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/setlist-vote/internal/model"
)

// SetlistRepo reads and extends the setlists of shows.  Vote tallies live
// on setlist_songs.vote_count and are only ever changed by the vote ledger.
type SetlistRepo struct {
	db *sql.DB
}

// NewSetlistRepo returns a new SetlistRepo bound to db.
func NewSetlistRepo(db *sql.DB) *SetlistRepo { return &SetlistRepo{db: db} }

// ListSongs returns every song on the show's setlists ranked by tally, ties
// broken by setlist kind and position.  An unknown show yields
// ErrShowNotFound; a show without a setlist yields an empty slice.
func (r *SetlistRepo) ListSongs(ctx context.Context, showID uint64) ([]model.SetlistSong, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM shows WHERE id = ?`, showID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	if err != nil {
		return nil, err
	}
	const q = `SELECT ss.id, ss.setlist_id, sl.kind, ss.song_id, so.title, ss.position, ss.vote_count
               FROM setlist_songs ss
               JOIN setlists sl ON sl.id = ss.setlist_id
               JOIN songs so ON so.id = ss.song_id
               WHERE sl.show_id = ?
               ORDER BY ss.vote_count DESC, sl.kind ASC, ss.position ASC, ss.id ASC`
	rows, err := r.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SetlistSong{}
	for rows.Next() {
		var s model.SetlistSong
		if err := rows.Scan(&s.ID, &s.SetlistID, &s.Kind, &s.SongID, &s.Title, &s.Position, &s.VoteCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EnsureSetlistTx returns the ID of the show's setlist of the given kind,
// creating it when missing.  INSERT IGNORE makes concurrent callers
// converge on the single row allowed by uq_setlists_show_kind.
func (r *SetlistRepo) EnsureSetlistTx(ctx context.Context, tx *sql.Tx, showID uint64, kind string) (uint64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO setlists (show_id, kind) VALUES (?, ?)`, showID, kind); err != nil {
		return 0, err
	}
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM setlists WHERE show_id = ? AND kind = ? FOR UPDATE`, showID, kind).Scan(&id)
	return id, err
}

// AddSong appends a catalog song to the show's setlist of the given kind.
// The new entry starts with zero votes and takes the next free position.
// It returns ErrShowNotFound, ErrSongNotFound or ErrSongAlreadyListed for
// the respective conflicts.
func (r *SetlistRepo) AddSong(ctx context.Context, showID, songID uint64, kind string) (*model.SetlistSong, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM shows WHERE id = ?`, showID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	var title string
	if err := tx.QueryRowContext(ctx, `SELECT title FROM songs WHERE id = ?`, songID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSongNotFound
		}
		return nil, err
	}

	// The FOR UPDATE on the setlist row serialises position allocation.
	setlistID, err := r.EnsureSetlistTx(ctx, tx, showID, kind)
	if err != nil {
		return nil, err
	}
	var pos uint32
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM setlist_songs WHERE setlist_id = ?`, setlistID,
	).Scan(&pos); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO setlist_songs (setlist_id, song_id, position) VALUES (?, ?, ?)`,
		setlistID, songID, pos)
	if err != nil {
		if IsDuplicateKey(err) {
			return nil, ErrSongAlreadyListed
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &model.SetlistSong{
		ID:        uint64(id),
		SetlistID: setlistID,
		Kind:      kind,
		SongID:    songID,
		Title:     title,
		Position:  pos,
	}, nil
}

// CreateSong inserts a catalog song.  The catalog is normally synced from
// an external source; this is used by seeding and tests.
func (r *SetlistRepo) CreateSong(ctx context.Context, artistID uint64, title string) (uint64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO songs (artist_id, title) VALUES (?, ?)`, artistID, title)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}
