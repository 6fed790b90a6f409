// Package repository contains data access logic for the setlist voting
// domain.  This file covers shows: lookup, view counting, the trending
// score inputs and outputs, and the scheduled status transitions.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sql.ErrNoRows checks
	"time"         // time for window bounds

	"github.com/iliyamo/setlist-vote/internal/model"
)

// ShowRepo manages persistence for shows.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a new ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

const showColumns = `id, artist_id, venue_id, title, starts_at, status, view_count, trending_score, created_at, updated_at`

func scanShow(row interface{ Scan(...any) error }) (*model.Show, error) {
	var s model.Show
	if err := row.Scan(
		&s.ID, &s.ArtistID, &s.VenueID, &s.Title, &s.StartsAt, &s.Status,
		&s.ViewCount, &s.TrendingScore, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns the show with the given ID or ErrShowNotFound.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	s, err := scanShow(r.db.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	return s, err
}

// Create inserts a show and fills in the generated ID and DB defaults.
// It is used by seeding tools and integration tests; the public API has no
// show authoring endpoint.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	status := s.Status
	if status == "" {
		status = model.ShowScheduled
	}
	const q = `INSERT INTO shows (artist_id, venue_id, title, starts_at, status) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.ArtistID, s.VenueID, s.Title, s.StartsAt.UTC(), status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = *got
	return nil
}

// IncrementViewCount adds one page view to the show.  The update is
// relative so concurrent viewers never lose increments.
func (r *ShowRepo) IncrementViewCount(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE shows SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrShowNotFound
	}
	return nil
}

// ListTrendingInputs returns every SCHEDULED show starting in [from, to]
// together with its view count and the sum of its setlist song tallies.
// The sum is derived from setlist_songs.vote_count, so it always agrees
// with the counts voters see.
func (r *ShowRepo) ListTrendingInputs(ctx context.Context, from, to time.Time) ([]model.TrendingInput, error) {
	const q = `SELECT s.id, s.starts_at, s.view_count, COALESCE(SUM(ss.vote_count), 0)
               FROM shows s
               LEFT JOIN setlists sl ON sl.show_id = s.id
               LEFT JOIN setlist_songs ss ON ss.setlist_id = sl.id
               WHERE s.status = ? AND s.starts_at BETWEEN ? AND ?
               GROUP BY s.id, s.starts_at, s.view_count
               ORDER BY s.starts_at`
	rows, err := r.db.QueryContext(ctx, q, model.ShowScheduled, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TrendingInput
	for rows.Next() {
		var in model.TrendingInput
		if err := rows.Scan(&in.ShowID, &in.StartsAt, &in.ViewCount, &in.TotalVotes); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateTrendingScore stores the computed score for one show.  A show that
// vanished since it was listed yields ErrShowNotFound.
func (r *ShowRepo) UpdateTrendingScore(ctx context.Context, id uint64, score int64) error {
	// MySQL reports zero affected rows when the value is unchanged, so
	// existence is checked separately on that path.
	res, err := r.db.ExecContext(ctx, `UPDATE shows SET trending_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM shows WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrShowNotFound
	}
	return err
}

// AdvanceStatuses moves SCHEDULED shows whose start time has passed to
// ONGOING and ONGOING shows older than showDuration to COMPLETED.  It
// returns how many rows took each transition.
func (r *ShowRepo) AdvanceStatuses(ctx context.Context, now time.Time, showDuration time.Duration) (started, completed int64, err error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shows SET status = ? WHERE status = ? AND starts_at <= ?`,
		model.ShowOngoing, model.ShowScheduled, now.UTC())
	if err != nil {
		return 0, 0, err
	}
	if started, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}
	res, err = r.db.ExecContext(ctx,
		`UPDATE shows SET status = ? WHERE status = ? AND starts_at <= ?`,
		model.ShowCompleted, model.ShowOngoing, now.Add(-showDuration).UTC())
	if err != nil {
		return started, 0, err
	}
	completed, err = res.RowsAffected()
	return started, completed, err
}
