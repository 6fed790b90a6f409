package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/setlist-vote/internal/model"
)

// TrendingQuery defines filters & pagination for the trending listing.
type TrendingQuery struct {
	Title    string
	Page     int
	PageSize int
}

// ListTrending returns upcoming SCHEDULED shows ordered by trending score
// (then start time) together with the total number of matches.
func (r *ShowRepo) ListTrending(ctx context.Context, q TrendingQuery) ([]model.Show, int64, error) {
	where := []string{"status = ?", "starts_at >= UTC_TIMESTAMP()"}
	args := []any{model.ShowScheduled}

	if q.Title != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shows WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	offset := (q.Page - 1) * q.PageSize

	sqlq := "SELECT " + showColumns + " FROM shows WHERE " + cond +
		" ORDER BY trending_score DESC, starts_at ASC, id ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, sqlq, append(args, q.PageSize, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Show, 0, q.PageSize)
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}
