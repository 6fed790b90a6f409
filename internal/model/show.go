package model

import "time"

// Show statuses.  A show starts SCHEDULED, becomes ONGOING once its start
// time passes and COMPLETED after the configured show duration.  CANCELLED
// is only ever set by the catalog sync.
const (
	ShowScheduled = "SCHEDULED"
	ShowOngoing   = "ONGOING"
	ShowCompleted = "COMPLETED"
	ShowCancelled = "CANCELLED"
)

// Show represents one concert date of an artist at a venue.
//
// Fields:
//
//	ID            – primary key identifier.
//	ArtistID      – catalog artist reference.
//	VenueID       – catalog venue reference.
//	Title         – display title as imported by the catalog sync.
//	StartsAt      – when the show begins (UTC).
//	Status        – SCHEDULED, ONGOING, COMPLETED or CANCELLED.
//	ViewCount     – number of recorded page views.
//	TrendingScore – last score written by the trending calculator.
type Show struct {
	ID            uint64    `json:"id"`             // shows.id
	ArtistID      uint64    `json:"artist_id"`      // shows.artist_id
	VenueID       uint64    `json:"venue_id"`       // shows.venue_id
	Title         string    `json:"title"`          // shows.title
	StartsAt      time.Time `json:"starts_at"`      // shows.starts_at
	Status        string    `json:"status"`         // shows.status
	ViewCount     uint64    `json:"view_count"`     // shows.view_count
	TrendingScore int64     `json:"trending_score"` // shows.trending_score
	CreatedAt     time.Time `json:"-"`              // shows.created_at
	UpdatedAt     time.Time `json:"-"`              // shows.updated_at
}

// TrendingInput is the aggregate the trending calculator needs for one
// show: its start time, view count and the sum of all setlist song tallies.
type TrendingInput struct {
	ShowID     uint64
	StartsAt   time.Time
	ViewCount  uint64
	TotalVotes uint64
}
