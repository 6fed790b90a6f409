package model

import "time"

// Setlist kinds.  A show has at most one setlist of each kind.
const (
	SetlistMain   = "MAIN"
	SetlistEncore = "ENCORE"
)

// Setlist is the song list of one show that fans vote on.
type Setlist struct {
	ID        uint64    `json:"id"`      // setlists.id
	ShowID    uint64    `json:"show_id"` // setlists.show_id
	Kind      string    `json:"kind"`    // setlists.kind
	CreatedAt time.Time `json:"-"`       // setlists.created_at
}

// SetlistSong joins a song to a setlist and carries the authoritative tally.
// Position is the display order the song was added in; ranking always comes
// from VoteCount.
type SetlistSong struct {
	ID        uint64 `json:"id"`         // setlist_songs.id
	SetlistID uint64 `json:"setlist_id"` // setlist_songs.setlist_id
	Kind      string `json:"kind"`       // setlists.kind of the owning setlist
	SongID    uint64 `json:"song_id"`    // setlist_songs.song_id
	Title     string `json:"title"`      // songs.title
	Position  uint32 `json:"position"`   // setlist_songs.position
	VoteCount uint32 `json:"vote_count"` // setlist_songs.vote_count
}
