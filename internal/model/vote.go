package model

import "time"

// Vote is one user's endorsement of one setlist song.  (UserID,
// SetlistSongID) is unique in storage.
type Vote struct {
	ID            uint64    // votes.id
	UserID        string    // votes.user_id
	SetlistSongID uint64    // votes.setlist_song_id
	ShowID        uint64    // votes.show_id
	CreatedAt     time.Time // votes.created_at
}

// RejectReason is the machine-readable outcome of a refused vote.
type RejectReason string

const (
	RejectUnauthenticated   RejectReason = "UNAUTHENTICATED"
	RejectAlreadyVoted      RejectReason = "ALREADY_VOTED"
	RejectShowLimitReached  RejectReason = "SHOW_LIMIT_REACHED"
	RejectDailyLimitReached RejectReason = "DAILY_LIMIT_REACHED"
)

// VoteResult is returned for every admission attempt that reached a
// decision.  For rejections Reason is set, NewVoteCount is zero and the
// quota fields describe the state that caused the rejection.
type VoteResult struct {
	Accepted            bool         `json:"accepted"`
	Reason              RejectReason `json:"reason,omitempty"`
	SetlistSongID       uint64       `json:"setlist_song_id"`
	SongID              uint64       `json:"song_id,omitempty"`
	NewVoteCount        uint32       `json:"new_vote_count,omitempty"`
	ShowVotesUsed       int          `json:"show_votes_used"`
	ShowVotesRemaining  int          `json:"show_votes_remaining"`
	DailyVotesUsed      int          `json:"daily_votes_used"`
	DailyVotesRemaining int          `json:"daily_votes_remaining"`
}

// VoteStatus is the read-only quota view used to render vote buttons.
type VoteStatus struct {
	ShowVotesUsed       int      `json:"show_votes_used"`
	ShowVotesRemaining  int      `json:"show_votes_remaining"`
	DailyVotesUsed      int      `json:"daily_votes_used"`
	DailyVotesRemaining int      `json:"daily_votes_remaining"`
	VotedSetlistSongIDs []uint64 `json:"voted_setlist_song_ids"`
}

// VoteAnalytics mirrors one vote_analytics row: a per user, show and day
// counter refreshed in the same transaction as each vote.  It is a cache
// for reporting; quota enforcement never reads it.
type VoteAnalytics struct {
	UserID  string
	ShowID  uint64
	VoteDay time.Time
	Votes   uint32
}
