// Package queue defines realtime events exchanged over the message broker
// and the RabbitMQ publisher and consumer that carry them between
// instances.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the realtime exchange.
const (
	EventVoteDelta      = "vote.delta"
	EventPresenceJoined = "presence.joined"
	EventPresenceLeft   = "presence.left"
)

// Envelope wraps every realtime event.  Payload holds one of the payload
// types below, selected by Type.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ShowID     uint64          `json:"show_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// VoteDelta is the new tally of one setlist song after a committed vote.
type VoteDelta struct {
	SetlistSongID uint64 `json:"setlist_song_id"`
	SongID        uint64 `json:"song_id"`
	VoteCount     uint32 `json:"vote_count"`
}

// PresenceDelta reports a viewer joining or leaving a show page.
type PresenceDelta struct {
	UserID  string `json:"user_id"`
	Viewers int64  `json:"viewers"`
}

// NewEnvelope builds an envelope with a fresh ID.
func NewEnvelope(typ string, showID uint64, at time.Time, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       typ,
		ShowID:     showID,
		OccurredAt: at.UTC(),
		Payload:    body,
	}, nil
}

// Decode parses a broker message body.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" || env.ShowID == 0 {
		return Envelope{}, fmt.Errorf("envelope %q missing type or show id", env.ID)
	}
	return env, nil
}
