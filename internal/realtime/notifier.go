package realtime

import (
	"context"
	"time"

	"github.com/iliyamo/setlist-vote/internal/queue"
	"github.com/iliyamo/setlist-vote/internal/service"
)

// EventPublisher sends an envelope towards every instance's hub.
// *queue.Publisher does so through the broker; *Hub stands in when no
// broker is configured.
type EventPublisher interface {
	Publish(ctx context.Context, env queue.Envelope) error
}

// Notifier turns domain changes into realtime envelopes.
type Notifier struct {
	pub EventPublisher
	now func() time.Time
}

// NewNotifier returns a Notifier publishing through pub.
func NewNotifier(pub EventPublisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

// VoteCast publishes the new tally of a voted song.
func (n *Notifier) VoteCast(ctx context.Context, ev service.VoteCast) error {
	env, err := queue.NewEnvelope(queue.EventVoteDelta, ev.ShowID, ev.At, queue.VoteDelta{
		SetlistSongID: ev.SetlistSongID,
		SongID:        ev.SongID,
		VoteCount:     ev.VoteCount,
	})
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, env)
}

// PresenceChanged publishes a joined or left event with the viewer count
// after the change.
func (n *Notifier) PresenceChanged(ctx context.Context, showID uint64, userID string, joined bool, viewers int64) error {
	typ := queue.EventPresenceLeft
	if joined {
		typ = queue.EventPresenceJoined
	}
	env, err := queue.NewEnvelope(typ, showID, n.now(), queue.PresenceDelta{UserID: userID, Viewers: viewers})
	if err != nil {
		return err
	}
	return n.pub.Publish(ctx, env)
}
