package realtime

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Tracker combines the presence store with event publication.  Presence
// events are best-effort: a failed publish is logged and the store change
// stands.
type Tracker struct {
	store    *PresenceStore
	notifier *Notifier
	log      logrus.FieldLogger
}

// NewTracker returns a Tracker.
func NewTracker(store *PresenceStore, notifier *Notifier, log logrus.FieldLogger) *Tracker {
	return &Tracker{store: store, notifier: notifier, log: log}
}

// Touch joins the viewer or refreshes an existing entry.  A "joined" event
// is emitted when the viewer was absent or had expired.
func (t *Tracker) Touch(ctx context.Context, showID uint64, userID string) error {
	joined, err := t.store.Touch(ctx, showID, userID)
	if err != nil {
		return err
	}
	if joined {
		t.emit(ctx, showID, userID, true)
	}
	return nil
}

// Leave removes the viewer and emits "left" when an entry was removed.
func (t *Tracker) Leave(ctx context.Context, showID uint64, userID string) error {
	left, err := t.store.Leave(ctx, showID, userID)
	if err != nil {
		return err
	}
	if left {
		t.emit(ctx, showID, userID, false)
	}
	return nil
}

// Viewers returns the show's current viewers.
func (t *Tracker) Viewers(ctx context.Context, showID uint64) ([]string, error) {
	return t.store.Viewers(ctx, showID)
}

// Sweep expires stale viewers and emits "left" for each.  It returns the
// number removed.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	expired, err := t.store.Sweep(ctx)
	for _, e := range expired {
		t.emit(ctx, e.ShowID, e.UserID, false)
	}
	if len(expired) > 0 {
		t.log.WithField("expired", len(expired)).Debug("presence swept")
	}
	return len(expired), err
}

// LastConnectionClosed is the Hub's LeaveFunc.
func (t *Tracker) LastConnectionClosed(showID uint64, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.Leave(ctx, showID, userID); err != nil {
		t.log.WithError(err).WithField("show_id", showID).Warn("presence leave failed")
	}
}

func (t *Tracker) emit(ctx context.Context, showID uint64, userID string, joined bool) {
	viewers, err := t.store.Count(ctx, showID)
	if err != nil {
		t.log.WithError(err).WithField("show_id", showID).Warn("presence count failed")
	}
	if err := t.notifier.PresenceChanged(ctx, showID, userID, joined, viewers); err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"show_id": showID,
			"joined":  joined,
		}).Warn("presence event dropped")
	}
}
