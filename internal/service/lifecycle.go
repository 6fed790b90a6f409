package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// LifecycleStore advances show statuses.
type LifecycleStore interface {
	AdvanceStatuses(ctx context.Context, now time.Time, showDuration time.Duration) (started, completed int64, err error)
}

// StatusSummary reports how many shows changed status in one pass.
type StatusSummary struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
}

// LifecycleService moves shows from SCHEDULED to ONGOING once they start
// and from ONGOING to COMPLETED once showDuration has elapsed.
type LifecycleService struct {
	store        LifecycleStore
	log          logrus.FieldLogger
	showDuration time.Duration
	now          func() time.Time
}

// NewLifecycleService builds a LifecycleService.
func NewLifecycleService(store LifecycleStore, log logrus.FieldLogger, showDuration time.Duration) *LifecycleService {
	if showDuration <= 0 {
		showDuration = 6 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LifecycleService{store: store, log: log, showDuration: showDuration, now: time.Now}
}

// Advance runs one status pass.
func (s *LifecycleService) Advance(ctx context.Context) (StatusSummary, error) {
	started, completed, err := s.store.AdvanceStatuses(ctx, s.now(), s.showDuration)
	if err != nil {
		return StatusSummary{}, err
	}
	if started > 0 || completed > 0 {
		s.log.WithFields(logrus.Fields{"started": started, "completed": completed}).Info("show statuses advanced")
	}
	return StatusSummary{Started: started, Completed: completed}, nil
}
