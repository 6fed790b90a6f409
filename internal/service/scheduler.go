package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunPeriodically calls job every interval until ctx is cancelled.  The
// first call happens immediately.  Errors are logged and the loop goes on.
func RunPeriodically(ctx context.Context, log logrus.FieldLogger, name string, interval time.Duration, job func(context.Context) error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).WithField("job", name).Error("periodic job failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
