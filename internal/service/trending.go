package service

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/setlist-vote/internal/model"
)

// Trending score weights.
const (
	viewWeight    = 0.3
	voteWeight    = 0.5
	recencyWeight = 0.2
)

// TrendingStore is the show persistence used by the calculator.
type TrendingStore interface {
	ListTrendingInputs(ctx context.Context, from, to time.Time) ([]model.TrendingInput, error)
	UpdateTrendingScore(ctx context.Context, showID uint64, score int64) error
}

// RunSummary reports the outcome of one recalculation batch.
type RunSummary struct {
	Processed  int   `json:"processed"`
	Updated    int   `json:"updated"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}

// DaysUntil returns the whole days from now until startsAt, rounded up and
// never less than one.
func DaysUntil(now, startsAt time.Time) int {
	d := startsAt.Sub(now)
	days := int(math.Ceil(d.Hours() / 24))
	return max(1, days)
}

// Score computes the trending score of a show from its view count, the sum
// of its setlist tallies and the days until it starts.  Shows closer to
// their start date receive a larger recency boost.
func Score(views, votes uint64, daysUntil int) int64 {
	daysUntil = max(1, daysUntil)
	recency := float64(max(1, 31-daysUntil)) / 30
	raw := viewWeight*float64(views) + voteWeight*float64(votes) + recencyWeight*recency*100
	return int64(math.Round(raw))
}

// TrendingService recalculates shows.trending_score for upcoming shows.
type TrendingService struct {
	store       TrendingStore
	log         logrus.FieldLogger
	window      time.Duration
	concurrency int
	now         func() time.Time
}

// NewTrendingService builds a TrendingService scoring shows that start
// within windowDays and writing at most concurrency scores in parallel.
func NewTrendingService(store TrendingStore, log logrus.FieldLogger, windowDays, concurrency int) *TrendingService {
	if windowDays <= 0 {
		windowDays = 30
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TrendingService{
		store:       store,
		log:         log,
		window:      time.Duration(windowDays) * 24 * time.Hour,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run scores every qualifying show once.  A failure to update one show is
// logged and counted; only a failure to load the candidates fails the run.
// Concurrent runs are safe: each write is an idempotent overwrite.
func (s *TrendingService) Run(ctx context.Context) (RunSummary, error) {
	started := time.Now()
	now := s.now()

	inputs, err := s.store.ListTrendingInputs(ctx, now, now.Add(s.window))
	if err != nil {
		return RunSummary{}, fmt.Errorf("load trending candidates: %w", err)
	}

	var processed, updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, in := range inputs {
		if !in.StartsAt.After(now) {
			continue
		}
		in := in
		processed.Add(1)
		g.Go(func() error {
			score := Score(in.ViewCount, in.TotalVotes, DaysUntil(now, in.StartsAt))
			if err := s.store.UpdateTrendingScore(gctx, in.ShowID, score); err != nil {
				failed.Add(1)
				s.log.WithError(err).WithFields(logrus.Fields{
					"show_id": in.ShowID,
					"score":   score,
				}).Warn("trending score update failed")
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	sum := RunSummary{
		Processed:  int(processed.Load()),
		Updated:    int(updated.Load()),
		Failed:     int(failed.Load()),
		DurationMs: time.Since(started).Milliseconds(),
	}
	s.log.WithFields(logrus.Fields{
		"processed":   sum.Processed,
		"updated":     sum.Updated,
		"failed":      sum.Failed,
		"duration_ms": sum.DurationMs,
	}).Info("trending recalculation finished")
	return sum, nil
}
