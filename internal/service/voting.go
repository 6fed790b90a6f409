package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/setlist-vote/internal/model"
	"github.com/iliyamo/setlist-vote/internal/repository"
)

// VoteStore is the persistence the admission controller needs.
// *repository.VoteRepo satisfies it.
type VoteStore interface {
	Begin(ctx context.Context) (repository.LedgerTx, error)
	CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error)
	CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	VotedSongIDs(ctx context.Context, userID string, showID uint64) ([]uint64, error)
}

// VoteCast describes a committed vote for realtime subscribers.
type VoteCast struct {
	ShowID        uint64
	SetlistSongID uint64
	SongID        uint64
	VoteCount     uint32
	At            time.Time
}

// VoteNotifier delivers committed votes to realtime subscribers.  It is
// called after commit and its outcome never affects the vote.
type VoteNotifier interface {
	VoteCast(ctx context.Context, ev VoteCast) error
}

// VoteConfig carries the admission limits.  Zero values fall back to the
// defaults used in production.
type VoteConfig struct {
	ShowCap       int
	DailyCap      int
	TxTimeout     time.Duration
	NotifyTimeout time.Duration
	DayZone       *time.Location
	Now           func() time.Time
}

// VoteService admits votes.  Every admission runs in one ledger
// transaction that serialises on the voter, so the per-show and daily caps
// hold under any interleaving of requests.
type VoteService struct {
	store    VoteStore
	notifier VoteNotifier
	log      logrus.FieldLogger
	cfg      VoteConfig
}

// NewVoteService builds a VoteService.  notifier may be nil.
func NewVoteService(store VoteStore, notifier VoteNotifier, log logrus.FieldLogger, cfg VoteConfig) *VoteService {
	if cfg.ShowCap <= 0 {
		cfg.ShowCap = 10
	}
	if cfg.DailyCap <= 0 {
		cfg.DailyCap = 50
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 3 * time.Second
	}
	if cfg.DayZone == nil {
		cfg.DayZone = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VoteService{store: store, notifier: notifier, log: log, cfg: cfg}
}

// dayBounds returns the start and end of the calendar day containing t in
// the configured zone.
func (s *VoteService) dayBounds(t time.Time) (time.Time, time.Time) {
	lt := t.In(s.cfg.DayZone)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.cfg.DayZone)
	return start, start.AddDate(0, 0, 1)
}

// CastVote admits or rejects one vote.  Rejections are returned as a
// VoteResult with Accepted=false and a nil error.  ErrSongNotFound reports
// bad input, ErrUnavailable a transient infrastructure failure and
// ErrStorage a permanent one; in every case nothing was written.
func (s *VoteService) CastVote(ctx context.Context, userID string, showID, setlistSongID uint64) (model.VoteResult, error) {
	res := model.VoteResult{SetlistSongID: setlistSongID}
	if userID == "" {
		res.Reason = model.RejectUnauthenticated
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: begin: %w", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.LockUser(ctx, userID); err != nil {
		return res, ledgerFailure("lock user", err)
	}

	songID, err := tx.SongInShow(ctx, setlistSongID, showID)
	if errors.Is(err, repository.ErrSetlistSongNotFound) {
		return res, ErrSongNotFound
	}
	if err != nil {
		return res, ledgerFailure("resolve song", err)
	}
	res.SongID = songID

	now := s.cfg.Now()
	dayStart, dayEnd := s.dayBounds(now)

	showUsed, err := tx.CountShowVotes(ctx, userID, showID)
	if err != nil {
		return res, ledgerFailure("count show votes", err)
	}
	dailyUsed, err := tx.CountVotesBetween(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return res, ledgerFailure("count daily votes", err)
	}
	s.fillQuota(&res, showUsed, dailyUsed)

	voted, err := tx.HasVoted(ctx, userID, setlistSongID)
	if err != nil {
		return res, ledgerFailure("check vote", err)
	}
	switch {
	case voted:
		res.Reason = model.RejectAlreadyVoted
		return res, nil
	case showUsed >= s.cfg.ShowCap:
		res.Reason = model.RejectShowLimitReached
		return res, nil
	case dailyUsed >= s.cfg.DailyCap:
		res.Reason = model.RejectDailyLimitReached
		return res, nil
	}

	vote := &model.Vote{UserID: userID, SetlistSongID: setlistSongID, ShowID: showID, CreatedAt: now}
	if err := tx.InsertVote(ctx, vote); err != nil {
		if errors.Is(err, repository.ErrDuplicateVote) {
			res.Reason = model.RejectAlreadyVoted
			return res, nil
		}
		return res, ledgerFailure("insert vote", err)
	}
	count, err := tx.IncrementTally(ctx, setlistSongID)
	if err != nil {
		return res, ledgerFailure("increment tally", err)
	}
	if err := tx.RecordAnalytics(ctx, model.VoteAnalytics{
		UserID: userID, ShowID: showID, VoteDay: dayStart, Votes: 1,
	}); err != nil {
		return res, ledgerFailure("record analytics", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}

	res.Accepted = true
	res.NewVoteCount = count
	s.fillQuota(&res, showUsed+1, dailyUsed+1)

	s.notify(VoteCast{
		ShowID:        showID,
		SetlistSongID: setlistSongID,
		SongID:        songID,
		VoteCount:     count,
		At:            now,
	})
	return res, nil
}

// ledgerFailure classifies an error raised inside the admission
// transaction.  Lock conflicts, lost connections and an expired deadline
// are transient and wrap ErrUnavailable; anything else wraps ErrStorage.
func ledgerFailure(op string, err error) error {
	if repository.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func (s *VoteService) fillQuota(res *model.VoteResult, showUsed, dailyUsed int) {
	res.ShowVotesUsed = showUsed
	res.ShowVotesRemaining = max(0, s.cfg.ShowCap-showUsed)
	res.DailyVotesUsed = dailyUsed
	res.DailyVotesRemaining = max(0, s.cfg.DailyCap-dailyUsed)
}

// notify hands the event to the notifier on a detached goroutine.
func (s *VoteService) notify(ev VoteCast) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("panic", r).Error("vote notifier panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.NotifyTimeout)
		defer cancel()
		if err := s.notifier.VoteCast(ctx, ev); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"show_id":         ev.ShowID,
				"setlist_song_id": ev.SetlistSongID,
			}).Warn("vote notification dropped")
		}
	}()
}

// Status returns the user's quota usage for the show and the songs already
// voted for.  Counts are read live, so they agree with what CastVote would
// enforce at that instant.
func (s *VoteService) Status(ctx context.Context, userID string, showID uint64) (model.VoteStatus, error) {
	if userID == "" {
		return model.VoteStatus{}, ErrUnauthenticated
	}
	dayStart, dayEnd := s.dayBounds(s.cfg.Now())

	showUsed, err := s.store.CountShowVotes(ctx, userID, showID)
	if err != nil {
		return model.VoteStatus{}, fmt.Errorf("count show votes: %w", err)
	}
	dailyUsed, err := s.store.CountVotesBetween(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return model.VoteStatus{}, fmt.Errorf("count daily votes: %w", err)
	}
	ids, err := s.store.VotedSongIDs(ctx, userID, showID)
	if err != nil {
		return model.VoteStatus{}, fmt.Errorf("voted songs: %w", err)
	}
	return model.VoteStatus{
		ShowVotesUsed:       showUsed,
		ShowVotesRemaining:  max(0, s.cfg.ShowCap-showUsed),
		DailyVotesUsed:      dailyUsed,
		DailyVotesRemaining: max(0, s.cfg.DailyCap-dailyUsed),
		VotedSetlistSongIDs: ids,
	}, nil
}
