package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/setlist-vote/internal/model"
	"github.com/iliyamo/setlist-vote/internal/repository"
)

type fakeSong struct {
	showID uint64
	songID uint64
	count  uint32
}

// fakeVoteStore is an in-memory ledger with the same discipline as the MySQL
// one: a per-user lock held until the transaction ends, a unique
// (user, setlist song) pair and relative tally increments.
type fakeVoteStore struct {
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	songs     map[uint64]*fakeSong
	votes     []model.Vote
	analytics map[string]uint32
	nextID    uint64

	beginErr  error
	commitErr error
	lockErr   error
}

func newFakeVoteStore() *fakeVoteStore {
	return &fakeVoteStore{
		userLocks: map[string]*sync.Mutex{},
		songs:     map[uint64]*fakeSong{},
		analytics: map[string]uint32{},
	}
}

func (s *fakeVoteStore) addSong(setlistSongID, showID, songID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.songs[setlistSongID] = &fakeSong{showID: showID, songID: songID}
}

// seedVote records a committed vote directly, bypassing admission.
func (s *fakeVoteStore) seedVote(userID string, showID, setlistSongID uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.songs[setlistSongID]; !ok {
		s.songs[setlistSongID] = &fakeSong{showID: showID, songID: setlistSongID + 1000}
	}
	s.songs[setlistSongID].count++
	s.nextID++
	s.votes = append(s.votes, model.Vote{ID: s.nextID, UserID: userID, ShowID: showID, SetlistSongID: setlistSongID, CreatedAt: at})
}

func (s *fakeVoteStore) tally(setlistSongID uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if song, ok := s.songs[setlistSongID]; ok {
		return song.count
	}
	return 0
}

func (s *fakeVoteStore) voteCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.votes {
		if v.UserID == userID {
			n++
		}
	}
	return n
}

func (s *fakeVoteStore) Begin(ctx context.Context) (repository.LedgerTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{store: s, increments: map[uint64]uint32{}}, nil
}

func (s *fakeVoteStore) CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countShowLocked(userID, showID, nil), nil
}

func (s *fakeVoteStore) CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countBetweenLocked(userID, from, to, nil), nil
}

func (s *fakeVoteStore) VotedSongIDs(ctx context.Context, userID string, showID uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []uint64{}
	for _, v := range s.votes {
		if v.UserID == userID && v.ShowID == showID {
			ids = append(ids, v.SetlistSongID)
		}
	}
	return ids, nil
}

func (s *fakeVoteStore) countShowLocked(userID string, showID uint64, pending []model.Vote) int {
	n := 0
	for _, v := range append(append([]model.Vote{}, s.votes...), pending...) {
		if v.UserID == userID && v.ShowID == showID {
			n++
		}
	}
	return n
}

func (s *fakeVoteStore) countBetweenLocked(userID string, from, to time.Time, pending []model.Vote) int {
	n := 0
	for _, v := range append(append([]model.Vote{}, s.votes...), pending...) {
		if v.UserID == userID && !v.CreatedAt.Before(from) && v.CreatedAt.Before(to) {
			n++
		}
	}
	return n
}

type fakeTx struct {
	store      *fakeVoteStore
	userLock   *sync.Mutex
	pending    []model.Vote
	increments map[uint64]uint32
	analytics  []model.VoteAnalytics
	done       bool
}

func (t *fakeTx) LockUser(ctx context.Context, userID string) error {
	if t.store.lockErr != nil {
		return t.store.lockErr
	}
	t.store.mu.Lock()
	l, ok := t.store.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		t.store.userLocks[userID] = l
	}
	t.store.mu.Unlock()
	l.Lock()
	t.userLock = l
	return nil
}

func (t *fakeTx) SongInShow(ctx context.Context, setlistSongID, showID uint64) (uint64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	song, ok := t.store.songs[setlistSongID]
	if !ok || song.showID != showID {
		return 0, repository.ErrSetlistSongNotFound
	}
	return song.songID, nil
}

func (t *fakeTx) HasVoted(ctx context.Context, userID string, setlistSongID uint64) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, v := range append(append([]model.Vote{}, t.store.votes...), t.pending...) {
		if v.UserID == userID && v.SetlistSongID == setlistSongID {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) CountShowVotes(ctx context.Context, userID string, showID uint64) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.countShowLocked(userID, showID, t.pending), nil
}

func (t *fakeTx) CountVotesBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.countBetweenLocked(userID, from, to, t.pending), nil
}

func (t *fakeTx) InsertVote(ctx context.Context, v *model.Vote) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range append(append([]model.Vote{}, t.store.votes...), t.pending...) {
		if e.UserID == v.UserID && e.SetlistSongID == v.SetlistSongID {
			return repository.ErrDuplicateVote
		}
	}
	t.store.nextID++
	v.ID = t.store.nextID
	t.pending = append(t.pending, *v)
	return nil
}

func (t *fakeTx) IncrementTally(ctx context.Context, setlistSongID uint64) (uint32, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	song, ok := t.store.songs[setlistSongID]
	if !ok {
		return 0, repository.ErrSetlistSongNotFound
	}
	song.count++
	t.increments[setlistSongID]++
	return song.count, nil
}

func (t *fakeTx) RecordAnalytics(ctx context.Context, a model.VoteAnalytics) error {
	t.analytics = append(t.analytics, a)
	return nil
}

func (t *fakeTx) Commit() error {
	if t.done {
		return nil
	}
	if t.store.commitErr != nil {
		_ = t.Rollback()
		return t.store.commitErr
	}
	t.store.mu.Lock()
	t.store.votes = append(t.store.votes, t.pending...)
	for _, a := range t.analytics {
		t.store.analytics[a.UserID+"/"+a.VoteDay.Format("2006-01-02")]++
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	for id, n := range t.increments {
		t.store.songs[id].count -= n
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *fakeTx) finish() {
	t.done = true
	if t.userLock != nil {
		t.userLock.Unlock()
	}
}
