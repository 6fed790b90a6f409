package realtime

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/setlist-vote/internal/queue"
	"github.com/iliyamo/setlist-vote/internal/service"
)

func startHub(t *testing.T, onLeave LeaveFunc) *Hub {
	t.Helper()
	h := NewHub(quietLogger(), onLeave)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func fakeClient(h *Hub, showID uint64, userID string, buf int) *Client {
	return &Client{hub: h, send: make(chan []byte, buf), showID: showID, userID: userID, log: quietLogger()}
}

func voteEnvelope(t *testing.T, showID uint64, count uint32) queue.Envelope {
	t.Helper()
	env, err := queue.NewEnvelope(queue.EventVoteDelta, showID, time.Now(), queue.VoteDelta{SetlistSongID: 1, SongID: 2, VoteCount: count})
	require.NoError(t, err)
	return env
}

func TestHub_DeliversToShowRoomOnly(t *testing.T) {
	h := startHub(t, nil)
	a := fakeClient(h, 1, "u1", 4)
	b := fakeClient(h, 2, "u2", 4)
	require.True(t, h.join(a))
	require.True(t, h.join(b))

	h.Dispatch(voteEnvelope(t, 1, 5))

	select {
	case msg := <-a.send:
		var env queue.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, queue.EventVoteDelta, env.Type)
		assert.Equal(t, uint64(1), env.ShowID)
	case <-time.After(time.Second):
		t.Fatal("room 1 did not receive the event")
	}
	select {
	case <-b.send:
		t.Fatal("room 2 received an event for show 1")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_LeaveCallbackOnLastConnectionOnly(t *testing.T) {
	var calls atomic.Int32
	left := make(chan string, 4)
	h := startHub(t, func(showID uint64, userID string) {
		calls.Add(1)
		left <- userID
	})

	tab1 := fakeClient(h, 1, "alice", 1)
	tab2 := fakeClient(h, 1, "alice", 1)
	anon := fakeClient(h, 1, "", 1)
	require.True(t, h.join(tab1))
	require.True(t, h.join(tab2))
	require.True(t, h.join(anon))

	h.leave(tab1)
	h.leave(anon)
	select {
	case <-left:
		t.Fatal("leave reported while another tab is open")
	case <-time.After(50 * time.Millisecond):
	}

	h.leave(tab2)
	select {
	case u := <-left:
		assert.Equal(t, "alice", u)
	case <-time.After(time.Second):
		t.Fatal("last leave not reported")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestHub_DropsSlowClient(t *testing.T) {
	dropped := make(chan string, 1)
	h := startHub(t, func(_ uint64, userID string) { dropped <- userID })
	slow := fakeClient(h, 1, "u1", 1)
	slow.send <- []byte("backlog")
	require.True(t, h.join(slow))

	h.Dispatch(voteEnvelope(t, 1, 1))

	select {
	case u := <-dropped:
		assert.Equal(t, "u1", u)
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
	assert.Equal(t, "backlog", string(<-slow.send))
	_, ok := <-slow.send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_JoinAfterShutdown(t *testing.T) {
	h := NewHub(quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Run(ctx))
	assert.False(t, h.join(fakeClient(h, 1, "u", 1)))
}

func TestServe_WebsocketEndToEnd(t *testing.T) {
	h := startHub(t, nil)
	var touches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, 9, "alice", 0, func(context.Context) error {
			touches.Add(1)
			return nil
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The socket joins the hub before its read loop starts, so a processed
	// heartbeat means it is registered.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	require.Eventually(t, func() bool { return touches.Load() == 1 }, time.Second, time.Millisecond)

	notifier := NewNotifier(h)
	require.NoError(t, notifier.VoteCast(context.Background(), service.VoteCast{
		ShowID: 9, SetlistSongID: 3, SongID: 4, VoteCount: 12, At: time.Now(),
	}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var env queue.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, queue.EventVoteDelta, env.Type)
	var delta queue.VoteDelta
	require.NoError(t, json.Unmarshal(env.Payload, &delta))
	assert.Equal(t, queue.VoteDelta{SetlistSongID: 3, SongID: 4, VoteCount: 12}, delta)
}

func songDelta(t *testing.T, showID, setlistSongID uint64, count uint32) queue.Envelope {
	t.Helper()
	env, err := queue.NewEnvelope(queue.EventVoteDelta, showID, time.Now(), queue.VoteDelta{SetlistSongID: setlistSongID, VoteCount: count})
	require.NoError(t, err)
	return env
}

func readCounts(t *testing.T, c *Client, n int) []uint32 {
	t.Helper()
	var out []uint32
	for len(out) < n {
		select {
		case msg := <-c.send:
			var env queue.Envelope
			require.NoError(t, json.Unmarshal(msg, &env))
			var delta queue.VoteDelta
			require.NoError(t, json.Unmarshal(env.Payload, &delta))
			out = append(out, delta.VoteCount)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
	return out
}

func TestHub_DropsStaleVoteDeltas(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(h, 1, "u1", 16)
	require.True(t, h.join(c))

	for _, n := range []uint32{3, 1, 4, 4, 2, 5} {
		h.Dispatch(songDelta(t, 1, 7, n))
	}
	// Another song keeps its own high-water mark.
	h.Dispatch(songDelta(t, 1, 8, 1))

	assert.Equal(t, []uint32{3, 4, 5, 1}, readCounts(t, c, 5))
}

func TestHub_PresenceEventsAreNotFiltered(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(h, 1, "u1", 4)
	require.True(t, h.join(c))

	for i := 0; i < 2; i++ {
		env, err := queue.NewEnvelope(queue.EventPresenceJoined, 1, time.Now(), queue.PresenceDelta{UserID: "bob", Viewers: 1})
		require.NoError(t, err)
		h.Dispatch(env)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Fatalf("presence event %d not delivered", i)
		}
	}
}

func TestNotifier_ConcurrentVotesNeverGoBackwards(t *testing.T) {
	h := startHub(t, nil)
	c := fakeClient(h, 4, "watcher", 256)
	require.True(t, h.join(c))
	notifier := NewNotifier(h)

	// One goroutine per committed vote, as the vote service does, started
	// in shuffled order.
	const votes = 200
	order := rand.Perm(votes)
	var wg sync.WaitGroup
	for _, i := range order {
		wg.Add(1)
		go func(count uint32) {
			defer wg.Done()
			_ = notifier.VoteCast(context.Background(), service.VoteCast{
				ShowID: 4, SetlistSongID: 11, SongID: 12, VoteCount: count, At: time.Now(),
			})
		}(uint32(i + 1))
	}
	wg.Wait()
	// The last delta lets the test tell "all delivered" from "some dropped".
	require.NoError(t, notifier.VoteCast(context.Background(), service.VoteCast{
		ShowID: 4, SetlistSongID: 11, SongID: 12, VoteCount: votes + 1, At: time.Now(),
	}))

	got := readCounts(t, c, votes+1)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "delivered counts must increase")
	}
	assert.Equal(t, uint32(votes+1), got[len(got)-1])
}
