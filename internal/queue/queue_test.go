package queue

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	env, err := NewEnvelope(EventVoteDelta, 7, at, VoteDelta{SetlistSongID: 11, SongID: 500, VoteCount: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, time.UTC, env.OccurredAt.Location())

	body, err := json.Marshal(env)
	require.NoError(t, err)
	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, uint64(7), got.ShowID)

	var delta VoteDelta
	require.NoError(t, json.Unmarshal(got.Payload, &delta))
	assert.Equal(t, VoteDelta{SetlistSongID: 11, SongID: 500, VoteCount: 3}, delta)
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	a, err := NewEnvelope(EventPresenceJoined, 1, time.Now(), PresenceDelta{UserID: "u"})
	require.NoError(t, err)
	b, err := NewEnvelope(EventPresenceJoined, 1, time.Now(), PresenceDelta{UserID: "u"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDecode_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     "{",
		"missing type": `{"id":"x","show_id":1}`,
		"missing show": `{"id":"x","type":"vote.delta"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestConsumerDispatch(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := NewConsumer("amqp://unused", "x", log)

	var got []Envelope
	h := func(e Envelope) { got = append(got, e) }

	env, err := NewEnvelope(EventPresenceLeft, 3, time.Now(), PresenceDelta{UserID: "u1", Viewers: 0})
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)

	c.dispatch([]byte("garbage"), h)
	c.dispatch(body, h)
	require.Len(t, got, 1)
	assert.Equal(t, EventPresenceLeft, got[0].Type)
}
