package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
)

func TestParseTopic(t *testing.T) {
	topic, err := ParseTopic("  Transaction-Stream ")
	require.NoError(t, err)
	assert.Equal(t, TopicTransactions, topic)
	assert.True(t, topic.IsWellKnown())

	custom, err := ParseTopic("audit-trail")
	require.NoError(t, err)
	assert.False(t, custom.IsWellKnown())

	_, err = ParseTopic("")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = ParseTopic("bad topic")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestMergeTopics(t *testing.T) {
	merged := MergeTopics([]Topic{TopicTransactions, TopicRiskEvents}, TopicRiskEvents, "custom")
	assert.Equal(t, []Topic{TopicTransactions, TopicRiskEvents, "custom"}, merged)
}

func TestWellKnownTopics_ReturnsCopy(t *testing.T) {
	topics := WellKnownTopics()
	require.Len(t, topics, 8)
	topics[0] = "changed"
	assert.Equal(t, TopicTransactions, WellKnownTopics()[0])
}

func TestEnvelope_RoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	env, err := NewEnvelope(TopicTransactions, "k1", payload{Name: "Juan"}, ts)
	require.NoError(t, err)
	assert.Equal(t, "k1", env.Key)
	assert.Equal(t, ts, env.Timestamp)

	var out payload
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, "Juan", out.Name)

	raw, err := NewEnvelope(TopicTransactions, "k2", json.RawMessage(`{"name":"x"}`), ts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x"}`, string(raw.Payload))

	_, err = NewEnvelope(TopicTransactions, "k3", []byte("not json"), ts)
	assert.Error(t, err)
}

func TestEnvelope_Clone(t *testing.T) {
	env, err := NewEnvelope(TopicRiskEvents, "k", map[string]int{"a": 1}, time.Now())
	require.NoError(t, err)

	c := env.Clone()
	c.Payload[0] = 'X'
	assert.NotEqual(t, c.Payload[0], env.Payload[0])
}

func TestStats(t *testing.T) {
	s := NewStats()
	now := time.Now()

	s.RecordProduced(now)
	s.RecordProduced(now)
	s.RecordConsumed(now)
	s.RecordError(now.Add(time.Second))
	s.SetSimulation(true)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.MessagesProduced)
	assert.Equal(t, int64(1), snap.MessagesConsumed)
	assert.Equal(t, int64(1), snap.Errors)
	assert.True(t, snap.SimulationMode)
	assert.False(t, snap.Connected)
	assert.Equal(t, now.Add(time.Second).UnixNano(), snap.LastActivity.UnixNano())
}
