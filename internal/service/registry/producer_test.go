package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/registry"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchEntities(ctx context.Context) ([]sanctions.Entity, error) {
	args := m.Called(ctx)
	entities, _ := args.Get(0).([]sanctions.Entity)
	return entities, args.Error(1)
}

func (m *mockFetcher) Source() string {
	return "test-registry"
}

type published struct {
	topic    stream.Topic
	key      string
	snapshot *sanctions.Snapshot
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic stream.Topic, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	snap, _ := payload.(*sanctions.Snapshot)
	f.msgs = append(f.msgs, published{topic: topic, key: key, snapshot: snap})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func (f *fakePublisher) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[len(f.msgs)-1]
}

var watchlist = []sanctions.Entity{
	{ID: "os-1", Name: "Juan Perez", Programs: []string{"OFAC-SDN"}},
	{ID: "os-2", Name: "Maria Gonzalez"},
	{ID: "", Name: "dropped"},
}

func newProducer(t *testing.T, fetcher registry.Fetcher, pub registry.Publisher, rec registry.Recorder, clock clockwork.Clock) *registry.Producer {
	t.Helper()
	p, err := registry.NewProducer(registry.Config{Interval: time.Hour, Backoff: time.Minute}, fetcher, pub, rec, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestProducer_PollOncePublishesSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return(watchlist, nil).Once()
	pub := &fakePublisher{}
	h := hub.New(hub.Config{HistoryCap: 10}, clock, zaptest.NewLogger(t))

	p := newProducer(t, fetcher, pub, h, clock)
	require.NoError(t, p.PollOnce(ctx))

	require.Equal(t, 1, pub.count())
	msg := pub.last()
	assert.Equal(t, stream.TopicSanctionsData, msg.topic)
	assert.Equal(t, registry.SnapshotKey, msg.key)
	require.NotNil(t, msg.snapshot)
	assert.Equal(t, 2, msg.snapshot.Len())
	assert.Equal(t, "test-registry", msg.snapshot.Source)

	history, err := h.History(hub.CategorySanctions)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, string(history[0].Payload), `"entities":2`)

	last, size := p.LastRefresh()
	assert.True(t, clock.Now().Equal(last))
	assert.Equal(t, 2, size)
	fetcher.AssertExpectations(t)
}

func TestProducer_EmptyFetchPublishesEmptySnapshot(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return([]sanctions.Entity{}, nil)
	pub := &fakePublisher{}

	p := newProducer(t, fetcher, pub, nil, clockwork.NewFakeClock())
	require.NoError(t, p.PollOnce(context.Background()))

	require.Equal(t, 1, pub.count())
	assert.True(t, pub.last().snapshot.Empty())
}

func TestProducer_PublishFailureIsReported(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return(watchlist, nil)
	pub := &fakePublisher{err: fmt.Errorf("broker down")}

	p := newProducer(t, fetcher, pub, nil, clockwork.NewFakeClock())
	err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	last, _ := p.LastRefresh()
	assert.True(t, last.IsZero())
}

func TestProducer_LoopPollsOnInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return(watchlist, nil)
	pub := &fakePublisher{}

	p := newProducer(t, fetcher, pub, nil, clock)
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	require.Error(t, p.Start(ctx))

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, pub.count())

	clock.Advance(59 * time.Minute)
	assert.Equal(t, 1, pub.count())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestProducer_FailureBacksOff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return(nil, fmt.Errorf("registry unavailable")).Once()
	fetcher.On("FetchEntities", mock.Anything).Return(watchlist, nil)
	pub := &fakePublisher{}

	p := newProducer(t, fetcher, pub, nil, clock)
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 0, pub.count())

	// backoff, not the full interval
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestProducer_StopHaltsLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	fetcher := &mockFetcher{}
	fetcher.On("FetchEntities", mock.Anything).Return(watchlist, nil)
	pub := &fakePublisher{}

	p := newProducer(t, fetcher, pub, nil, clock)
	require.NoError(t, p.Start(ctx))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	p.Stop()
	p.Stop()

	clock.Advance(3 * time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, pub.count())
}

func TestNewProducer_RequiresCollaborators(t *testing.T) {
	_, err := registry.NewProducer(registry.DefaultConfig(), nil, &fakePublisher{}, nil, nil, nil)
	assert.Error(t, err)
}
