package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorplace/vehicle-ads/pkg/classifier"
	"github.com/motorplace/vehicle-ads/pkg/models"
	"github.com/motorplace/vehicle-ads/pkg/policy"
)

type fakeMessage struct {
	id      string
	acked   bool
	nacked  bool
	requeue bool
	events  *[]string
}

func (m *fakeMessage) AdID() string { return m.id }

func (m *fakeMessage) Ack() error {
	m.acked = true
	if m.events != nil {
		*m.events = append(*m.events, "ack "+m.id)
	}
	return nil
}

func (m *fakeMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

type fakeQueue struct {
	pending []*fakeMessage
}

func (q *fakeQueue) Dequeue(ctx context.Context) (Message, error) {
	if len(q.pending) == 0 {
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, nil
}

func (q *fakeQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message, len(q.pending))
	for _, msg := range q.pending {
		out <- msg
	}
	close(out)
	return out, nil
}

type finalizeCall struct {
	adID     string
	state    models.State
	category *string
}

type fakeStore struct {
	ads           map[string]*models.Ad
	getErr        error
	finalizeErr   error
	forceNoUpdate bool
	finalized     []finalizeCall
	processed     []string
	events        *[]string
}

func (s *fakeStore) GetAd(ctx context.Context, adID string) (*models.Ad, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.processed = append(s.processed, adID)
	return s.ads[adID], nil
}

func (s *fakeStore) FinalizeAd(ctx context.Context, adID string, state models.State, category *string) (bool, error) {
	if s.finalizeErr != nil {
		return false, s.finalizeErr
	}
	if s.events != nil {
		*s.events = append(*s.events, "finalize "+adID)
	}
	s.finalized = append(s.finalized, finalizeCall{adID: adID, state: state, category: category})

	ad, ok := s.ads[adID]
	if s.forceNoUpdate || !ok || ad.State.Terminal() {
		return false, nil
	}
	ad.State = state
	ad.Category = category
	return true, nil
}

type fakeOracle struct {
	tags  []classifier.Tag
	err   error
	calls int
}

func (o *fakeOracle) Classify(ctx context.Context, imageURL string) ([]classifier.Tag, error) {
	o.calls++
	return o.tags, o.err
}

type fakeNotifier struct {
	accepted []string
	rejected []string
	err      error
}

func (n *fakeNotifier) NotifyAccepted(to, adID string) error {
	n.accepted = append(n.accepted, adID)
	return n.err
}

func (n *fakeNotifier) NotifyRejected(to, adID string) error {
	n.rejected = append(n.rejected, adID)
	return n.err
}

type fakeCache struct {
	states map[string]string
}

func (c *fakeCache) SetAdState(ctx context.Context, adID, state string, ttl time.Duration) error {
	if c.states == nil {
		c.states = map[string]string{}
	}
	c.states[adID] = state
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func reviewAd(id string) *models.Ad {
	return &models.Ad{
		ID:        id,
		Email:     "a@b.com",
		ImageURL:  "http://img.example/" + id + ".jpg",
		State:     models.StateReview,
		CreatedAt: time.Now(),
	}
}

func newTestWorker(store *fakeStore, queue *fakeQueue, oracle *fakeOracle, notifier *fakeNotifier, cache *fakeCache) *Worker {
	return New(Options{
		Store:    store,
		Queue:    queue,
		Oracle:   oracle,
		Notifier: notifier,
		Cache:    cache,
		Policy:   policy.New([]string{"car", "motorcycle"}),
		Logger:   quietLogger(),
	})
}

func TestProcessAcceptsMatchingAd(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	oracle := &fakeOracle{tags: []classifier.Tag{{Label: "car", Confidence: 91}}}
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	w := newTestWorker(store, &fakeQueue{}, oracle, notifier, cache)

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	require.Len(t, store.finalized, 1)
	assert.Equal(t, models.StateAccepted, store.finalized[0].state)
	require.NotNil(t, store.finalized[0].category)
	assert.Equal(t, "car", *store.finalized[0].category)
	assert.Equal(t, []string{"ad-1"}, notifier.accepted)
	assert.Empty(t, notifier.rejected)
	assert.Equal(t, "accepted", cache.states["ad-1"])
	assert.True(t, msg.acked)
}

func TestProcessRejectsNonMatchingAd(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	oracle := &fakeOracle{tags: []classifier.Tag{{Label: "sky", Confidence: 80}}}
	notifier := &fakeNotifier{}
	cache := &fakeCache{}
	w := newTestWorker(store, &fakeQueue{}, oracle, notifier, cache)

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	require.Len(t, store.finalized, 1)
	assert.Equal(t, models.StateRejected, store.finalized[0].state)
	assert.Nil(t, store.finalized[0].category)
	assert.Equal(t, []string{"ad-1"}, notifier.rejected)
	assert.Empty(t, notifier.accepted)
	assert.True(t, msg.acked)
}

func TestProcessOracleFailureBecomesRejection(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	oracle := &fakeOracle{err: &classifier.ClassificationError{Reason: "transport error"}}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, &fakeQueue{}, oracle, notifier, &fakeCache{})

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	require.Len(t, store.finalized, 1)
	assert.Equal(t, models.StateRejected, store.finalized[0].state)
	assert.Nil(t, store.finalized[0].category)
	assert.Equal(t, []string{"ad-1"}, notifier.rejected)
	assert.True(t, msg.acked)
}

func TestProcessMissingRecordIsDroppedNotRetried(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{}}
	oracle := &fakeOracle{}
	w := newTestWorker(store, &fakeQueue{}, oracle, &fakeNotifier{}, &fakeCache{})

	msg := &fakeMessage{id: "ghost"}
	w.process(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.False(t, msg.nacked)
	assert.Zero(t, oracle.calls)
	assert.Empty(t, store.finalized)
}

func TestProcessStoreErrorRequeues(t *testing.T) {
	store := &fakeStore{getErr: errors.New("connection reset")}
	w := newTestWorker(store, &fakeQueue{}, &fakeOracle{}, &fakeNotifier{}, &fakeCache{})

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	assert.False(t, msg.acked)
	assert.True(t, msg.nacked)
	assert.True(t, msg.requeue)
}

func TestProcessFinalizeErrorRequeues(t *testing.T) {
	store := &fakeStore{
		ads:         map[string]*models.Ad{"ad-1": reviewAd("ad-1")},
		finalizeErr: errors.New("deadlock detected"),
	}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, &fakeQueue{}, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, notifier, &fakeCache{})

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	assert.False(t, msg.acked)
	assert.True(t, msg.nacked)
	assert.True(t, msg.requeue)
	assert.Empty(t, notifier.accepted)
}

func TestProcessAcksOnlyAfterDurableWrite(t *testing.T) {
	var events []string
	store := &fakeStore{
		ads:    map[string]*models.Ad{"ad-1": reviewAd("ad-1")},
		events: &events,
	}
	w := newTestWorker(store, &fakeQueue{}, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, &fakeNotifier{}, &fakeCache{})

	w.process(context.Background(), &fakeMessage{id: "ad-1", events: &events})

	require.Equal(t, []string{"finalize ad-1", "ack ad-1"}, events)
}

func TestRedeliveryAfterFinalizeIsIdempotent(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	oracle := &fakeOracle{tags: []classifier.Tag{{Label: "car", Confidence: 91}}}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, &fakeQueue{}, oracle, notifier, &fakeCache{})

	first := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), first)

	// Simulate a crash between finalize and ack: the broker redelivers.
	redelivery := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), redelivery)

	assert.True(t, redelivery.acked)
	assert.Equal(t, models.StateAccepted, store.ads["ad-1"].State)
	assert.Equal(t, "car", *store.ads["ad-1"].Category)
	// Only the first run classified and notified.
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, []string{"ad-1"}, notifier.accepted)
	// The record was finalized exactly once.
	require.Len(t, store.finalized, 1)
}

func TestProcessConcurrentFinalizeSkipsNotification(t *testing.T) {
	// The store reports no rows updated, as if another worker won the race
	// between this worker's fetch and its finalize.
	store := &fakeStore{
		ads:           map[string]*models.Ad{"ad-1": reviewAd("ad-1")},
		forceNoUpdate: true,
	}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, &fakeQueue{}, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, notifier, &fakeCache{})

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.Empty(t, notifier.accepted)
	assert.Empty(t, notifier.rejected)
}

func TestDrainOncePreservesFIFOOrder(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{
		"ad-a": reviewAd("ad-a"),
		"ad-b": reviewAd("ad-b"),
		"ad-c": reviewAd("ad-c"),
	}}
	queue := &fakeQueue{pending: []*fakeMessage{
		{id: "ad-a"}, {id: "ad-b"}, {id: "ad-c"},
	}}
	w := newTestWorker(store, queue, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, &fakeNotifier{}, &fakeCache{})

	processed, err := w.DrainOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, []string{"ad-a", "ad-b", "ad-c"}, store.processed)
}

func TestDrainOnceStopsWhenQueueEmpty(t *testing.T) {
	w := newTestWorker(&fakeStore{ads: map[string]*models.Ad{}}, &fakeQueue{}, &fakeOracle{}, &fakeNotifier{}, &fakeCache{})

	processed, err := w.DrainOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestRunDrainsAndStopsOnChannelClose(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	queue := &fakeQueue{pending: []*fakeMessage{{id: "ad-1"}}}
	notifier := &fakeNotifier{}
	w := newTestWorker(store, queue, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, notifier, &fakeCache{})

	err := w.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"ad-1"}, notifier.accepted)
}

func TestNotificationFailureDoesNotBlockAck(t *testing.T) {
	store := &fakeStore{ads: map[string]*models.Ad{"ad-1": reviewAd("ad-1")}}
	notifier := &fakeNotifier{err: errors.New("smtp unreachable")}
	w := newTestWorker(store, &fakeQueue{}, &fakeOracle{tags: []classifier.Tag{{Label: "car"}}}, notifier, &fakeCache{})

	msg := &fakeMessage{id: "ad-1"}
	w.process(context.Background(), msg)

	assert.True(t, msg.acked)
	assert.Equal(t, models.StateAccepted, store.ads["ad-1"].State)
}
