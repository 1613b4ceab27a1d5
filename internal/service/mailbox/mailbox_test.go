package mailbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/events"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	tick := 0
	var mu sync.Mutex
	return Options{
		MaxBodyRunes: 10,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick++
			return fixedNow.Add(time.Duration(tick) * time.Second)
		},
	}
}

type failingHistory struct{}

func (failingHistory) AppendHistory(context.Context, model.HistoryRecord) error {
	return errors.New("disk full")
}

func (failingHistory) ListHistory(context.Context) ([]model.HistoryRecord, error) {
	return nil, errors.New("disk full")
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		cmd     model.Command
		missing []string
	}{
		{name: "no action", cmd: model.Command{TargetAddress: "+1", Body: "x"}, missing: []string{"action"}},
		{name: "blank action", cmd: model.Command{Action: "  "}, missing: []string{"action"}},
		{name: "send without target", cmd: model.Command{Action: "send", Body: "x"}, missing: []string{"target_address"}},
		{name: "send without body", cmd: model.Command{Action: "SEND_SMS", TargetAddress: "+1"}, missing: []string{"body"}},
		{name: "send without both", cmd: model.Command{Action: "send"}, missing: []string{"target_address", "body"}},
		{name: "action too long", cmd: model.Command{Action: strings.Repeat("a", model.MaxActionLen+1)}, missing: []string{"action"}},
		{name: "target too long", cmd: model.Command{Action: "ring", TargetAddress: strings.Repeat("x", model.MaxAddressLen+1)}, missing: []string{"target_address"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			s := NewSlot(store, store, testOptions())

			_, err := s.Set(context.Background(), tc.cmd)
			require.Error(t, err)

			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.missing, ve.Fields)

			hist, _ := store.ListHistory(context.Background())
			assert.Empty(t, hist)
			cmd, _ := store.SwapCommand(context.Background(), model.EmptyCommand())
			assert.True(t, cmd.IsEmpty())
		})
	}
}

func TestValidationBodyTooLong(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())

	_, err := s.Set(context.Background(), model.Command{Action: "send", TargetAddress: "+1", Body: strings.Repeat("ж", 11)})
	assert.True(t, apperr.IsValidation(err))

	_, err = s.Set(context.Background(), model.Command{Action: "send", TargetAddress: "+1", Body: strings.Repeat("ж", 10)})
	assert.NoError(t, err)
}

func TestSlotNormalizesTarget(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())

	got, err := s.Set(context.Background(), model.Command{Action: "send", TargetAddress: "0049 (151) 234-567", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "+49151234567", got.TargetAddress)
}

func TestSlotPollConsumes(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())
	ctx := context.Background()

	got, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())

	cmd := model.Command{Action: "send", TargetAddress: "+1555", Body: "hi"}
	_, err = s.Set(ctx, cmd)
	require.NoError(t, err)

	got, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)

	got, err = s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestSlotConcurrentPollsDeliverOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())
	ctx := context.Background()

	_, err := s.Set(ctx, model.Command{Action: "send", TargetAddress: "+1555", Body: "hi"})
	require.NoError(t, err)

	const pollers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Poll(ctx)
			assert.NoError(t, err)
			if !got.IsEmpty() {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, delivered)
}

func TestSlotLastWriteWinsButHistoryKeepsBoth(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())
	ctx := context.Background()

	first := model.Command{Action: "send", TargetAddress: "+1", Body: "first"}
	second := model.Command{Action: "send", TargetAddress: "+2", Body: "second"}

	_, err := s.Set(ctx, first)
	require.NoError(t, err)
	_, err = s.Set(ctx, second)
	require.NoError(t, err)

	got, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	hist, err := store.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Body)
	assert.Equal(t, "second", hist[1].Body)
	assert.True(t, hist[0].IssuedAt.Before(hist[1].IssuedAt))
}

func TestHistoryInCallOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())
	ctx := context.Background()

	bodies := []string{"a", "b", "c", "d", "e"}
	for _, b := range bodies {
		_, err := s.Set(ctx, model.Command{Action: "send", TargetAddress: "+1", Body: b})
		require.NoError(t, err)
	}

	hist, err := store.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, hist, len(bodies))
	for i, b := range bodies {
		assert.Equal(t, b, hist[i].Body)
		assert.Equal(t, "send", hist[i].Action)
	}
}

func TestNonSendActionSkipsHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, store, testOptions())
	ctx := context.Background()

	_, err := s.Set(ctx, model.Command{Action: "ring"})
	require.NoError(t, err)

	hist, err := store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, hist)

	got, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ring", got.Action)
}

func TestSlotHistoryFailureLeavesSlotUntouched(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(store, failingHistory{}, testOptions())
	ctx := context.Background()

	_, err := s.Set(ctx, model.Command{Action: "send", TargetAddress: "+1", Body: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsStorage(err))

	got, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestQueueFIFOAndAck(t *testing.T) {
	store := repository.NewMemoryStore()
	q := NewQueue(store, store, testOptions())
	ctx := context.Background()

	_, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, b := range []string{"one", "two"} {
		_, err := q.Set(ctx, model.Command{Action: "send", TargetAddress: "+1", Body: b})
		require.NoError(t, err)
	}

	item, ok, err := q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, item.Index)
	assert.Equal(t, "one", item.Body)

	// poll does not consume
	item, ok, err = q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", item.Body)

	require.NoError(t, q.Ack(ctx, 0))

	item, ok, err = q.Poll(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, item.Index)
	assert.Equal(t, "two", item.Body)

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.CommandSent, items[0].Status)
	assert.Equal(t, model.CommandPending, items[1].Status)

	hist, err := store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestQueueAckOutOfRange(t *testing.T) {
	store := repository.NewMemoryStore()
	q := NewQueue(store, store, testOptions())
	ctx := context.Background()

	_, err := q.Set(ctx, model.Command{Action: "send", TargetAddress: "+1", Body: "x"})
	require.NoError(t, err)

	before, err := q.List(ctx)
	require.NoError(t, err)

	for _, idx := range []int{-1, 1, 99} {
		assert.NoError(t, q.Ack(ctx, idx))
	}

	after, err := q.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestQueueListEmpty(t *testing.T) {
	store := repository.NewMemoryStore()
	q := NewQueue(store, store, testOptions())

	items, err := q.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

// blockingPublisher holds every Publish until release is closed.
type blockingPublisher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ model.Envelope) error {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSlowPublisherDoesNotBlockPolls(t *testing.T) {
	ctx := context.Background()
	cmd := model.Command{Action: "send", TargetAddress: "+1555", Body: "hi"}

	t.Run("slot", func(t *testing.T) {
		pub := newBlockingPublisher()
		store := repository.NewMemoryStore()
		o := testOptions()
		o.Events = events.NewEmitter(pub, nil)
		s := NewSlot(store, store, o)

		setDone := make(chan error, 1)
		go func() {
			_, err := s.Set(ctx, cmd)
			setDone <- err
		}()
		<-pub.entered

		polled := make(chan model.Command, 1)
		go func() {
			got, err := s.Poll(ctx)
			assert.NoError(t, err)
			polled <- got
		}()
		select {
		case got := <-polled:
			assert.Equal(t, cmd, got)
		case <-time.After(2 * time.Second):
			t.Fatal("poll blocked behind event publish")
		}

		close(pub.release)
		require.NoError(t, <-setDone)
	})

	t.Run("queue", func(t *testing.T) {
		pub := newBlockingPublisher()
		store := repository.NewMemoryStore()
		o := testOptions()
		o.Events = events.NewEmitter(pub, nil)
		q := NewQueue(store, store, o)

		setDone := make(chan error, 1)
		go func() {
			_, err := q.Set(ctx, cmd)
			setDone <- err
		}()
		<-pub.entered

		polled := make(chan bool, 1)
		go func() {
			_, ok, err := q.Poll(ctx)
			assert.NoError(t, err)
			polled <- ok
		}()
		select {
		case ok := <-polled:
			assert.True(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("poll blocked behind event publish")
		}

		close(pub.release)
		require.NoError(t, <-setDone)
	})
}

type failingSlot struct{}

func (failingSlot) SwapCommand(context.Context, model.Command) (model.Command, error) {
	return model.Command{}, errors.New("connection refused")
}

func TestSlotSwapFailureKeepsHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	s := NewSlot(failingSlot{}, store, testOptions())
	ctx := context.Background()

	_, err := s.Set(ctx, model.Command{Action: "send", TargetAddress: "+1555", Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.IsStorage(err))

	hist, err := store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestQueueCountsDeliveryAtAck(t *testing.T) {
	store := repository.NewMemoryStore()
	q := NewQueue(store, store, testOptions())
	ctx := context.Background()

	delivered := metrics.CommandsTotal.WithLabelValues("delivered")
	served := metrics.PollsTotal.WithLabelValues("command")
	before, servedBefore := testutil.ToFloat64(delivered), testutil.ToFloat64(served)

	_, err := q.Set(ctx, model.Command{Action: "send", TargetAddress: "+1555", Body: "hi"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok, err := q.Poll(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, before, testutil.ToFloat64(delivered))
	assert.Equal(t, servedBefore+3, testutil.ToFloat64(served))

	require.NoError(t, q.Ack(ctx, 0))
	assert.Equal(t, before+1, testutil.ToFloat64(delivered))
}
