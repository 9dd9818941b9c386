package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ecowatt/tourate/pkg/types"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, msg Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// recordingTransport remembers how many batch delays had elapsed when each
// message was sent.
type recordingTransport struct {
	mu       sync.Mutex
	delays   *int
	sentAt   map[string]int
	inFlight int
	maxIn    int
	hold     time.Duration
}

func (r *recordingTransport) Send(ctx context.Context, msg Message) (string, error) {
	r.mu.Lock()
	r.sentAt[msg.To] = *r.delays
	r.inFlight++
	if r.inFlight > r.maxIn {
		r.maxIn = r.inFlight
	}
	r.mu.Unlock()

	time.Sleep(r.hold)

	r.mu.Lock()
	r.inFlight--
	r.mu.Unlock()
	return "id-" + msg.To, nil
}

func recipients(n int) []types.NotificationRecipient {
	out := make([]types.NotificationRecipient, n)
	for i := range out {
		out[i] = types.NotificationRecipient{
			ID:    fmt.Sprintf("user-%02d", i),
			Email: fmt.Sprintf("user%02d@example.com", i),
		}
	}
	return out
}

var testAlert = types.RateAlert{Category: types.RateCategoryDomestic, Rate: 6.64, Threshold: 4}

func newTestNotifier(t Transport) (*Notifier, *[]time.Duration) {
	n := NewNotifier(t, DefaultOptions())
	var sleeps []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
	}
	return n, &sleeps
}

func TestNotifyHighRateBatches(t *testing.T) {
	delays := 0
	rt := &recordingTransport{delays: &delays, sentAt: map[string]int{}, hold: 5 * time.Millisecond}
	n := NewNotifier(rt, DefaultOptions())
	var sleeps []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) {
		rt.mu.Lock()
		delays++
		rt.mu.Unlock()
		sleeps = append(sleeps, d)
	}

	rs := recipients(45)
	tally := n.NotifyHighRate(context.Background(), rs, testAlert)

	assert.Equal(t, types.NotificationTally{Sent: 45}, tally)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps, "two delays between three batches")
	require.Len(t, rt.sentAt, 45)
	for i, r := range rs {
		assert.Equal(t, i/20, rt.sentAt[r.Email], "recipient %d sent in wrong batch", i)
	}
	assert.LessOrEqual(t, rt.maxIn, 20)
	assert.Greater(t, rt.maxIn, 1, "sends within a batch run concurrently")
}

func TestNotifyHighRateIsolatesFailures(t *testing.T) {
	rs := recipients(20)
	mt := &mockTransport{}
	mt.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.To == rs[7].Email
	})).Return("", errors.New("rejected")).Once()
	mt.On("Send", mock.Anything, mock.Anything).Return("msg-id", nil)

	n, sleeps := newTestNotifier(mt)
	tally := n.NotifyHighRate(context.Background(), rs, testAlert)

	assert.Equal(t, types.NotificationTally{Sent: 19, Failed: 1}, tally)
	assert.Empty(t, *sleeps, "a single batch has no delay")
	mt.AssertNumberOfCalls(t, "Send", 20)
}

func TestNotifyHighRateMessage(t *testing.T) {
	mt := &mockTransport{}
	mt.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.To == "user00@example.com" &&
			m.Subject == "High DOMESTIC Tariff Rate Alert: ₹6.64" &&
			strings.Contains(m.HTML, "<strong>₹6.64</strong>")
	})).Return("msg-id", nil).Once()

	n, _ := newTestNotifier(mt)
	tally := n.NotifyHighRate(context.Background(), recipients(1), testAlert)
	assert.Equal(t, 1, tally.Sent)
	mt.AssertExpectations(t)
}

func TestNotifyHighRateEmpty(t *testing.T) {
	mt := &mockTransport{}
	n, sleeps := newTestNotifier(mt)

	tally := n.NotifyHighRate(context.Background(), nil, testAlert)
	assert.Equal(t, types.NotificationTally{}, tally)
	assert.Empty(t, *sleeps)
	mt.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotifyHighRateMissingEmail(t *testing.T) {
	mt := &mockTransport{}
	mt.On("Send", mock.Anything, mock.Anything).Return("msg-id", nil)
	n, _ := newTestNotifier(mt)

	rs := recipients(3)
	rs[1].Email = ""
	tally := n.NotifyHighRate(context.Background(), rs, testAlert)
	assert.Equal(t, types.NotificationTally{Sent: 2, Failed: 1}, tally)
	mt.AssertNumberOfCalls(t, "Send", 2)
}

func TestNotifyHighRateNoTransport(t *testing.T) {
	n, _ := newTestNotifier(nil)
	tally := n.NotifyHighRate(context.Background(), recipients(25), testAlert)
	assert.Equal(t, types.NotificationTally{Failed: 25}, tally)
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, _ Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestNotifyHighRateSendTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.SendTimeout = 10 * time.Millisecond
	n := NewNotifier(blockingTransport{}, opts)

	start := time.Now()
	tally := n.NotifyHighRate(context.Background(), recipients(5), testAlert)
	assert.Equal(t, types.NotificationTally{Failed: 5}, tally)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewNotifierBatchSize(t *testing.T) {
	n := NewNotifier(nil, Options{BatchSize: 0})
	assert.Equal(t, 1, n.batchSize)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepContext(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	sleepContext(context.Background(), 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestSendTest(t *testing.T) {
	mt := &mockTransport{}
	mt.On("Send", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.To == "ops@example.com" && m.Subject == "PrabhaWatt Tariff Alerts Test"
	})).Return("msg-123", nil).Once()

	n, _ := newTestNotifier(mt)
	id, err := n.SendTest(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	_, err = n.SendTest(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoRecipient)
	mt.AssertExpectations(t)
}
