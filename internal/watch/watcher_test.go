package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-analytics/internal/solana"
)

type fakeSubscriber struct {
	mu    sync.Mutex
	chans map[string]chan solana.LogNotification
	err   error
	// failOn fails only the subscription of this mint.
	failOn string
	ctxs   map[string]context.Context
}

func newFakeSubscriber(mints ...string) *fakeSubscriber {
	f := &fakeSubscriber{chans: make(map[string]chan solana.LogNotification)}
	for _, m := range mints {
		f.chans[m] = make(chan solana.LogNotification, 16)
	}
	return f
}

func (f *fakeSubscriber) SubscribeLogs(ctx context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	mint := filter.Mentions[0]
	if f.err != nil {
		return nil, f.err
	}
	if mint == f.failOn {
		return nil, errors.New("subscription rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctxs == nil {
		f.ctxs = make(map[string]context.Context)
	}
	f.ctxs[mint] = ctx
	return f.chans[mint], nil
}

func (f *fakeSubscriber) subscribedCtx(mint string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[mint]
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.chans {
		close(ch)
	}
	return nil
}

func (f *fakeSubscriber) send(mint string, n solana.LogNotification) {
	f.chans[mint] <- n
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingInvalidator) InvalidateCensus(_ context.Context, mint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[mint]++
	return nil
}

func (r *recordingInvalidator) count(mint string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[mint]
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	sub := newFakeSubscriber("mintA", "mintB")
	inv := &recordingInvalidator{}
	w := New(sub, inv, Options{Mints: []string{"mintA", "mintB"}, Debounce: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := range 5 {
		sub.send("mintA", solana.LogNotification{Signature: string(rune('a' + i))})
	}
	sub.send("mintB", solana.LogNotification{Signature: "failed", Err: map[string]any{"InstructionError": 1}})

	require.Eventually(t, func() bool { return inv.count("mintA") == 1 }, time.Second, 5*time.Millisecond)
	// Nothing else fires for the same burst.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, inv.count("mintA"))
	assert.Zero(t, inv.count("mintB"), "failed transactions are ignored")

	// A later burst invalidates again.
	sub.send("mintA", solana.LogNotification{Signature: "later"})
	require.Eventually(t, func() bool { return inv.count("mintA") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatcher_FlushesPendingOnClose(t *testing.T) {
	sub := newFakeSubscriber("mintA")
	inv := &recordingInvalidator{}
	w := New(sub, inv, Options{Mints: []string{"mintA"}, Debounce: time.Hour})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	sub.send("mintA", solana.LogNotification{Signature: "s"})
	// Let the notification reach the loop before the subscription closes.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after subscriptions closed")
	}
	assert.Equal(t, 1, inv.count("mintA"))
}

func TestWatcher_SubscribeError(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = errors.New("ws down")
	w := New(sub, &recordingInvalidator{}, Options{Mints: []string{"mintA"}})

	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "ws down")
}

func TestWatcher_PartialSubscribeFailureStopsEarlierMints(t *testing.T) {
	sub := newFakeSubscriber("mintA", "mintB")
	sub.failOn = "mintB"
	inv := &recordingInvalidator{}
	w := New(sub, inv, Options{Mints: []string{"mintA", "mintB"}, Debounce: time.Millisecond})

	err := w.Run(context.Background())
	require.ErrorContains(t, err, "subscribe mintB")

	subCtx := sub.subscribedCtx("mintA")
	require.NotNil(t, subCtx)
	select {
	case <-subCtx.Done():
	default:
		t.Fatal("mintA subscription context still live after Run returned")
	}
}
