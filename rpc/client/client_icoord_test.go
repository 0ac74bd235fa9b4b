package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/ValentinKolb/dLock/rpc/serializer"
)

// rejectingTransport answers every request with an error response
type rejectingTransport struct {
	serializer serializer.IRPCSerializer
	sent       atomic.Int32
}

func (t *rejectingTransport) Connect(common.ClientConfig) error { return nil }
func (t *rejectingTransport) Close() error                      { return nil }

func (t *rejectingTransport) Send(ctx context.Context, shardId uint64, req []byte) ([]byte, error) {
	t.sent.Add(1)
	return t.serializer.Serialize(*common.NewErrorResponse("watches are not supported"))
}

func TestWatchBackoff(t *testing.T) {
	tests := []struct {
		failures uint32
		want     time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{6, 1600 * time.Millisecond},
		{7, 2 * time.Second},
		{100, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := watchBackoff(tt.failures); got != tt.want {
			t.Errorf("watchBackoff(%d) = %s, want %s", tt.failures, got, tt.want)
		}
	}
}

func TestWatchChildrenFailureBacksOff(t *testing.T) {
	s := serializer.NewBinarySerializer()
	tr := &rejectingTransport{serializer: s}
	c, err := NewRPCCoordinator(100, common.ClientConfig{TimeoutSecond: 1, WaitSecond: 1}, tr, s)
	if err != nil {
		t.Fatalf("NewRPCCoordinator() failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	var elapsed []time.Duration
	for i := 0; i < 3; i++ {
		start := time.Now()
		changed, err := c.WatchChildren(ctx, "/locks/orders", 1)
		if err != nil {
			t.Fatalf("WatchChildren() failed: %v", err)
		}
		select {
		case <-changed:
		case <-time.After(2 * time.Second):
			t.Fatal("watch was not closed after a failed request")
		}
		elapsed = append(elapsed, time.Since(start))
	}

	// every failure delays the wakeup, the delay grows while the failures continue
	for i, want := range []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond} {
		if elapsed[i] < want {
			t.Errorf("wakeup %d after %s, want at least %s", i+1, elapsed[i], want)
		}
	}
	if n := tr.sent.Load(); n != 3 {
		t.Errorf("sent %d watch requests, want 3", n)
	}
}

func TestWatchChildrenCancelDuringBackoff(t *testing.T) {
	s := serializer.NewBinarySerializer()
	c, err := NewRPCCoordinator(100, common.ClientConfig{TimeoutSecond: 1, WaitSecond: 1}, &rejectingTransport{serializer: s}, s)
	if err != nil {
		t.Fatalf("NewRPCCoordinator() failed: %v", err)
	}
	defer c.Close()

	// push the backoff to its maximum
	c.(*rpcCoordinator).watchFailures.Store(10)

	ctx, cancel := context.WithCancel(context.Background())
	changed, err := c.WatchChildren(ctx, "/locks/orders", 1)
	if err != nil {
		t.Fatalf("WatchChildren() failed: %v", err)
	}
	time.AfterFunc(20*time.Millisecond, cancel)

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("watch was not closed when ctx was cancelled")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v, want context.Canceled", ctx.Err())
	}
}
