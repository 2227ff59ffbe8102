package substrate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeNode struct {
	mu        sync.Mutex
	failDials int
	dials     int
	healthy   atomic.Bool
	closed    atomic.Int64
}

func (n *fakeNode) dial(_ context.Context, _ string) (*Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials++
	if n.failDials > 0 {
		n.failDials--
		return nil, errors.New("connection refused")
	}
	n.healthy.Store(true)
	return &Conn{
		ping: func(context.Context) error {
			if !n.healthy.Load() {
				return errors.New("socket closed")
			}
			return nil
		},
		close: func() { n.closed.Add(1) },
	}, nil
}

func (n *fakeNode) dialCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

func waitForState(t *testing.T, supervisor *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if supervisor.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %s, got %s", want, supervisor.State())
}

func newTestSupervisor(node *fakeNode) *Supervisor {
	return NewSupervisor(Options{
		URL:              "ws://node",
		ReconnectBackoff: 10 * time.Millisecond,
		HealthInterval:   10 * time.Millisecond,
		Dial:             node.dial,
	})
}

func TestConnFailsFastBeforeFirstConnection(t *testing.T) {
	supervisor := newTestSupervisor(&fakeNode{})
	if _, err := supervisor.Conn(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if supervisor.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", supervisor.State())
	}
}

func TestSupervisorRetriesDialUntilConnected(t *testing.T) {
	node := &fakeNode{failDials: 3}
	supervisor := newTestSupervisor(node)
	supervisor.Start(context.Background())
	defer supervisor.Shutdown()

	waitForState(t, supervisor, StateConnected)
	if node.dialCount() != 4 {
		t.Fatalf("expected 4 dials, got %d", node.dialCount())
	}
	if _, err := supervisor.Conn(); err != nil {
		t.Fatalf("expected live connection, got %v", err)
	}
}

func TestSupervisorReconnectsAfterHealthCheckFailure(t *testing.T) {
	node := &fakeNode{}
	supervisor := newTestSupervisor(node)

	var (
		mu     sync.Mutex
		states []State
	)
	supervisor.Watch(func(state State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, state)
	})

	supervisor.Start(context.Background())
	defer supervisor.Shutdown()
	waitForState(t, supervisor, StateConnected)

	node.healthy.Store(false)
	supervisor.Kick()
	deadline := time.Now().Add(2 * time.Second)
	for node.dialCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	waitForState(t, supervisor, StateConnected)

	if node.closed.Load() < 1 {
		t.Fatal("expected dropped connection to be closed")
	}
	mu.Lock()
	defer mu.Unlock()
	sawDisconnect := false
	for _, state := range states {
		if state == StateDisconnected {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Fatalf("expected watchers to observe the drop, got %v", states)
	}
}

func TestShutdownClosesConnection(t *testing.T) {
	node := &fakeNode{}
	supervisor := newTestSupervisor(node)
	supervisor.Start(context.Background())
	waitForState(t, supervisor, StateConnected)

	supervisor.Shutdown()
	if supervisor.State() != StateDisconnected {
		t.Fatalf("expected disconnected after shutdown, got %s", supervisor.State())
	}
	if node.closed.Load() != 1 {
		t.Fatalf("expected one close, got %d", node.closed.Load())
	}
	if _, err := supervisor.Conn(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected after shutdown, got %v", err)
	}
}

func TestWatchersNotifiedOncePerStateChange(t *testing.T) {
	node := &fakeNode{}
	supervisor := newTestSupervisor(node)

	var first, second atomic.Int64
	supervisor.Watch(func(state State) {
		if state == StateConnected {
			first.Add(1)
		}
	})
	supervisor.Watch(func(state State) {
		if state == StateConnected {
			second.Add(1)
		}
	})

	supervisor.Start(context.Background())
	waitForState(t, supervisor, StateConnected)
	// Health checks keep re-asserting Connected; only the change is reported.
	time.Sleep(50 * time.Millisecond)
	supervisor.Shutdown()

	if first.Load() != 1 || second.Load() != 1 {
		t.Fatalf("expected each watcher notified once, got %d and %d", first.Load(), second.Load())
	}
}
