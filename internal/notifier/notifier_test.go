package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	ch, unsubscribe := n.Subscribe()
	require.NotNil(t, ch)
	assert.Equal(t, 1, n.Len())

	unsubscribe()
	assert.Equal(t, 0, n.Len())

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")

	assert.NotPanics(t, unsubscribe, "second unsubscribe is a no-op")
}

func TestNotifier_Broadcast(t *testing.T) {
	n := New()

	ch1, unsub1 := n.Subscribe()
	ch2, unsub2 := n.Subscribe()
	defer unsub1()
	defer unsub2()

	n.Broadcast()

	for i, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Errorf("listener %d did not receive broadcast", i)
		}
	}
}

func TestNotifier_Broadcast_Coalesces(t *testing.T) {
	n := New()

	ch, unsubscribe := n.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		n.Broadcast()
		n.Broadcast()
		n.Broadcast()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Broadcast blocked on full channel")
	}

	<-ch
	select {
	case <-ch:
		t.Error("expected pings to coalesce into one")
	default:
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unsubscribe := n.Subscribe()
			n.Broadcast()
			unsubscribe()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, n.Len())
}
