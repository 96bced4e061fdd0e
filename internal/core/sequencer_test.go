package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequencerSerializesPerKey(t *testing.T) {
	seq := newSequencer()

	unlock := seq.Lock("a")
	acquired := make(chan struct{})
	go func() {
		release := seq.Lock("a")
		close(acquired)
		release()
	}()

	// Another key is independent.
	seq.Lock("b")()

	select {
	case <-acquired:
		t.Fatal("second holder entered while key was locked")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired key")
	}
}

func TestSequencerDropsIdleKeys(t *testing.T) {
	seq := newSequencer()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq.Lock("conv")()
		}()
	}
	wg.Wait()

	seq.mu.Lock()
	defer seq.mu.Unlock()
	require.Empty(t, seq.locks)
}
