package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_NowAdvancesBySecond(t *testing.T) {
	clock := NewDeterministicClock()

	first := clock.Now()
	second := clock.Now()
	assert.Equal(t, Epoch.Add(time.Second), first)
	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, int64(3), clock.Next(), "Now and Next share one tick counter")
}

func TestDeterministicClock_Reproducible(t *testing.T) {
	a, b := NewDeterministicClock(), NewDeterministicClock()
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Now(), b.Now())
	}
}

func TestDeterministicClock_ConcurrentNowIsDistinct(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, perWorker = 8, 50

	var (
		mu   sync.Mutex
		seen = map[time.Time]bool{}
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.True(t, seen[Epoch.Add(workers*perWorker*time.Second)])
}
