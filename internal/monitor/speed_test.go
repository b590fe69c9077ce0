package monitor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterConcurrentAdds(t *testing.T) {
	var c Counter
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.Add(3)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(24000), c.Total())
}

func TestMonitorEmitsWhileActive(t *testing.T) {
	var c Counter
	ticks := make(chan Tick, 16)
	m := New(&c, 20*time.Millisecond, func() bool { return true }, func(tk Tick) {
		select {
		case ticks <- tk:
		default:
		}
	})
	m.Start()
	defer m.Stop()

	c.Add(1000)
	var got Tick
	require.Eventually(t, func() bool {
		select {
		case got = <-ticks:
			return got.Total == 1000
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1000), got.Total)
}

func TestMonitorSilentWhenInactive(t *testing.T) {
	var c Counter
	var calls atomic.Int32
	m := New(&c, 10*time.Millisecond, func() bool { return false }, func(Tick) { calls.Add(1) })
	m.Start()
	c.Add(500)
	time.Sleep(60 * time.Millisecond)
	m.Stop()
	assert.Zero(t, calls.Load())
}

func TestMonitorStopIdempotent(t *testing.T) {
	m := New(&Counter{}, 10*time.Millisecond, nil, nil)
	m.Stop()
	m.Start()
	m.Stop()
	m.Stop()
}
