// Package monitor samples a cumulative byte counter into a throughput figure.
package monitor

import (
	"sync"
	"time"

	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
)

// Counter is the shared cumulative byte counter written by every fetcher.
type Counter struct {
	mu    sync.Mutex
	total int64
}

func (c *Counter) Add(n int64) {
	c.mu.Lock()
	c.total += n
	c.mu.Unlock()
}

func (c *Counter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Tick is one sample, delivered to the monitor's callback.
type Tick struct {
	BytesPerSec float64
	Total       int64
}

type Monitor struct {
	counter  *Counter
	interval time.Duration
	active   func() bool
	onTick   func(Tick)

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a monitor over counter. onTick only fires while active reports
// true (a batch is planned).
func New(counter *Counter, interval time.Duration, active func() bool, onTick func(Tick)) *Monitor {
	if interval <= 0 {
		interval = utils.SpeedTickInterval
	}
	return &Monitor{
		counter:  counter,
		interval: interval,
		active:   active,
		onTick:   onTick,
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop(m.stopCh, m.doneCh)
}

func (m *Monitor) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	last := m.counter.Total()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			now := m.counter.Total()
			speed := float64(now-last) / m.interval.Seconds()
			last = now
			if m.onTick != nil && (m.active == nil || m.active()) {
				m.onTick(Tick{BytesPerSec: speed, Total: now})
			}
		}
	}
}

// Stop halts the loop and waits for it, at most utils.MonitorStopTimeout.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(utils.MonitorStopTimeout):
		log.Warn().Str("op", "monitor/speed").Msg("speed monitor did not stop in time")
	}
}
