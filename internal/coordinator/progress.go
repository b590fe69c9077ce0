package coordinator

import (
	"sync"

	"github.com/minelauncher/mcfetch/internal/utils"
)

type eventKind int

const (
	eventStatus eventKind = iota
	eventChunk
	eventJobDone
	eventTick
)

type event struct {
	kind  eventKind
	msg   string
	done  int64
	total int64
	speed float64
}

// counts is the cross-worker completion state, guarded by one mutex.
type counts struct {
	mu        sync.Mutex
	planned   int
	finished  int
	failed    int
	skipped   int
	cancelled int
	bytes     int64
	failures  []utils.JobFailure
}

func (c *counts) snapshot() (planned, finished, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planned, c.finished, c.failed
}

func (c *counts) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planned > 0
}

// publisher is the only goroutine that calls the progress callback, so
// snapshots are delivered in order and the aggregate never decreases.
type publisher struct {
	events chan event
	quit   chan struct{}
	done   chan struct{}
	counts *counts
	fn     utils.ProgressFunc

	curDone  int64
	curTotal int64
	speed    float64
	message  string
	last     float64
}

func newPublisher(c *counts, fn utils.ProgressFunc) *publisher {
	p := &publisher{
		events: make(chan event, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		counts: c,
		fn:     fn,
	}
	go p.loop()
	return p
}

// send never blocks once the publisher is stopping.
func (p *publisher) send(ev event) {
	select {
	case p.events <- ev:
	case <-p.quit:
	}
}

func (p *publisher) status(msg string) {
	p.send(event{kind: eventStatus, msg: msg})
}

func (p *publisher) loop() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.handle(ev)
				default:
					return
				}
			}
		}
	}
}

// stop drains queued events, then emits final as the last snapshot.
func (p *publisher) stop(final string) {
	close(p.quit)
	<-p.done
	p.handle(event{kind: eventStatus, msg: final})
}

func (p *publisher) handle(ev event) {
	switch ev.kind {
	case eventStatus:
		p.message = ev.msg
	case eventChunk:
		p.curDone, p.curTotal = ev.done, ev.total
	case eventJobDone:
		p.message = ev.msg
		p.curDone, p.curTotal = 0, 0
	case eventTick:
		p.speed = ev.speed
	}
	if p.fn == nil {
		return
	}
	planned, finished, failed := p.counts.snapshot()
	p.fn(utils.ProgressSnapshot{
		CurrentFileBytesTotal: p.curTotal,
		CurrentFileBytesDone:  p.curDone,
		TotalFilesPlanned:     planned,
		FilesFinished:         finished,
		FilesFailed:           failed,
		ThroughputBytesPerSec: p.speed,
		StatusMessage:         p.message,
		AggregatePercent:      p.percent(planned, finished+failed),
	})
}

func (p *publisher) percent(planned, settled int) float64 {
	if planned == 0 {
		return p.last
	}
	frac := 0.0
	if p.curTotal > 0 {
		frac = min(float64(p.curDone)/float64(p.curTotal), 1)
	}
	v := min((float64(settled)+frac)/float64(planned)*100, 100)
	if v < p.last {
		v = p.last
	}
	p.last = v
	return v
}
