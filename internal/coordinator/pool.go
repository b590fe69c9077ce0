package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/minelauncher/mcfetch/internal/fetcher"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
)

// runPool fetches jobs on a fixed number of workers. Once ctx is done the
// remaining jobs are counted as cancelled without being started.
func (c *Coordinator) runPool(ctx context.Context, jobs []utils.FileJob, workers int, st *counts, pub *publisher) {
	if len(jobs) == 0 {
		return
	}
	jobCh := make(chan utils.FileJob, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var wg sync.WaitGroup
	for range min(workers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if ctx.Err() != nil {
					st.mu.Lock()
					st.cancelled++
					st.mu.Unlock()
					continue
				}
				c.runJob(ctx, job, st, pub)
			}
		}()
	}
	wg.Wait()
}

func (c *Coordinator) runJob(ctx context.Context, job utils.FileJob, st *counts, pub *publisher) {
	res := c.fetcher.Fetch(ctx, job, fetcher.Hooks{
		OnStatus: pub.status,
		OnChunk: func(done, total int64) {
			pub.send(event{kind: eventChunk, done: done, total: total})
		},
		OnWrite: c.wrote,
	})

	var msg string
	st.mu.Lock()
	st.bytes += res.Bytes
	switch res.State {
	case utils.StateVerified:
		st.finished++
		if res.Skipped {
			st.skipped++
			msg = fmt.Sprintf("skipped %s (already valid)", job.Name())
		} else {
			msg = fmt.Sprintf("finished %s", job.Name())
		}
	case utils.StateCancelled:
		st.cancelled++
	default:
		st.failed++
		st.failures = append(st.failures, utils.JobFailure{Path: job.LocalPath, Kind: job.Kind, Required: job.Required, Err: res.Err})
		msg = fmt.Sprintf("failed %s: %v", job.Name(), res.Err)
	}
	st.mu.Unlock()

	if res.State == utils.StateFailed {
		log.Warn().Str("op", "coordinator/pool").Err(res.Err).Msgf("%s %s failed", job.Kind, job.Name())
	}
	if msg != "" {
		pub.send(event{kind: eventJobDone, msg: msg})
	}
}
