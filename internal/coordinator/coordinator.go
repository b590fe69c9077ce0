// Package coordinator installs one version: it plans the batch, runs the
// small and large file tiers on separate worker pools and reports progress.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/minelauncher/mcfetch/internal/fetcher"
	"github.com/minelauncher/mcfetch/internal/monitor"
	"github.com/minelauncher/mcfetch/internal/planner"
	"github.com/minelauncher/mcfetch/internal/source"
	"github.com/minelauncher/mcfetch/internal/transport"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type Options struct {
	Root       string
	Preference utils.SourcePreference
	Origins    source.Origins
	MaxWorkers int

	HTTP           transport.HTTPClientConfig
	S3             transport.S3Config
	AttemptsPerURL int
	Backoff        func(attempt int) time.Duration
	ReadTimeout    time.Duration
	// LimitRate caps total throughput in bytes per second, 0 for none.
	LimitRate int64
	// SpeedInterval overrides the monitor tick, for tests.
	SpeedInterval time.Duration

	Progress utils.ProgressFunc
	// OnWrite sees every path a download creates, metadata included.
	OnWrite func(path string)
}

type Coordinator struct {
	opts    Options
	mux     *transport.Mux
	planner *planner.Planner
	fetcher *fetcher.Fetcher
	counter *monitor.Counter
}

func New(opts Options) *Coordinator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = utils.DefaultWorkers
	}
	opts.MaxWorkers = min(opts.MaxWorkers, utils.MaxWorkers)
	if opts.AttemptsPerURL <= 0 {
		opts.AttemptsPerURL = utils.DefaultAttemptsPerURL
	}
	if opts.Origins.OfficialManifest == "" {
		opts.Origins = source.DefaultOrigins()
	}
	opts.HTTP.MaxConns = 2 * opts.MaxWorkers
	if opts.HTTP.AuthToken != "" && len(opts.HTTP.AuthHosts) == 0 {
		opts.HTTP.AuthHosts = opts.Origins.MirrorHosts()
	}

	mux := transport.NewMux(opts.HTTP, opts.S3)
	counter := &monitor.Counter{}
	var limiter *rate.Limiter
	if opts.LimitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LimitRate), int(max(opts.LimitRate, utils.LargeChunkSize)))
	}
	c := &Coordinator{
		opts:    opts,
		mux:     mux,
		planner: planner.New(mux, source.NewResolver(opts.Preference, opts.Origins), opts.Root),
		fetcher: fetcher.New(mux, counter, fetcher.Config{
			AttemptsPerURL: opts.AttemptsPerURL,
			Backoff:        opts.Backoff,
			ReadTimeout:    opts.ReadTimeout,
			Limiter:        limiter,
		}),
		counter: counter,
	}
	c.planner.OnWrite(c.wrote)
	return c
}

// Planner exposes the planner, used for version listing.
func (c *Coordinator) Planner() *planner.Planner {
	return c.planner
}

// DownloadVersion plans and fetches every file of versionID. Only planning
// failures are returned as errors; download outcomes are in the report.
func (c *Coordinator) DownloadVersion(ctx context.Context, versionID string) (*utils.Report, error) {
	start := time.Now()
	st := &counts{}
	pub := newPublisher(st, c.opts.Progress)

	pub.status(fmt.Sprintf("planning %s", versionID))
	batch, err := c.planner.PlanBatch(ctx, versionID)
	if err != nil {
		if utils.IsCancelled(err) {
			pub.stop(fmt.Sprintf("cancelled %s", versionID))
			return &utils.Report{VersionID: versionID, Status: utils.StatusCancelled, Elapsed: time.Since(start)}, nil
		}
		pub.stop(fmt.Sprintf("failed %s: %v", versionID, err))
		return nil, err
	}

	jobs := batch.Jobs()
	st.mu.Lock()
	st.planned = len(jobs)
	st.mu.Unlock()
	log.Info().Str("op", "coordinator/coordinator").Msgf("%s: %d files planned", versionID, len(jobs))

	mon := monitor.New(c.counter, c.opts.SpeedInterval, st.active, func(t monitor.Tick) {
		pub.send(event{kind: eventTick, speed: t.BytesPerSec})
	})
	mon.Start()
	defer mon.Stop()

	large, small := lo.FilterReject(jobs, func(j utils.FileJob, _ int) bool { return j.Large() })
	done := make(chan struct{}, 2)
	go func() {
		c.runPool(ctx, small, c.opts.MaxWorkers, st, pub)
		done <- struct{}{}
	}()
	go func() {
		c.runPool(ctx, large, min(utils.MaxLargeWorkers, c.opts.MaxWorkers), st, pub)
		done <- struct{}{}
	}()
	<-done
	<-done
	mon.Stop()

	report := st.report(versionID, ctx.Err() != nil)
	report.Elapsed = time.Since(start)
	pub.stop(summary(report))
	log.Info().Str("op", "coordinator/coordinator").Msgf("%s: %s (%d/%d files, %d failed, %s)",
		versionID, report.Status, report.Finished, report.Planned, report.Failed, utils.FormatBytes(uint64(report.Bytes)))
	return report, nil
}

// Close releases the shared connection pool.
func (c *Coordinator) Close() {
	c.mux.Close()
}

func (c *Coordinator) wrote(path string) {
	if c.opts.OnWrite != nil && path != "" {
		c.opts.OnWrite(path)
	}
}

func (st *counts) report(versionID string, interrupted bool) *utils.Report {
	st.mu.Lock()
	defer st.mu.Unlock()
	r := &utils.Report{
		VersionID: versionID,
		Planned:   st.planned,
		Finished:  st.finished,
		Failed:    st.failed,
		Skipped:   st.skipped,
		Failures:  append([]utils.JobFailure(nil), st.failures...),
		Bytes:     st.bytes,
	}
	requiredFailed := lo.ContainsBy(r.Failures, func(f utils.JobFailure) bool { return f.Required })
	switch {
	case st.cancelled > 0 || (interrupted && st.finished+st.failed < st.planned):
		r.Status = utils.StatusCancelled
	case requiredFailed:
		r.Status = utils.StatusFailed
	case st.failed > 0:
		r.Status = utils.StatusPartial
	default:
		r.Status = utils.StatusCompleted
	}
	return r
}

func summary(r *utils.Report) string {
	switch r.Status {
	case utils.StatusCompleted:
		return fmt.Sprintf("finished %s", r.VersionID)
	case utils.StatusPartial:
		return fmt.Sprintf("finished %s with %d optional files missing", r.VersionID, r.Failed)
	case utils.StatusCancelled:
		return fmt.Sprintf("cancelled %s", r.VersionID)
	default:
		return fmt.Sprintf("failed %s: %d files failed", r.VersionID, r.Failed)
	}
}
