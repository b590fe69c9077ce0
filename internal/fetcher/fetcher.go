// Package fetcher downloads a single FileJob: skip when already valid,
// resume from a .part file, stream with cooperative cancellation, verify,
// then atomically rename into place.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minelauncher/mcfetch/internal/integrity"
	"github.com/minelauncher/mcfetch/internal/monitor"
	"github.com/minelauncher/mcfetch/internal/transport"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Config struct {
	AttemptsPerURL int
	// Backoff is the pause before retry number attempt (2, 3, ...) on one URL.
	Backoff func(attempt int) time.Duration
	// ReadTimeout aborts an attempt when no bytes arrive for this long.
	ReadTimeout time.Duration
	// Limiter caps aggregate throughput when set.
	Limiter *rate.Limiter
}

func DefaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 500 * time.Millisecond
}

// Hooks observe a fetch. All are optional and called from the fetching goroutine.
type Hooks struct {
	OnStatus func(msg string)
	OnChunk  func(done, total int64)
	// OnWrite is called with every path the fetch is about to create.
	OnWrite func(path string)
}

type Result struct {
	State   utils.JobState
	Skipped bool
	Bytes   int64
	URL     string
	Err     error
}

type Fetcher struct {
	opener  transport.Opener
	counter *monitor.Counter
	cfg     Config
}

func New(opener transport.Opener, counter *monitor.Counter, cfg Config) *Fetcher {
	if cfg.AttemptsPerURL <= 0 {
		cfg.AttemptsPerURL = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if counter == nil {
		counter = &monitor.Counter{}
	}
	return &Fetcher{opener: opener, counter: counter, cfg: cfg}
}

// run is the per-job state carried between transitions.
type run struct {
	f       *Fetcher
	job     utils.FileJob
	hooks   Hooks
	idx     int
	attempt int
	offset  int64
	resumed bool
	bytes   int64
	lastErr error
}

// Fetch drives one job to Verified, Failed or Cancelled. Per-URL failures
// are absorbed; only the final outcome is returned.
func (f *Fetcher) Fetch(ctx context.Context, job utils.FileJob, hooks Hooks) Result {
	r := &run{f: f, job: job, hooks: hooks}
	st := stateResolving
	for {
		log.Debug().Str("op", "fetcher/fetcher").Msgf("%s: %s", job.Name(), st)
		switch st {
		case stateResolving:
			st = r.resolve()
		case stateAttempting:
			st = r.attemptURL(ctx)
		case stateVerifying:
			st = r.verify()
		case stateNextURL:
			st = r.nextURL()
		case stateDone:
			return Result{State: utils.StateVerified, Skipped: r.idx < 0, Bytes: r.bytes, URL: r.currentURL()}
		case stateFailed:
			if utils.IsCancelled(r.lastErr) {
				return Result{State: utils.StateCancelled, Bytes: r.bytes, Err: r.lastErr}
			}
			return Result{State: utils.StateFailed, Bytes: r.bytes, Err: r.lastErr}
		}
	}
}

func (r *run) currentURL() string {
	if r.idx >= 0 && r.idx < len(r.job.URLs) {
		return r.job.URLs[r.idx]
	}
	return ""
}

func (r *run) status(format string, args ...any) {
	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(fmt.Sprintf(format, args...))
	}
}

func (r *run) wrote(path string) {
	if r.hooks.OnWrite != nil {
		r.hooks.OnWrite(path)
	}
}

func (r *run) resolve() state {
	if len(r.job.URLs) == 0 {
		r.lastErr = utils.ErrNoCandidates
		return stateFailed
	}
	if integrity.Valid(r.job.LocalPath, r.job.MinSize, r.job.ExpectedHash) {
		r.idx = -1
		return stateDone
	}
	if err := utils.EnsureParent(r.job.LocalPath); err != nil {
		r.lastErr = fmt.Errorf("creating directory: %w", err)
		return stateFailed
	}
	part := r.job.PartPath()
	if info, err := os.Stat(r.job.LocalPath); err == nil && !info.IsDir() {
		// Keep the invalid copy as the resume base instead of overwriting it.
		r.wrote(part)
		if err := os.Rename(r.job.LocalPath, part); err != nil {
			log.Warn().Str("op", "fetcher/fetcher").Err(err).Msgf("could not move %s aside", r.job.LocalPath)
		}
	}
	if info, err := os.Stat(part); err == nil {
		r.offset = info.Size()
		r.resumed = r.offset > 0
	}
	r.attempt = 1
	return stateAttempting
}

func (r *run) attemptURL(ctx context.Context) state {
	if err := ctx.Err(); err != nil {
		r.lastErr = &utils.CancelledError{Path: r.job.LocalPath}
		return stateFailed
	}
	url := r.job.URLs[r.idx]
	if r.attempt > 1 {
		r.status("retrying %s from %s", r.job.Name(), url)
		if !sleepCtx(ctx, r.f.cfg.Backoff(r.attempt)) {
			r.lastErr = &utils.CancelledError{Path: r.job.LocalPath}
			return stateFailed
		}
	} else {
		r.status("downloading %s", r.job.Name())
	}
	err := r.stream(ctx, url)
	if err != nil {
		r.lastErr = err
		if !utils.IsCancelled(err) {
			log.Debug().Str("op", "fetcher/fetcher").Err(err).Msgf("attempt %d for %s via %s failed", r.attempt, r.job.Name(), url)
		}
	}
	next, discard := transition(outcome{err: err, attempt: r.attempt, attempts: r.f.cfg.AttemptsPerURL, resumed: r.resumed})
	if discard {
		r.discardPart()
	}
	if next == stateAttempting {
		r.attempt++
	}
	return next
}

// stream performs one request against url and appends to the .part file.
func (r *run) stream(ctx context.Context, url string) error {
	wctx, wd := newWatchdog(ctx, r.f.cfg.ReadTimeout)
	defer wd.Stop()

	s, err := r.f.opener.Open(wctx, url, r.offset)
	if err != nil {
		return classify(ctx, wctx, url, err, r.job.LocalPath)
	}
	defer s.Body.Close()

	if r.offset > 0 && !s.Partial {
		log.Warn().Str("op", "fetcher/fetcher").Msgf("%s ignored range request, restarting %s", url, r.job.Name())
		r.offset = 0
		r.resumed = false
	}
	flags := os.O_CREATE | os.O_WRONLY
	if r.offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	part := r.job.PartPath()
	r.wrote(part)
	out, err := os.OpenFile(part, flags, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", part, err)
	}
	defer out.Close()

	total := r.job.MinSize
	if s.ContentLength >= 0 {
		total = s.ContentLength + r.offset
	}
	chunk := utils.SmallChunkSize
	if total > utils.LargeFileThreshold {
		chunk = utils.LargeChunkSize
	}
	buf := make([]byte, chunk)
	var received int64
	for {
		n, readErr := io.ReadFull(s.Body, buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing %s: %w", part, err)
			}
			r.offset += int64(n)
			r.bytes += int64(n)
			received += int64(n)
			r.f.counter.Add(int64(n))
			if r.hooks.OnChunk != nil {
				r.hooks.OnChunk(r.offset, max(total, r.offset))
			}
			wd.Pause()
			if err := r.throttle(ctx, n); err != nil {
				return &utils.CancelledError{Path: r.job.LocalPath}
			}
			wd.Kick()
		}
		if ctx.Err() != nil {
			return &utils.CancelledError{Path: r.job.LocalPath}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			// A short final chunk is normal; the declared length is checked below.
			break
		}
		if readErr != nil {
			return classify(ctx, wctx, url, readErr, r.job.LocalPath)
		}
	}
	if s.ContentLength >= 0 && received != s.ContentLength {
		return &utils.TransferError{URL: url, Err: fmt.Errorf("short body: got %d of %d bytes", received, s.ContentLength)}
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", part, err)
	}
	return nil
}

func (r *run) throttle(ctx context.Context, n int) error {
	lim := r.f.cfg.Limiter
	if lim == nil {
		return nil
	}
	for n > 0 {
		step := min(n, lim.Burst())
		if err := lim.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

func (r *run) verify() state {
	part := r.job.PartPath()
	if err := integrity.Verify(part, r.job.MinSize, r.job.ExpectedHash); err != nil {
		r.lastErr = err
		next, discard := transition(outcome{err: err, attempt: r.attempt, attempts: r.f.cfg.AttemptsPerURL, resumed: r.resumed})
		if discard {
			r.discardPart()
		}
		if next == stateAttempting {
			r.attempt++
		}
		return next
	}
	r.wrote(r.job.LocalPath)
	if err := os.Rename(part, r.job.LocalPath); err != nil {
		r.lastErr = fmt.Errorf("finalizing %s: %w", r.job.LocalPath, err)
		return stateFailed
	}
	return stateDone
}

func (r *run) nextURL() state {
	if r.lastErr != nil && !utils.IsCancelled(r.lastErr) {
		r.status("failed %s via %s: %v", r.job.Name(), r.currentURL(), r.lastErr)
	}
	r.idx++
	r.attempt = 1
	if r.idx >= len(r.job.URLs) {
		r.idx = len(r.job.URLs) - 1
		return stateFailed
	}
	return stateAttempting
}

func (r *run) discardPart() {
	if err := os.Remove(r.job.PartPath()); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("op", "fetcher/fetcher").Err(err).Msgf("could not remove %s", r.job.PartPath())
	}
	r.offset = 0
	r.resumed = false
}

// classify turns a raw error into the taxonomy: parent cancellation wins,
// a fired watchdog is a stalled transfer, everything else a TransferError.
func classify(parent, wctx context.Context, url string, err error, path string) error {
	if parent.Err() != nil {
		return &utils.CancelledError{Path: path}
	}
	if errors.Is(context.Cause(wctx), os.ErrDeadlineExceeded) {
		return &utils.TransferError{URL: url, Err: fmt.Errorf("read stalled: %w", os.ErrDeadlineExceeded)}
	}
	var te *utils.TransferError
	if errors.As(err, &te) {
		return te
	}
	return &utils.TransferError{URL: url, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
