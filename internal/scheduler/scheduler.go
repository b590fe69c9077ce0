package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minelauncher/mcfetch/internal/output"
	"github.com/minelauncher/mcfetch/internal/registry"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Options struct {
	// Parallel is how many versions install at once.
	Parallel int
	// Workers is the file worker count of each install.
	Workers    int
	Root       string
	Preference utils.SourcePreference
	// Output replaces the terminal display, for tests.
	Output io.Writer
}

// Run installs every entry through reg and renders progress. It returns an
// error when any install failed or was cancelled.
func Run(ctx context.Context, reg *registry.Registry, entries []utils.DownloadEntry, opts Options) error {
	outputMgr := output.NewManager()
	if opts.Output != nil {
		outputMgr.SetOutput(opts.Output)
	}
	reg.OnChange(func(info registry.TaskInfo) {
		outputMgr.Update(info.Handle, info.Progress)
	})
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	stop := context.AfterFunc(ctx, func() {
		for _, t := range reg.Tasks() {
			if !t.State.Done() {
				_ = reg.Cancel(t.Handle)
			}
		}
	})
	defer stop()

	jobCh := make(chan utils.DownloadEntry, len(entries))
	for _, e := range entries {
		jobCh <- e
	}
	close(jobCh)

	var mu sync.Mutex
	var failed []string
	var wg sync.WaitGroup
	for range max(1, min(opts.Parallel, len(entries))) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobCh {
				if !processEntry(ctx, reg, entry, opts, outputMgr) {
					mu.Lock()
					failed = append(failed, entry.VersionID)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d installs failed: %v", len(failed), len(entries), failed)
	}
	return nil
}

func processEntry(ctx context.Context, reg *registry.Registry, entry utils.DownloadEntry, opts Options, outputMgr *output.Manager) bool {
	root := lo.Ternary(entry.Root != "", entry.Root, opts.Root)
	pref := opts.Preference
	if entry.Source != "" {
		p, err := utils.ParseSourcePreference(entry.Source)
		if err != nil {
			reportEarly(outputMgr, entry, err)
			return false
		}
		pref = p
	}
	if ctx.Err() != nil {
		reportEarly(outputMgr, entry, &utils.CancelledError{})
		return false
	}

	handle, err := reg.StartDownload(entry.VersionID, root, pref, opts.Workers)
	if err != nil {
		reportEarly(outputMgr, entry, err)
		return false
	}
	outputMgr.Register(handle, entry.VersionID)
	report, err := reg.Wait(handle)
	if err != nil {
		log.Debug().Str("op", "scheduler/scheduler").Err(err).Msgf("install of %s failed", entry.VersionID)
		outputMgr.ReportError(handle, err)
		return false
	}

	details := lo.Map(report.Failures, func(f utils.JobFailure, _ int) string {
		return fmt.Sprintf("%s %s: %v", f.Kind, f.Path, f.Err)
	})
	switch report.Status {
	case utils.StatusCompleted:
		outputMgr.Complete(handle, fmt.Sprintf("installed %s: %d files (%d already present), %s in %s",
			entry.VersionID, report.Finished, report.Skipped, utils.FormatBytes(uint64(report.Bytes)), report.Elapsed.Round(time.Millisecond)))
		return true
	case utils.StatusPartial:
		outputMgr.Warn(handle, fmt.Sprintf("installed %s with %d optional files missing", entry.VersionID, report.Failed), details)
		return true
	case utils.StatusCancelled:
		outputMgr.ReportError(handle, fmt.Errorf("install of %s: %w", entry.VersionID, utils.ErrCancelled))
		return false
	default:
		outputMgr.ReportError(handle, fmt.Errorf("install of %s: %d files failed, first: %v", entry.VersionID, report.Failed, report.Failures[0].Err))
		return false
	}
}

// reportEarly records an install that never reached the registry.
func reportEarly(outputMgr *output.Manager, entry utils.DownloadEntry, err error) {
	key := "early:" + entry.VersionID + ":" + entry.Root
	outputMgr.Register(key, entry.VersionID)
	outputMgr.ReportError(key, err)
}
