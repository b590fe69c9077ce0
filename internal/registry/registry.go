// Package registry runs version installs in the background and tracks them
// by handle so callers can observe, cancel and clean them up.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minelauncher/mcfetch/internal/coordinator"
	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
)

type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskPartial   TaskState = "partial"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

func (s TaskState) Done() bool {
	return s != TaskRunning
}

// TaskInfo is a copy of a task's state at one point in time.
type TaskInfo struct {
	Handle     string
	VersionID  string
	TargetDir  string
	Preference utils.SourcePreference
	State      TaskState
	Progress   utils.ProgressSnapshot
	Report     *utils.Report
	Err        error
	Started    time.Time
	Ended      time.Time
}

type task struct {
	mu      sync.Mutex
	info    TaskInfo
	written map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func (t *task) snapshot() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

type Registry struct {
	base coordinator.Options

	mu        sync.Mutex
	tasks     map[string]*task
	listeners []func(TaskInfo)
}

// New creates a registry whose downloads share base; root, preference and
// worker count are set per download.
func New(base coordinator.Options) *Registry {
	return &Registry{base: base, tasks: map[string]*task{}}
}

// OnChange registers fn for every task update. fn runs on download
// goroutines and must not block.
func (r *Registry) OnChange(fn func(TaskInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) StartDownload(versionID, targetDir string, pref utils.SourcePreference, maxWorkers int) (string, error) {
	if versionID == "" {
		return "", errors.New("version id is required")
	}
	if targetDir == "" {
		return "", errors.New("target directory is required")
	}
	if maxWorkers < 0 || maxWorkers > utils.MaxWorkers {
		return "", fmt.Errorf("worker count must be at most %d", utils.MaxWorkers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		info: TaskInfo{
			Handle:     uuid.NewString(),
			VersionID:  versionID,
			TargetDir:  targetDir,
			Preference: pref,
			State:      TaskRunning,
			Started:    time.Now(),
		},
		written: map[string]struct{}{},
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	opts := r.base
	opts.Root = targetDir
	opts.Preference = pref
	opts.MaxWorkers = maxWorkers
	opts.Progress = func(s utils.ProgressSnapshot) {
		t.mu.Lock()
		t.info.Progress = s
		t.mu.Unlock()
		r.notify(t)
	}
	opts.OnWrite = func(path string) {
		t.mu.Lock()
		t.written[path] = struct{}{}
		t.mu.Unlock()
	}

	r.mu.Lock()
	r.tasks[t.info.Handle] = t
	r.mu.Unlock()

	log.Debug().Str("op", "registry/registry").Msgf("starting %s as %s", versionID, t.info.Handle)
	go r.run(ctx, t, coordinator.New(opts))
	return t.info.Handle, nil
}

func (r *Registry) run(ctx context.Context, t *task, c *coordinator.Coordinator) {
	defer c.Close()
	report, err := c.DownloadVersion(ctx, t.info.VersionID)

	t.mu.Lock()
	t.info.Report = report
	t.info.Err = err
	t.info.Ended = time.Now()
	switch {
	case err != nil:
		t.info.State = TaskFailed
	case report.Status == utils.StatusCompleted:
		t.info.State = TaskCompleted
	case report.Status == utils.StatusPartial:
		t.info.State = TaskPartial
	case report.Status == utils.StatusCancelled:
		t.info.State = TaskCancelled
	default:
		t.info.State = TaskFailed
	}
	t.mu.Unlock()
	t.cancel()
	r.notify(t)
	close(t.done)
}

func (r *Registry) notify(t *task) {
	info := t.snapshot()
	r.mu.Lock()
	listeners := append([]func(TaskInfo){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(info)
	}
}

func (r *Registry) lookup(handle string) (*task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnknownTask, handle)
	}
	return t, nil
}

// Cancel asks a running download to stop. Cancelling a finished task is a no-op.
func (r *Registry) Cancel(handle string) error {
	t, err := r.lookup(handle)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

// Wait blocks until the task ends and returns its outcome.
func (r *Registry) Wait(handle string) (*utils.Report, error) {
	t, err := r.lookup(handle)
	if err != nil {
		return nil, err
	}
	<-t.done
	info := t.snapshot()
	return info.Report, info.Err
}

func (r *Registry) Get(handle string) (TaskInfo, bool) {
	t, err := r.lookup(handle)
	if err != nil {
		return TaskInfo{}, false
	}
	return t.snapshot(), true
}

// Tasks lists every known task, oldest first.
func (r *Registry) Tasks() []TaskInfo {
	r.mu.Lock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Started.Before(infos[j].Started) })
	return infos
}

// Remove forgets a finished task.
func (r *Registry) Remove(handle string) error {
	t, err := r.lookup(handle)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
	default:
		return fmt.Errorf("%w: %s", utils.ErrTaskRunning, handle)
	}
	r.mu.Lock()
	delete(r.tasks, handle)
	r.mu.Unlock()
	return nil
}

// DeleteArtifacts removes every file the task wrote, temporaries and the
// version descriptor included, then prunes directories left empty.
func (r *Registry) DeleteArtifacts(handle string) error {
	t, err := r.lookup(handle)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
	default:
		return fmt.Errorf("%w: %s", utils.ErrTaskRunning, handle)
	}

	t.mu.Lock()
	paths := make([]string, 0, len(t.written))
	for p := range t.written {
		paths = append(paths, p)
	}
	root := t.info.TargetDir
	t.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		pruneEmptyDirs(filepath.Dir(p), root)
	}
	if len(errs) > 0 {
		return fmt.Errorf("deleting artifacts: %w", errors.Join(errs...))
	}
	t.mu.Lock()
	t.written = map[string]struct{}{}
	t.mu.Unlock()
	log.Debug().Str("op", "registry/registry").Msgf("deleted %d artifacts of %s", len(paths), handle)
	return nil
}

func pruneEmptyDirs(dir, root string) {
	root = filepath.Clean(root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			return
		}
	}
}
