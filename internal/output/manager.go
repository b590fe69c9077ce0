package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minelauncher/mcfetch/internal/utils"
)

type TaskOutput struct {
	Handle      string
	Label       string
	Status      string
	Message     string
	Snapshot    utils.ProgressSnapshot
	Details     []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager renders one line per install plus its live progress, and a
// summary when stopped. Redrawing only happens on a terminal.
type Manager struct {
	outputs     map[string]*TaskOutput
	mutex       sync.RWMutex
	out         io.Writer
	live        bool
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[string]*TaskOutput),
		out:         os.Stdout,
		live:        isTerminal(),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

// SetOutput sends rendering to w and disables live redraws.
func (m *Manager) SetOutput(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
	m.live = false
}

func (m *Manager) Register(handle, label string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.taskCount++
	m.outputs[handle] = &TaskOutput{
		Handle:      handle,
		Label:       label,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.taskCount,
	}
}

func (m *Manager) Update(handle string, snap utils.ProgressSnapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[handle]; exists && !info.Complete {
		info.Snapshot = snap
		info.Status = "active"
		info.Message = snap.StatusMessage
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) Complete(handle, message string) {
	m.finish(handle, "success", message, nil, nil)
}

// Warn completes a task that succeeded with optional files missing.
func (m *Manager) Warn(handle, message string, details []string) {
	m.finish(handle, "warning", message, details, nil)
}

func (m *Manager) ReportError(handle string, err error) {
	m.finish(handle, "error", err.Error(), nil, err)
}

func (m *Manager) finish(handle, status, message string, details []string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[handle]
	if !exists {
		return
	}
	info.Complete = true
	info.Status = status
	info.Message = message
	info.Details = details
	info.Error = err
	info.LastUpdated = time.Now()
	if err != nil {
		m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: err, Time: time.Now()})
	}
}

func (m *Manager) GetStatus(handle string) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[handle]; exists {
		return info.Status
	}
	return "unknown"
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sorted() []*TaskOutput {
	all := make([]*TaskOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

// lines renders the current state without cursor movement.
func (m *Manager) lines() []string {
	var lines []string
	indent := strings.Repeat(" ", 2)
	for _, info := range m.sorted() {
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		message := info.Message
		if message == "" {
			message = "waiting..."
		}
		lines = append(lines, fmt.Sprintf("%s%s %s %s %s", indent,
			m.statusIndicator(info.Status), headerStyle.Render(info.Label),
			debugStyle.Render(elapsed.String()), styleMessage(info.Status, truncate(message, 2+len(info.Label)+12))))

		if info.Status == "active" {
			s := info.Snapshot
			lines = append(lines, fmt.Sprintf("%s%s%s %s %s", indent+strings.Repeat(" ", 4),
				progressBar(s.AggregatePercent, 30),
				debugStyle.Render(fmt.Sprintf("%d/%d files", s.FilesFinished, s.TotalFilesPlanned)),
				StyleSymbols["bullet"],
				debugStyle.Render(utils.FormatRate(s.ThroughputBytesPerSec))))
		}
		for _, d := range info.Details {
			lines = append(lines, indent+strings.Repeat(" ", 4)+streamStyle.Render(truncate(d, 6)))
		}
	}
	return lines
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, height := terminalSize()
	available := height - 3

	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lines := m.lines()
	if len(lines) > available {
		hidden := len(lines) - available + 1
		lines = append([]string{FInfo(fmt.Sprintf("  %d lines hidden ...", hidden))}, lines[hidden:]...)
	}
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if m.live {
					m.updateDisplay()
				}
			case <-m.doneCh:
				if m.live {
					m.updateDisplay()
				} else {
					m.mutex.RLock()
					for _, line := range m.lines() {
						fmt.Fprintln(m.out, line)
					}
					m.mutex.RUnlock()
				}
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Version: %s", err.Label)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, warnings, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "warning":
			warnings++
		case "error":
			failures++
		}
	}
	total := len(m.outputs)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success+warnings, total)))
	if warnings > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+warningStyle.Render(fmt.Sprintf("Incomplete %d of %d", warnings, total)))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, total)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
