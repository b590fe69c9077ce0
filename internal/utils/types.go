package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SourcePreference decides which origin a fetch tries first.
type SourcePreference int

const (
	MirrorOnly SourcePreference = iota
	MirrorFirst
	OfficialFirst
	OfficialOnly
)

var sourcePreferenceNames = map[SourcePreference]string{
	MirrorOnly:    "mirror-only",
	MirrorFirst:   "mirror-first",
	OfficialFirst: "official-first",
	OfficialOnly:  "official-only",
}

func (p SourcePreference) String() string {
	if name, ok := sourcePreferenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("SourcePreference(%d)", int(p))
}

// ParseSourcePreference accepts the names printed by String, case-insensitively.
// An empty string yields the default MirrorFirst.
func ParseSourcePreference(s string) (SourcePreference, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MirrorFirst, nil
	}
	for pref, name := range sourcePreferenceNames {
		if name == s {
			return pref, nil
		}
	}
	return MirrorFirst, fmt.Errorf("unknown source preference %q", s)
}

type JobKind string

const (
	KindClient     JobKind = "client"
	KindLibrary    JobKind = "library"
	KindAssetIndex JobKind = "asset-index"
	KindAsset      JobKind = "asset"
)

type JobState string

const (
	StatePlanned   JobState = "planned"
	StateFetching  JobState = "fetching"
	StateVerified  JobState = "verified"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// FileJob is one file of a batch. URLs are already ordered by source preference.
type FileJob struct {
	URLs         []string
	LocalPath    string
	ExpectedHash string
	MinSize      int64
	Kind         JobKind
	Required     bool
}

func (j FileJob) Name() string {
	return filepath.Base(j.LocalPath)
}

func (j FileJob) PartPath() string {
	return j.LocalPath + PartSuffix
}

// Large reports whether the job belongs to the large-file tier.
func (j FileJob) Large() bool {
	return j.MinSize >= LargeFileThreshold
}

// JobBatch is everything needed to install one version. The descriptor and
// the asset index are written during planning; Jobs covers the rest.
type JobBatch struct {
	VersionID  string
	Descriptor string
	Client     FileJob
	Libraries  []FileJob
	AssetIndex FileJob
	Assets     []FileJob
}

// Jobs returns the downloadable jobs: client, libraries, assets.
func (b *JobBatch) Jobs() []FileJob {
	jobs := make([]FileJob, 0, b.Len())
	jobs = append(jobs, b.Client)
	jobs = append(jobs, b.Libraries...)
	jobs = append(jobs, b.Assets...)
	return jobs
}

func (b *JobBatch) Len() int {
	return 1 + len(b.Libraries) + len(b.Assets)
}

// ProgressSnapshot is the aggregate view pushed to progress callbacks.
type ProgressSnapshot struct {
	CurrentFileBytesTotal int64
	CurrentFileBytesDone  int64
	TotalFilesPlanned     int
	FilesFinished         int
	FilesFailed           int
	ThroughputBytesPerSec float64
	StatusMessage         string
	AggregatePercent      float64
}

type ProgressFunc func(ProgressSnapshot)

type BatchStatus string

const (
	StatusCompleted BatchStatus = "completed"
	StatusPartial   BatchStatus = "partial"
	StatusFailed    BatchStatus = "failed"
	StatusCancelled BatchStatus = "cancelled"
)

type JobFailure struct {
	Path     string
	Kind     JobKind
	Required bool
	Err      error
}

// Report is the terminal outcome of one DownloadVersion call.
type Report struct {
	VersionID string
	Status    BatchStatus
	Planned   int
	Finished  int
	Failed    int
	Skipped   int
	Failures  []JobFailure
	Bytes     int64
	Elapsed   time.Duration
}

// Success is true when every required file is in place.
func (r *Report) Success() bool {
	return r.Status == StatusCompleted || r.Status == StatusPartial
}

type DownloadEntry struct {
	VersionID string `yaml:"id"`
	Root      string `yaml:"root,omitempty"`
	Source    string `yaml:"source,omitempty"`
}
