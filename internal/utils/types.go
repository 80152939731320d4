package utils

import "context"

// Downloader is implemented by every job type the scheduler can dispatch.
type Downloader interface {
	ValidateJob(job *FetchJob) error
	BuildJob(ctx context.Context, job *FetchJob) error
	Download(ctx context.Context, job *FetchJob) error
}

// Tracker is the read side of a job's progress counter.
type Tracker interface {
	Current() int64
	Total() int64
	Changed() <-chan struct{}
}

type FetchJob struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	Connections      int
	MaxRetries       int
	Preallocate      bool
	Force            bool
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
	Tracker          Tracker // set by BuildJob
}

type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Link       string `yaml:"link"`
	Type       string `yaml:"type,omitempty"`
}
