package fetchhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanq16/chunkfetch/internal/progress"
	"github.com/tanq16/chunkfetch/internal/utils"
)

type Options struct {
	Connections      int           // default 4
	MaxRetries       int           // attempts per range, default 5
	RetryBackoff     time.Duration // multiplied by the attempt number, default 500ms
	Preallocate      bool          // reserve the full size on disk before writing
	Overwrite        bool          // reuse an existing save path instead of renaming
	HTTPClientConfig utils.HTTPClientConfig
}

func (o Options) withDefaults() Options {
	if o.Connections < 1 {
		o.Connections = utils.DefaultConnections
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = utils.DefaultMaxRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.HTTPClientConfig.UserAgent == "" {
		o.HTTPClientConfig.UserAgent = utils.ToolUserAgent
	}
	o.HTTPClientConfig.HighThreadMode = o.HTTPClientConfig.HighThreadMode || o.Connections > 5
	return o
}

type destination interface {
	io.WriterAt
	io.Closer
	Sync() error
}

// Job is one probed download. Download runs the transfer once; the accessors
// may be called from any goroutine at any time.
type Job struct {
	id       string
	resource *Resource
	counter  *progress.Counter
	client   *utils.FetchHTTPClient
	opts     Options
	logger   zerolog.Logger
	open     func(path string, size int64) (destination, error)

	once sync.Once
	done chan struct{}
	err  error
}

// NewJob probes link and prepares a download to dest. dest supplies the
// directory and file stem; the extension comes from the served content type.
func NewJob(ctx context.Context, link, dest string, opts Options) (*Job, error) {
	opts = opts.withDefaults()
	client := utils.NewFetchHTTPClient(opts.HTTPClientConfig)
	res, err := Probe(ctx, client, link, dest, opts.Connections)
	if err != nil {
		return nil, err
	}
	if !opts.Overwrite {
		if _, err := os.Stat(res.SavePath); err == nil {
			res.SavePath = utils.RenewOutputPath(res.SavePath)
		}
	}
	return newJob(res, client, opts), nil
}

func newJob(res *Resource, client *utils.FetchHTTPClient, opts Options) *Job {
	id := uuid.NewString()
	j := &Job{
		id:       id,
		resource: res,
		counter:  progress.NewCounter(res.Size),
		client:   client,
		opts:     opts,
		logger:   log.With().Str("job", id).Logger(),
		done:     make(chan struct{}),
	}
	j.open = func(path string, size int64) (destination, error) {
		return openDestination(path, size, opts.Preallocate, j.logger)
	}
	return j
}

func (j *Job) ID() string                  { return j.id }
func (j *Job) Resource() Resource          { return *j.resource }
func (j *Job) TotalSize() int64            { return j.resource.Size }
func (j *Job) DownloadedSize() int64       { return j.counter.Current() }
func (j *Job) SavePath() string            { return j.resource.SavePath }
func (j *Job) Progress() *progress.Counter { return j.counter }
func (j *Job) Done() <-chan struct{}       { return j.done }

// Err returns the terminal result, or nil while the job is still running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until Download has finished and returns its result.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Download transfers the resource and blocks until every worker has stopped.
// It returns nil only if every byte was fetched and written; the progress
// counter alone never implies success. Later calls return the first result.
func (j *Job) Download(ctx context.Context) error {
	j.once.Do(func() {
		j.err = j.run(ctx)
		close(j.done)
	})
	return j.err
}

func (j *Job) run(ctx context.Context) error {
	res := j.resource
	start := time.Now()
	fail := func(errs ...error) error {
		return &DownloadError{Path: res.SavePath, Written: j.counter.Current(), Total: res.Size, Errs: errs}
	}

	if dir := filepath.Dir(res.SavePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fail(fmt.Errorf("error creating output directory: %w", err))
		}
	}
	dst, err := j.open(res.SavePath, res.Size)
	if err != nil {
		return fail(fmt.Errorf("error opening output file: %w", err))
	}
	defer dst.Close()

	if res.Size == 0 {
		j.logger.Info().Str("op", "http/job").Msgf("Nothing to transfer for %s", res.SavePath)
		return nil
	}

	segments, err := j.segments(dst)
	if err != nil {
		return fail(err)
	}
	j.logger.Info().Str("op", "http/job").Int("chunks", len(segments)).Bool("ranged", res.RangeSupported).
		Msgf("Downloading %s (%d bytes) to %s", res.URL, res.Size, res.SavePath)

	errs := make([]error, len(segments))
	var g errgroup.Group
	for i, s := range segments {
		g.Go(func() error {
			errs[i] = s.run(ctx)
			return errs[i]
		})
	}
	// Wait reports only the first failure; errs keeps every segment's result.
	var failures []error
	if g.Wait() != nil {
		for _, err := range errs {
			if err != nil {
				failures = append(failures, err)
			}
		}
	}
	if err := dst.Sync(); err != nil {
		failures = append(failures, fmt.Errorf("error syncing output file: %w", err))
	}
	if len(failures) > 0 {
		err := fail(failures...)
		j.logger.Error().Str("op", "http/job").Err(err).Msg("Download failed")
		return err
	}
	if written := j.counter.Current(); written != res.Size {
		// all segments reported success, so this is a bookkeeping bug
		return fail(fmt.Errorf("size mismatch: expected %d bytes, wrote %d", res.Size, written))
	}
	j.logger.Info().Str("op", "http/job").Dur("elapsed", time.Since(start)).Msgf("Download successful for %s", res.SavePath)
	return nil
}

// segments builds one worker per planned range, or a single plain worker
// when the server does not advertise range support.
func (j *Job) segments(dst io.WriterAt) ([]*segment, error) {
	res := j.resource
	ranges := []Range{{Start: 0, End: res.Size - 1}}
	if res.RangeSupported {
		var err error
		ranges, err = Plan(res.Size, res.Connections)
		if err != nil {
			return nil, err
		}
	}
	stall := j.client.Config().StallTimeout
	segments := make([]*segment, 0, len(ranges))
	for i, r := range ranges {
		segments = append(segments, &segment{
			id:       i,
			rng:      r,
			ranged:   res.RangeSupported,
			url:      res.URL,
			client:   j.client,
			dst:      dst,
			counter:  j.counter,
			logger:   j.logger,
			attempts: j.opts.MaxRetries,
			backoff:  j.opts.RetryBackoff,
			stall:    stall,
			bufSize:  utils.DefaultBufferSize,
		})
	}
	return segments, nil
}

// openDestination creates or truncates path; with preallocate the full size
// is reserved up front so concurrent writers never extend the file.
func openDestination(path string, size int64, preallocate bool, logger zerolog.Logger) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if preallocate && size > 0 {
		if err := fallocate.Fallocate(f, 0, size); err != nil {
			logger.Warn().Str("op", "http/job").Err(err).Msg("fallocate failed, falling back to truncate")
			if err := f.Truncate(size); err != nil {
				f.Close()
				return nil, errors.Join(fmt.Errorf("error reserving %d bytes", size), err)
			}
		}
	}
	return f, nil
}
