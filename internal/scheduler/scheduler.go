package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	fetchhttp "github.com/tanq16/chunkfetch/internal/downloaders/http"
	"github.com/tanq16/chunkfetch/internal/downloaders/s3"
	"github.com/tanq16/chunkfetch/internal/output"
	"github.com/tanq16/chunkfetch/internal/utils"
)

// downloaderRegistry maps job types to their downloader implementations
var downloaderRegistry = map[string]utils.Downloader{
	"http": &fetchhttp.HTTPDownloader{},
	"s3":   &s3.S3Downloader{},
}

const progressTick = 200 * time.Millisecond

type Config struct {
	Workers int
	Output  io.Writer // defaults to stdout
}

// Result is the outcome of one job, in the order the jobs were given.
type Result struct {
	ID         string
	URL        string
	OutputPath string
	Written    int64
	Total      int64
	Err        error
}

// Run executes the jobs on a pool of workers and blocks until all of them
// have finished or ctx is cancelled.
func Run(ctx context.Context, jobs []utils.FetchJob, cfg Config) []Result {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	outputMgr := output.NewManager(cfg.Output)
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	results := make([]Result, len(jobs))
	ids := make([]int, len(jobs))
	for i := range jobs {
		ids[i] = outputMgr.RegisterFunction(jobs[i].URL)
	}
	jobCh := make(chan int, len(jobs))
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)

	var wg sync.WaitGroup
	for range min(cfg.Workers, max(len(jobs), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				job := jobs[i]
				results[i] = processJob(ctx, &job, ids[i], outputMgr)
			}
		}()
	}
	wg.Wait()
	return results
}

func processJob(ctx context.Context, job *utils.FetchJob, funcID int, outputMgr *output.Manager) Result {
	result := Result{URL: job.URL, OutputPath: job.OutputPath}
	fail := func(stage string, err error) Result {
		result.Err = err
		outputMgr.ReportError(funcID, fmt.Errorf("%s failed: %v", stage, err))
		outputMgr.SetMessage(funcID, fmt.Sprintf("Failed %s", job.URL))
		log.Error().Str("op", "scheduler").Err(err).Msgf("%s failed for %s", stage, job.URL)
		return result
	}
	if job.JobType == "" {
		job.JobType = utils.DetermineJobType(job.URL)
	}
	downloader, exists := downloaderRegistry[job.JobType]
	if !exists {
		return fail("lookup", fmt.Errorf("%w: %s", utils.ErrUnknownJobType, job.JobType))
	}

	outputMgr.SetStatus(funcID, "pending")
	outputMgr.SetMessage(funcID, fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(job); err != nil {
		return fail("validation", err)
	}
	outputMgr.SetMessage(funcID, fmt.Sprintf("Probing %s", job.URL))
	if err := downloader.BuildJob(ctx, job); err != nil {
		return fail("build", err)
	}
	result.ID = job.ID
	result.OutputPath = job.OutputPath
	outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.OutputPath))

	done := make(chan struct{})
	var tracking sync.WaitGroup
	if job.Tracker != nil {
		result.Total = job.Tracker.Total()
		tracking.Add(1)
		go func() {
			defer tracking.Done()
			trackProgress(job.Tracker, funcID, outputMgr, done)
		}()
	}
	err := downloader.Download(ctx, job)
	close(done)
	tracking.Wait()
	if job.Tracker != nil {
		result.Written = job.Tracker.Current()
	}
	if err != nil {
		return fail("download", err)
	}
	log.Info().Str("op", "scheduler").Str("job", job.ID).Msgf("Completed %s", job.URL)
	outputMgr.Complete(funcID, fmt.Sprintf("Completed %s (%s)", job.OutputPath, output.FormatProgress(result.Written, result.Total)))
	return result
}

// trackProgress redraws the progress bar when the counter moves, at most
// once per tick.
func trackProgress(tracker utils.Tracker, funcID int, outputMgr *output.Manager, done <-chan struct{}) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()
	for {
		changed := tracker.Changed()
		outputMgr.AddProgressBarToStream(funcID, tracker.Current(), tracker.Total())
		select {
		case <-done:
			return
		case <-changed:
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
