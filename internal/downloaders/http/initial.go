package fetchhttp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/chunkfetch/internal/utils"
)

type HTTPDownloader struct{}

func (d *HTTPDownloader) ValidateJob(job *utils.FetchJob) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL has no host: %s", job.URL)
	}
	return nil
}

// BuildJob probes the link and stores the prepared transfer in the job metadata.
func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.FetchJob) error {
	transfer, err := NewJob(ctx, job.URL, job.OutputPath, Options{
		Connections:      job.Connections,
		MaxRetries:       job.MaxRetries,
		Preallocate:      job.Preallocate,
		Overwrite:        job.Force,
		HTTPClientConfig: job.HTTPClientConfig,
	})
	if err != nil {
		return err
	}
	res := transfer.Resource()
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.ID = transfer.ID()
	job.OutputPath = transfer.SavePath()
	job.Tracker = transfer.Progress()
	job.Metadata["transfer"] = transfer
	log.Info().Str("op", "http/initial").Str("job", job.ID).Int64("size", res.Size).Bool("ranges", res.RangeSupported).
		Msgf("job built for %s", job.URL)
	return nil
}

func (d *HTTPDownloader) Download(ctx context.Context, job *utils.FetchJob) error {
	transfer, ok := job.Metadata["transfer"].(*Job)
	if !ok {
		return fmt.Errorf("job for %s was not built", job.URL)
	}
	return transfer.Download(ctx)
}
