package s3

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/chunkfetch/internal/utils"
)

type S3Downloader struct {
	// newAPI builds the object client; nil means the shared AWS config chain.
	newAPI func(ctx context.Context, profile string) (objectAPI, error)
}

func (d *S3Downloader) ValidateJob(job *utils.FetchJob) error {
	bucket, key, err := parseS3URL(job.URL)
	if err != nil {
		return err
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	job.Metadata["bucket"] = bucket
	job.Metadata["key"] = key
	log.Info().Str("op", "s3/initial").Msgf("job validated for s3://%s/%s", bucket, key)
	return nil
}

func (d *S3Downloader) BuildJob(ctx context.Context, job *utils.FetchJob) error {
	bucket, _ := job.Metadata["bucket"].(string)
	key, _ := job.Metadata["key"].(string)
	profile, _ := job.Metadata["profile"].(string)
	api, err := d.client(ctx, profile)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %v", err)
	}
	transfer, err := newTransfer(ctx, api, bucket, key, job.OutputPath, job.Connections)
	if err != nil {
		return err
	}
	if !job.Force {
		if _, err := os.Stat(transfer.SavePath); err == nil {
			transfer.SavePath = utils.RenewOutputPath(transfer.SavePath)
		}
	}
	job.OutputPath = transfer.SavePath
	job.Tracker = transfer.Progress()
	job.ID = uuid.NewString()
	job.Metadata["transfer"] = transfer
	log.Info().Str("op", "s3/initial").Str("job", job.ID).Int64("size", transfer.Size).Msgf("job built for s3://%s/%s", bucket, key)
	return nil
}

func (d *S3Downloader) Download(ctx context.Context, job *utils.FetchJob) error {
	transfer, ok := job.Metadata["transfer"].(*Transfer)
	if !ok {
		return fmt.Errorf("job for %s was not built", job.URL)
	}
	return transfer.Download(ctx)
}

func (d *S3Downloader) client(ctx context.Context, profile string) (objectAPI, error) {
	if d.newAPI != nil {
		return d.newAPI(ctx, profile)
	}
	return getS3Client(ctx, profile)
}
