package s3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	fetchhttp "github.com/tanq16/chunkfetch/internal/downloaders/http"
	"github.com/tanq16/chunkfetch/internal/progress"
	"github.com/tanq16/chunkfetch/internal/utils"
)

const minPartSize = manager.DefaultDownloadPartSize

// Transfer is one probed S3 object. The SDK downloader fetches its parts
// concurrently and writes each at its offset, like the HTTP chunk workers.
type Transfer struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	SavePath    string

	api         objectAPI
	counter     *progress.Counter
	connections int
	partSize    int64
}

func newTransfer(ctx context.Context, api objectAPI, bucket, key, dest string, connections int) (*Transfer, error) {
	head, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &fetchhttp.ProbeError{URL: fmt.Sprintf("s3://%s/%s", bucket, key), Err: err}
	}
	if head.ContentLength == nil {
		return nil, &fetchhttp.ProbeError{URL: fmt.Sprintf("s3://%s/%s", bucket, key), Err: fmt.Errorf("object has no content length")}
	}
	size := *head.ContentLength
	contentType := aws.ToString(head.ContentType)
	if connections < 1 {
		connections = utils.DefaultConnections
	}
	return &Transfer{
		Bucket:      bucket,
		Key:         key,
		Size:        size,
		ContentType: contentType,
		SavePath:    fetchhttp.ResolveSavePath(dest, "s3://"+bucket+"/"+key, fetchhttp.ExtensionFor(contentType)),
		api:         api,
		counter:     progress.NewCounter(size),
		connections: connections,
		partSize:    max(size/int64(connections)+1, minPartSize),
	}, nil
}

func (t *Transfer) Progress() *progress.Counter { return t.counter }

func (t *Transfer) Download(ctx context.Context) error {
	if dir := filepath.Dir(t.SavePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %v", err)
		}
	}
	file, err := os.OpenFile(t.SavePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating file: %v", err)
	}
	defer file.Close()
	if t.Size == 0 {
		return nil
	}

	downloader := manager.NewDownloader(t.api, func(d *manager.Downloader) {
		d.Concurrency = t.connections
		d.PartSize = t.partSize
		// a part retried mid-body is rewritten from its start and would be counted twice
		d.PartBodyMaxRetries = 0
	})
	log.Info().Str("op", "s3/download").Msgf("Starting download of s3://%s/%s (%d bytes, %d connections)", t.Bucket, t.Key, t.Size, t.connections)
	n, err := downloader.Download(ctx, &countingWriterAt{w: file, counter: t.counter}, &s3.GetObjectInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	})
	if err != nil {
		return &fetchhttp.DownloadError{Path: t.SavePath, Written: t.counter.Current(), Total: t.Size, Errs: []error{err}}
	}
	if n != t.Size || t.counter.Current() != t.Size {
		return &fetchhttp.DownloadError{Path: t.SavePath, Written: t.counter.Current(), Total: t.Size,
			Errs: []error{fmt.Errorf("size mismatch: expected %d bytes, got %d", t.Size, n)}}
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("error syncing file: %v", err)
	}
	log.Info().Str("op", "s3/download").Msgf("Download successful for %s", t.SavePath)
	return nil
}
