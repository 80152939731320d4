package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	fetchhttp "github.com/tanq16/chunkfetch/internal/downloaders/http"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// fakeObjects serves one object and honours "bytes=a-b" ranges.
type fakeObjects struct {
	data        []byte
	contentType string
	gets        atomic.Int32
	failGets    bool
}

func (f *fakeObjects) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Key) == "missing.bin" {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(f.data))),
		ContentType:   aws.String(f.contentType),
	}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets.Add(1)
	if f.failGets {
		return nil, errors.New("access denied")
	}
	start, end := int64(0), int64(len(f.data)-1)
	if in.Range != nil {
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
	}
	end = min(end, int64(len(f.data)-1))
	part := f.data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(part)),
		ContentLength: aws.Int64(int64(len(part))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(f.data))),
	}, nil
}

func objectData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://media/videos/clip.mp4")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bucket != "media" || key != "videos/clip.mp4" {
		t.Errorf("Unexpected bucket/key %q/%q", bucket, key)
	}
	for _, bad := range []string{"s3://", "s3:///key", "s3://bucket", "s3://bucket/", "s3://bucket/prefix/", "https://x/y"} {
		if _, _, err := parseS3URL(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestTransferDownloadsInParts(t *testing.T) {
	data := objectData(1000)
	api := &fakeObjects{data: data, contentType: "video/quicktime"}
	dest := filepath.Join(t.TempDir(), "movie")
	transfer, err := newTransfer(context.Background(), api, "media", "movie.bin", dest, 4)
	if err != nil {
		t.Fatalf("newTransfer returned %v", err)
	}
	transfer.partSize = 100

	if want := dest + ".mov"; transfer.SavePath != want {
		t.Errorf("Expected save path %s, got %s", want, transfer.SavePath)
	}
	if err := transfer.Download(context.Background()); err != nil {
		t.Fatalf("Download returned %v", err)
	}
	got, err := os.ReadFile(transfer.SavePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("downloaded object differs from source")
	}
	if transfer.Progress().Current() != 1000 {
		t.Errorf("Expected 1000 bytes counted, got %d", transfer.Progress().Current())
	}
	if api.gets.Load() != 10 {
		t.Errorf("Expected 10 part requests, got %d", api.gets.Load())
	}
}

func TestTransferFailureIsDownloadError(t *testing.T) {
	api := &fakeObjects{data: objectData(300), failGets: true}
	transfer, err := newTransfer(context.Background(), api, "media", "clip", filepath.Join(t.TempDir(), "clip"), 2)
	if err != nil {
		t.Fatalf("newTransfer returned %v", err)
	}
	err = transfer.Download(context.Background())
	var de *fetchhttp.DownloadError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DownloadError, got %v", err)
	}
	if transfer.Progress().Complete() {
		t.Error("Counter must not be complete")
	}
}

func TestBuildJobUsesInjectedClient(t *testing.T) {
	api := &fakeObjects{data: objectData(64), contentType: "image/png"}
	d := &S3Downloader{newAPI: func(context.Context, string) (objectAPI, error) { return api, nil }}
	job := &utils.FetchJob{
		URL:        "s3://media/covers/cover.bin",
		OutputPath: filepath.Join(t.TempDir(), "cover"),
		Metadata:   map[string]any{},
	}
	if err := d.ValidateJob(job); err != nil {
		t.Fatalf("ValidateJob returned %v", err)
	}
	if err := d.BuildJob(context.Background(), job); err != nil {
		t.Fatalf("BuildJob returned %v", err)
	}
	if filepath.Ext(job.OutputPath) != ".png" {
		t.Errorf("Expected .png output, got %s", job.OutputPath)
	}
	if job.ID == "" {
		t.Error("Expected BuildJob to assign a job ID")
	}
	if _, ok := job.Metadata["transfer"].(*Transfer); !ok {
		t.Error("Expected the prepared transfer in job metadata")
	}
	if job.Tracker == nil || job.Tracker.Total() != 64 {
		t.Fatalf("Expected tracker with total 64")
	}
	if err := d.Download(context.Background(), job); err != nil {
		t.Fatalf("Download returned %v", err)
	}
	if job.Tracker.Current() != 64 {
		t.Errorf("Expected 64 bytes counted, got %d", job.Tracker.Current())
	}
}

func TestBuildJobMissingObject(t *testing.T) {
	api := &fakeObjects{data: objectData(1)}
	d := &S3Downloader{newAPI: func(context.Context, string) (objectAPI, error) { return api, nil }}
	job := &utils.FetchJob{URL: "s3://media/missing.bin", Metadata: map[string]any{}}
	if err := d.ValidateJob(job); err != nil {
		t.Fatal(err)
	}
	var pe *fetchhttp.ProbeError
	if err := d.BuildJob(context.Background(), job); !errors.As(err, &pe) {
		t.Errorf("Expected ProbeError, got %v", err)
	}
}
