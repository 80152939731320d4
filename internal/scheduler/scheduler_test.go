package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	fetchhttp "github.com/tanq16/chunkfetch/internal/downloaders/http"
	"github.com/tanq16/chunkfetch/internal/output"
	"github.com/tanq16/chunkfetch/internal/utils"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func serveFile(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunReportsEveryJobInOrder(t *testing.T) {
	data := bytes.Repeat([]byte("chunk"), 20_000)
	srv := serveFile(t, data)
	dir := t.TempDir()
	jobs := []utils.FetchJob{
		{URL: srv.URL + "/a", OutputPath: filepath.Join(dir, "a"), Connections: 4},
		{URL: srv.URL + "/missing", OutputPath: filepath.Join(dir, "b"), Connections: 4},
		{URL: "ftp://example.com/c", JobType: "http"},
		{URL: "magnet:?xt=urn", JobType: "torrent"},
		{URL: srv.URL + "/e", OutputPath: filepath.Join(dir, "e"), Connections: 2},
	}
	var out bytes.Buffer
	results := Run(context.Background(), jobs, Config{Workers: 2, Output: &out})

	if len(results) != len(jobs) {
		t.Fatalf("Expected %d results, got %d", len(jobs), len(results))
	}
	for _, i := range []int{0, 4} {
		r := results[i]
		if r.Err != nil {
			t.Fatalf("job %d failed: %v", i, r.Err)
		}
		if want := filepath.Join(dir, string(rune('a'+i))) + ".mp4"; r.OutputPath != want {
			t.Errorf("job %d saved to %s, want %s", i, r.OutputPath, want)
		}
		if r.ID == "" {
			t.Errorf("job %d has no ID", i)
		}
		if r.Written != int64(len(data)) || r.Total != int64(len(data)) {
			t.Errorf("job %d reported %d/%d", i, r.Written, r.Total)
		}
		got, err := os.ReadFile(r.OutputPath)
		if err != nil || !bytes.Equal(got, data) {
			t.Errorf("job %d file differs from source (%v)", i, err)
		}
	}
	if jobs[0].OutputPath != filepath.Join(dir, "a") || jobs[0].Tracker != nil {
		t.Errorf("Run modified the caller's job: %+v", jobs[0])
	}
	var pe *fetchhttp.ProbeError
	if !errors.As(results[1].Err, &pe) {
		t.Errorf("Expected ProbeError for 404, got %v", results[1].Err)
	}
	if results[2].Err == nil {
		t.Error("Expected validation failure for ftp link")
	}
	if !errors.Is(results[3].Err, utils.ErrUnknownJobType) {
		t.Errorf("Expected ErrUnknownJobType, got %v", results[3].Err)
	}
	if !strings.Contains(out.String(), "Completed 2 of 5") {
		t.Errorf("Summary missing from output:\n%s", out.String())
	}
}

type fakeTracker struct {
	current, total int64
	changed        chan struct{}
}

func (f *fakeTracker) Current() int64           { return f.current }
func (f *fakeTracker) Total() int64             { return f.total }
func (f *fakeTracker) Changed() <-chan struct{} { return f.changed }

func TestTrackProgressStopsOnDone(t *testing.T) {
	tracker := &fakeTracker{current: 5, total: 10, changed: make(chan struct{})}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		trackProgress(tracker, 1, output.NewManager(io.Discard), done)
	}()
	close(done)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("trackProgress did not return after done was closed")
	}
}

func TestRunEmpty(t *testing.T) {
	if results := Run(context.Background(), nil, Config{Workers: 3, Output: io.Discard}); len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}
