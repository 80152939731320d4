package fetchhttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tanq16/chunkfetch/internal/utils"
)

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"video/mp4", ".mp4"},
		{"image/png", ".png"},
		{"", ".mp4"},
		{"text/html; charset=utf-8", ".mp4"},
		{"video/MP4; codecs=avc1", ".mp4"},
		{"application/x-mpegURL", ".m3u8"},
		{"video/MP2T", ".ts"},
		{"video/x-flv", ".flv"},
		{"image/svg+xml", ".svg"},
		{"audio/mp4", ".mp4"},
		{"not a media type;;", ".mp4"},
	}
	for _, tc := range tests {
		if got := ExtensionFor(tc.contentType); got != tc.want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}

func TestResolveSavePath(t *testing.T) {
	link := "https://cdn.example.com/v/abc123.flv?sig=1"
	tests := []struct {
		dest string
		ext  string
		want string
	}{
		{filepath.Join("out", "clip.tmp"), ".png", filepath.Join("out", "clip.png")},
		{filepath.Join("out", "clip"), ".mp4", filepath.Join("out", "clip.mp4")},
		{filepath.Join("a", "b", "archive.tar.gz"), ".mp4", filepath.Join("a", "b", "archive.tar.mp4")},
		{"", ".mp4", "abc123.mp4"},
		{"videos" + string(filepath.Separator), ".mov", filepath.Join("videos", "abc123.mov")},
	}
	for _, tc := range tests {
		if got := ResolveSavePath(tc.dest, link, tc.ext); got != tc.want {
			t.Errorf("ResolveSavePath(%q, %q) = %q, want %q", tc.dest, tc.ext, got, tc.want)
		}
	}
}

func TestProbeDescribesResource(t *testing.T) {
	data := testData(1234)
	agents := make(chan string, 4)
	srv := rangeServer(t, data, "image/png", func(w http.ResponseWriter, r *http.Request) bool {
		select {
		case agents <- r.Header.Get("User-Agent"):
		default:
		}
		return false
	})
	dest := filepath.Join(t.TempDir(), "cover.jpg")
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, srv.URL+"/media", dest, 4)
	if err != nil {
		t.Fatalf("Probe returned %v", err)
	}
	if res.Size != 1234 {
		t.Errorf("Expected size 1234, got %d", res.Size)
	}
	if !res.RangeSupported {
		t.Error("Expected range support")
	}
	if want := filepath.Join(filepath.Dir(dest), "cover.png"); res.SavePath != want {
		t.Errorf("Expected save path %s, got %s", want, res.SavePath)
	}
	if res.Connections != 4 {
		t.Errorf("Expected 4 connections, got %d", res.Connections)
	}
	if userAgent := <-agents; userAgent != utils.ToolUserAgent {
		t.Errorf("Expected browser user agent, got %q", userAgent)
	}
}

func TestProbeWithoutAcceptRanges(t *testing.T) {
	srv := plainServer(t, testData(10), "video/mp4", nil)
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, srv.URL, filepath.Join(t.TempDir(), "v"), 4)
	if err != nil {
		t.Fatalf("Probe returned %v", err)
	}
	if res.RangeSupported {
		t.Error("Expected no range support")
	}
}

func TestProbeAnyAcceptRangesValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "whatever")
		w.Header().Set("Content-Length", "3")
		w.Write([]byte("abc"))
	}))
	defer srv.Close()
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	res, err := Probe(context.Background(), client, srv.URL, "x", 2)
	if err != nil {
		t.Fatalf("Probe returned %v", err)
	}
	if !res.RangeSupported {
		t.Error("Expected any Accept-Ranges value to enable ranges")
	}
}

func TestProbeMissingContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("streamed"))
		w.(http.Flusher).Flush() // forces chunked encoding
		w.Write([]byte("more"))
	}))
	defer srv.Close()
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	_, err := Probe(context.Background(), client, srv.URL, "x", 4)
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProbeError, got %v", err)
	}
}

func TestProbeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	_, err := Probe(context.Background(), client, srv.URL, "x", 4)
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProbeError, got %v", err)
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	link := srv.URL
	srv.Close()
	client := utils.NewFetchHTTPClient(utils.HTTPClientConfig{})
	_, err := Probe(context.Background(), client, link, "x", 4)
	var pe *ProbeError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ProbeError, got %v", err)
	}
}
