package fetchhttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/chunkfetch/internal/utils"
)

// Resource describes a probed download target. It is never modified after
// NewJob returns, so workers read it without locking.
type Resource struct {
	URL            string
	Size           int64
	RangeSupported bool
	ContentType    string
	SavePath       string
	Connections    int
}

const defaultExtension = ".mp4"

// Keys are lower case; mime.ParseMediaType lowercases the media type.
var extensionTable = map[string]string{
	"video/x-flv":           ".flv",
	"video/mp4":             ".mp4",
	"application/x-mpegurl": ".m3u8",
	"video/mp2t":            ".ts",
	"video/3gpp":            ".3gpp",
	"video/quicktime":       ".mov",
	"video/x-msvideo":       ".avi",
	"video/x-ms-wmv":        ".wmv",
	"audio/x-wav":           ".wav",
	"audio/x-mp3":           ".mp3",
	"audio/mp4":             ".mp4",
	"application/ogg":       ".ogg",
	"image/jpeg":            ".jpeg",
	"image/png":             ".png",
	"image/tiff":            ".tiff",
	"image/gif":             ".gif",
	"image/svg+xml":         ".svg",
}

// ExtensionFor maps a Content-Type header value to a file extension.
func ExtensionFor(contentType string) string {
	if contentType == "" {
		return defaultExtension
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	if ext, ok := extensionTable[mediaType]; ok {
		return ext
	}
	return defaultExtension
}

// ResolveSavePath keeps the directory and stem of dest and swaps in ext.
// An empty stem falls back to the name in link.
func ResolveSavePath(dest, link, ext string) string {
	dir := filepath.Dir(dest)
	stem := fileStem(filepath.Base(dest))
	if dest == "" || strings.HasSuffix(dest, string(filepath.Separator)) || stem == "" {
		stem = fileStem(utils.NameFromURL(link))
	}
	return filepath.Join(dir, stem+ext)
}

func fileStem(base string) string {
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	// ".hidden" has no extension
	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Probe issues a GET, reads only the response headers and closes the body.
func Probe(ctx context.Context, client utils.HTTPDoer, link, dest string, connections int) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &ProbeError{URL: link, Err: fmt.Errorf("error creating request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProbeError{URL: link, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProbeError{URL: link, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}
	if resp.ContentLength < 0 {
		return nil, &ProbeError{URL: link, Err: fmt.Errorf("server didn't provide Content-Length header")}
	}

	resolved := link
	if resp.Request != nil && resp.Request.URL != nil {
		resolved = resp.Request.URL.String()
	}
	_, rangeSupported := resp.Header[http.CanonicalHeaderKey("Accept-Ranges")]
	contentType := resp.Header.Get("Content-Type")
	res := &Resource{
		URL:            resolved,
		Size:           resp.ContentLength,
		RangeSupported: rangeSupported,
		ContentType:    contentType,
		SavePath:       ResolveSavePath(dest, resolved, ExtensionFor(contentType)),
		Connections:    connections,
	}
	log.Debug().Str("op", "http/probe").Str("url", resolved).Int64("size", res.Size).
		Bool("ranges", res.RangeSupported).Str("contentType", contentType).Msgf("Probed resource, saving to %s", res.SavePath)
	return res, nil
}
