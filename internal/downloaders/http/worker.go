package fetchhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tanq16/chunkfetch/internal/progress"
	"github.com/tanq16/chunkfetch/internal/utils"
)

// segment streams one byte range of the resource into dst. A segment without
// ranged set is the plain path: one request without a Range header, written
// sequentially from the range start.
type segment struct {
	id      int
	rng     Range
	ranged  bool
	url     string
	client  utils.HTTPDoer
	dst     io.WriterAt
	counter *progress.Counter
	logger  zerolog.Logger

	attempts int
	backoff  time.Duration
	stall    time.Duration
	bufSize  int

	next      int64 // first byte of rng not yet received
	writeErrs []error
}

func (s *segment) done() bool { return s.next > s.rng.End }

// run fetches the range, retrying network failures from the first byte not
// yet received. Write failures do not stop the segment but are part of the
// returned error.
func (s *segment) run(ctx context.Context) error {
	s.next = s.rng.Start
	var lastErr error
	attempt := 0
	for attempt < s.attempts && !s.done() {
		if attempt > 0 {
			s.logger.Warn().Str("op", "http/worker").Int("chunk", s.id).Err(lastErr).
				Msgf("Retrying %s from offset %d (attempt %d/%d)", s.rng, s.next, attempt+1, s.attempts)
			if err := sleepCtx(ctx, time.Duration(attempt)*s.backoff); err != nil {
				lastErr = err
				break
			}
		}
		attempt++
		err := s.fetch(ctx)
		if err == nil {
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	errs := s.writeErrs
	if !s.done() {
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		errs = append(errs, &TransferError{Chunk: s.id, Range: s.rng, Offset: s.next, Attempts: attempt, Err: lastErr})
		s.logger.Error().Str("op", "http/worker").Int("chunk", s.id).Err(lastErr).
			Msgf("Chunk %s failed with %d bytes missing", s.rng, s.rng.End-s.next+1)
	} else if len(s.writeErrs) == 0 {
		s.logger.Debug().Str("op", "http/worker").Int("chunk", s.id).Msgf("Chunk %s complete", s.rng)
	}
	return errors.Join(errs...)
}

func (s *segment) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("error creating GET request: %w", err)
	}
	var skip int64
	if s.ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", s.next, s.rng.End))
	} else {
		// no ranges: re-read from the start and drop what is already on disk
		skip = s.next - s.rng.Start
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()
	if s.ranged {
		if resp.StatusCode != http.StatusPartialContent {
			return fmt.Errorf("unexpected status code for ranged request: %d", resp.StatusCode)
		}
		first, last, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return err
		}
		if first != s.next || last != s.rng.End {
			return fmt.Errorf("server sent bytes %d-%d, requested %d-%d", first, last, s.next, s.rng.End)
		}
	}
	if !s.ranged && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var stalled atomic.Bool
	watchdog := time.AfterFunc(s.stall, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	buffer := make([]byte, s.bufSize)
	for !s.done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buffer)
		watchdog.Reset(s.stall)
		piece := buffer[:n]
		if skip > 0 {
			d := min(skip, int64(len(piece)))
			piece = piece[d:]
			skip -= d
		}
		if owed := s.rng.End - s.next + 1; int64(len(piece)) > owed {
			piece = piece[:owed]
		}
		if len(piece) > 0 {
			s.write(piece)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stalled.Load() {
				return fmt.Errorf("no data for %s: %w", s.stall, readErr)
			}
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if !s.done() {
		return fmt.Errorf("body ended %d bytes early: %w", s.rng.End-s.next+1, io.ErrUnexpectedEOF)
	}
	return nil
}

// write stores one piece at its final offset and counts what reached the file.
func (s *segment) write(piece []byte) {
	offset := s.next
	n, err := s.dst.WriteAt(piece, offset)
	s.next += int64(len(piece))
	s.counter.Add(int64(n))
	if err != nil {
		s.writeErrs = append(s.writeErrs, &WriteError{Chunk: s.id, Offset: offset, Length: len(piece), Err: err})
		s.logger.Error().Str("op", "http/worker").Int("chunk", s.id).Err(err).
			Msgf("Failed to write %d bytes at offset %d", len(piece), offset)
	}
}

// parseContentRange returns the first and last byte of a "bytes a-b/total" header.
func parseContentRange(value string) (int64, int64, error) {
	spec, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	spec, _, _ = strings.Cut(spec, "/")
	firstStr, lastStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	first, err := strconv.ParseInt(firstStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}
	last, err := strconv.ParseInt(lastStr, 10, 64)
	if err != nil || last < first {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return first, last, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
