package output

import (
	"strings"
	"testing"
)

func TestFormatProgress(t *testing.T) {
	if got := FormatProgress(1024, 1<<20); got != "1.0 KiB / 1.0 MiB" {
		t.Errorf("Unexpected progress text %q", got)
	}
	if got := FormatProgress(-5, 0); got != "0 B / 0 B" {
		t.Errorf("Unexpected progress text %q", got)
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(2048, 2); got != "1.0 KiB/s" {
		t.Errorf("Unexpected speed %q", got)
	}
	if got := FormatSpeed(100, 0); got != "0 B/s" {
		t.Errorf("Expected 0 B/s for zero elapsed, got %q", got)
	}
}

func TestPrintProgressBarClamps(t *testing.T) {
	if bar := PrintProgressBar(50, 100, 10); !strings.Contains(bar, "50.0%") {
		t.Errorf("Expected 50.0%% in %q", bar)
	}
	if bar := PrintProgressBar(500, 100, 10); !strings.Contains(bar, "100.0%") {
		t.Errorf("Expected clamped 100.0%% in %q", bar)
	}
	if bar := PrintProgressBar(10, 0, 10); !strings.Contains(bar, "100.0%") {
		t.Errorf("Expected zero total to render as complete, got %q", bar)
	}
}
