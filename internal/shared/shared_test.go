package shared

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		name    string
		seconds int
		want    string
	}{
		{name: "zero", seconds: 0, want: "0:00"},
		{name: "negative", seconds: -4, want: "0:00"},
		{name: "under a minute", seconds: 59, want: "0:59"},
		{name: "minutes", seconds: 253, want: "4:13"},
		{name: "hours", seconds: 3723, want: "1:02:03"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.seconds); got != tt.want {
				t.Errorf("FormatDuration(%d) = %v, want %v", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatSince(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tc := []struct {
		name string
		t    *time.Time
		want string
	}{
		{name: "nil", t: nil, want: "never"},
		{name: "seconds", t: at(10 * time.Second), want: "just now"},
		{name: "minutes", t: at(15 * time.Minute), want: "15m ago"},
		{name: "hours", t: at(5 * time.Hour), want: "5h ago"},
		{name: "days", t: at(72 * time.Hour), want: "3d ago"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSince(tt.t, now); got != tt.want {
				t.Errorf("FormatSince() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	t.Run("WithLogger adds fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "job", "j-1")
		logger.Info("hello")

		if !strings.Contains(buf.String(), "job=j-1") {
			t.Errorf("expected job field in output, got %q", buf.String())
		}
	})

	t.Run("SetLogLevel filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, log.WarnLevel)
		logger.Info("hidden")

		if buf.Len() != 0 {
			t.Errorf("expected no output below warn level, got %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "app.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Info("written")
	})

	t.Run("GenerateID is unique", func(t *testing.T) {
		if GenerateID() == GenerateID() {
			t.Error("expected distinct ids")
		}
	})
}
