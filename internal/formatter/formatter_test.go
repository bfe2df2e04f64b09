package formatter

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	th "github.com/desertthunder/tubesync/internal/testing"
)

func sampleChannels(now time.Time) []*models.Channel {
	synced := now.Add(-2 * time.Hour)
	gone := now.Add(-time.Hour)
	return []*models.Channel{
		{ID: "c1", Sequence: 1, Title: "Go Talks", Handle: "@gotalks", IsFavorited: true, LastSyncedAt: &synced},
		{ID: "c2", Sequence: 2, Title: "Retro Games", UnreachableAt: &gone},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": Text, "table": Text, "CSV": CSV, "md": Markdown, "markdown": Markdown}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected an error for xml")
	}
}

func TestChannels(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Channels(&buf, Text, sampleChannels(now), now); err != nil {
			t.Fatalf("Channels failed: %v", err)
		}
		out := strings.ToLower(buf.String())
		for _, want := range []string{"go talks", "@gotalks", "2h ago", "never", "unreachable", "2 channels"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Channels(&buf, CSV, sampleChannels(now), now); err != nil {
			t.Fatalf("Channels failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if !strings.HasPrefix(strings.ToLower(lines[0]), "#,id,title,handle") {
			t.Errorf("unexpected header: %s", lines[0])
		}
		if !strings.Contains(buf.String(), "2026-01-01 10:00:00") {
			t.Errorf("csv should carry absolute times:\n%s", buf.String())
		}
	})

	t.Run("write errors surface", func(t *testing.T) {
		if err := Channels(&th.FWriter{}, Text, sampleChannels(now), now); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestVideosAndRuns(t *testing.T) {
	published := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	deleted := published.Add(time.Hour)
	videos := []*models.Video{
		{ID: "v1", ExternalID: "abc", Title: "A long talk", PublishedAt: &published, DurationSeconds: 3723, SourceRank: models.SourceAPI},
		{ID: "v2", ExternalID: "def", Title: "Gone", DeletedAt: &deleted, IsShort: true},
	}

	var buf bytes.Buffer
	if err := Videos(&buf, Markdown, videos); err != nil {
		t.Fatalf("Videos failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"| v1 | abc |", "1:02:03", "[deleted] Gone", "api"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	runs := []*models.SyncRun{{
		Sequence: 7, Kind: models.JobRefresh, ChannelID: "c1", Attempt: 2, State: models.JobFailed,
		ErrorClass: models.ClassQuotaExceeded, ErrorMessage: "quota exceeded",
		StartedAt: published, FinishedAt: published.Add(1500 * time.Millisecond),
	}}
	if err := Runs(&buf, CSV, runs); err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if !strings.Contains(buf.String(), "quota_exceeded") || !strings.Contains(buf.String(), "1.5s") {
		t.Errorf("unexpected runs output:\n%s", buf.String())
	}
}

func TestWritePlaylistExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	p := &models.Playlist{ID: "p1", Title: "Best of", Description: "Curated"}
	items := []models.PlaylistItem{
		{VideoID: "v2", VideoExternalID: "def", VideoTitle: "Second", Position: 1024},
		{VideoID: "v1", VideoExternalID: "abc", VideoTitle: "First", Position: 2048},
	}

	path, err := WritePlaylistExport(dir, Markdown, p, items)
	if err != nil {
		t.Fatalf("WritePlaylistExport failed: %v", err)
	}
	th.AssertFileExists(t, path)

	content := th.MustReadFile(t, path)
	if !strings.HasPrefix(content, "# Best of") {
		t.Errorf("missing heading:\n%s", content)
	}
	if strings.Index(content, "Second") > strings.Index(content, "First") {
		t.Errorf("items out of order:\n%s", content)
	}
}
