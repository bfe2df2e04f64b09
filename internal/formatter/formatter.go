// package formatter renders library records as terminal tables, CSV or Markdown
package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// Format selects the output encoding.
type Format string

const (
	Text     Format = "text"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// ParseFormat accepts the names used by the --format flag.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "table":
		return Text, nil
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	switch f {
	case CSV:
		return ".csv"
	case Markdown:
		return ".md"
	default:
		return ".txt"
	}
}

const titleWidth = 48

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(header)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: titleWidth, WidthMaxEnforcer: text.Trim},
		{Name: "Name", WidthMax: titleWidth, WidthMaxEnforcer: text.Trim},
		{Name: "Error", WidthMax: titleWidth, WidthMaxEnforcer: text.Trim},
	})
	return t
}

func render(w io.Writer, f Format, t table.Writer) error {
	var out string
	switch f {
	case CSV:
		out = t.RenderCSV()
	case Markdown:
		out = t.RenderMarkdown()
	default:
		out = t.Render()
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}

func check(b bool) string {
	if b {
		return "✓"
	}
	return ""
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateTime)
}

// Channels writes one row per channel. Text output shows relative sync times, other formats absolute ones.
func Channels(w io.Writer, f Format, channels []*models.Channel, now time.Time) error {
	t := newTable(table.Row{"#", "ID", "Title", "Handle", "Fav", "Folder", "Last Synced", "Status"})
	for _, c := range channels {
		synced := stamp(c.LastSyncedAt)
		if f == Text {
			synced = shared.FormatSince(c.LastSyncedAt, now)
		}
		status := "ok"
		if !c.Reachable() {
			status = "unreachable"
			if f == Text {
				status = text.FgRed.Sprint(status)
			}
		}
		t.AppendRow(table.Row{c.Sequence, c.ID, c.Title, c.Handle, check(c.IsFavorited), c.FolderID, synced, status})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d channels", len(channels))})
	return render(w, f, t)
}

// Videos writes one row per video, newest first as given.
func Videos(w io.Writer, f Format, videos []*models.Video) error {
	t := newTable(table.Row{"ID", "External ID", "Title", "Published", "Duration", "Short", "Watched", "Fav", "Source"})
	for _, v := range videos {
		title := v.Title
		if v.Tombstoned() {
			title = "[deleted] " + title
		}
		t.AppendRow(table.Row{
			v.ID, v.ExternalID, title, stamp(v.PublishedAt), shared.FormatDuration(v.DurationSeconds),
			check(v.IsShort), check(v.IsWatched), check(v.IsFavorited), v.SourceRank,
		})
	}
	return render(w, f, t)
}

// Playlists writes one row per playlist.
func Playlists(w io.Writer, f Format, playlists []*models.Playlist) error {
	t := newTable(table.Row{"ID", "Kind", "Title", "Items", "Channel", "External ID", "Active", "Last Synced"})
	for _, p := range playlists {
		t.AppendRow(table.Row{
			p.ID, p.Kind, p.Title, p.ItemCount, p.ChannelID, p.ExternalID, check(p.SourceActive), stamp(p.LastSyncedAt),
		})
	}
	return render(w, f, t)
}

// PlaylistItems writes the membership of one playlist in position order.
func PlaylistItems(w io.Writer, f Format, items []models.PlaylistItem) error {
	t := newTable(table.Row{"#", "Position", "Video", "External ID", "Title", "Added"})
	for i, item := range items {
		t.AppendRow(table.Row{
			i + 1, strconv.FormatInt(item.Position, 10), item.VideoID, item.VideoExternalID, item.VideoTitle,
			item.AddedAt.UTC().Format(time.DateTime),
		})
	}
	return render(w, f, t)
}

// Folders writes one row per folder.
func Folders(w io.Writer, f Format, folders []*models.Folder) error {
	t := newTable(table.Row{"ID", "Name", "Parent", "Position"})
	for _, folder := range folders {
		t.AppendRow(table.Row{folder.ID, folder.Name, folder.ParentID, folder.Position})
	}
	return render(w, f, t)
}

// Tags writes one row per tag.
func Tags(w io.Writer, f Format, tags []*models.Tag) error {
	t := newTable(table.Row{"ID", "Name", "Created"})
	for _, tag := range tags {
		t.AppendRow(table.Row{tag.ID, tag.Name, tag.CreatedAt.UTC().Format(time.DateTime)})
	}
	return render(w, f, t)
}

// Runs writes the sync history, one row per job attempt.
func Runs(w io.Writer, f Format, runs []*models.SyncRun) error {
	t := newTable(table.Row{"#", "Kind", "Channel", "Attempt", "State", "Class", "Videos +/~/=", "Playlists +/~/=/-", "Took", "Error"})
	for _, r := range runs {
		state := string(r.State)
		if f == Text {
			state = stateColor(r.State).Sprint(state)
		}
		t.AppendRow(table.Row{
			r.Sequence, r.Kind, r.ChannelID, r.Attempt, state, r.ErrorClass,
			fmt.Sprintf("%d/%d/%d", r.VideosInserted, r.VideosUpdated, r.VideosUnchanged),
			fmt.Sprintf("%d/%d/%d/%d", r.PlaylistsInserted, r.PlaylistsUpdated, r.PlaylistsUnchanged, r.PlaylistsDeactivated),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.ErrorMessage,
		})
	}
	return render(w, f, t)
}

func stateColor(s models.JobState) text.Colors {
	switch s {
	case models.JobSucceeded:
		return text.Colors{text.FgGreen}
	case models.JobRetrying:
		return text.Colors{text.FgYellow}
	case models.JobFailed:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{}
	}
}

// WritePlaylistExport writes a playlist and its items to dir as {playlist id}{ext} and returns the path.
//
// Markdown exports get a heading and description above the table.
func WritePlaylistExport(dir string, f Format, p *models.Playlist, items []models.PlaylistItem) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, p.ID+f.Extension())
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if f == Markdown {
		fmt.Fprintf(file, "# %s\n\n", p.Title)
		if p.Description != "" {
			fmt.Fprintf(file, "%s\n\n", p.Description)
		}
		fmt.Fprintf(file, "**Videos**: %d\n\n", len(items))
	}
	if err := PlaylistItems(file, f, items); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
