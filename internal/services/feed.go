package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// DefaultFeedURL is the public Atom endpoint listing a channel's newest uploads.
const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// FeedSource reads a channel's public Atom feed.
//
// The feed costs no API quota but only carries the newest uploads with title, description,
// publish time and thumbnail. It never reports durations, tags, shorts or playlists.
type FeedSource struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewFeedSource creates a feed reader. An empty baseURL selects [DefaultFeedURL].
func NewFeedSource(baseURL string, client *http.Client, logger *log.Logger) *FeedSource {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FeedSource{baseURL: baseURL, httpClient: client, logger: logger}
}

// FetchChannelSnapshot implements [Source]. Only [ModeLatest] and [ModeFull] are served, both from the same feed.
func (f *FeedSource) FetchChannelSnapshot(ctx context.Context, req SnapshotRequest) (*ChannelSnapshot, error) {
	if req.Mode == ModePlaylists {
		return nil, fmt.Errorf("%w: feeds do not list playlists", shared.ErrInvalidInput)
	}

	feed, err := f.fetch(ctx, req.ExternalChannelID)
	if err != nil {
		return nil, err
	}

	snapshot := &ChannelSnapshot{
		Source:  models.SourceFeed,
		Channel: &ChannelMetadata{ExternalID: req.ExternalChannelID, Title: feed.Title},
	}

	seen := make(map[string]struct{}, len(feed.Items))
	for _, item := range feed.Items {
		v := feedVideo(item)
		if v.ExternalID == "" {
			continue
		}
		if _, dup := seen[v.ExternalID]; dup {
			continue
		}
		seen[v.ExternalID] = struct{}{}
		snapshot.Videos = append(snapshot.Videos, v)
	}

	f.logger.Debug("fetched feed", "channel", req.ExternalChannelID, "videos", len(snapshot.Videos))
	return snapshot, nil
}

func (f *FeedSource) fetch(ctx context.Context, channelID string) (*gofeed.Feed, error) {
	feedURL := f.baseURL + "?channel_id=" + url.QueryEscape(channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// DNS, connection and timeout failures all surface here
		return nil, fmt.Errorf("%w: feed %s: %v", shared.ErrTransient, channelID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: feed for channel %s", shared.ErrNotFound, channelID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: feed for channel %s", shared.ErrRateLimited, channelID)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: feed status %d", shared.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: feed status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed %s: %v", shared.ErrTransient, channelID, err)
	}
	return feed, nil
}

// feedVideo maps an Atom entry using the yt: and media: extensions YouTube adds.
//
// Fields only names what the entry actually carried, at most [models.FeedFields], so a sparse
// entry never blanks a value an earlier sync stored.
func feedVideo(item *gofeed.Item) VideoSnapshot {
	v := VideoSnapshot{
		ExternalID: extensionValue(item.Extensions, "yt", "videoId"),
		Source:     models.SourceFeed,
		Title:      strings.TrimSpace(item.Title),
	}
	if v.ExternalID == "" {
		v.ExternalID = strings.TrimPrefix(item.GUID, "yt:video:")
	}
	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		v.PublishedAt = &published
	}

	if group := mediaGroup(item.Extensions); group != nil {
		if d := group.Children["description"]; len(d) > 0 {
			v.Description = d[0].Value
		}
		if thumbs := group.Children["thumbnail"]; len(thumbs) > 0 {
			v.ThumbnailURL = thumbs[0].Attrs["url"]
		}
	}
	if v.Description == "" {
		v.Description = item.Description
	}

	if v.Title != "" {
		v.Fields |= models.FieldTitle
	}
	if v.Description != "" {
		v.Fields |= models.FieldDescription
	}
	if v.PublishedAt != nil {
		v.Fields |= models.FieldPublishedAt
	}
	if v.ThumbnailURL != "" {
		v.Fields |= models.FieldThumbnail
	}
	return v
}

func extensionValue(exts ext.Extensions, namespace, name string) string {
	if values := exts[namespace][name]; len(values) > 0 {
		return strings.TrimSpace(values[0].Value)
	}
	return ""
}

func mediaGroup(exts ext.Extensions) *ext.Extension {
	if groups := exts["media"]["group"]; len(groups) > 0 {
		return &groups[0]
	}
	return nil
}
