package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const (
	// videos.list accepts at most this many IDs per call, and list calls return at most this many items per page.
	apiPageSize = 50
)

var channelIDRegex = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)

// APISourceConfig tunes an [APISource].
type APISourceConfig struct {
	RequestsPerSecond float64
	Limits            Limits
	Shorts            ShortsPolicy
	Logger            *log.Logger
}

// APISource reads channels through the YouTube Data API v3.
//
// It is the only source that fills duration, tags and the shorts flag, and the only one that lists playlists.
type APISource struct {
	service *youtube.Service
	limiter *rate.Limiter
	limits  Limits
	shorts  ShortsPolicy
	logger  *log.Logger
}

// NewAPISource creates a Data API client. Authentication comes from opts, see [ClientOptions].
func NewAPISource(ctx context.Context, cfg APISourceConfig, opts ...option.ClientOption) (*APISource, error) {
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create youtube service: %v", shared.ErrAPIRequest, err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &APISource{
		service: service,
		limiter: rate.NewLimiter(limit, 1),
		limits:  cfg.Limits,
		shorts:  cfg.Shorts,
		logger:  logger,
	}, nil
}

// FetchChannelSnapshot implements [Source].
func (a *APISource) FetchChannelSnapshot(ctx context.Context, req SnapshotRequest) (*ChannelSnapshot, error) {
	switch req.Mode {
	case ModeFull:
		return a.fetchUploads(ctx, req, a.limits.FullFetch)
	case ModeLatest:
		return a.fetchUploads(ctx, req, a.limits.Refresh)
	case ModePlaylists:
		return a.fetchPlaylists(ctx, req)
	default:
		return nil, fmt.Errorf("%w: snapshot mode %v", shared.ErrInvalidInput, req.Mode)
	}
}

func (a *APISource) fetchUploads(ctx context.Context, req SnapshotRequest, limit int) (*ChannelSnapshot, error) {
	meta, err := a.channelByID(ctx, req.ExternalChannelID)
	if err != nil {
		return nil, err
	}

	uploads := meta.UploadsPlaylistID
	if uploads == "" {
		uploads = req.UploadsPlaylistID
	}

	entries, _, err := a.playlistEntries(ctx, uploads, limit)
	if errors.Is(err, shared.ErrNotFound) {
		// a channel without uploads has no uploads playlist
		entries, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VideoExternalID)
	}

	videos, err := a.VideoDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("fetched uploads", "channel", req.ExternalChannelID, "mode", req.Mode, "videos", len(videos))
	return &ChannelSnapshot{Source: models.SourceAPI, Channel: meta, Videos: videos}, nil
}

func (a *APISource) fetchPlaylists(ctx context.Context, req SnapshotRequest) (*ChannelSnapshot, error) {
	snapshot := &ChannelSnapshot{Source: models.SourceAPI, PlaylistsComplete: true}

	pageToken := ""
	for {
		if a.limits.Playlists > 0 && len(snapshot.Playlists) >= a.limits.Playlists {
			// more playlists exist than we list, so absence proves nothing
			snapshot.PlaylistsComplete = false
			break
		}

		if err := a.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := a.service.Playlists.List([]string{"snippet"}).
			ChannelId(req.ExternalChannelID).
			MaxResults(apiPageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil {
			return nil, classifyAPIError("playlists.list", err)
		}

		for _, item := range resp.Items {
			if a.limits.Playlists > 0 && len(snapshot.Playlists) >= a.limits.Playlists {
				snapshot.PlaylistsComplete = false
				break
			}

			p := PlaylistSnapshot{ExternalID: item.Id}
			if item.Snippet != nil {
				p.Title = item.Snippet.Title
				p.Description = item.Snippet.Description
				p.ThumbnailURL = bestThumbnail(item.Snippet.Thumbnails)
			}

			entries, _, err := a.playlistEntries(ctx, item.Id, a.limits.PlaylistItem)
			if errors.Is(err, shared.ErrNotFound) {
				a.logger.Warn("playlist vanished while listing", "playlist", item.Id)
				continue
			}
			if err != nil {
				return nil, err
			}
			p.Entries = entries
			snapshot.Playlists = append(snapshot.Playlists, p)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	a.logger.Debug("fetched playlists", "channel", req.ExternalChannelID,
		"playlists", len(snapshot.Playlists), "complete", snapshot.PlaylistsComplete)
	return snapshot, nil
}

// playlistEntries pages through a playlist keeping the first occurrence of each video, up to limit entries.
// The boolean reports whether the limit cut the listing short.
func (a *APISource) playlistEntries(ctx context.Context, playlistID string, limit int) ([]PlaylistEntry, bool, error) {
	if playlistID == "" {
		return nil, false, fmt.Errorf("%w: playlist id is empty", shared.ErrNotFound)
	}

	var (
		entries   []PlaylistEntry
		seen      = make(map[string]struct{})
		pageToken string
	)
	for {
		if err := a.wait(ctx); err != nil {
			return nil, false, err
		}
		resp, err := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(apiPageSize).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil {
			return nil, false, classifyAPIError("playlistItems.list", err)
		}

		for _, item := range resp.Items {
			entry := playlistEntry(item)
			if entry.VideoExternalID == "" {
				continue
			}
			if _, dup := seen[entry.VideoExternalID]; dup {
				continue
			}
			if limit > 0 && len(entries) >= limit {
				return entries, true, nil
			}
			seen[entry.VideoExternalID] = struct{}{}
			entries = append(entries, entry)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return entries, false, nil
		}
		if limit > 0 && len(entries) >= limit {
			return entries, true, nil
		}
	}
}

func playlistEntry(item *youtube.PlaylistItem) PlaylistEntry {
	var entry PlaylistEntry
	if item.ContentDetails != nil {
		entry.VideoExternalID = item.ContentDetails.VideoId
	}
	if item.Snippet != nil {
		entry.OwnerChannelID = item.Snippet.VideoOwnerChannelId
		if entry.VideoExternalID == "" && item.Snippet.ResourceId != nil {
			entry.VideoExternalID = item.Snippet.ResourceId.VideoId
		}
	}
	return entry
}

// VideoDetails looks up full metadata for ids, in chunks of 50, preserving the order of ids.
//
// IDs the API does not return (private or removed videos) are omitted.
func (a *APISource) VideoDetails(ctx context.Context, ids []string) ([]VideoSnapshot, error) {
	byID := make(map[string]VideoSnapshot, len(ids))
	for start := 0; start < len(ids); start += apiPageSize {
		chunk := ids[start:min(start+apiPageSize, len(ids))]

		if err := a.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := a.service.Videos.List([]string{"snippet", "contentDetails"}).
			Id(chunk...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, classifyAPIError("videos.list", err)
		}

		for _, item := range resp.Items {
			byID[item.Id] = a.videoSnapshot(item)
		}
	}

	videos := make([]VideoSnapshot, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

func (a *APISource) videoSnapshot(item *youtube.Video) VideoSnapshot {
	v := VideoSnapshot{ExternalID: item.Id, Source: models.SourceAPI, Fields: models.APIFields}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.ThumbnailURL = bestThumbnail(s.Thumbnails)
		v.Tags = s.Tags
		if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
			published := t.UTC()
			v.PublishedAt = &published
		}
	}
	if item.ContentDetails != nil {
		v.DurationSeconds = ParseISODuration(item.ContentDetails.Duration)
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	v.IsShort = a.shorts.Classify(v.DurationSeconds, v.Title, v.Description, v.Tags)
	return v
}

// ResolveChannel turns a UC id, an @handle, or a channel URL into channel metadata.
func (a *APISource) ResolveChannel(ctx context.Context, ref string) (*ChannelMetadata, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", shared.ErrInvalidChannel)
	}

	if channelIDRegex.MatchString(ref) {
		return a.channelByID(ctx, ref)
	}
	if strings.HasPrefix(ref, "@") {
		return a.channelBy(ctx, ref, func(c *youtube.ChannelsListCall) *youtube.ChannelsListCall {
			return c.ForHandle(ref)
		})
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", shared.ErrInvalidChannel, ref)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case strings.HasPrefix(segments[0], "@"):
		handle := segments[0]
		return a.channelBy(ctx, handle, func(c *youtube.ChannelsListCall) *youtube.ChannelsListCall {
			return c.ForHandle(handle)
		})
	case segments[0] == "channel" && len(segments) > 1 && channelIDRegex.MatchString(segments[1]):
		return a.channelByID(ctx, segments[1])
	case segments[0] == "user" && len(segments) > 1:
		username := segments[1]
		return a.channelBy(ctx, username, func(c *youtube.ChannelsListCall) *youtube.ChannelsListCall {
			return c.ForUsername(username)
		})
	case segments[0] == "c" && len(segments) > 1:
		id, err := a.searchChannel(ctx, segments[1])
		if err != nil {
			return nil, err
		}
		return a.channelByID(ctx, id)
	}
	return nil, fmt.Errorf("%w: %q", shared.ErrInvalidChannel, ref)
}

func (a *APISource) channelByID(ctx context.Context, id string) (*ChannelMetadata, error) {
	return a.channelBy(ctx, id, func(c *youtube.ChannelsListCall) *youtube.ChannelsListCall {
		return c.Id(id)
	})
}

func (a *APISource) channelBy(
	ctx context.Context, key string, filter func(*youtube.ChannelsListCall) *youtube.ChannelsListCall,
) (*ChannelMetadata, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	call := a.service.Channels.List([]string{"snippet", "contentDetails"})
	resp, err := filter(call).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError("channels.list", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: channel %s", shared.ErrNotFound, key)
	}

	item := resp.Items[0]
	meta := &ChannelMetadata{ExternalID: item.Id}
	if s := item.Snippet; s != nil {
		meta.Title = s.Title
		meta.Description = s.Description
		meta.Handle = s.CustomUrl
		meta.ThumbnailURL = bestThumbnail(s.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil && cd.RelatedPlaylists != nil {
		meta.UploadsPlaylistID = cd.RelatedPlaylists.Uploads
	}
	return meta, nil
}

// searchChannel resolves a legacy custom URL. Search costs 100 quota units, so it is the last resort.
func (a *APISource) searchChannel(ctx context.Context, query string) (string, error) {
	if err := a.wait(ctx); err != nil {
		return "", err
	}
	resp, err := a.service.Search.List([]string{"id"}).
		Q(query).
		Type("channel").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyAPIError("search.list", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
		return "", fmt.Errorf("%w: channel %s", shared.ErrNotFound, query)
	}
	return resp.Items[0].Id.ChannelId, nil
}

func (a *APISource) wait(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", shared.ErrTransient, err)
	}
	return nil
}

// classifyAPIError maps a Data API failure onto the source error taxonomy.
func classifyAPIError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reasons := make(map[string]bool, len(gerr.Errors))
		for _, item := range gerr.Errors {
			reasons[item.Reason] = true
		}

		switch {
		case gerr.Code == 403 && (reasons["quotaExceeded"] || reasons["dailyLimitExceeded"]):
			return fmt.Errorf("%w: %s: %v", shared.ErrQuotaExceeded, op, err)
		case gerr.Code == 429, gerr.Code == 403 && (reasons["rateLimitExceeded"] || reasons["userRateLimitExceeded"]):
			return fmt.Errorf("%w: %s: %v", shared.ErrRateLimited, op, err)
		case gerr.Code == 404:
			return fmt.Errorf("%w: %s: %v", shared.ErrNotFound, op, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %s: %v", shared.ErrTransient, op, err)
		}
		return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", shared.ErrTransient, op, err)
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, op, err)
}
