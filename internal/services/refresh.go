package services

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
)

// DetailSource is a [Source] that can also look up individual videos.
type DetailSource interface {
	Source
	VideoDetails(ctx context.Context, ids []string) ([]VideoSnapshot, error)
}

// RefreshSource serves hourly refreshes from the free feed and spends API quota only on videos it has not seen.
//
// When the feed shares no video with the stored ones, the feed may have skipped uploads, so the
// newest API uploads page is fetched instead.
type RefreshSource struct {
	feed   Source
	api    DetailSource
	logger *log.Logger
}

// NewRefreshSource combines a feed and an API backend.
func NewRefreshSource(feed Source, api DetailSource, logger *log.Logger) *RefreshSource {
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshSource{feed: feed, api: api, logger: logger}
}

// FetchChannelSnapshot implements [Source]. The request mode is ignored; refreshes always look at the newest uploads.
func (r *RefreshSource) FetchChannelSnapshot(ctx context.Context, req SnapshotRequest) (*ChannelSnapshot, error) {
	latest := req
	latest.Mode = ModeLatest

	snapshot, err := r.feed.FetchChannelSnapshot(ctx, latest)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Warn("feed unavailable, using api", "channel", req.ExternalChannelID, "err", err)
		return r.api.FetchChannelSnapshot(ctx, latest)
	}

	var unknown []string
	for _, id := range snapshot.IDs() {
		if _, ok := req.KnownVideoIDs[id]; !ok {
			unknown = append(unknown, id)
		}
	}

	switch {
	case len(unknown) == 0:
		r.logger.Debug("feed has nothing new", "channel", req.ExternalChannelID)
		return snapshot, nil
	case len(unknown) == len(snapshot.Videos):
		r.logger.Info("feed has no known videos, fetching latest uploads", "channel", req.ExternalChannelID)
		return r.api.FetchChannelSnapshot(ctx, latest)
	}

	details, err := r.api.VideoDetails(ctx, unknown)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]VideoSnapshot, len(details))
	for _, v := range details {
		merged[v.ExternalID] = v
	}
	for i, v := range snapshot.Videos {
		if detailed, ok := merged[v.ExternalID]; ok {
			snapshot.Videos[i] = detailed
		}
	}

	r.logger.Debug("enriched feed", "channel", req.ExternalChannelID, "new", len(unknown), "detailed", len(details))
	return snapshot, nil
}

var _ DetailSource = (*APISource)(nil)
var _ Source = (*FeedSource)(nil)
var _ Source = (*RefreshSource)(nil)

