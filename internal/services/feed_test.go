package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <id>yt:channel:aaaaaaaaaaaaaaaaaaaaaa</id>
 <yt:channelId>UCaaaaaaaaaaaaaaaaaaaaaa</yt:channelId>
 <title>Test Channel</title>
 <entry>
  <id>yt:video:v2</id>
  <yt:videoId>v2</yt:videoId>
  <yt:channelId>UCaaaaaaaaaaaaaaaaaaaaaa</yt:channelId>
  <title>Second upload</title>
  <published>2024-02-01T12:00:00+00:00</published>
  <updated>2024-02-01T12:30:00+00:00</updated>
  <media:group>
   <media:title>Second upload</media:title>
   <media:thumbnail url="https://i.ytimg.com/vi/v2/hqdefault.jpg" width="480" height="360"/>
   <media:description>About the second one</media:description>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:v1</id>
  <title>First upload</title>
  <published>2024-01-01T12:00:00+00:00</published>
 </entry>
</feed>`

func TestFeedSource(t *testing.T) {
	t.Run("parses entries with yt and media extensions", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, testChannelID, r.URL.Query().Get("channel_id"))
			w.Header().Set("Content-Type", "application/atom+xml")
			fmt.Fprint(w, sampleFeed)
		}))
		defer srv.Close()

		source := NewFeedSource(srv.URL, srv.Client(), nil)
		snap, err := source.FetchChannelSnapshot(context.Background(),
			SnapshotRequest{ExternalChannelID: testChannelID, Mode: ModeLatest})
		require.NoError(t, err)

		assert.Equal(t, models.SourceFeed, snap.Source)
		assert.Equal(t, "Test Channel", snap.Channel.Title)
		assert.False(t, snap.PlaylistsComplete)
		require.Equal(t, []string{"v2", "v1"}, snap.IDs())

		v2 := snap.Videos[0]
		assert.Equal(t, "Second upload", v2.Title)
		assert.Equal(t, "About the second one", v2.Description)
		assert.Equal(t, "https://i.ytimg.com/vi/v2/hqdefault.jpg", v2.ThumbnailURL)
		require.NotNil(t, v2.PublishedAt)
		assert.Equal(t, 2, int(v2.PublishedAt.Month()))
		assert.Equal(t, models.FeedFields, v2.Fields)
		assert.False(t, v2.Fields.Has(models.FieldDuration))

		v1 := snap.Videos[1]
		assert.Equal(t, models.FieldTitle|models.FieldPublishedAt, v1.Fields,
			"an entry without media:group must not claim description or thumbnail")
		assert.Empty(t, v1.Description)
	})

	t.Run("status codes map to the error taxonomy", func(t *testing.T) {
		tests := []struct {
			status int
			want   error
		}{
			{http.StatusNotFound, shared.ErrNotFound},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusBadGateway, shared.ErrTransient},
			{http.StatusForbidden, shared.ErrAPIRequest},
		}
		for _, tt := range tests {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				status := tt.status
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(status)
				}))
				defer srv.Close()

				_, err := NewFeedSource(srv.URL, srv.Client(), nil).FetchChannelSnapshot(context.Background(),
					SnapshotRequest{ExternalChannelID: testChannelID})
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewFeedSource(url, nil, nil).FetchChannelSnapshot(context.Background(),
			SnapshotRequest{ExternalChannelID: testChannelID})
		assert.ErrorIs(t, err, shared.ErrTransient)
	})

	t.Run("playlists are not served", func(t *testing.T) {
		_, err := NewFeedSource("", nil, nil).FetchChannelSnapshot(context.Background(),
			SnapshotRequest{ExternalChannelID: testChannelID, Mode: ModePlaylists})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
