// Package services adapts external YouTube data into channel snapshots.
//
// # Source Interface
//
// Every backend implements [Source]: given a [SnapshotRequest] it returns a [ChannelSnapshot]
// whose videos carry the [models.SourceRank] of their origin and the [models.FieldSet] they populate.
// Reconciliation uses both to decide what a snapshot may overwrite.
//
// # Backends
//
//   - [APISource] : YouTube Data API v3. Full metadata, upload history and playlists. Costs quota.
//   - [FeedSource] : public Atom feed via gofeed. Newest uploads only, partial metadata, no quota.
//   - [RefreshSource] : feed first, API only for videos the library has not stored yet.
//
// API requests pass through a token-bucket limiter. Authentication is either an API key or an
// OAuth token saved by the `auth youtube` command, see [ClientOptions].
//
// # Error Handling
//
// Failures wrap the source sentinels from the shared package:
//   - [shared.ErrNotFound] : channel or playlist does not exist upstream
//   - [shared.ErrRateLimited] : HTTP 429 or a rate-limit reason
//   - [shared.ErrQuotaExceeded] : daily API quota spent
//   - [shared.ErrTransient] : network failures and 5xx responses
package services
