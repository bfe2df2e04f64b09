// Package repositories implements SQLite persistence for the library and the sync subsystem.
//
// Every repository takes a [DBTX], so the same code runs on the shared handle or inside the
// per-channel transaction opened by [Store.WithTx]. Reads and writes are scoped by owner.
//
// Key Implementations:
//   - [UserRepository] : owners, looked up by email
//   - [ChannelRepository] : saved channels, sweep enumeration and sync bookkeeping
//   - [VideoRepository] : uploads keyed by (channel, external id) with tombstone deletes
//   - [PlaylistRepository] : manual and system playlists with sparse item positions
//   - [FolderRepository] and [TagRepository] : user organisation
//   - [SyncRunRepository] : per-attempt sync history
//   - [JobQueue] : durable at-least-once job queue
//
// Sequence numbers give channels and runs a stable order independent of UUIDs.
// [NextSequence] increments per-table counters held in dedicated sequence tables.
package repositories
