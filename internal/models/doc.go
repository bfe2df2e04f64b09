// Package models defines the domain entities of the tubesync library and its sync subsystem.
//
// Library entities, all scoped by an owner:
//   - [User] : owner of everything below
//   - [Channel] : a saved external channel with sync bookkeeping
//   - [Video] : an upload, unique per (channel, external id), tombstoned on user delete
//   - [Playlist] and [PlaylistItem] : manual or system playlists with sparse positions
//   - [Folder] and [Tag] : user organisation
//
// Sync types:
//   - [SyncJob] : queue payload tagged by [JobKind]
//   - [JobState] and [ErrorClass] : executor state machine and failure taxonomy
//   - [SourceRank] and [FieldSet] : which source wrote a video and which fields it can populate
//   - [SyncRun] : per-attempt record kept for operators
package models
