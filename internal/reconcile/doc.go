// Package reconcile applies channel snapshots to the library.
//
// Three operations run inside the transaction of one sync job:
//   - [Engine.ReconcileChannel] : copy non-empty channel metadata
//   - [Engine.ReconcileVideos] : upsert videos by (channel, external id), respecting source rank
//   - [Engine.ReconcilePlaylists] : mirror external playlists and their order into system playlists
//
// Applying the same snapshot twice writes nothing the second time. Videos are never deleted here,
// and a video the user tombstoned stays tombstoned no matter what a source reports.
package reconcile
