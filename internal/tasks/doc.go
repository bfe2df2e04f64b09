// Package tasks runs background channel synchronization.
//
// # Enqueue API
//
// [Scheduler.OnChannelCreated] queues a full_fetch and a sync_playlists job for a new channel.
// [Scheduler.OnManualRefreshRequested] queues one refresh. Both run with no delay.
//
// # Sweep
//
// [Scheduler.Sweep] lists every channel ordered by sequence and queues one refresh each, with
// channel i delayed by i*window/N so N channels spread evenly over the window. [SweepDriver]
// fires the sweep from a cron schedule, hourly by default.
//
// # Execution
//
// [Worker] drains a [Queue] with a fixed pool of goroutines and hands each job to [Executor]:
//
//	queued -> running -> succeeded | failed | retrying
//
// Error handling follows the source taxonomy:
//   - quota exceeded : failed at once, never retried
//   - not found : channel marked unreachable, failed without retry
//   - rate limited, transient, timeouts : retried with exponential backoff up to MaxAttempts
//   - commit failure : whole run rolled back, picked up again by the next sweep
//
// Every attempt is recorded as a [models.SyncRun] and reported as a [JobEvent].
//
// # Queues
//
// [MemoryQueue] serves a single process. The SQLite-backed queue in the repositories package
// survives restarts and can be shared by several worker processes.
package tasks
