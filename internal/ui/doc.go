// Package ui implements a terminal status view of the sync library using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [ChannelListView] : Browse channels with their last sync time and reachability
//  2. [RunListView] : Inspect recent sync runs for the selected channel
//
// Pressing r on a channel requests a manual refresh through the scheduler; the request only enqueues a job,
// the worker process picks it up. Data is reloaded on a tick so results of background runs appear on their own.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help from charmbracelet/bubbles/help.
package ui
