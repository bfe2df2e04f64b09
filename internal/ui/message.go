package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tubesync/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var _ tea.Msg = Msg{}

const (
	MsgChannelsFetched MsgKind = iota
	MsgRunsFetched
	MsgRefreshRequested
	MsgTick
)

type channelsFetched struct {
	channels []*models.Channel
	err      error
}

type runsFetched struct {
	channelID string
	runs      []*models.SyncRun
	err       error
}

type refreshRequested struct {
	channelID string
	err       error
}

// channelsFetchedMsg is the constructor for [MsgChannelsFetched]
func channelsFetchedMsg(channels []*models.Channel, err error) Msg {
	return Msg{kind: MsgChannelsFetched, data: channelsFetched{channels, err}}
}

// runsFetchedMsg is the constructor for [MsgRunsFetched]
func runsFetchedMsg(channelID string, runs []*models.SyncRun, err error) Msg {
	return Msg{kind: MsgRunsFetched, data: runsFetched{channelID, runs, err}}
}

// refreshRequestedMsg is the constructor for [MsgRefreshRequested]
func refreshRequestedMsg(channelID string, err error) Msg {
	return Msg{kind: MsgRefreshRequested, data: refreshRequested{channelID, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(at time.Time) Msg {
	return Msg{kind: MsgTick, data: at}
}
