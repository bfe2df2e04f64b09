package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tubesync/internal/models"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ChannelListView ViewState = iota
	RunListView
)

const (
	defaultReloadInterval = 10 * time.Second
	runsShown             = 50
)

// ChannelLister reads the owner's channels.
type ChannelLister interface {
	List(ctx context.Context, ownerID string, criteria map[string]any) ([]*models.Channel, error)
}

// RunLister reads sync history.
type RunLister interface {
	List(ctx context.Context, criteria map[string]any) ([]*models.SyncRun, error)
}

// Refresher requests a manual refresh; implemented by [tasks.Scheduler].
type Refresher interface {
	OnManualRefreshRequested(ctx context.Context, ownerID, channelID string) error
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	ownerID   string
	channels  ChannelLister
	runs      RunLister
	refresher Refresher
	interval  time.Duration
	now       func() time.Time

	view        ViewState
	width       int
	height      int
	channelList list.Model
	runList     list.Model
	selected    *models.Channel
	requested   map[string]time.Time
	status      string
	err         error
	help        help.Model
	keys        keyMap
}

// NewModel creates a TUI model for one owner's library.
func NewModel(ctx context.Context, ownerID string, channels ChannelLister, runs RunLister, refresher Refresher) *Model {
	channelList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	channelList.Title = "Channels"
	runList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	runList.SetFilteringEnabled(false)

	return &Model{
		ctx:         ctx,
		ownerID:     ownerID,
		channels:    channels,
		runs:        runs,
		refresher:   refresher,
		interval:    defaultReloadInterval,
		now:         time.Now,
		view:        ChannelListView,
		channelList: channelList,
		runList:     runList,
		requested:   make(map[string]time.Time),
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// SetReloadInterval changes how often data is re-read; zero disables the timer.
func (m *Model) SetReloadInterval(d time.Duration) {
	m.interval = d
}

// Init loads the channel list and starts the reload timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchChannels(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.channelList.SetSize(msg.Width-4, msg.Height-8)
		m.runList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ChannelListView:
			return m.handleChannelKeys(msg)
		case RunListView:
			return m.handleRunKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgChannelsFetched:
		data := msg.data.(channelsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		return m, m.channelList.SetItems(m.channelItems(data.channels))

	case MsgRunsFetched:
		data := msg.data.(runsFetched)
		if m.selected == nil || data.channelID != m.selected.ID {
			return m, nil
		}
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		now := m.now()
		items := make([]list.Item, len(data.runs))
		for i, run := range data.runs {
			items[i] = runItem{run: run, now: now}
		}
		return m, m.runList.SetItems(items)

	case MsgRefreshRequested:
		data := msg.data.(refreshRequested)
		if data.err != nil {
			delete(m.requested, data.channelID)
			m.status = styles.err.Render(fmt.Sprintf("refresh failed: %v", data.err))
			return m, nil
		}
		m.status = styles.ok.Render("refresh queued")
		return m, m.fetchChannels()

	case MsgTick:
		cmds := []tea.Cmd{m.fetchChannels(), m.tick()}
		if m.view == RunListView && m.selected != nil {
			cmds = append(cmds, m.fetchRuns(m.selected.ID))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// channelItems builds list items; a queued refresh stays marked until the channel reports a newer sync or failure.
func (m *Model) channelItems(channels []*models.Channel) []list.Item {
	now := m.now()
	items := make([]list.Item, len(channels))
	for i, c := range channels {
		at, pending := m.requested[c.ID]
		if pending && (after(c.LastSyncedAt, at) || after(c.UnreachableAt, at)) {
			delete(m.requested, c.ID)
			pending = false
		}
		items[i] = channelItem{channel: c, now: now, pending: pending}
	}
	return items
}

func after(t *time.Time, ref time.Time) bool {
	return t != nil && !t.Before(ref)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+r to retry, q to quit", m.err))
	}

	switch m.view {
	case ChannelListView:
		return m.renderChannelList()
	case RunListView:
		return m.renderRunList()
	default:
		return ""
	}
}

func (m *Model) handleChannelKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.channelList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.err = nil
		return m, m.fetchChannels()
	case key.Matches(msg, m.keys.refresh):
		if c := m.selectedChannel(); c != nil {
			m.requested[c.ID] = m.now()
			return m, m.requestRefresh(c.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if c := m.selectedChannel(); c != nil {
			m.selected = c
			m.view = RunListView
			m.runList.Title = fmt.Sprintf("Sync runs for '%s'", channelItem{channel: c}.Title())
			m.runList.SetItems(nil)
			return m, m.fetchRuns(c.ID)
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ChannelListView
		m.selected = nil
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.requested[m.selected.ID] = m.now()
		return m, m.requestRefresh(m.selected.ID)
	case key.Matches(msg, m.keys.reload):
		m.err = nil
		return m, m.fetchRuns(m.selected.ID)
	}

	return m.updateLists(msg)
}

func (m *Model) selectedChannel() *models.Channel {
	if item, ok := m.channelList.SelectedItem().(channelItem); ok {
		return item.channel
	}
	return nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ChannelListView:
		m.channelList, cmd = m.channelList.Update(msg)
	case RunListView:
		m.runList, cmd = m.runList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchChannels() tea.Cmd {
	return func() tea.Msg {
		channels, err := m.channels.List(m.ctx, m.ownerID, nil)
		return channelsFetchedMsg(channels, err)
	}
}

func (m *Model) fetchRuns(channelID string) tea.Cmd {
	return func() tea.Msg {
		runs, err := m.runs.List(m.ctx, map[string]any{"owner_id": m.ownerID, "channel_id": channelID, "limit": runsShown})
		return runsFetchedMsg(channelID, runs, err)
	}
}

func (m *Model) requestRefresh(channelID string) tea.Cmd {
	return func() tea.Msg {
		return refreshRequestedMsg(channelID, m.refresher.OnManualRefreshRequested(m.ctx, m.ownerID, channelID))
	}
}

func (m *Model) tick() tea.Cmd {
	if m.interval <= 0 {
		return nil
	}
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) renderChannelList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.refresh, m.keys.reload, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", m.channelList.View(), m.status, helpView)
}

func (m *Model) renderRunList() string {
	if len(m.runList.Items()) == 0 {
		title := styles.title.Render(m.runList.Title)
		return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, styles.help.Render("No sync runs yet"), m.status,
			m.help.ShortHelpView([]key.Binding{m.keys.refresh, m.keys.back, m.keys.quit}))
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.refresh, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", m.runList.View(), m.status, helpView)
}
