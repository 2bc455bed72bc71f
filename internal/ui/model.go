// Package ui is the terminal front-end: a tabbed chat surface over the
// session store, fed by the orchestrator. The engine owns all state; the UI
// renders snapshots and translates key presses into engine calls.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"sitepilot/internal/api"
	"sitepilot/internal/chat"
	"sitepilot/internal/deploy"
	"sitepilot/internal/session"
)

// External events bridged into the program by the process wiring. Anything
// that happens off the key/render path (deploy transitions, health probes,
// post-exchange refreshes) arrives as one of these.
type (
	// DeployStateMsg reports a deploy watcher transition
	DeployStateMsg struct{ State deploy.State }

	// ExchangeDoneMsg fires after a completed exchange; triggers a usage refresh
	ExchangeDoneMsg struct{}

	// HealthMsg reports a service reachability transition
	HealthMsg struct{ Healthy bool }

	// CredentialMsg reports a credential appearing or disappearing on disk
	CredentialMsg struct{ Present bool }
)

type (
	storeChangedMsg struct{}
	usageMsg        struct{ usage *api.Usage }
)

// Model is the bubbletea model for the whole client
type Model struct {
	orch    *chat.Orchestrator
	store   *session.Store
	changes <-chan struct{}
	events  <-chan tea.Msg

	usage       *api.Usage
	healthy     bool
	deployState deploy.State
	noAuth      bool

	width  int
	height int
	ready  bool

	input      textinput.Model
	transcript viewport.Model
	spin       spinner.Model

	theme theme
}

// New builds the model. events carries externally produced messages (deploy
// transitions, health changes); the process wiring owns the channel.
func New(orch *chat.Orchestrator, store *session.Store, events <-chan tea.Msg) Model {
	input := textinput.New()
	input.Placeholder = "Describe a change to your site…"
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New(spinner.WithSpinner(spinner.MiniDot))

	return Model{
		orch:        orch,
		store:       store,
		changes:     store.Watch(),
		events:      events,
		healthy:     true,
		deployState: deploy.StateIdle,
		input:       input,
		spin:        spin,
		theme:       newTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitStoreChange(),
		m.waitExternalEvent(),
		m.refreshUsageCmd(),
		m.spin.Tick,
	)
}

func (m Model) waitStoreChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return storeChangedMsg{}
	}
}

func (m Model) waitExternalEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m Model) refreshUsageCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return usageMsg{usage: orch.RefreshUsage(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewHeight := m.height - chromeHeight
		if viewHeight < 1 {
			viewHeight = 1
		}
		if !m.ready {
			m.transcript = viewport.New(m.width, viewHeight)
			m.ready = true
		} else {
			m.transcript.Width = m.width
			m.transcript.Height = viewHeight
		}
		m.input.Width = m.width - 6
		m.refreshTranscript(true)
		return m, nil

	case storeChangedMsg:
		m.syncDraft()
		m.refreshTranscript(m.transcript.AtBottom())
		return m, m.waitStoreChange()

	case DeployStateMsg:
		m.deployState = msg.State
		return m, m.waitExternalEvent()

	case HealthMsg:
		m.healthy = msg.Healthy
		return m, m.waitExternalEvent()

	case CredentialMsg:
		m.noAuth = !msg.Present
		return m, m.waitExternalEvent()

	case ExchangeDoneMsg:
		return m, tea.Batch(m.refreshUsageCmd(), m.waitExternalEvent())

	case usageMsg:
		if msg.usage != nil {
			m.usage = msg.usage
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.transcript, cmd = m.transcript.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		text := m.input.Value()
		m.input.SetValue("")
		m.orch.Send(m.store.ActiveID(), text, nil)
		return m, nil

	case "esc":
		m.orch.Cancel(m.store.ActiveID())
		return m, nil

	case "ctrl+n":
		m.saveDraft()
		m.orch.NewTab()
		m.input.SetValue("")
		m.restoreScroll()
		return m, nil

	case "ctrl+w":
		m.orch.CloseTab(m.store.ActiveID())
		m.restoreTab()
		return m, nil

	case "tab", "shift+tab":
		order := m.store.Order()
		if len(order) < 2 {
			return m, nil
		}
		idx := 0
		active := m.store.ActiveID()
		for i, id := range order {
			if id == active {
				idx = i
				break
			}
		}
		if msg.String() == "tab" {
			idx = (idx + 1) % len(order)
		} else {
			idx = (idx - 1 + len(order)) % len(order)
		}
		m.saveDraft()
		m.orch.SwitchTab(order[idx], m.transcript.YOffset)
		m.restoreTab()
		return m, nil

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// saveDraft records what the user has typed so a later switch back restores it
func (m *Model) saveDraft() {
	draft := m.input.Value()
	m.store.Dispatch(session.UpdateSession{ID: m.store.ActiveID(), Input: &draft})
}

// syncDraft reflects engine-side draft changes (dictation appended text) into
// an otherwise empty input widget. Anything the user is actively typing wins.
func (m *Model) syncDraft() {
	sess := m.store.Active()
	if m.input.Value() == "" && sess.Input != "" {
		m.input.SetValue(sess.Input)
	}
}

// restoreTab pulls the incoming tab's draft and scroll offset into the widgets
func (m *Model) restoreTab() {
	m.input.SetValue(m.store.Active().Input)
	m.restoreScroll()
}

func (m *Model) refreshTranscript(follow bool) {
	if !m.ready {
		return
	}
	sess := m.store.Active()
	m.transcript.SetContent(renderTranscript(m.theme, sess, m.spin.View(), m.width))
	if follow {
		m.transcript.GotoBottom()
	}
}

// restoreScroll positions the viewport at the incoming tab's saved offset
func (m *Model) restoreScroll() {
	sess := m.store.Active()
	m.refreshTranscript(false)
	m.transcript.SetYOffset(sess.ScrollPosition)
}
