package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sitepilot/internal/api"
	"sitepilot/internal/chat"
	"sitepilot/internal/config"
	"sitepilot/internal/deploy"
	"sitepilot/internal/log"
	"sitepilot/internal/session"
	"sitepilot/internal/store"
	"sitepilot/internal/ui"
)

// runChat wires the engine and hands the terminal to the chat interface
func runChat() error {
	cfg := config.Get()

	// The TTY belongs to the interface; logs go to a file in the data dir
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "sitepilot.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err == nil {
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	events := make(chan tea.Msg, 32)
	notify := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
			// The interface is gone or far behind; indicator updates are droppable
		}
	}

	creds := config.NewCredentialStore(cfg.CredentialPath)
	client := api.NewClient(cfg.AgentBaseURL, creds, api.Options{
		OnAuthExpired: func() { notify(ui.CredentialMsg{Present: false}) },
	})

	st := restoreTabs(cfg.DatabasePath)

	watcher := deploy.NewWatcher(cfg.SiteURL, deploy.Options{
		OnState: func(s deploy.State) { notify(ui.DeployStateMsg{State: s}) },
	})
	defer watcher.Stop()

	handles := session.NewHandles()
	orch := chat.New(st, handles, client, watcher, chat.Options{
		OnExchangeDone: func() { notify(ui.ExchangeDoneMsg{}) },
	})

	done := make(chan struct{})
	defer close(done)

	if archive, err := store.Open(cfg.DatabasePath); err == nil {
		defer archive.Close()
		go archive.AutoSave(done, st)
	} else {
		log.Warn().Err(err).Msg("tab archive unavailable, tabs will not persist")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.PollHealth(ctx, 30*time.Second, func(h bool) { notify(ui.HealthMsg{Healthy: h}) })

	if err := creds.Watch(done, func(token string) {
		notify(ui.CredentialMsg{Present: token != ""})
	}); err != nil {
		log.Warn().Err(err).Msg("credential watch unavailable")
	}

	program := tea.NewProgram(ui.New(orch, st, events), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// restoreTabs loads the archived tab set, falling back to a fresh store
func restoreTabs(dbPath string) *session.Store {
	archive, err := store.Open(dbPath)
	if err != nil {
		log.Warn().Err(err).Msg("opening tab archive failed")
		return session.NewStore()
	}
	defer archive.Close()

	sessions, activeID, err := archive.Load()
	if err != nil {
		log.Warn().Err(err).Msg("loading archived tabs failed")
		return session.NewStore()
	}
	return session.NewStoreWith(sessions, activeID)
}
