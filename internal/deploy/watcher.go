// Package deploy detects when a just-published site change has actually gone
// live. It polls the site root with cheap HEAD requests and watches the
// cache-validation header (ETag, falling back to Last-Modified) for a change
// against the baseline captured when polling started. No dedicated
// deploy-status endpoint is assumed.
package deploy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitepilot/internal/config"
	"sitepilot/internal/log"
)

// State is the watcher's lifecycle phase
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateDeployed State = "deployed"
)

// Options configures a Watcher. Zero durations fall back to the global config.
type Options struct {
	InitialDelay time.Duration // build pipelines need time to start
	PollInterval time.Duration
	ReloadDelay  time.Duration // countdown before the reload hook fires

	// Reload is invoked once per detected deploy, after the countdown
	Reload func()

	// OnState observes every state transition (UI indicator)
	OnState func(State)

	HTTPClient *http.Client
}

// Watcher is the three-state deploy detector. One process-wide instance is
// shared by all sessions: a publish from any tab arms the same watcher.
type Watcher struct {
	mu       sync.Mutex
	state    State
	baseline *string // nil = no validator header, degraded mode
	cancel   context.CancelFunc

	siteURL string
	httpc   *http.Client

	initialDelay time.Duration
	pollInterval time.Duration
	reloadDelay  time.Duration

	reload  func()
	onState func(State)

	logger zerolog.Logger
}

// NewWatcher creates an idle watcher for the given site root
func NewWatcher(siteURL string, opts Options) *Watcher {
	cfg := config.Get()

	w := &Watcher{
		state:        StateIdle,
		siteURL:      siteURL,
		httpc:        opts.HTTPClient,
		initialDelay: opts.InitialDelay,
		pollInterval: opts.PollInterval,
		reloadDelay:  opts.ReloadDelay,
		reload:       opts.Reload,
		onState:      opts.OnState,
		logger:       log.GetLogger("deploy"),
	}

	if w.httpc == nil {
		w.httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if w.initialDelay == 0 {
		w.initialDelay = cfg.DeployInitialDelay
	}
	if w.pollInterval == 0 {
		w.pollInterval = cfg.DeployPollInterval
	}
	if w.reloadDelay == 0 {
		w.reloadDelay = cfg.DeployReloadDelay
	}

	return w
}

// State returns the current phase
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// StartPolling captures the baseline validator and begins polling.
// Idempotent: calling it while already polling does not reset the baseline.
func (w *Watcher) StartPolling() {
	w.mu.Lock()
	if w.state == StatePolling {
		w.mu.Unlock()
		return
	}
	if w.cancel != nil {
		w.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.setStateLocked(StatePolling)
	w.mu.Unlock()

	baseline := w.fetchValidator(ctx)
	w.mu.Lock()
	w.baseline = baseline
	w.mu.Unlock()

	if baseline == nil {
		// Degraded mode: no validator header on the site root means this
		// cycle can never observe a deploy. Polling continues regardless so
		// an external Stop keeps the same semantics.
		w.logger.Warn().Str("site", w.siteURL).Msg("no cache validator on site root, deploy detection degraded")
	} else {
		w.logger.Info().Str("baseline", *baseline).Msg("deploy polling started")
	}

	go w.pollLoop(ctx)
}

// Stop resets the watcher to idle and cancels any pending reload countdown
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.baseline = nil
	w.setStateLocked(StateIdle)
}

func (w *Watcher) pollLoop(ctx context.Context) {
	select {
	case <-time.After(w.initialDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.checkOnce(ctx) {
				w.startReloadCountdown(ctx)
				return
			}
			// Failures and unchanged validators both just wait for the next
			// tick; polling only stops on success or external reset.

		case <-ctx.Done():
			return
		}
	}
}

// checkOnce reports whether a deploy was detected on this tick
func (w *Watcher) checkOnce(ctx context.Context) bool {
	current := w.fetchValidator(ctx)
	if current == nil {
		return false
	}

	w.mu.Lock()
	baseline := w.baseline
	w.mu.Unlock()

	if baseline == nil || *current == *baseline {
		return false
	}

	w.logger.Info().Str("baseline", *baseline).Str("current", *current).Msg("deploy detected")
	w.mu.Lock()
	w.setStateLocked(StateDeployed)
	w.mu.Unlock()
	return true
}

// startReloadCountdown waits out the short grace period, fires the reload
// hook, and returns the watcher to idle as a safety net either way.
func (w *Watcher) startReloadCountdown(ctx context.Context) {
	select {
	case <-time.After(w.reloadDelay):
	case <-ctx.Done():
		return
	}

	if w.reload != nil {
		w.reload()
	}

	w.mu.Lock()
	w.baseline = nil
	w.setStateLocked(StateIdle)
	w.mu.Unlock()
}

// fetchValidator HEADs the site root and returns ETag, else Last-Modified,
// else nil. Errors are swallowed: a failed poll is just a skipped tick.
func (w *Watcher) fetchValidator(ctx context.Context) *string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.siteURL, nil)
	if err != nil {
		w.logger.Debug().Err(err).Msg("building deploy probe failed")
		return nil
	}

	resp, err := w.httpc.Do(req)
	if err != nil {
		w.logger.Debug().Err(err).Msg("deploy probe failed")
		return nil
	}
	resp.Body.Close()

	if v := resp.Header.Get("ETag"); v != "" {
		return &v
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		return &v
	}
	return nil
}

func (w *Watcher) setStateLocked(state State) {
	if w.state == state {
		return
	}
	w.state = state
	if w.onState != nil {
		w.onState(state)
	}
}
