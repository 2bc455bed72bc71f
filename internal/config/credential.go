package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"

	"sitepilot/internal/log"
)

// CredentialStore holds the bearer token for the agent service. The token
// lives in a plain file under the data dir so an external login flow (or the
// user pasting a fresh token) can refresh it while the client is running.
type CredentialStore struct {
	mu    sync.RWMutex
	path  string
	token string
}

// NewCredentialStore loads the credential file if present
func NewCredentialStore(path string) *CredentialStore {
	s := &CredentialStore{path: path}
	if data, err := os.ReadFile(path); err == nil {
		s.token = strings.TrimSpace(string(data))
	}
	return s
}

// Token returns the current bearer token, or "" when unauthenticated
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set stores a new token and persists it
func (s *CredentialStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = strings.TrimSpace(token)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(s.token+"\n"), 0o600)
}

// Clear wipes the token in memory and on disk. Called on any 401.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to remove credential file")
	}
}

// Expired reports whether the stored token is a JWT whose exp claim has
// already passed. Opaque (non-JWT) tokens are never reported expired; the
// server's 401 is the source of truth for those.
func (s *CredentialStore) Expired() bool {
	token := s.Token()
	if token == "" {
		return false
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	// Signature is not verified here; we only read the expiry to avoid
	// sending a request that is guaranteed to 401.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// Watch reloads the token whenever the credential file changes on disk.
// Events are debounced; the callback receives the new token ("" on removal).
func (s *CredentialStore) Watch(done <-chan struct{}, onChange func(token string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace files rather than write in place,
	// which drops the watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(0)
		<-debounce.C
		pending := false

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				pending = true
				debounce.Reset(100 * time.Millisecond)

			case <-debounce.C:
				if !pending {
					continue
				}
				pending = false

				old := s.Token()
				s.reload()
				if tok := s.Token(); tok != old {
					log.Info().Bool("present", tok != "").Msg("credential file changed, reloaded")
					onChange(tok)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("credential watcher error")

			case <-done:
				return
			}
		}
	}()

	return nil
}

func (s *CredentialStore) reload() {
	data, err := os.ReadFile(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.token = ""
		return
	}
	s.token = strings.TrimSpace(string(data))
}
