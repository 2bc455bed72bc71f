// Package store persists the tab set to a local sqlite database so open
// conversations survive a restart. Everything here is client-side state;
// the server keeps its own conversation history.
package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sitepilot/internal/log"
	"sitepilot/internal/session"
)

// Archive is the local tab snapshot store
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive database at path
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Single writer keeps sqlite happy
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tabs (
			position        INTEGER NOT NULL,
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL,
			input           TEXT NOT NULL DEFAULT '',
			scroll_position INTEGER NOT NULL DEFAULT 0,
			is_active       INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			messages        TEXT NOT NULL DEFAULT '[]'
		)`)
	return err
}

// archivedMessage is the JSON shape of one stored transcript entry
type archivedMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Save replaces the archived tab set with the given snapshot
func (a *Archive) Save(sessions []session.Session, activeID string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tabs`); err != nil {
		return err
	}

	for i, sess := range sessions {
		msgs := make([]archivedMessage, len(sess.Messages))
		for j, m := range sess.Messages {
			msgs[j] = archivedMessage{
				ID:        m.ID,
				Role:      string(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			}
		}
		data, err := json.Marshal(msgs)
		if err != nil {
			return err
		}

		active := 0
		if sess.ID == activeID {
			active = 1
		}

		_, err = tx.Exec(
			`INSERT INTO tabs (position, id, conversation_id, title, input, scroll_position, is_active, created_at, messages)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, sess.ID, sess.ConversationID, sess.Title, sess.Input,
			sess.ScrollPosition, active, sess.CreatedAt.UnixMilli(), string(data),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load returns the archived tab set in position order and the active tab id
func (a *Archive) Load() ([]*session.Session, string, error) {
	rows, err := a.db.Query(
		`SELECT id, conversation_id, title, input, scroll_position, is_active, created_at, messages
		 FROM tabs ORDER BY position`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var sessions []*session.Session
	var activeID string

	for rows.Next() {
		var (
			sess      session.Session
			active    int
			createdAt int64
			rawMsgs   string
		)
		if err := rows.Scan(&sess.ID, &sess.ConversationID, &sess.Title, &sess.Input,
			&sess.ScrollPosition, &active, &createdAt, &rawMsgs); err != nil {
			return nil, "", err
		}
		sess.CreatedAt = time.UnixMilli(createdAt)

		var msgs []archivedMessage
		if err := json.Unmarshal([]byte(rawMsgs), &msgs); err != nil {
			log.Warn().Err(err).Str("tabId", sess.ID).Msg("skipping tab with corrupt archived messages")
			continue
		}
		for _, m := range msgs {
			sess.Messages = append(sess.Messages, session.Message{
				ID:        m.ID,
				Role:      session.Role(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			})
		}

		if active == 1 {
			activeID = sess.ID
		}
		sessions = append(sessions, &sess)
	}

	return sessions, activeID, rows.Err()
}

// AutoSave snapshots the tab set after every store change, coalesced by the
// store's watch channel. Runs until done closes. Save failures are logged
// and swallowed; the archive is a convenience, not a source of truth.
func (a *Archive) AutoSave(done <-chan struct{}, st *session.Store) {
	changes := st.Watch()
	for {
		select {
		case <-changes:
			if err := a.Save(st.All(), st.ActiveID()); err != nil {
				log.Warn().Err(err).Msg("tab archive save failed")
			}
		case <-done:
			return
		}
	}
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}
