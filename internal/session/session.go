// Package session persists completed runs: the prompt, each
// provider's response, and the participating provider set. The
// primary artifact is a JSON file per session under the sessions
// directory; an optional SQLite-backed store mirrors the same records
// for structured querying of past runs.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/forgecode/orchestra/internal/provider"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidName = errors.New("invalid session name")
)

// Session is one saved run.
type Session struct {
	Name      string                   `json:"-"`
	Prompt    string                   `json:"prompt"`
	Responses map[provider.Name]string `json:"responses"`
	Providers []provider.Name          `json:"providers"`
	Timestamp time.Time                `json:"timestamp"`
}

// Store is implemented by both the JSON file store and the SQLite
// store.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context, name string) (Session, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}
