// Package history maintains the command history file: one command per
// line, most recent last, bounded to the latest 1000 entries.
package history

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// maxEntries is how many commands the file retains.
const maxEntries = 1000

// DefaultPath returns <HOME>/.multi_agent_coder/history.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".multi_agent_coder", "history"), nil
}

// History appends commands to a bounded file.
type History struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// New opens (creating if needed) the history file at path.
func New(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &History{path: path, logger: logger}, nil
}

// Append records one command, trimming the file to the retention
// bound. Blank commands are ignored.
func (h *History) Append(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lines, err := h.readLocked()
	if err != nil {
		return err
	}
	lines = append(lines, command)
	if len(lines) > maxEntries {
		lines = lines[len(lines)-maxEntries:]
	}
	return h.writeLocked(lines)
}

// All returns the retained commands, oldest first.
func (h *History) All() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readLocked()
}

// Last returns up to n most recent commands, oldest first.
func (h *History) Last(n int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lines, err := h.readLocked()
	if err != nil {
		return nil, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func (h *History) readLocked() ([]string, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (h *History) writeLocked(lines []string) error {
	tmp := h.path + ".tmp"
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
