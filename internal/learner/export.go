package learner

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// resolutionTag is the on-disk form of a flattened resolution:
// {"type": "accept", "provider": "openai"} rather than the in-memory
// "accept_openai" string.
type resolutionTag struct {
	Type     string `json:"type"`
	Provider string `json:"provider,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Content  string `json:"content,omitempty"`
}

func tagOf(rec Record) resolutionTag {
	s := rec.ChosenResolution
	switch {
	case strings.HasPrefix(s, "accept_"):
		return resolutionTag{Type: "accept", Provider: strings.TrimPrefix(s, "accept_")}
	case strings.HasPrefix(s, "merge_"):
		return resolutionTag{Type: "merge", Strategy: strings.TrimPrefix(s, "merge_")}
	case s == "custom":
		return resolutionTag{Type: "custom", Content: rec.ChosenContent}
	default:
		return resolutionTag{Type: "skip"}
	}
}

func (t resolutionTag) flatten() (resolution, provider, content string) {
	switch t.Type {
	case "accept":
		return "accept_" + t.Provider, t.Provider, ""
	case "merge":
		return "merge_" + t.Strategy, "", ""
	case "custom":
		return "custom", "", t.Content
	default:
		return "skip", "", ""
	}
}

type exportRecord struct {
	Signature        string        `json:"signature"`
	FilePath         string        `json:"file_path"`
	FileType         string        `json:"file_type"`
	ConflictType     string        `json:"conflict_type"`
	Providers        []string      `json:"providers"`
	ChosenResolution resolutionTag `json:"chosen_resolution"`
	Timestamp        time.Time     `json:"timestamp"`
	Context          string        `json:"context,omitempty"`
}

type exportState struct {
	History    []exportRecord `json:"history"`
	Model      Model          `json:"model"`
	ExportedAt time.Time      `json:"exported_at"`
}

// Export serializes the learner's history and preference model.
func (l *Learner) Export() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := exportState{
		Model:      l.model,
		ExportedAt: time.Now().UTC(),
	}
	for _, rec := range l.history {
		state.History = append(state.History, exportRecord{
			Signature:        rec.Signature,
			FilePath:         rec.FilePath,
			FileType:         rec.FileType,
			ConflictType:     rec.ConflictType,
			Providers:        rec.Providers,
			ChosenResolution: tagOf(rec),
			Timestamp:        rec.Timestamp,
			Context:          rec.Context,
		})
	}
	return json.MarshalIndent(state, "", "  ")
}

// Import replaces the learner's state with a previously exported
// snapshot. The preference model is taken from the snapshot verbatim,
// so replaying the same export always reproduces the same model.
func (l *Learner) Import(data []byte) error {
	var state exportState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = nil
	for _, er := range state.History {
		resolution, chosenProvider, content := er.ChosenResolution.flatten()
		l.history = append(l.history, Record{
			Signature:        er.Signature,
			FilePath:         er.FilePath,
			FileType:         er.FileType,
			ConflictType:     er.ConflictType,
			Providers:        er.Providers,
			ChosenResolution: resolution,
			ChosenProvider:   chosenProvider,
			ChosenContent:    content,
			Timestamp:        er.Timestamp,
			Context:          er.Context,
		})
	}
	if len(l.history) > historySize {
		l.history = l.history[len(l.history)-historySize:]
	}

	l.model = state.Model
	if l.model.ByFileType == nil {
		l.model.ByFileType = make(tally)
	}
	if l.model.ByProvider == nil {
		l.model.ByProvider = make(tally)
	}
	if l.model.ByConflictType == nil {
		l.model.ByConflictType = make(tally)
	}

	l.logger.Info("imported learner state", zap.Int("records", len(l.history)))
	return nil
}
