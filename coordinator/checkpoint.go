package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fedloop/fedloop/session"
)

// Checkpoint is the durable image of a session taken after every closed
// round, sufficient to resume coordination from the last closed round
// after a coordinator crash. It is retained after failures for manual
// resumption and never discarded by the core.
type Checkpoint struct {
	SessionID     string         `json:"session_id"`
	Cluster       string         `json:"cluster"`
	Config        session.Config `json:"config"`
	LastRound     int            `json:"last_round"`
	ClosedRounds  int            `json:"closed_rounds"`
	GlobalWeights []float64      `json:"global_weights"`
	LastMetric    float64        `json:"last_metric"`
	Participants  []string       `json:"participants,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type CheckpointStore struct {
	dir string
	mu  sync.RWMutex
}

func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &CheckpointStore{dir: dir}, nil
}

func (cs *CheckpointStore) Save(cp Checkpoint) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	id := sanitizeID(cp.SessionID)
	if id == "" {
		return fmt.Errorf("invalid session ID: %s", cp.SessionID)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	file := filepath.Join(cs.dir, fmt.Sprintf("session_%s.json", id))
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	return nil
}

func (cs *CheckpointStore) Load(sessionID string) (Checkpoint, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	id := sanitizeID(sessionID)
	if id == "" {
		return Checkpoint{}, fmt.Errorf("invalid session ID: %s", sessionID)
	}

	file := filepath.Join(cs.dir, fmt.Sprintf("session_%s.json", id))
	data, err := os.ReadFile(file)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return cp, nil
}

func (cs *CheckpointStore) List() ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entries, err := os.ReadDir(cs.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "session_") && strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".json"))
		}
	}

	return ids, nil
}

// sanitizeID keeps session IDs safe for use in filenames.
func sanitizeID(id string) string {
	var out strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}

	return out.String()
}
