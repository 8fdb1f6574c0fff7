package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LedgerState is the persisted shape of the simulated account: the cash
// balance and the open simulated positions keyed by trading symbol. The file
// is fully rewritten on each state change.
type LedgerState struct {
	Balance   float64                   `json:"balance"`
	Positions map[string]ledgerPosition `json:"positions"`
}

// Ledger reads and writes the paper account file.
type Ledger struct {
	path string
}

// NewLedger creates a ledger at the given path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Load reads the persisted state. A missing file returns (nil, nil); a
// corrupt file is an error so a damaged book is never silently reset.
func (l *Ledger) Load() (*LedgerState, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.path, err)
	}
	return &state, nil
}

// Save rewrites the ledger file atomically (write to temp, rename).
func (l *Ledger) Save(state LedgerState) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
