// Package report provides persistence and retrieval of stackwalk runs so a
// crash analysis can be drilled into after the tool call that produced it.
// Runs are stored as decoded minidump-stackwalk JSON and queried by path or
// module.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a run.
type Kind string

// Stackwalk is a minidump-stackwalk run with JSON output.
const Stackwalk Kind = "stackwalk"

// ErrNotFound is returned by Load when no run has the given ID.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves runs.
type Store interface {
	Save(run *Run) error
	Load(runID string) (*Run, error)
}

// Run holds one stored analysis.
type Run struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Minidump  string    `json:"minidump"`
	Symbols   string    `json:"symbols,omitempty"`
	Command   string    `json:"command"`
	Data      any       `json:"data"`
}

// NewRun creates a stackwalk run with a fresh ID.
func NewRun(minidump, symbols, command string, data any) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Kind:      Stackwalk,
		CreatedAt: time.Now().UTC(),
		Minidump:  minidump,
		Symbols:   symbols,
		Command:   command,
		Data:      data,
	}
}

// Expect returns an error if the run's Kind does not match want.
func (r *Run) Expect(want Kind) error {
	if r.Kind != want {
		return fmt.Errorf("run %s is a %s run, not a %s run", r.ID, r.Kind, want)
	}
	return nil
}

// validID rejects anything that is not a UUID. IDs become file names in
// DiskStore.
func validID(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("invalid run ID %q: %w", runID, ErrNotFound)
	}
	return nil
}

// decodeRun unmarshals a stored run. Numbers stay json.Number so 64-bit
// addresses read back exactly as minidump-stackwalk wrote them.
func decodeRun(data []byte) (*Run, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var run Run
	if err := dec.Decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}
