package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/statefile"
	"github.com/vk/amberrun/internal/step"
)

// SchemaVersion is the version of the snapshot format written by Save.
const SchemaVersion = 1

// StateCorruptionError reports a state file that cannot be turned back
// into a campaign.
type StateCorruptionError struct {
	Path string
	Err  error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *StateCorruptionError) Unwrap() error { return e.Err }

// StepFactory builds empty steps of a kind for snapshot records to decode
// into.
type StepFactory interface {
	NewStep(kind, name string) (step.Step, error)
}

type snapshot struct {
	Version     int              `json:"version"`
	Name        string           `json:"name"`
	Root        string           `json:"root"`
	StateFile   string           `json:"state_file"`
	NextOrdinal int              `json:"next_ordinal"`
	RunID       string           `json:"run_id,omitempty"`
	SavedAt     time.Time        `json:"saved_at"`
	Sander      *command.Command `json:"sander"`
	Steps       []stepRecord     `json:"steps"`
}

type stepRecord struct {
	Attr string          `json:"attr"`
	Kind string          `json:"kind"`
	Step json.RawMessage `json:"step"`
}

// Save writes the campaign to path atomically.
func (c *Campaign) Save(path string) error {
	snap := snapshot{
		Version:     SchemaVersion,
		Name:        c.name,
		Root:        c.root,
		StateFile:   c.stateFile,
		NextOrdinal: c.nextOrdinal,
		RunID:       c.runID,
		SavedAt:     time.Now().UTC(),
		Sander:      c.sander,
		Steps:       make([]stepRecord, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		body, err := json.Marshal(e.st)
		if err != nil {
			return fmt.Errorf("encode step %q: %w", e.attr, err)
		}
		snap.Steps = append(snap.Steps, stepRecord{Attr: e.attr, Kind: e.st.Kind(), Step: body})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode campaign: %w", err)
	}
	return statefile.Write(path, append(data, '\n'), 0o644)
}

// Load restores a campaign saved at path. Steps are rebuilt through
// factory. Options apply as in New; a WithStateFile option overrides the
// stored state file.
func Load(path string, factory StepFactory, opts ...Option) (*Campaign, error) {
	data, err := statefile.Read(path)
	if err != nil {
		return nil, &StateCorruptionError{Path: path, Err: err}
	}
	c, err := decode(data, factory)
	if err != nil {
		return nil, &StateCorruptionError{Path: path, Err: err}
	}
	c.apply(opts)
	return c, nil
}

func decode(data []byte, factory StepFactory) (*Campaign, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.Version == nil {
		return nil, errors.New("missing schema version")
	}
	if *probe.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d (want %d)", *probe.Version, SchemaVersion)
	}

	var snap snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Name == "" || snap.Root == "" {
		return nil, errors.New("campaign name and root are required")
	}
	if snap.Sander == nil {
		return nil, errors.New("md engine command is missing")
	}

	c := &Campaign{
		name:        snap.Name,
		root:        snap.Root,
		stateFile:   snap.StateFile,
		nextOrdinal: snap.NextOrdinal,
		runID:       snap.RunID,
		sander:      snap.Sander,
	}
	if c.stateFile == "" {
		c.stateFile = DefaultStateFile
	}

	dirs := make(map[string]string)
	for i, rec := range snap.Steps {
		if rec.Attr == "" {
			return nil, fmt.Errorf("step record %d has no attribute", i)
		}
		if c.find(rec.Attr) != nil {
			return nil, fmt.Errorf("step %q recorded twice", rec.Attr)
		}
		st, err := factory.NewStep(rec.Kind, rec.Attr)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", rec.Attr, err)
		}
		if err := decodeStrict(rec.Step, st); err != nil {
			return nil, fmt.Errorf("step %q: %w", rec.Attr, err)
		}
		if err := checkRestored(st, c.nextOrdinal); err != nil {
			return nil, fmt.Errorf("step %q: %w", rec.Attr, err)
		}
		if prev, dup := dirs[st.Dir()]; dup {
			return nil, fmt.Errorf("steps %q and %q share directory %s", prev, rec.Attr, st.Dir())
		}
		dirs[st.Dir()] = rec.Attr
		c.entries = append(c.entries, &entry{attr: rec.Attr, st: st})
	}
	return c, nil
}

// checkRestored verifies what a step record must satisfy to be resumable.
func checkRestored(st step.Step, nextOrdinal int) error {
	if err := checkName(st.Name()); err != nil {
		return err
	}
	ordinal, name, ok := strings.Cut(st.Dir(), "_")
	if !ok || name != st.Name() {
		return fmt.Errorf("directory %q does not match step name %q", st.Dir(), st.Name())
	}
	var n int
	if _, err := fmt.Sscanf(ordinal, "%d", &n); err != nil || n < 0 || n >= nextOrdinal {
		return fmt.Errorf("directory %q has an ordinal outside [0, %d)", st.Dir(), nextOrdinal)
	}
	if v, ok := st.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict decodes data into v, rejecting fields v does not have.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
