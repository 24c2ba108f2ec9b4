package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/amberrun/internal/campaign"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// ErrSnapshotExists is returned by Init when the campaign already has a
// state file and overwriting was not requested.
var ErrSnapshotExists = errors.New("state file already exists")

// Init creates a campaign from the definition files under defPaths and
// writes its first snapshot. An existing snapshot is only replaced when
// force is set. The campaign workdir is resolved against the current
// directory.
func (a *App) Init(ctx context.Context, force bool, defPaths ...string) (*campaign.Campaign, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	def, err := a.loader().Load(ctx, defPaths...)
	if err != nil {
		return nil, err
	}
	if def.Campaign == nil {
		return nil, fmt.Errorf("no campaign block found in %v", defPaths)
	}

	stateFile := def.Campaign.StateFile
	if a.config.StateFile != "" {
		stateFile = a.config.StateFile
	}
	opts := append(a.campaignOptions(),
		campaign.WithSander(def.Campaign.Engine),
		campaign.WithStateFile(stateFile),
	)
	c, err := campaign.New(def.Campaign.Name, def.Campaign.Workdir, opts...)
	if err != nil {
		return nil, err
	}

	path := c.StatePath()
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("%w: %s (use --force to overwrite)", ErrSnapshotExists, path)
	}

	for _, sd := range def.Steps {
		if err := c.Attach(sd.Attr, sd.Step); err != nil {
			return nil, fmt.Errorf("step %q: %w", sd.Attr, err)
		}
	}

	if err := fsutil.EnsureDir(c.Root(), 0o755); err != nil {
		return nil, err
	}
	if err := fsutil.EnsureDir(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := c.Save(path); err != nil {
		return nil, err
	}
	logger.Info("✅ Campaign initialised.", "campaign", c.Name(), "root", c.Root(), "steps", len(c.Attrs()), "state_file", path)
	return c, nil
}

// Open loads the campaign saved at statePath. Checkpoints go back to the
// same file.
func (a *App) Open(statePath string) (*campaign.Campaign, error) {
	abs, err := filepath.Abs(statePath)
	if err != nil {
		return nil, err
	}
	return campaign.Load(abs, a.registry, append(a.campaignOptions(), campaign.WithStateFile(abs))...)
}

// Run resumes the campaign saved at statePath and runs it to completion.
func (a *App) Run(ctx context.Context, statePath string) error {
	ctx = a.context(ctx)
	c, err := a.Open(statePath)
	if err != nil {
		return err
	}
	a.logger.Debug("Campaign loaded.", "campaign", c.Name(), "last_run", c.RunID())
	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("campaign %q: %w", c.Name(), err)
	}
	return nil
}

// Replace attaches the steps defined under defPaths to the campaign saved
// at statePath and saves it. Steps with a known attribute are replaced in
// place, the others are appended. It returns the affected attributes.
func (a *App) Replace(ctx context.Context, statePath string, defPaths ...string) ([]string, error) {
	ctx = a.context(ctx)
	logger := ctxlog.FromContext(ctx)

	c, err := a.Open(statePath)
	if err != nil {
		return nil, err
	}
	def, err := a.loader().Load(ctx, defPaths...)
	if err != nil {
		return nil, err
	}
	if def.Campaign != nil {
		logger.Warn("Ignoring campaign block in replacement definition.", "campaign", def.Campaign.Name)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("no step blocks found in %v", defPaths)
	}

	var attrs []string
	for _, sd := range def.Steps {
		_, existed := c.Step(sd.Attr)
		if err := c.Attach(sd.Attr, sd.Step); err != nil {
			return nil, fmt.Errorf("step %q: %w", sd.Attr, err)
		}
		if existed {
			logger.Info("🔁 Step replaced.", "attr", sd.Attr, "dir", sd.Step.Dir())
		} else {
			logger.Info("➕ Step appended.", "attr", sd.Attr, "dir", sd.Step.Dir())
		}
		attrs = append(attrs, sd.Attr)
	}
	if err := c.Save(c.StatePath()); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Reset marks the step attached as attr incomplete and saves the
// campaign.
func (a *App) Reset(ctx context.Context, statePath, attr string) error {
	c, err := a.Open(statePath)
	if err != nil {
		return err
	}
	if err := c.Reset(attr); err != nil {
		return err
	}
	if err := c.Save(c.StatePath()); err != nil {
		return err
	}
	ctxlog.FromContext(a.context(ctx)).Info("↩️ Step reset.", "attr", attr)
	return nil
}

// Status summarises a saved campaign.
type Status struct {
	Campaign  string       `yaml:"campaign"`
	Root      string       `yaml:"root"`
	StateFile string       `yaml:"state_file"`
	LastRun   string       `yaml:"last_run,omitempty"`
	Engine    []string     `yaml:"engine"`
	Steps     []StepStatus `yaml:"steps"`
}

// StepStatus is one step of a Status.
type StepStatus struct {
	Attr      string `yaml:"attr"`
	Kind      string `yaml:"kind"`
	Dir       string `yaml:"dir"`
	Complete  bool   `yaml:"complete"`
	Iteration string `yaml:"iteration,omitempty"`
}

type progresser interface {
	Progress() (done, total int)
}

// Status reads the campaign saved at statePath.
func (a *App) Status(statePath string) (*Status, error) {
	c, err := a.Open(statePath)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Campaign:  c.Name(),
		Root:      c.Root(),
		StateFile: c.StatePath(),
		LastRun:   c.RunID(),
		Engine:    c.Sander().Cmdline(),
	}
	for _, attr := range c.Attrs() {
		s, _ := c.Step(attr)
		ss := StepStatus{Attr: attr, Kind: s.Kind(), Dir: s.Dir(), Complete: s.IsComplete()}
		if p, ok := s.(progresser); ok {
			done, total := p.Progress()
			ss.Iteration = fmt.Sprintf("%d/%d", done, total)
		}
		st.Steps = append(st.Steps, ss)
	}
	return st, nil
}

// WriteStatus renders st as YAML.
func WriteStatus(w io.Writer, st *Status) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return enc.Close()
}
