// Package hcl_adapter reads campaign definitions written in HCL.
//
// A definition file holds at most one campaign block and any number of
// step blocks:
//
//	campaign "B0" {
//	  workdir    = "B0"
//	  state_file = "state.json"
//	  engine "pmemd" {
//	    executable = ["pmemd.cuda"]
//	  }
//	}
//	step "sander" "heat" { ... }
//
// Step bodies are not interpreted here. Each step block is handed to a
// StepDecoder keyed by its kind, with the file source attached so namelist
// values keep their source order and their integer or real spelling.
package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/fsutil"
	"github.com/vk/amberrun/internal/step"
	"github.com/zclconf/go-cty/cty"
)

// StepDecoder turns a step block into a step of the block's kind.
type StepDecoder interface {
	DecodeStep(ctx context.Context, b *Block) (step.Step, error)
}

// Definition is the result of loading one or more definition files.
type Definition struct {
	// Campaign is nil when the files only contain steps.
	Campaign *CampaignDef
	Steps    []StepDef
}

// CampaignDef holds the settings of the campaign block.
type CampaignDef struct {
	Name      string
	Workdir   string
	StateFile string
	// Engine is the MD engine command shared by every step.
	Engine *command.Command
}

// StepDef is one decoded step block. Attr is the step's campaign
// attribute, which is the block's name label.
type StepDef struct {
	Attr string
	Kind string
	Step step.Step
}

// Loader reads definition files.
type Loader struct {
	decoder StepDecoder
}

// NewLoader creates a loader resolving step kinds through decoder.
func NewLoader(decoder StepDecoder) *Loader {
	return &Loader{decoder: decoder}
}

// fileRoot is a struct used to decode all top-level blocks of a file.
type fileRoot struct {
	Campaigns []*campaignBlock `hcl:"campaign,block"`
	Steps     []*stepBlock     `hcl:"step,block"`
}

type campaignBlock struct {
	Name      string       `hcl:"name,label"`
	Workdir   *string      `hcl:"workdir,optional"`
	StateFile *string      `hcl:"state_file,optional"`
	Engine    *engineBlock `hcl:"engine,block"`
}

type engineBlock struct {
	Kind       string   `hcl:"kind,label"`
	Executable []string `hcl:"executable,optional"`
	Remain     hcl.Body `hcl:",remain"`
}

type stepBlock struct {
	Kind   string    `hcl:"kind,label"`
	Name   string    `hcl:"name,label"`
	Remain hcl.Body  `hcl:",remain"`
	Range  hcl.Range `hcl:",def_range"`
}

// Load parses every .hcl file under paths, in lexical order per path, and
// decodes them into one Definition. Step names must be unique across all
// files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	def := &Definition{}
	seen := make(map[string]string)
	evalCtx := newEvalContext()

	for _, path := range files {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diagsError(diags))
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diagsError(diags))
		}

		for _, cb := range root.Campaigns {
			if def.Campaign != nil {
				return nil, fmt.Errorf("%s: campaign %q: only one campaign block is allowed", path, cb.Name)
			}
			c, err := translateCampaign(cb, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			def.Campaign = c
		}

		for _, sb := range root.Steps {
			if prev, dup := seen[sb.Name]; dup {
				return nil, fmt.Errorf("%s: step %q already defined in %s", path, sb.Name, prev)
			}
			seen[sb.Name] = path

			block := &Block{
				Kind:    sb.Kind,
				Name:    sb.Name,
				Body:    sb.Remain,
				Src:     hclFile.Bytes,
				EvalCtx: evalCtx,
				Range:   sb.Range,
			}
			st, err := l.decoder.DecodeStep(ctx, block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			def.Steps = append(def.Steps, StepDef{Attr: sb.Name, Kind: sb.Kind, Step: st})
			logger.Debug("Decoded step.", "kind", sb.Kind, "name", sb.Name)
		}
	}

	logger.Debug("HCL loading complete.", "campaign", def.Campaign != nil, "steps", len(def.Steps))
	return def, nil
}

// newEvalContext exposes the process environment as env.NAME.
func newEvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok && name != "" {
			env[name] = cty.StringVal(value)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func translateCampaign(cb *campaignBlock, evalCtx *hcl.EvalContext) (*CampaignDef, error) {
	c := &CampaignDef{Name: cb.Name, Workdir: cb.Name}
	if cb.Workdir != nil {
		c.Workdir = *cb.Workdir
	}
	if cb.StateFile != nil {
		c.StateFile = *cb.StateFile
	}

	if cb.Engine == nil {
		c.Engine = command.NewPmemd()
		return c, nil
	}
	eng, err := translateEngine(cb.Engine, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("campaign %q: %w", cb.Name, err)
	}
	c.Engine = eng
	return c, nil
}

func translateEngine(eb *engineBlock, evalCtx *hcl.EvalContext) (*command.Command, error) {
	var eng *command.Command
	switch eb.Kind {
	case command.KindSander:
		eng = command.NewSander()
	case command.KindPmemd:
		eng = command.NewPmemd()
	default:
		return nil, fmt.Errorf("engine %q: must be %q or %q", eb.Kind, command.KindSander, command.KindPmemd)
	}
	if len(eb.Executable) > 0 {
		eng.Executable = eb.Executable
	}

	attrs, diags := orderedAttributes(eb.Remain)
	if diags.HasErrors() {
		return nil, fmt.Errorf("engine %q: %w", eb.Kind, diagsError(diags))
	}
	for _, a := range attrs {
		val, diags := a.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("engine %q: %w", eb.Kind, diagsError(diags))
		}
		v, err := goValue(val)
		if err != nil {
			return nil, fmt.Errorf("engine %q: %s: %w", eb.Kind, a.Name, err)
		}
		if err := eng.Set(a.Name, v); err != nil {
			return nil, fmt.Errorf("engine %q: %w", eb.Kind, err)
		}
	}
	return eng, nil
}

// goValue converts the values a command argument accepts.
func goValue(val cty.Value) (any, error) {
	switch {
	case val.IsNull():
		return nil, nil
	case val.Type() == cty.String:
		return val.AsString(), nil
	case val.Type() == cty.Bool:
		return val.True(), nil
	case val.CanIterateElements():
		var out []string
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			if ev.Type() != cty.String {
				return nil, fmt.Errorf("list items must be strings, got %s", ev.Type().FriendlyName())
			}
			out = append(out, ev.AsString())
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", val.Type().FriendlyName())
}

// findAllHCLFiles returns the .hcl files under paths, each path's files in
// lexical order. A path that does not exist is an error.
func findAllHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			all = append(all, f)
		}
	}
	return all, nil
}
