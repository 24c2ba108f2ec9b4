package campaign_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/amberrun/internal/campaign"
	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/statefile"
	"github.com/vk/amberrun/internal/steps"
)

// generic re-decodes the JSON form of v so values with unexported state
// can be compared field by field.
func generic(t *testing.T, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func sampleCampaign(t *testing.T, root string, opts ...campaign.Option) *campaign.Campaign {
	t.Helper()
	eng := command.NewPmemd()
	eng.Executable = []string{"mpirun", "-np", "4", "pmemd.MPI"}
	require.NoError(t, eng.Set("prmtop", "sys.prmtop"))
	require.NoError(t, eng.Set("inpcrd", "sys.rst7"))

	c, err := campaign.New("villin", root, append([]campaign.Option{campaign.WithSander(eng)}, opts...)...)
	require.NoError(t, err)

	minim := steps.NewSander("minim")
	minim.Deck.Cntrl().Set("imin", deck.Int(1)).Set("maxcyc", deck.Int(500)).Set("ntr", deck.Int(1))
	minim.Deck.Cntrl().Set("restraint_wt", deck.Real(10)).Set("restraintmask", deck.Str(":1-20"))
	minim.Args = map[string]string{"mdcrd": "keep.nc"}
	require.NoError(t, minim.SetComplete(true))
	require.NoError(t, c.Attach("minim", minim))

	prod := steps.NewSanderRepeat("prod", 8)
	prod.Current = 3
	prod.KeepTrajectory = false
	prod.After = []string{"gzip", "-k"}
	prod.Deck.Cntrl().Set("nstlim", deck.Int(50000)).Set("dt", deck.Real(0.002))
	require.NoError(t, c.Attach("prod", prod))

	analyse := steps.NewExec("analyse", "cpptraj", "-i", "analyse.in")
	analyse.Env = []string{"OMP_NUM_THREADS=2"}
	require.NoError(t, c.Attach("analyse", analyse))
	return c
}

func TestSaveLoad_RestoresCampaign(t *testing.T) {
	root := t.TempDir()
	c := sampleCampaign(t, root)
	require.NoError(t, c.Save(c.StatePath()))

	restored, err := campaign.Load(c.StatePath(), newRegistry())
	require.NoError(t, err)

	assert.Equal(t, c.Name(), restored.Name())
	assert.Equal(t, c.Root(), restored.Root())
	assert.Equal(t, c.Attrs(), restored.Attrs())
	assert.Equal(t, c.Sander().Cmdline(), restored.Sander().Cmdline())
	if diff := cmp.Diff(generic(t, c.Sander()), generic(t, restored.Sander())); diff != "" {
		t.Errorf("engine mismatch (-want +got):\n%s", diff)
	}
	for i, st := range c.Steps() {
		got := restored.Steps()[i]
		assert.Equal(t, st.Kind(), got.Kind())
		assert.Equal(t, st.Dir(), got.Dir())
		assert.Equal(t, st.IsComplete(), got.IsComplete())
		if diff := cmp.Diff(generic(t, st), generic(t, got)); diff != "" {
			t.Errorf("step %s mismatch (-want +got):\n%s", st.Name(), diff)
		}
	}

	// Ordinals continue after the restored ones.
	repl := steps.NewExec("analyse", "true")
	require.NoError(t, restored.Attach("analyse", repl))
	assert.Equal(t, "3_analyse", repl.Dir())
}

func TestSaveLoad_CompressedStateFiles(t *testing.T) {
	for _, name := range []string{"state.json.gz", "state.json.zst", "custom.json"} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			c := sampleCampaign(t, root, campaign.WithStateFile(name))
			require.NoError(t, c.Save(c.StatePath()))
			assert.Equal(t, filepath.Join(root, name), c.StatePath())

			if !strings.HasSuffix(name, ".json") {
				raw, err := os.ReadFile(c.StatePath())
				require.NoError(t, err)
				assert.False(t, json.Valid(raw), "state should be compressed on disk")
			}

			restored, err := campaign.Load(c.StatePath(), newRegistry())
			require.NoError(t, err)
			assert.Equal(t, c.StatePath(), restored.StatePath())
			assert.Equal(t, c.Attrs(), restored.Attrs())
		})
	}
}

func TestLoad_RejectsCorruptState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		want   string
	}{
		{
			name:   "future version",
			mutate: func(doc map[string]any) { doc["version"] = 99 },
			want:   "unsupported schema version 99",
		},
		{
			name:   "missing version",
			mutate: func(doc map[string]any) { delete(doc, "version") },
			want:   "missing schema version",
		},
		{
			name:   "unknown field",
			mutate: func(doc map[string]any) { doc["surprise"] = true },
			want:   "surprise",
		},
		{
			name: "unknown step kind",
			mutate: func(doc map[string]any) {
				doc["steps"].([]any)[0].(map[string]any)["kind"] = "mystery"
			},
			want: `unknown step kind "mystery"`,
		},
		{
			name: "counter past target",
			mutate: func(doc map[string]any) {
				st := doc["steps"].([]any)[1].(map[string]any)["step"].(map[string]any)
				st["current"] = 12
			},
			want: "invalid iteration counter 12/8",
		},
		{
			name: "shared directory",
			mutate: func(doc map[string]any) {
				steps := doc["steps"].([]any)
				steps[2].(map[string]any)["step"].(map[string]any)["dir"] = "0_analyse"
				steps[0].(map[string]any)["step"].(map[string]any)["dir"] = "0_analyse"
				steps[0].(map[string]any)["step"].(map[string]any)["name"] = "analyse"
			},
			want: "share directory",
		},
		{
			name: "directory ordinal from the future",
			mutate: func(doc map[string]any) {
				doc["next_ordinal"] = 2
			},
			want: "ordinal outside",
		},
		{
			name: "step without deck",
			mutate: func(doc map[string]any) {
				doc["steps"].([]any)[0].(map[string]any)["step"].(map[string]any)["deck"] = nil
			},
			want: "deck is missing",
		},
		{
			name: "exec without command",
			mutate: func(doc map[string]any) {
				doc["steps"].([]any)[2].(map[string]any)["step"].(map[string]any)["command"] = nil
			},
			want: "command is missing",
		},
		{
			name: "unknown step field",
			mutate: func(doc map[string]any) {
				doc["steps"].([]any)[0].(map[string]any)["step"].(map[string]any)["zz"] = 1
			},
			want: `unknown field "zz"`,
		},
		{
			name: "unknown deck field",
			mutate: func(doc map[string]any) {
				st := doc["steps"].([]any)[1].(map[string]any)["step"].(map[string]any)
				st["deck"].(map[string]any)["zz"] = 1
			},
			want: `unknown field "zz"`,
		},
		{
			name:   "unknown engine field",
			mutate: func(doc map[string]any) { doc["sander"].(map[string]any)["zz"] = 1 },
			want:   `unknown field "zz"`,
		},
		{
			name:   "no engine",
			mutate: func(doc map[string]any) { delete(doc, "sander") },
			want:   "md engine command is missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			c := sampleCampaign(t, root)
			require.NoError(t, c.Save(c.StatePath()))

			data, err := statefile.Read(c.StatePath())
			require.NoError(t, err)
			var doc map[string]any
			require.NoError(t, json.Unmarshal(data, &doc))
			tt.mutate(doc)
			data, err = json.Marshal(doc)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(c.StatePath(), data, 0o644))

			_, err = campaign.Load(c.StatePath(), newRegistry())
			require.Error(t, err)
			var corrupt *campaign.StateCorruptionError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, c.StatePath(), corrupt.Path)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := campaign.Load(filepath.Join(t.TempDir(), "nope.json"), newRegistry())
	var corrupt *campaign.StateCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
