package campaign_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/amberrun/internal/campaign"
	"github.com/vk/amberrun/internal/command"
	"github.com/vk/amberrun/internal/deck"
	"github.com/vk/amberrun/internal/registry"
	"github.com/vk/amberrun/internal/step"
	"github.com/vk/amberrun/internal/steps"
)

// fakeEngine parses the arguments the MD engine gets, logs the output
// prefix and input coordinates of each call to calls.log in the working
// directory, writes the mdout, and then either fails (when a file named
// "fail" exists) or writes the restart.
const fakeEngine = `
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out=$2; shift ;;
    -r) rst=$2; shift ;;
    -c) crd=$2; shift ;;
  esac
  shift
done
echo "${out%.out} ${crd}" >> calls.log
echo partial > "$out"
if [ -f fail ]; then echo "engine exploded" >&2; exit 3; fi
echo coords > "$rst"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func fakeSander(t *testing.T) *command.Command {
	t.Helper()
	eng := command.NewSander()
	eng.Executable = []string{"/bin/sh", writeScript(t, fakeEngine)}
	return eng
}

func newRegistry() *registry.Registry {
	return registry.New().Load(&steps.Module{})
}

// calls returns the fields of every line of calls.log under root.
func calls(t *testing.T, root string) [][]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "calls.log"))
	require.NoError(t, err)
	var out [][]string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		out = append(out, strings.Fields(line))
	}
	return out
}

// recordStep appends its name to a shared log when it runs.
type recordStep struct {
	step.Base
	step.Once
	Fail bool `json:"fail,omitempty"`

	log *[]string
}

func newRecord(name string, log *[]string) *recordStep {
	return &recordStep{Base: step.Base{StepName: name}, log: log}
}

func (r *recordStep) Kind() string { return "record" }

func (r *recordStep) Run(_ context.Context, h step.Host) error {
	if r.log != nil {
		*r.log = append(*r.log, r.Name())
	}
	if err := os.WriteFile(filepath.Join(r.Dir(), "marker"), nil, 0o644); err != nil {
		return err
	}
	if r.Fail {
		return errors.New("boom")
	}
	return nil
}

type recordFactory struct{}

func (recordFactory) NewStep(kind, name string) (step.Step, error) {
	if kind != "record" {
		return nil, errors.New("unknown kind " + kind)
	}
	return newRecord(name, nil), nil
}

func TestCampaign_RunSkipsCompletedSteps(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root)
	require.NoError(t, err)

	var ran []string
	a, b, d := newRecord("a", &ran), newRecord("b", &ran), newRecord("d", &ran)
	require.NoError(t, c.Attach("a", a))
	require.NoError(t, c.Attach("b", b))
	require.NoError(t, c.Attach("d", d))
	require.NoError(t, b.SetComplete(true))

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"a", "d"}, ran)
	assert.NotEmpty(t, c.RunID())
	for _, st := range c.Steps() {
		assert.True(t, st.IsComplete(), st.Name())
	}
	assert.FileExists(t, filepath.Join(root, "0_a", "marker"))
	assert.NoFileExists(t, filepath.Join(root, "1_b", "marker"))
	assert.FileExists(t, filepath.Join(root, "2_d", "marker"))
	assert.FileExists(t, filepath.Join(root, campaign.DefaultStateFile))

	// A second run has nothing to do.
	ran = nil
	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, ran)
}

func TestCampaign_HaltsAtFailedStep(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root)
	require.NoError(t, err)

	var ran []string
	b := newRecord("b", &ran)
	b.Fail = true
	require.NoError(t, c.Attach("a", newRecord("a", &ran)))
	require.NoError(t, c.Attach("b", b))
	require.NoError(t, c.Attach("d", newRecord("d", &ran)))

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "b"`)
	assert.Equal(t, []string{"a", "b"}, ran)

	restored, err := campaign.Load(c.StatePath(), recordFactory{})
	require.NoError(t, err)
	got := restored.Steps()
	require.Len(t, got, 3)
	assert.True(t, got[0].IsComplete())
	assert.False(t, got[1].IsComplete())
	assert.False(t, got[2].IsComplete())
}

func TestCampaign_ReplacementGetsFreshDirectory(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root)
	require.NoError(t, err)

	require.NoError(t, c.Attach("a", newRecord("a", nil)))
	require.NoError(t, c.Attach("b", newRecord("b", nil)))
	require.NoError(t, c.Run(context.Background()))

	repl := newRecord("a", nil)
	require.NoError(t, c.Attach("a", repl))

	assert.Equal(t, []string{"a", "b"}, c.Attrs())
	assert.Equal(t, "2_a", repl.Dir())
	assert.False(t, repl.IsComplete())

	dir, ok := c.StepDir("a")
	require.True(t, ok)
	assert.Equal(t, "2_a", dir)

	require.NoError(t, c.Run(context.Background()))
	assert.FileExists(t, filepath.Join(root, "0_a", "marker"))
	assert.FileExists(t, filepath.Join(root, "2_a", "marker"))
}

func TestCampaign_AttachRejectsBadNames(t *testing.T) {
	c, err := campaign.New("demo", t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		assert.Error(t, c.Attach("x", newRecord(name, nil)), "name %q", name)
	}
	assert.Error(t, c.Attach("", newRecord("ok", nil)))
	assert.Empty(t, c.Attrs())
}

func TestCampaign_Reset(t *testing.T) {
	c, err := campaign.New("demo", t.TempDir())
	require.NoError(t, err)

	var ran []string
	require.NoError(t, c.Attach("a", newRecord("a", &ran)))
	require.NoError(t, c.Run(context.Background()))

	require.NoError(t, c.Reset("a"))
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"a", "a"}, ran)

	assert.Error(t, c.Reset("missing"))

	rep := steps.NewSanderRepeat("md", 2)
	rep.Current = 2
	require.NoError(t, c.Attach("md", rep))
	assert.ErrorIs(t, c.Reset("md"), step.ErrInconsistentCompletion)

	unfinished := steps.NewSanderRepeat("eq", 3)
	unfinished.Current = 1
	require.NoError(t, c.Attach("eq", unfinished))
	assert.ErrorIs(t, c.Reset("eq"), step.ErrInconsistentCompletion)
	assert.Equal(t, 1, unfinished.Current)
}

func TestCampaign_SanderChainsCoordinates(t *testing.T) {
	root := t.TempDir()
	eng := fakeSander(t)
	require.NoError(t, eng.Set("prmtop", "sys.prmtop"))
	require.NoError(t, eng.Set("inpcrd", "sys.rst7"))

	c, err := campaign.New("demo", root, campaign.WithSander(eng))
	require.NoError(t, err)

	minim := steps.NewSander("minim")
	minim.Deck.Cntrl().Set("imin", deck.Int(1))
	heat := steps.NewSander("heat")
	require.NoError(t, c.Attach("minim", minim))
	require.NoError(t, c.Attach("heat", heat))

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, [][]string{
		{"0_minim/minim", "sys.rst7"},
		{"1_heat/heat", "0_minim/minim.rst"},
	}, calls(t, root))
	inpcrd, _ := eng.String("inpcrd")
	assert.Equal(t, "1_heat/heat.rst", inpcrd)
	assert.Equal(t, "run", eng.Attributes()[command.OutputPrefix])

	mdin, err := os.ReadFile(filepath.Join(root, "0_minim", "minim.in"))
	require.NoError(t, err)
	assert.Contains(t, string(mdin), "imin")
}

func TestCampaign_RepeatCheckpointsEveryIteration(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root, campaign.WithSander(fakeSander(t)))
	require.NoError(t, err)

	md := steps.NewSanderRepeat("md", 10)
	// The hook sees the state file as of the previous checkpoint.
	md.After = []string{"/bin/sh", "-c", `grep -o '"current": [0-9]*' state.json >> hook.log || echo none >> hook.log`, "hook"}
	require.NoError(t, c.Attach("md", md))

	require.NoError(t, c.Run(context.Background()))

	hook, err := os.ReadFile(filepath.Join(root, "hook.log"))
	require.NoError(t, err)
	want := []string{"none"}
	for i := 1; i < 10; i++ {
		want = append(want, `"current": `+strconv.Itoa(i))
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(string(hook)), "\n"))

	got := calls(t, root)
	require.Len(t, got, 10)
	assert.Equal(t, []string{"0_md/md00000"}, got[0])
	assert.Equal(t, []string{"0_md/md00004", "0_md/md00003.rst"}, got[4])

	restored, err := campaign.Load(c.StatePath(), newRegistry())
	require.NoError(t, err)
	st, ok := restored.Step("md")
	require.True(t, ok)
	rep := st.(*steps.SanderRepeat)
	assert.Equal(t, 10, rep.Current)
	assert.True(t, rep.IsComplete())
}

func TestCampaign_ResumesInterruptedRepeat(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root, campaign.WithSander(fakeSander(t)))
	require.NoError(t, err)

	md := steps.NewSanderRepeat("md", 5)
	// Iteration 2 arms the failure, so iteration 3 fails.
	md.After = []string{"/bin/sh", "-c", `case "$1" in *00002) touch fail ;; esac`, "hook"}
	require.NoError(t, c.Attach("md", md))

	err = c.Run(context.Background())
	require.Error(t, err)
	var perr *command.ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Contains(t, err.Error(), "engine exploded")

	require.NoError(t, os.Remove(filepath.Join(root, "fail")))
	stale := filepath.Join(root, "0_md", "md00003.stale")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	restored, err := campaign.Load(c.StatePath(), newRegistry())
	require.NoError(t, err)
	st, _ := restored.Step("md")
	require.Equal(t, 3, st.(*steps.SanderRepeat).Current)
	inpcrd, _ := restored.Sander().String("inpcrd")
	require.Equal(t, "0_md/md00002.rst", inpcrd)

	require.NoError(t, restored.Run(context.Background()))

	got := calls(t, root)
	require.Len(t, got, 6)
	assert.Equal(t, []string{"0_md/md00003", "0_md/md00002.rst"}, got[3])
	assert.Equal(t, []string{"0_md/md00003", "0_md/md00002.rst"}, got[4])
	assert.Equal(t, []string{"0_md/md00004", "0_md/md00003.rst"}, got[5])
	assert.NoFileExists(t, stale)
	assert.True(t, st.IsComplete())
}

func TestCampaign_CancelledRunKeepsProgress(t *testing.T) {
	root := t.TempDir()
	c, err := campaign.New("demo", root, campaign.WithSander(fakeSander(t)))
	require.NoError(t, err)
	require.NoError(t, c.Attach("md", steps.NewSanderRepeat("md", 3)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Run(ctx), context.Canceled)

	st, _ := c.Step("md")
	assert.Equal(t, 0, st.(*steps.SanderRepeat).Current)
}
