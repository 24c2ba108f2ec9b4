package statefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTripPerCodec(t *testing.T) {
	payload := []byte(`{"version":1,"name":"B0"}` + strings.Repeat(" ", 4096))

	for _, name := range []string{"state.json", "state.json.gz", "state.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Write(path, payload, 0o644))

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestWrite_CompressesByExtension(t *testing.T) {
	dir := t.TempDir()
	payload := []byte(strings.Repeat("cntrl imin=1 ", 2000))

	plain := filepath.Join(dir, "state.json")
	packed := filepath.Join(dir, "state.json.zst")
	require.NoError(t, Write(plain, payload, 0o644))
	require.NoError(t, Write(packed, payload, 0o644))

	plainInfo, err := os.Stat(plain)
	require.NoError(t, err)
	packedInfo, err := os.Stat(packed)
	require.NoError(t, err)
	assert.Less(t, packedInfo.Size(), plainInfo.Size())
}

func TestWrite_ReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, Write(path, []byte("first"), 0o644))
	require.NoError(t, Write(path, []byte("second"), 0o644))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not survive a successful write")
}

func TestWrite_FailureKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, Write(path, []byte("good"), 0o644))

	err := Write(filepath.Join(dir, "missing", "state.json"), []byte("bad"), 0o644)
	require.Error(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "good", string(got))
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "absent.json"))
	assert.True(t, os.IsNotExist(err))

	corrupt := filepath.Join(dir, "state.json.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("not gzip"), 0o644))
	_, err = Read(corrupt)
	assert.ErrorContains(t, err, "gzip")
}
