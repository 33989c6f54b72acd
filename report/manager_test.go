package report

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiharness/sdk/config"
)

func newTestManager(t *testing.T, extra string) (*Manager, string) {
	t.Helper()

	root := t.TempDir()
	dir := t.TempDir()
	base := fmt.Sprintf(`
report:
  resultsDir: %s
  archiveDir: %s
%s`, filepath.Join(root, "results"), filepath.Join(root, "archive"), extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644))

	cfg, err := config.Load(dir, "qa", nil)
	require.NoError(t, err)
	return NewManager(cfg, nil), root
}

func readManifest(t *testing.T, runDir string) manifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(runDir, "run.json"))
	require.NoError(t, err)

	var m manifest
	require.NoError(t, sonic.Unmarshal(data, &m))
	return m
}

func TestStartRunCreatesFolder(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.StartRun("qa"))

	assert.NotEmpty(t, m.RunID())
	assert.DirExists(t, m.RunDir())
	assert.Contains(t, m.RunID(), "run-")

	manifest := readManifest(t, m.RunDir())
	assert.Equal(t, m.RunID(), manifest.RunID)
	assert.Equal(t, "qa", manifest.Environment)
	assert.False(t, manifest.StartedAt.IsZero())
}

func TestStartRunTwiceFails(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.StartRun("qa"))
	require.Error(t, m.StartRun("qa"))
}

func TestRunIDsAreUnique(t *testing.T) {
	first, _ := newTestManager(t, "")
	second, _ := newTestManager(t, "")
	require.NoError(t, first.StartRun("qa"))
	require.NoError(t, second.StartRun("qa"))
	assert.NotEqual(t, first.RunID(), second.RunID())
}

func TestAttach(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.StartRun("qa"))

	require.NoError(t, m.Attach("results.json", []byte(`{"passed":true}`)))
	require.NoError(t, m.Attach("log.txt", []byte("hello")))

	assert.FileExists(t, filepath.Join(m.RunDir(), "results.json"))
	assert.FileExists(t, filepath.Join(m.RunDir(), "log.txt"))

	manifest := readManifest(t, m.RunDir())
	assert.Equal(t, []string{"results.json", "log.txt"}, manifest.Attachments)
}

func TestAttachWithoutRunIsNoop(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.Attach("orphan.txt", []byte("x")))
}

func TestFinalizeRunArchives(t *testing.T) {
	m, root := newTestManager(t, "")
	require.NoError(t, m.StartRun("qa"))
	require.NoError(t, m.Attach("results.json", []byte("{}")))
	require.NoError(t, m.FinalizeRun())

	archived := filepath.Join(root, "archive", m.RunID())
	assert.DirExists(t, archived)
	assert.FileExists(t, filepath.Join(archived, "results.json"))

	manifest := readManifest(t, archived)
	assert.False(t, manifest.FinishedAt.IsZero())
}

func TestFinalizeRunIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.StartRun("qa"))
	require.NoError(t, m.FinalizeRun())
	require.NoError(t, m.FinalizeRun())
}

func TestFinalizeWithoutRunIsNoop(t *testing.T) {
	m, _ := newTestManager(t, "")
	require.NoError(t, m.FinalizeRun())
}

func TestArchiveTrimsHistory(t *testing.T) {
	m, root := newTestManager(t, "  maxHistory: 2\n")

	// Pre-seed the archive with older runs; names sort chronologically.
	archive := filepath.Join(root, "archive")
	for _, name := range []string{"run-20250101-000000-aaaaaaaa", "run-20250102-000000-bbbbbbbb"} {
		require.NoError(t, os.MkdirAll(filepath.Join(archive, name), 0o755))
	}

	require.NoError(t, m.StartRun("qa"))
	require.NoError(t, m.FinalizeRun())

	entries, err := os.ReadDir(archive)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "oldest run beyond maxHistory is removed")

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.NotContains(t, names, "run-20250101-000000-aaaaaaaa")
	assert.Contains(t, names, m.RunID())
}

func TestDisabledManager(t *testing.T) {
	m, root := newTestManager(t, "  enabled: false\n")
	assert.False(t, m.Enabled())

	require.NoError(t, m.StartRun("qa"))
	assert.Empty(t, m.RunID())
	require.NoError(t, m.Attach("x.txt", []byte("x")))
	require.NoError(t, m.FinalizeRun())

	_, err := os.Stat(filepath.Join(root, "results"))
	assert.True(t, os.IsNotExist(err))
}

func TestSpanPath(t *testing.T) {
	m, _ := newTestManager(t, "")
	assert.Empty(t, m.SpanPath())

	require.NoError(t, m.StartRun("qa"))
	assert.Equal(t, filepath.Join(m.RunDir(), "spans.jsonl"), m.SpanPath())
}
