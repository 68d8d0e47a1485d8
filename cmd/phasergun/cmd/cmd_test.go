package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the CLI with args and captures stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("Procedures/SOP-DV.md",
		"# Design Verification\n\nVerification confirms design outputs meet design inputs.")
	write("Context/General/device.md", "The device is a class II infusion pump.")
	return root
}

// isolateCache points the cache at a per-test directory.
func isolateCache(t *testing.T) {
	t.Helper()
	t.Setenv("PHASERGUN_CACHE_DIR", filepath.Join(t.TempDir(), "phasergun-cache"))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "phasergun")
}

func TestVersionCommand_Short(t *testing.T) {
	out, err := runCLI(t, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestIndexCommand_BuildsCache(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "index", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "fingerprint:")
	assert.Contains(t, out, "chunks:")
}

func TestIndexCommand_JSONOutput(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "index", "-p", root, "--format", "json")
	require.NoError(t, err)

	var summary indexSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.ProcedureFiles)
	assert.Equal(t, 1, summary.ContextFiles)
	assert.Greater(t, summary.Chunks, 0)
}

func TestIndexCommand_MissingProjectFails(t *testing.T) {
	isolateCache(t)
	_, err := runCLI(t, "index", "-p", t.TempDir())
	assert.Error(t, err)
}

func TestSearchCommand_FindsChunks(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "search", "design verification outputs", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "SOP-DV.md")
	assert.Contains(t, out, "estimated tokens:")
}

func TestSearchCommand_AssembledEnvelope(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "search", "design verification", "-p", root, "--assembled")

	require.NoError(t, err)
	assert.Contains(t, out, "=== TASK ===")
	assert.Contains(t, out, "design verification")
}

func TestGenerateCommand_TextOutput(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "generate", "Draft the design verification summary per ISO 13485", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "# Draft")
	assert.Contains(t, out, "## Sources")
	assert.Contains(t, out, "confidence:")
}

func TestGenerateCommand_WritesFile(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)
	outFile := filepath.Join(t.TempDir(), "draft.md")

	out, err := runCLI(t, "generate", "Draft the verification plan", "-p", root, "-o", outFile)

	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+outFile)
	data, readErr := os.ReadFile(outFile)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "# Draft")
}

func TestInitCommand_ScaffoldsProject(t *testing.T) {
	root := t.TempDir()

	out, err := runCLI(t, "init", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "initialized")
	for _, dir := range []string{"Procedures", "Context/General", "Context/Prompt"} {
		info, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(dir)))
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
	_, statErr := os.Stat(filepath.Join(root, ".phasergun.yaml"))
	assert.NoError(t, statErr)
}

func TestInitCommand_DoesNotClobberConfig(t *testing.T) {
	root := t.TempDir()
	custom := []byte("retrieval:\n  top_k_procedures: 9\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".phasergun.yaml"), custom, 0o644))

	out, err := runCLI(t, "init", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, readErr := os.ReadFile(filepath.Join(root, ".phasergun.yaml"))
	require.NoError(t, readErr)
	assert.Equal(t, custom, data)
}

func TestStatusCommand_NoCache(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "status", "-p", root)

	require.NoError(t, err)
	assert.Contains(t, out, "procedures:    present")
	assert.Contains(t, out, "cached build:  none")
}

func TestStatusCommand_CurrentAfterIndex(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	_, err := runCLI(t, "index", "-p", root)
	require.NoError(t, err)

	out, err := runCLI(t, "status", "-p", root)
	require.NoError(t, err)
	assert.Contains(t, out, "cached build:  current")
}

func TestStatusCommand_JSON(t *testing.T) {
	isolateCache(t)
	root := writeTestProject(t)

	out, err := runCLI(t, "status", "-p", root, "--json")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.HasProcedures)
	assert.True(t, report.HasContext)
	assert.False(t, report.CachedBuild)
}
