package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

const renameScenario = `name: rename_keeps_old
description: A renamed entity is still found by its old identifier
flow:
  - op: create
    ref: a
    title: Hello World
    expect: { slug: hello-world }
  - op: rename
    ref: a
    title: Goodbye
    expect: { slug: goodbye, outcome: created }
  - op: find
    id: hello-world
    expect: { ref: a }
assertions:
  - type: history
    ref: a
    identifiers: [hello-world, goodbye]
`

const renameGolden = `scenario: rename_keeps_old
[1] create a Entity "Hello World" -> hello-world (created)
[2] rename a "Goodbye" -> goodbye (created)
[3] find Entity "hello-world" -> a
`

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Contains(t, out, "Error [E001]")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := runTestCommand(t, "json", harnessScenarios)
	require.NoError(t, err, out)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Zero(t, response.Data.Failed, "%+v", response.Data.Scenarios)
	assert.Equal(t, response.Data.Total, response.Data.Passed)
	assert.GreaterOrEqual(t, response.Data.Total, 9)
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runTestCommand(t, "text", harnessScenarios, "--filter", "scoped_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ scoped_partitions")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	root := t.TempDir()
	scenarios := filepath.Join(root, "scenarios")
	writeScenario(t, scenarios, "rename.yaml", renameScenario)

	out, err := runTestCommand(t, "text", scenarios, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ rename_keeps_old (golden updated)")

	golden, err := os.ReadFile(filepath.Join(root, "golden", "rename_keeps_old.golden"))
	require.NoError(t, err)
	assert.Equal(t, renameGolden, string(golden))

	out, err = runTestCommand(t, "text", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ rename_keeps_old\n")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	root := t.TempDir()
	scenarios := filepath.Join(root, "scenarios")
	writeScenario(t, scenarios, "rename.yaml", renameScenario)
	writeScenario(t, filepath.Join(root, "golden"), "rename_keeps_old.golden", "scenario: rename_keeps_old\n")

	out, err := runTestCommand(t, "text", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ rename_keeps_old")
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandGoldenDirFlag(t *testing.T) {
	root := t.TempDir()
	scenarios := filepath.Join(root, "scenarios")
	goldenDir := filepath.Join(root, "elsewhere")
	writeScenario(t, scenarios, "rename.yaml", renameScenario)

	_, err := runTestCommand(t, "text", scenarios, "--update", "--golden-dir", goldenDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(goldenDir, "rename_keeps_old.golden"))
}

func TestTestCommandFailingExpect(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bad.yaml", `name: bad_expect
description: Expects the wrong slug
flow:
  - op: create
    ref: a
    title: Hello
    expect: { slug: nope }
`)

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ bad_expect")
	assert.Contains(t, out, `slug: expected "nope", got "hello"`)
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\nflow: [\n")

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "scenarios")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "--golden-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesBadFilter(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.yaml"), []byte(""), 0644))

	_, err := findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestGoldenPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("testdata", "golden"), defaultGoldenDir("testdata/scenarios"))
	assert.Equal(t, filepath.Join("testdata", "golden"), defaultGoldenDir("testdata/scenarios/"))
	assert.Equal(t, filepath.Join("g", "demo.golden"), goldenFilePath("g", "demo"))
}
