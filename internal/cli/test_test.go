package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	stdout, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	stdout, _, err := execute(t, "test", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	var result TestResult
	resp := decodeData(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandPasses(t *testing.T) {
	stdout, _, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ basket")
	assert.Contains(t, stdout, "✓ counter")
	assert.Contains(t, stdout, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandJSONReportsGolden(t *testing.T) {
	stdout, _, err := execute(t, "test", scenariosDir, "--format", "json")
	require.NoError(t, err)

	var result TestResult
	resp := decodeData(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, result.Scenarios, 2)

	golden := map[string]string{}
	for _, s := range result.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
		golden[s.Name] = s.Golden
	}
	assert.Equal(t, map[string]string{"basket": "match", "counter": "missing"}, golden)
}

func TestTestCommandFilter(t *testing.T) {
	stdout, _, err := execute(t, "test", scenariosDir, "--filter", "bask*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, stdout, "counter")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, _, err := execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	goldenDir := t.TempDir()

	stdout, _, err := execute(t, "test", scenariosDir, "--update", "--golden-dir", goldenDir, "--filter", "basket")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ basket (golden updated)")

	got, err := os.ReadFile(filepath.Join(goldenDir, "basket.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "basket.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	goldenDir := t.TempDir()
	writeFile(t, goldenDir, "basket.golden", "{}\n")

	stdout, _, err := execute(t, "test", scenariosDir, "--golden-dir", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ basket")
	assert.Contains(t, stdout, "trace does not match golden file")
	assert.Contains(t, stdout, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	schemaSrc, err := os.ReadFile(beansSchema)
	require.NoError(t, err)
	writeFile(t, dir, "beans.cue", string(schemaSrc))
	writeFile(t, dir, "wrong.yaml", `name: wrong
description: "Asserts a value the steps never set"
schema: beans.cue
steps:
  - op: create
    bean: item
    type: Item
    root: true
  - op: set
    bean: item
    property: name
    value: pear
  - op: flush
assertions:
  - type: value
    side: SERVER
    bean: item
    property: name
    equals: apple
`)

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeData(t, stdout, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, result.Scenarios, 1)
	assert.False(t, result.Scenarios[0].Pass)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommandUnloadableScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps: [\n")

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestFindScenarioFilesSkipsGolden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, "nested/b.yml", "")
	writeFile(t, dir, "golden/c.yaml", "")
	writeFile(t, dir, "notes.txt", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yml"),
	}, files)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("g", "basket.golden"), goldenFilePath("g", "scenarios/basket.yaml"))
}
