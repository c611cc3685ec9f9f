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

const passingScenario = `
name: chain
description: two orders in a chain
consumers:
  - name: c
    interested: [A, B]
orders:
  - name: a
    class: A
  - name: b
    class: B
    after: [a]
assertions:
  - type: delivered_order
    consumer: c
    orders: [a, b]
`

const failingScenario = `
name: wrong_count
description: expects more deliveries than happen
consumers:
  - name: c
    interested: [A]
orders:
  - name: a
    class: A
assertions:
  - type: delivered_count
    consumer: c
    count: 2
`

func writeScenario(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := executeTest(t, "text", "../harness/testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ load_chain")
	assert.Contains(t, out, "✓ starvation")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommand_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "chain.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "chain.yaml", passingScenario)
	writeScenario(t, dir, "wrong_count.yaml", failingScenario)

	out, err := executeTest(t, "text", dir, "--filter", "ch*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "chain.yaml", passingScenario)

	_, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "chain.golden")
	require.FileExists(t, golden)

	_, err = executeTest(t, "text", dir)
	require.NoError(t, err, "fresh golden matches")

	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("s", "golden", "x.golden"), goldenFilePath(filepath.Join("s", "x.yaml")))
}
