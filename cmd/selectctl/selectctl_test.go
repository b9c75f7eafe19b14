package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const poolCSV = `id,success_rate,latency_ms
steady,0.99,300
flaky,0.40,40
dead,0.0,20
`

func writePool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.csv")
	require.NoError(t, os.WriteFile(path, []byte(poolCSV), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "score", writePool(t), "--mode", "best-of", "--seed", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "mode best-of")
	assert.Contains(t, out, "success_rate")
	assert.Contains(t, out, "selected: steady")
	for _, id := range []string{"steady", "flaky", "dead"} {
		assert.Contains(t, out, id)
	}
}

func TestScoreCommandReadsStdin(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(poolCSV))
	cmd.SetArgs([]string{"--no-color", "--log-level", "error", "score", "-", "--mode", "best-of", "-k", "2"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "expected success")
	assert.Contains(t, out.String(), "selected: steady, ")
}

func TestScoreCommandKeepsOnlyImprovingPicks(t *testing.T) {
	// Without prior smoothing "dead" estimates to exactly zero success and
	// can never improve the combined pick.
	t.Setenv("CANDSEL_PRIORS_WEIGHT", "0")
	out, err := run(t, "score", writePool(t), "--mode", "best-of", "-k", "3", "--multi-pick", "improve", "--seed", "3")
	require.NoError(t, err)

	var selected string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "selected: ") {
			selected = line
		}
	}
	require.NotEmpty(t, selected)
	assert.Contains(t, selected, "steady")
	assert.NotContains(t, selected, "dead")
}

func TestScoreCommandRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,fee\na,1\n"), 0o600))
	_, err := run(t, "score", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header must contain")

	_, err = run(t, "score", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open candidates")
}

func TestSimulateCommand(t *testing.T) {
	out, err := run(t, "simulate", writePool(t),
		"--mode", "epsilon-greedy", "--seed", "5", "--rounds", "400", "--workers", "2", "--jitter", "0")
	require.NoError(t, err)

	assert.Contains(t, out, "simulated 400 rounds")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Contains(t, out, "est. success")
}

func TestSimulateCommandRejectsDispatch(t *testing.T) {
	_, err := run(t, "simulate", writePool(t), "--dispatch", "broadcast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dispatch mode")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "candsel.yaml")
	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = run(t, "config", "init", path, "--force")
	require.NoError(t, err)

	out, err = run(t, "--config", path, "--mode", "epsilon-greedy", "-k", "3", "config", "show")
	require.NoError(t, err)

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "epsilon-greedy", shown["exploration_mode"])
	assert.Equal(t, 3, shown["selection_k"])

	out, err = run(t, "--config", path, "--multi-pick", "improve", "config", "show")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "improve", shown["multi_pick"])
}

func TestConfigShowRejectsMissingFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSimulateCommandPrintsBreakers(t *testing.T) {
	t.Setenv("CANDSEL_CIRCUIT_BREAKER_ENABLED", "true")
	out, err := run(t, "simulate", writePool(t), "--mode", "best-of", "--rounds", "50", "--workers", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "breaker")
	assert.Contains(t, out, "dead")
}
