package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoll(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunFull(t *testing.T) {
	code, out, errOut := runRoll(t, "2d1", "+", "1")
	assert.Equal(t, exitOK, code, errOut)
	assert.Equal(t, "2d1 + 1: 1, 1, 1 = 3\n", out)
}

func TestRunValue(t *testing.T) {
	code, out, _ := runRoll(t, "-d", "value", "-c", "3", "3d1")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "3\n3\n3\n", out)
}

func TestRunSeedIsReproducible(t *testing.T) {
	_, first, _ := runRoll(t, "--seed", "11", "-c", "5", "4d6^3")
	_, second, _ := runRoll(t, "--seed", "11", "-c", "5", "4d6^3")
	assert.Equal(t, first, second)
	assert.Equal(t, 5, strings.Count(first, "4d6^3: "))
}

func TestRunChart(t *testing.T) {
	for _, workers := range []string{"0", "4"} {
		code, out, _ := runRoll(t, "-d", "chart", "--samples", "100", "--workers", workers, "1d1")
		assert.Equal(t, exitOK, code)
		// 100 samples scale bars by 2
		assert.Equal(t, "  1. 100.0: "+strings.Repeat("*", 51)+"\n", out)
	}
}

func TestRunYAML(t *testing.T) {
	code, out, _ := runRoll(t, "-d", "yaml", "1d1")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "expression: 1d1\n")
	assert.Contains(t, out, "status: kept")
}

func TestRunPartial(t *testing.T) {
	code, out, errOut := runRoll(t, "1d1", "x")
	assert.Equal(t, exitPartial, code)
	assert.Equal(t, "1d1: 1 = 1\n", out)
	assert.Contains(t, errOut, `parsed "1d1", could not parse "x"`)
}

func TestRunEvalFailure(t *testing.T) {
	code, out, errOut := runRoll(t, "3d1!!")
	assert.Equal(t, exitEval, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "never terminate")
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unparseable", []string{"hello"}},
		{"no expression", nil},
		{"bad display", []string{"-d", "pie", "1d6"}},
		{"bad count", []string{"-c", "-2", "1d6"}},
		{"unknown flag", []string{"--sides", "1d6"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runRoll(t, tt.args...)
			assert.Equal(t, exitUsage, code)
			assert.Empty(t, out)
			assert.NotEmpty(t, errOut)
		})
	}
}

func TestRunHelp(t *testing.T) {
	code, out, _ := runRoll(t, "--help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Usage: roll")
}

func TestRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roll.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roll:\n  display: value\n  count: 2\n"), 0644))

	code, out, _ := runRoll(t, "--config", path, "1d1")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "1\n1\n", out)

	code, out, _ = runRoll(t, "--config", path, "-d", "full", "1d1")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "1d1: 1 = 1\n1d1: 1 = 1\n", out)
}

func TestRunBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roll.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roll: [\n"), 0644))

	code, _, errOut := runRoll(t, "--config", path, "1d6")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "parse config")
}
