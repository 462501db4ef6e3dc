package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (map[string]interface{}, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newCLI()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)

	err := app.Run(append([]string{"tenderctl"}, args...))

	var result map[string]interface{}
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &result), out.String())
	}
	return result, err
}

func TestTrainCommand(t *testing.T) {
	dir := t.TempDir()

	result, err := runCLI(t, "", "--data-dir", dir, "train")
	require.NoError(t, err)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, true, result["used_synthetic_data"])
	assert.Equal(t, true, result["model_saved"])

	assert.FileExists(t, filepath.Join(dir, "models", "CURRENT"))

	status, err := runCLI(t, "", "--data-dir", dir, "status")
	require.NoError(t, err)
	assert.Equal(t, true, status["model_loaded"])
	assert.Equal(t, result["model_id"], status["model_id"])
}

func TestScoreCommand(t *testing.T) {
	text := "We will deliver the project with certified engineers. Our methodology covers quality assurance and timeline management."

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"argument", "", []string{text}},
		{"stdin", text, []string{"-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--data-dir", t.TempDir(), "score"}, tt.args...)
			result, err := runCLI(t, tt.stdin, args...)
			require.NoError(t, err)
			assert.Greater(t, result["word_count"], float64(0))
			assert.Contains(t, result, "quality_score")
		})
	}

	t.Run("missing text", func(t *testing.T) {
		_, err := runCLI(t, "", "--data-dir", t.TempDir(), "score")
		assert.Error(t, err)
	})
}

func TestAnalyzeCommand(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"not a number", "abc"},
		{"non-positive", "0"},
		{"unknown bid", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, "", "--data-dir", t.TempDir(), "analyze", tt.arg)
			assert.Error(t, err)
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "", "--data-dir", t.TempDir(), "--log-level", "loud", "status")
	assert.ErrorContains(t, err, "invalid log level")
}
