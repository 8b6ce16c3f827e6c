package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSubmissionScoredWritesFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, zerolog.DebugLevel)

	LogSubmissionScored("abc12345", 0.75, "approved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc12345", entry["submission_id"])
	assert.Equal(t, 0.75, entry["score"])
	assert.Equal(t, "approved", entry["status"])
	assert.Equal(t, "info", entry["level"])
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, zerolog.InfoLevel)

	DebugLog("hidden %d", 1)
	assert.Empty(t, buf.String())

	LogWarning("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetupLogger(path))
	defer CloseLogger()

	DebugLog("metric %s computed", "hash")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "metric hash computed")
}
