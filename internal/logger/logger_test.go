package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup(LogConfig{Level: "loud", Format: "json", Output: "stderr"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	require.NoError(t, Setup(LogConfig{Level: "debug", Format: "json", Output: path}))
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	_, err := openOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}

func TestWithDocument(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	log := WithDocument(base, "march.pdf", "0123456789abcdef0123")
	log.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "march.pdf", entry["document"])
	assert.Equal(t, "0123456789ab", entry["sha256"])

	buf.Reset()
	short := WithDocument(base, "short.png", "abc")
	short.Info().Msg("hello")
	entry = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "sha256")
}
