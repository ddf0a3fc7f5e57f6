package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartline.log")
	log, closer := New(Options{Level: "debug", File: path, JSON: true})

	log.Debug().Str("action", "test").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	log, closer := New(Options{Level: "loud"})
	defer closer.Close()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
