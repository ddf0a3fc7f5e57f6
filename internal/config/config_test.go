package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/hl")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/hl", "state.json"), cfg.StatePath)
	assert.Equal(t, "sk-test", cfg.EmbeddingKey)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.True(t, cfg.EmbeddingsEnabled())
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STATE_BACKEND", "etcd")
	_, err := New()
	assert.Error(t, err)
}

func TestLoadPersona(t *testing.T) {
	p, err := LoadPersona("")
	require.NoError(t, err)
	assert.Equal(t, "Ai", p.Name)
	assert.Contains(t, p.SystemPrompt, "You are Ai,")

	p, err = LoadPersona(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "darling", p.Nickname)

	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Mika
baseline:
  p: 0.5
  a: 0
  d: 0.2
proactive:
  enabled: true
  frequency: high
  daily_limit: 4
  enabled_types: [morning_greeting, miss_you]
`), 0o600))

	p, err = LoadPersona(path)
	require.NoError(t, err)
	assert.Equal(t, "Mika", p.Name)
	assert.Contains(t, p.SystemPrompt, "You are Mika,")
	assert.Equal(t, "darling", p.Nickname)
	assert.Equal(t, PAD{P: 0.5, A: 0, D: 0.2}, p.Baseline)
	require.NotNil(t, p.Proactive.DailyLimit)
	assert.Equal(t, 4, *p.Proactive.DailyLimit)
	assert.Equal(t, []string{"morning_greeting", "miss_you"}, p.Proactive.EnabledTypes)

	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o600))
	_, err = LoadPersona(path)
	assert.Error(t, err)
}
