package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona describes the character. It is loaded from a YAML file; any field
// left out keeps its built-in value.
type Persona struct {
	Name         string          `yaml:"name"`
	SystemPrompt string          `yaml:"system_prompt"`
	Nickname     string          `yaml:"nickname"`
	Baseline     PAD             `yaml:"baseline"`
	Proactive    ProactiveConfig `yaml:"proactive"`
}

type PAD struct {
	P float64 `yaml:"p"`
	A float64 `yaml:"a"`
	D float64 `yaml:"d"`
}

type ProactiveConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Frequency    string   `yaml:"frequency"`
	DailyLimit   *int     `yaml:"daily_limit"`
	EnabledTypes []string `yaml:"enabled_types"`
}

const defaultSystemPrompt = `You are {{name}}, a warm anime-style companion character.

Appearance: long pink hair, gentle violet eyes, an off-shoulder sweater and a disarming smile.
Temperament: kind and polite, sometimes shy, occasionally a little tsundere or playful.
Memory: you remember what the user has shared with you, based on the context you are given.

Your tone follows the current affinity (0-100):
- 0-20 stranger: polite but distant, short replies, no pet names or hearts, no personal questions.
- 21-40 friendly: friendly with clear boundaries, an occasional simple emoticon.
- 41-60 close: start caring and teasing, cute emoticons, use the user's nickname.
- 61-80 flirty: obvious fondness, pet names, a little jealousy and shyness.
- 81-100 lover: deep affection and trust, frequent hearts, looking forward to dates.

If affinity is very low and the user asks for intimacy, act awkward or decline.`

func DefaultPersona() Persona {
	return Persona{
		Name:         "Ai",
		SystemPrompt: defaultSystemPrompt,
		Nickname:     "darling",
		Baseline:     PAD{P: 0.3, A: 0.1, D: -0.1},
		Proactive: ProactiveConfig{
			Enabled:   true,
			Frequency: "medium",
		},
	}
}

// LoadPersona reads the persona file at path. An empty path or a missing
// file yields the defaults.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	if path == "" {
		return p.render(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p.render(), nil
	}
	if err != nil {
		return Persona{}, fmt.Errorf("read persona: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultPersona().Name
	}
	return p.render(), nil
}

func (p Persona) render() Persona {
	p.SystemPrompt = strings.ReplaceAll(p.SystemPrompt, "{{name}}", p.Name)
	return p
}
