package companion

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/keshon/heartline/internal/affect"
	"github.com/keshon/heartline/internal/ai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	metadataRe = regexp.MustCompile(`(?s)<metadata>\s*(\{.*?\})\s*</metadata>`)
	plusSignRe = regexp.MustCompile(`:\s*\+([0-9.]+)`)
)

const metadataSchemaSrc = `{
  "type": "object",
  "properties": {
    "emotion": {"type": "string"},
    "affinity_change": {"type": "number"},
    "emotion_delta": {
      "type": ["object", "null"],
      "properties": {
        "P": {"type": "number"},
        "A": {"type": "number"},
        "D": {"type": "number"}
      }
    },
    "nickname": {"type": "string"}
  }
}`

var metadataSchema = jsonschema.MustCompileString("metadata.json", metadataSchemaSrc)

// Metadata is the structured tag the model appends to every reply.
type Metadata struct {
	Emotion        string        `json:"emotion"`
	AffinityChange float64       `json:"affinity_change"`
	EmotionDelta   *affect.Delta `json:"emotion_delta"`
	Nickname       string        `json:"nickname"`
}

// changeBound keeps the float-to-int conversion defined. Validate narrows
// the result further.
const changeBound = 100

// Change is the proposed affinity change rounded to a whole point.
func (m Metadata) Change() int {
	c := m.AffinityChange
	switch {
	case math.IsNaN(c):
		return 0
	case c > changeBound:
		c = changeBound
	case c < -changeBound:
		c = -changeBound
	}
	return int(math.Round(c))
}

type parsedReply struct {
	Text  string
	Meta  Metadata
	Found bool
	Err   error
}

// parseReply strips reasoning blocks and the metadata tag from a raw
// completion. A tag that fails to decode leaves Meta zero and sets Err.
func parseReply(raw string) parsedReply {
	text := ai.StripThink(raw)

	loc := metadataRe.FindStringSubmatchIndex(text)
	if loc == nil {
		if i := strings.Index(text, "<metadata>"); i >= 0 {
			return parsedReply{
				Text:  strings.TrimSpace(text[:i]),
				Found: true,
				Err:   errors.New("unterminated metadata tag"),
			}
		}
		return parsedReply{Text: text}
	}

	body := text[loc[2]:loc[3]]
	clean := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	meta, err := decodeMetadata(body)
	return parsedReply{Text: clean, Meta: meta, Found: true, Err: err}
}

func decodeMetadata(body string) (Metadata, error) {
	body = plusSignRe.ReplaceAllString(body, ": $1")

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if err := metadataSchema.Validate(doc); err != nil {
		return Metadata{}, fmt.Errorf("validate metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	meta.Nickname = strings.TrimSpace(meta.Nickname)
	return meta, nil
}
