package traits

import (
	"fmt"
	"strings"
)

// Describe renders notable traits as short natural-language phrases. Traits in
// the unremarkable middle band produce nothing.
func (m *Model) Describe() []string {
	return describe(m.state.Traits)
}

func describe(t Traits) []string {
	var out []string
	switch {
	case t.Independence > 70:
		out = append(out, "quite independent, does not need constant contact")
	case t.Independence < 30:
		out = append(out, "clingy, wants to be close and hear from the user often")
	}
	if t.Willfulness > 65 {
		out = append(out, "a little willful, likes getting her way")
	}
	if t.Sensitivity > 70 {
		out = append(out, "sensitive, notices small shifts in tone")
	}
	switch {
	case t.Security < 35:
		out = append(out, "insecure, worries about being left behind")
	case t.Security > 75:
		out = append(out, "secure and relaxed in the relationship")
	}
	switch {
	case t.Affection > 70:
		out = append(out, "very affectionate and openly warm")
	case t.Affection < 30:
		out = append(out, "reserved with affection")
	}
	if t.Trust < 35 {
		out = append(out, "guarded, slow to trust")
	}
	return out
}

// Dominant returns short labels for the traits that stand out, or "gentle"
// when none do.
func (m *Model) Dominant() []string {
	return dominant(m.state.Traits)
}

func dominant(t Traits) []string {
	var out []string
	switch {
	case t.Independence > 65:
		out = append(out, "independent")
	case t.Independence < 35:
		out = append(out, "clingy")
	}
	if t.Willfulness > 60 {
		out = append(out, "willful")
	}
	if t.Sensitivity > 65 {
		out = append(out, "sensitive")
	}
	if t.Security < 40 {
		out = append(out, "insecure")
	}
	if t.Affection > 65 {
		out = append(out, "warm")
	}
	switch {
	case t.Trust > 70:
		out = append(out, "trusting")
	case t.Trust < 40:
		out = append(out, "guarded")
	}
	if len(out) == 0 {
		out = append(out, "gentle")
	}
	return out
}

// PromptInjection is the personality block for the system prompt. Empty when
// no trait is notable.
func (m *Model) PromptInjection() string {
	lines := m.Describe()
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Personality]\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	return strings.TrimRight(b.String(), "\n")
}
