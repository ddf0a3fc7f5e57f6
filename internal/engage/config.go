package engage

// Config is the user-adjustable scheduler configuration.
type Config struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Frequency        Tier      `json:"frequency" yaml:"frequency"`
	CustomDailyLimit *int      `json:"custom_daily_limit" yaml:"custom_daily_limit"`
	EnabledTypes     []Trigger `json:"enabled_types" yaml:"enabled_types"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Frequency:    TierMedium,
		EnabledTypes: append([]Trigger(nil), AllTriggers...),
	}
}

func (c Config) enabled(t Trigger) bool {
	for _, e := range c.EnabledTypes {
		if e == t {
			return true
		}
	}
	return false
}

func (c Config) clone() Config {
	out := c
	out.EnabledTypes = append([]Trigger(nil), c.EnabledTypes...)
	if c.CustomDailyLimit != nil {
		v := *c.CustomDailyLimit
		out.CustomDailyLimit = &v
	}
	return out
}

// Update is a partial config change. Nil fields are left alone. Invalid
// frequencies and negative limits are ignored; unknown trigger names are
// dropped from EnabledTypes.
type Update struct {
	Enabled          *bool      `json:"enabled"`
	Frequency        *Tier      `json:"frequency"`
	CustomDailyLimit *int       `json:"custom_daily_limit"`
	ClearDailyLimit  bool       `json:"clear_daily_limit"`
	EnabledTypes     *[]Trigger `json:"enabled_types"`
}

func (c Config) apply(u Update) Config {
	out := c.clone()
	if u.Enabled != nil {
		out.Enabled = *u.Enabled
	}
	if u.Frequency != nil && u.Frequency.Valid() {
		out.Frequency = *u.Frequency
	}
	switch {
	case u.ClearDailyLimit:
		out.CustomDailyLimit = nil
	case u.CustomDailyLimit != nil && *u.CustomDailyLimit >= 0:
		v := *u.CustomDailyLimit
		out.CustomDailyLimit = &v
	}
	if u.EnabledTypes != nil {
		out.EnabledTypes = filterKnown(*u.EnabledTypes)
	}
	return out
}

func filterKnown(in []Trigger) []Trigger {
	out := make([]Trigger, 0, len(in))
	seen := make(map[Trigger]bool)
	for _, t := range in {
		if Known(t) && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
