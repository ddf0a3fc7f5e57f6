package engage

import "time"

// State is the persisted scheduler record. The queue itself is not
// persisted; undelivered messages are stale after a restart.
type State struct {
	LastFired   map[Trigger]time.Time `json:"last_fired"`
	LastTrigger time.Time             `json:"last_trigger"`
	LastActive  time.Time             `json:"last_active"`
	Sent        int                   `json:"sent"`
	Day         string                `json:"day"`
	Config      Config                `json:"config"`
}

func (s *Scheduler) stateLocked() State {
	fired := make(map[Trigger]time.Time, len(s.lastFired))
	for k, v := range s.lastFired {
		fired[k] = v
	}
	return State{
		LastFired:   fired,
		LastTrigger: s.lastTrigger,
		LastActive:  s.lastActive,
		Sent:        s.sent,
		Day:         s.day,
		Config:      s.cfg.clone(),
	}
}

func (s *Scheduler) save(st State) {
	if s.persist != nil {
		s.persist.Save(StateKey, st)
	}
}

// Restore loads a persisted record. Unknown triggers are dropped and zero
// timestamps keep their construction-time values.
func (s *Scheduler) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFired = make(map[Trigger]time.Time)
	for k, v := range st.LastFired {
		if Known(k) {
			s.lastFired[k] = v
		}
	}
	if !st.LastTrigger.IsZero() {
		s.lastTrigger = st.LastTrigger
	}
	if !st.LastActive.IsZero() {
		s.lastActive = st.LastActive
	}
	if st.Day != "" {
		s.day = st.Day
		s.sent = st.Sent
	}
	if st.Config.Frequency != "" {
		cfg := st.Config.clone()
		if !cfg.Frequency.Valid() {
			cfg.Frequency = TierMedium
		}
		cfg.EnabledTypes = filterKnown(cfg.EnabledTypes)
		s.cfg = cfg
	}
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.clone()
}

// UpdateConfig applies a partial update and returns the result.
func (s *Scheduler) UpdateConfig(u Update) Config {
	s.mu.Lock()
	s.cfg = s.cfg.apply(u)
	cfg := s.cfg.clone()
	st := s.stateLocked()
	s.mu.Unlock()

	s.save(st)
	s.log.Info().
		Str("action", "config").
		Bool("enabled", cfg.Enabled).
		Str("frequency", string(cfg.Frequency)).
		Int("types", len(cfg.EnabledTypes)).
		Msg("scheduler config updated")
	return cfg
}

// QueuedSummary describes a queued message without its content.
type QueuedSummary struct {
	ID        string    `json:"id"`
	Reason    Trigger   `json:"reason"`
	Priority  int       `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Peek lists queued messages without consuming them.
func (s *Scheduler) Peek() []QueuedSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedSummary, len(s.queue))
	for i, m := range s.queue {
		out[i] = QueuedSummary{ID: m.ID, Reason: m.Reason, Priority: m.Priority, Timestamp: m.Timestamp}
	}
	return out
}

type Status struct {
	Config        Config             `json:"config"`
	Running       bool               `json:"running"`
	QueueSize     int                `json:"queue_size"`
	SentToday     int                `json:"sent_today"`
	DailyLimit    int                `json:"daily_limit"`
	LastTrigger   time.Time          `json:"last_trigger"`
	LastActive    time.Time          `json:"last_active"`
	AffinityBonus float64            `json:"affinity_bonus"`
	Cooldowns     map[Trigger]string `json:"cooldowns"`
}

func (s *Scheduler) Status() Status {
	score := s.host.Affinity()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetDayLocked(s.now())

	cooldowns := make(map[Trigger]string, len(baseCooldowns))
	for t := range baseCooldowns {
		cooldowns[t] = Cooldown(t, s.cfg.Frequency).String()
	}
	return Status{
		Config:        s.cfg.clone(),
		Running:       s.running.Load(),
		QueueSize:     len(s.queue),
		SentToday:     s.sent,
		DailyLimit:    DailyLimit(score, s.cfg.Frequency, s.cfg.CustomDailyLimit),
		LastTrigger:   s.lastTrigger,
		LastActive:    s.lastActive,
		AffinityBonus: AffinityBonus(score),
		Cooldowns:     cooldowns,
	}
}
