package statestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const writeTimeout = 5 * time.Second

// Saver writes snapshots to a Store in the background. Save never blocks on
// I/O and never fails; write errors are logged and the snapshot is dropped.
// Consecutive saves of the same key before a write coalesce into one.
type Saver struct {
	store Store
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[string][]byte
	order   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewSaver(store Store, log zerolog.Logger) *Saver {
	s := &Saver{
		store:   store,
		log:     log.With().Str("component", "saver").Logger(),
		pending: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// Save marshals v immediately so later mutation by the caller cannot leak
// into the written snapshot.
func (s *Saver) Save(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("marshal snapshot")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn().Str("key", key).Msg("save after close dropped")
		return
	}
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = raw
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

// Close writes whatever is still pending and stops the writer.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()

	<-s.done
}

func (s *Saver) loop() {
	defer close(s.done)
	for range s.wake {
		s.drain()
	}
	s.drain()
}

func (s *Saver) drain() {
	for {
		s.mu.Lock()
		if len(s.order) == 0 {
			s.mu.Unlock()
			return
		}
		key := s.order[0]
		s.order = s.order[1:]
		raw := s.pending[key]
		delete(s.pending, key)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.store.Put(ctx, key, raw)
		cancel()
		if err != nil {
			s.log.Error().Err(err).Str("action", "persist").Str("key", key).Msg("state write failed")
		}
	}
}
