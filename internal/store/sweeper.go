package store

import (
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the background manager: once per second it tries the write lock,
// removes expired keys, and snapshots when the dirty counter reaches the
// batch threshold. It uses TryLock so it never stalls foreground commands; a
// contended tick is simply skipped.
type Sweeper struct {
	store    *Store
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	log      zerolog.Logger
}

func NewSweeper(s *Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    s,
		interval: time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      logger.With().Str("component", "sweeper").Logger(),
	}
}

func (w *Sweeper) Start() {
	go w.run()
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (w *Sweeper) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Sweeper) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Sweeper) tick() {
	if !w.store.mu.TryLock() {
		return
	}
	defer w.store.mu.Unlock()

	if expired := w.store.sweepExpiredLocked(nowMillis()); expired > 0 && w.store.Debug() {
		w.log.Debug().Int("keys", expired).Msg("expired keys removed")
	}

	batch := w.store.batchSize.Load()
	if w.store.persistenceEnabled && batch > 0 && w.store.dirty.Load() >= batch {
		ops := w.store.dirty.Load()
		if err := w.store.saveLocked(); err != nil {
			w.log.Error().Err(err).Msg("batch save failed")
		} else if w.store.Debug() {
			w.log.Debug().Int64("ops", ops).Msg("batch saved operations to disk")
		}
	}
}
