package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically purges objects whose save was interrupted before
// its metadata was committed.
type Sweeper struct {
	store    FileStore
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
	ticker   *time.Ticker
	done     chan struct{}
}

func NewSweeper(fs FileStore, interval, maxAge time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    fs,
		interval: interval,
		maxAge:   maxAge,
		log:      log.With().Str("component", "sweeper").Logger(),
	}
}

// Start begins the background ticker.
func (s *Sweeper) Start() {
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	go s.run()
	s.log.Info().Dur("interval", s.interval).Dur("max_age", s.maxAge).Msg("pending object sweeper started")
}

// Stop halts the background ticker.
func (s *Sweeper) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.done != nil {
		close(s.done)
	}
}

func (s *Sweeper) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one purge pass and returns how many objects it removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	n, err := s.store.PurgePending(ctx, s.maxAge)
	if err != nil {
		s.log.Error().Err(err).Msg("purge pending objects")
	}
	if n > 0 {
		s.log.Info().Int("purged", n).Msg("purged interrupted uploads")
	}
	return n
}
