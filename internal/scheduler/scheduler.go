package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"perpcarry/internal/analytics"
	"perpcarry/internal/exchange"
	"perpcarry/internal/models"
)

// Scheduler polls the analyzer on an interval and serves the latest
// snapshots from an in-memory cache. Live mark price updates patch the
// cache between polls.
type Scheduler struct {
	analyzer *analytics.Analyzer
	ex       exchange.Exchange
	symbols  []string
	interval time.Duration

	mu      sync.RWMutex
	cache   map[string]*models.CarrySnapshot
	listing []models.SymbolInfo

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewScheduler(analyzer *analytics.Analyzer, ex exchange.Exchange, symbols []string, interval time.Duration) *Scheduler {
	return &Scheduler{
		analyzer: analyzer,
		ex:       ex,
		symbols:  symbols,
		interval: interval,
		cache:    make(map[string]*models.CarrySnapshot),
		stopCh:   make(chan struct{}),
	}
}

// Begins the polling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	// Run once immediately so the cache isn't empty on first request
	s.refresh(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.refresh(ctx)
			case <-ctx.Done():
				log.Info().Msg("scheduler stopped")
				return
			case <-s.stopCh:
				log.Info().Msg("scheduler stopped")
				return
			}
		}
	}()

	log.Info().
		Stringer("interval", s.interval).
		Strs("symbols", s.symbols).
		Msg("scheduler started")
}

// Signals the background goroutine to exit cleanly.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Returns the latest cached snapshot for a symbol.
func (s *Scheduler) GetSnapshot(symbol string) (*models.CarrySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.cache[symbol]
	return snap, ok
}

// Returns the cached perpetual contract listing.
func (s *Scheduler) GetSymbols() []models.SymbolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SymbolInfo, len(s.listing))
	copy(out, s.listing)
	return out
}

// Apply patches the cached snapshot for one symbol with a live mark
// price update, keeping the last polled funding series.
func (s *Scheduler) Apply(update exchange.MarkPriceUpdate) {
	s.mu.RLock()
	prev := s.cache[update.Symbol]
	s.mu.RUnlock()

	snap, err := s.analyzer.Refresh(prev, update)
	if err != nil {
		log.Warn().Err(err).Str("symbol", update.Symbol).Msg("live update rejected")
		return
	}

	s.mu.Lock()
	s.cache[update.Symbol] = snap
	s.mu.Unlock()
}

// Fetches fresh snapshots for all symbols and updates the cache.
func (s *Scheduler) refresh(ctx context.Context) {
	s.refreshListing(ctx)

	snaps, err := s.analyzer.SnapshotAll(ctx, s.symbols)
	if err != nil {
		log.Error().Err(err).Msg("scheduler refresh failed")
		return
	}

	s.mu.Lock()
	for _, snap := range snaps {
		s.cache[snap.Symbol] = snap
	}
	s.mu.Unlock()

	log.Info().Int("symbols", len(snaps)).Msg("cache refreshed")
}

// Loads the contract listing once; trading rules change rarely enough
// that one fetch per process is fine.
func (s *Scheduler) refreshListing(ctx context.Context) {
	s.mu.RLock()
	have := len(s.listing) > 0
	s.mu.RUnlock()
	if have {
		return
	}

	infos, err := s.ex.GetExchangeInfo(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load exchange info")
		return
	}

	perps := make([]models.SymbolInfo, 0, len(infos))
	for _, info := range infos {
		if info.ContractType == "PERPETUAL" && info.Status == "TRADING" {
			perps = append(perps, info)
		}
	}

	s.mu.Lock()
	s.listing = perps
	s.mu.Unlock()

	log.Info().Int("perpetuals", len(perps)).Msg("exchange info loaded")
}
