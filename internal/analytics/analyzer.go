package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"perpcarry/internal/carry"
	"perpcarry/internal/exchange"
	"perpcarry/internal/models"
)

// Analyzer turns raw market data from one exchange into carry snapshots.
type Analyzer struct {
	ex             exchange.Exchange
	notionalUSD    float64
	periodsPerYear float64
	historyLimit   int
}

// Holds either a snapshot or an error for one symbol.
type symbolResult struct {
	Snapshot *models.CarrySnapshot
	Err      error
}

func NewAnalyzer(ex exchange.Exchange, notionalUSD, periodsPerYear float64, historyLimit int) *Analyzer {
	return &Analyzer{
		ex:             ex,
		notionalUSD:    notionalUSD,
		periodsPerYear: periodsPerYear,
		historyLimit:   historyLimit,
	}
}

// Fetches data for all symbols concurrently and returns the snapshots
// that succeeded. Errors only when every symbol failed.
func (a *Analyzer) SnapshotAll(ctx context.Context, symbols []string) ([]*models.CarrySnapshot, error) {
	results := make(chan symbolResult, len(symbols))

	var wg sync.WaitGroup

	for _, sym := range symbols {
		wg.Add(1)

		go func(sym string) {
			defer wg.Done()

			snap, err := a.Snapshot(ctx, sym)
			results <- symbolResult{Snapshot: snap, Err: err}
		}(sym)
	}

	// Close the channel once all goroutines finish
	go func() {
		wg.Wait()
		close(results)
	}()

	var snaps []*models.CarrySnapshot

	for result := range results {
		if result.Err != nil {
			log.Warn().Err(result.Err).Msg("failed to snapshot symbol, skipping")
			continue
		}
		snaps = append(snaps, result.Snapshot)
	}

	if len(snaps) == 0 {
		return nil, fmt.Errorf("no market data available for symbols %v", symbols)
	}

	return snaps, nil
}

// Calls both data endpoints for one symbol and derives its carry metrics.
func (a *Analyzer) Snapshot(ctx context.Context, symbol string) (*models.CarrySnapshot, error) {
	quote, err := a.ex.GetPremiumIndex(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("[%s] premium index error: %w", a.ex.Name(), err)
	}

	history, err := a.ex.GetFundingHistory(ctx, symbol, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("[%s] funding history error: %w", a.ex.Name(), err)
	}

	return a.build(quote, history)
}

// Derives a snapshot from already-fetched data. Live stream updates
// reuse this path with the cached funding history.
func (a *Analyzer) build(quote *models.PriceQuote, history []models.FundingObservation) (*models.CarrySnapshot, error) {
	basis, err := carry.Basis(quote.MarkPrice, quote.IndexPrice)
	if err != nil {
		return nil, fmt.Errorf("[%s] basis: %w", quote.Symbol, err)
	}

	premium, err := carry.AnnualizedPremiumPct(quote.MarkPrice, quote.IndexPrice, a.periodsPerYear)
	if err != nil {
		return nil, fmt.Errorf("[%s] annualized premium: %w", quote.Symbol, err)
	}

	frac, err := carry.FractionalBasis(quote.MarkPrice, quote.IndexPrice)
	if err != nil {
		return nil, fmt.Errorf("[%s] fractional basis: %w", quote.Symbol, err)
	}
	premiumRule := carry.PredictedFundingFromPremium(frac)

	rates := make([]float64, 0, len(history))
	for _, o := range history {
		rates = append(rates, o.FundingRate)
	}

	predicted, err := carry.PredictedNextFunding(rates)
	if err != nil {
		if !errors.Is(err, carry.ErrInsufficientData) {
			return nil, fmt.Errorf("[%s] predicted funding: %w", quote.Symbol, err)
		}
		// Thin history on a fresh listing: fall back to the premium rule.
		predicted = premiumRule
	}

	return &models.CarrySnapshot{
		Symbol:               quote.Symbol,
		MarkPrice:            quote.MarkPrice,
		IndexPrice:           quote.IndexPrice,
		Basis:                basis,
		AnnualizedPremiumPct: premium,
		LastFundingRate:      quote.LastFundingRate,
		PredictedFunding:     predicted,
		PremiumRuleFunding:   premiumRule,
		NextFundingTime:      quote.NextFundingTime,
		ShortFundingPnL:      carry.CumulativeFundingPnL(a.notionalUSD, history, carry.SideShort),
		UpdatedAt:            time.Now(),
	}, nil
}

// Recomputes the cumulative funding PnL series for an arbitrary notional
// and side from fresh history.
func (a *Analyzer) FundingSeries(ctx context.Context, symbol string, notional float64, side carry.Side, limit int) ([]models.FundingPnLPoint, error) {
	history, err := a.ex.GetFundingHistory(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("[%s] funding history error: %w", a.ex.Name(), err)
	}
	return carry.CumulativeFundingPnL(notional, history, side), nil
}

// Refresh applies a live mark price update on top of a cached snapshot,
// keeping the funding PnL series from the last poll.
func (a *Analyzer) Refresh(prev *models.CarrySnapshot, update exchange.MarkPriceUpdate) (*models.CarrySnapshot, error) {
	quote := &models.PriceQuote{
		Symbol:          update.Symbol,
		MarkPrice:       update.MarkPrice,
		IndexPrice:      update.IndexPrice,
		LastFundingRate: update.FundingRate,
		NextFundingTime: update.NextFundingTime,
		Timestamp:       update.EventTime,
	}

	snap, err := a.build(quote, nil)
	if err != nil {
		return nil, err
	}

	if prev != nil {
		snap.ShortFundingPnL = prev.ShortFundingPnL
		// The stream's rate is the running prediction; keep the settled one.
		snap.LastFundingRate = prev.LastFundingRate
		snap.PredictedFunding = update.FundingRate
	}
	return snap, nil
}
