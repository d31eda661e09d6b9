package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpcarry/internal/carry"
	"perpcarry/internal/exchange"
	"perpcarry/internal/models"
)

type fakeExchange struct {
	quotes  map[string]*models.PriceQuote
	history map[string][]models.FundingObservation
	fail    map[string]error
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) GetPremiumIndex(_ context.Context, symbol string) (*models.PriceQuote, error) {
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return q, nil
}

func (f *fakeExchange) GetFundingHistory(_ context.Context, symbol string, limit int) ([]models.FundingObservation, error) {
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	obs := f.history[symbol]
	if len(obs) > limit {
		obs = obs[len(obs)-limit:]
	}
	return obs, nil
}

func (f *fakeExchange) GetExchangeInfo(context.Context) ([]models.SymbolInfo, error) {
	return nil, nil
}

func testExchange() *fakeExchange {
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &fakeExchange{
		quotes: map[string]*models.PriceQuote{
			"BTCUSDT": {
				Symbol:          "BTCUSDT",
				MarkPrice:       30100,
				IndexPrice:      30000,
				LastFundingRate: 0.0001,
				NextFundingTime: t0.Add(24 * time.Hour),
				Timestamp:       t0.Add(20 * time.Hour),
			},
		},
		history: map[string][]models.FundingObservation{
			"BTCUSDT": {
				{Symbol: "BTCUSDT", FundingTime: t0, FundingRate: 0.0001},
				{Symbol: "BTCUSDT", FundingTime: t0.Add(8 * time.Hour), FundingRate: 0.0002},
				{Symbol: "BTCUSDT", FundingTime: t0.Add(16 * time.Hour), FundingRate: 0.0003},
			},
		},
		fail: map[string]error{},
	}
}

func TestSnapshot(t *testing.T) {
	a := NewAnalyzer(testExchange(), 100000, 1095, 90)

	snap, err := a.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 100.0, snap.Basis)
	assert.InDelta(t, (100.0/30000.0)*1095*100, snap.AnnualizedPremiumPct, 1e-9)
	assert.InDelta(t, 0.0002, snap.PredictedFunding, 1e-12)
	assert.Equal(t, 0.0001, snap.LastFundingRate)

	require.Len(t, snap.ShortFundingPnL, 3)
	assert.InDelta(t, 10.0, snap.ShortFundingPnL[0].Cumulative, 1e-9)
	assert.InDelta(t, 60.0, snap.ShortFundingPnL[2].Cumulative, 1e-9)
}

func TestSnapshotThinHistoryFallsBackToPremiumRule(t *testing.T) {
	ex := testExchange()
	ex.history["BTCUSDT"] = ex.history["BTCUSDT"][:1]

	a := NewAnalyzer(ex, 100000, 1095, 90)
	snap, err := a.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	frac := 100.0 / 30000.0
	assert.InDelta(t, carry.PredictedFundingFromPremium(frac), snap.PredictedFunding, 1e-12)
	assert.Equal(t, snap.PremiumRuleFunding, snap.PredictedFunding)
}

func TestSnapshotAllSkipsFailures(t *testing.T) {
	ex := testExchange()
	ex.fail["ETHUSDT"] = errors.New("boom")

	a := NewAnalyzer(ex, 100000, 1095, 90)
	snaps, err := a.SnapshotAll(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "BTCUSDT", snaps[0].Symbol)
}

func TestSnapshotAllErrorsWhenNothingSucceeds(t *testing.T) {
	ex := testExchange()
	ex.fail["BTCUSDT"] = errors.New("boom")

	a := NewAnalyzer(ex, 100000, 1095, 90)
	_, err := a.SnapshotAll(context.Background(), []string{"BTCUSDT"})
	assert.Error(t, err)
}

func TestSnapshotRejectsBadQuote(t *testing.T) {
	ex := testExchange()
	ex.quotes["BTCUSDT"].IndexPrice = 0

	a := NewAnalyzer(ex, 100000, 1095, 90)
	_, err := a.Snapshot(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, carry.ErrInvalidInput)
}

func TestFundingSeries(t *testing.T) {
	a := NewAnalyzer(testExchange(), 100000, 1095, 90)

	series, err := a.FundingSeries(context.Background(), "BTCUSDT", 50000, carry.SideLong, 2)
	require.NoError(t, err)
	require.Len(t, series, 2)

	// Longs pay positive funding.
	assert.InDelta(t, -10.0, series[0].PnL, 1e-9)
	assert.InDelta(t, -25.0, series[1].Cumulative, 1e-9)
}

func TestRefreshKeepsPolledSeries(t *testing.T) {
	a := NewAnalyzer(testExchange(), 100000, 1095, 90)

	prev, err := a.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	update := exchange.MarkPriceUpdate{
		Symbol:          "BTCUSDT",
		MarkPrice:       30200,
		IndexPrice:      30050,
		FundingRate:     0.00015,
		NextFundingTime: prev.NextFundingTime,
		EventTime:       time.Now(),
	}

	snap, err := a.Refresh(prev, update)
	require.NoError(t, err)

	assert.Equal(t, 150.0, snap.Basis)
	assert.Equal(t, 30200.0, snap.MarkPrice)
	assert.Equal(t, prev.LastFundingRate, snap.LastFundingRate)
	assert.Equal(t, 0.00015, snap.PredictedFunding)
	assert.Equal(t, prev.ShortFundingPnL, snap.ShortFundingPnL)
}

func TestRefreshRejectsBadUpdate(t *testing.T) {
	a := NewAnalyzer(testExchange(), 100000, 1095, 90)

	_, err := a.Refresh(nil, exchange.MarkPriceUpdate{Symbol: "BTCUSDT", MarkPrice: 0, IndexPrice: 30000})
	assert.ErrorIs(t, err, carry.ErrInvalidInput)
}
