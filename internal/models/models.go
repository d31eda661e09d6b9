package models

import "time"

// PriceQuote is one premiumIndex reading for a perpetual symbol.
// Mark and index prices are always positive on a live contract.
type PriceQuote struct {
	Symbol          string    `json:"symbol"`
	MarkPrice       float64   `json:"mark_price"`
	IndexPrice      float64   `json:"index_price"`
	LastFundingRate float64   `json:"last_funding_rate"`
	NextFundingTime time.Time `json:"next_funding_time"`
	Timestamp       time.Time `json:"timestamp"`
}

// FundingObservation is one settled funding interval. Sequences are
// ordered by FundingTime, strictly increasing.
type FundingObservation struct {
	Symbol      string    `json:"symbol"`
	FundingTime time.Time `json:"funding_time"`
	FundingRate float64   `json:"funding_rate"`
}

// SymbolInfo carries the trading rules returned by exchangeInfo.
type SymbolInfo struct {
	Symbol         string `json:"symbol"`
	Pair           string `json:"pair"`
	ContractType   string `json:"contract_type"`
	Status         string `json:"status"`
	PricePrecision int    `json:"price_precision"`
	QtyPrecision   int    `json:"qty_precision"`
}

// FundingPnLPoint is one entry of a cumulative funding PnL series.
type FundingPnLPoint struct {
	Time       time.Time `json:"time"`
	PnL        float64   `json:"pnl"`        // this interval's funding cashflow
	Cumulative float64   `json:"cumulative"` // running sum up to and including Time
}

// CarryPosition describes a basis position used as input to carry math.
type CarryPosition struct {
	NotionalUSD    float64 `json:"notional_usd"`
	EntryBasis     float64 `json:"entry_basis"`
	HoldingPeriods int     `json:"holding_periods"`
}

// CarrySnapshot is the analyzer's per-symbol output record.
type CarrySnapshot struct {
	Symbol               string            `json:"symbol"`
	MarkPrice            float64           `json:"mark_price"`
	IndexPrice           float64           `json:"index_price"`
	Basis                float64           `json:"basis"`
	AnnualizedPremiumPct float64           `json:"annualized_premium_pct"`
	LastFundingRate      float64           `json:"last_funding_rate"`
	PredictedFunding     float64           `json:"predicted_funding"`    // mean of recent settled rates
	PremiumRuleFunding   float64           `json:"premium_rule_funding"` // Binance premium-index formula
	NextFundingTime      time.Time         `json:"next_funding_time"`
	ShortFundingPnL      []FundingPnLPoint `json:"short_funding_pnl"` // cumulative, for the configured notional
	UpdatedAt            time.Time         `json:"updated_at"`
}
