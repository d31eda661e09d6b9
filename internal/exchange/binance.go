package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"perpcarry/internal/models"
)

// DefaultBinanceBaseURL is the Binance USD-M futures REST endpoint.
const DefaultBinanceBaseURL = "https://fapi.binance.com"

// BinanceAdapter holds any config/state specific to Binance USD-M futures.
type BinanceAdapter struct {
	baseURL    string
	httpClient *http.Client
}

// Constructor function. Creates a new BinanceAdapter instance; an empty
// baseURL selects the production endpoint.
func NewBinanceAdapter(baseURL string) *BinanceAdapter {
	if baseURL == "" {
		baseURL = DefaultBinanceBaseURL
	}
	return &BinanceAdapter{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (b *BinanceAdapter) Name() string {
	return "binance"
}

// Fetches the premium index for a perpetual futures symbol: mark price,
// index price, last funding rate and the next funding time.
func (b *BinanceAdapter) GetPremiumIndex(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	url := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", b.baseURL, symbol)

	body, err := b.get(ctx, "premium index", url)
	if err != nil {
		return nil, err
	}

	// raw struct matching exactly what Binance returns
	var raw struct {
		Symbol          string `json:"symbol"`
		MarkPrice       string `json:"markPrice"`
		IndexPrice      string `json:"indexPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"` // Unix ms timestamp
		Time            int64  `json:"time"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance premium index: failed to parse response: %w", err)
	}

	mark, err := strconv.ParseFloat(raw.MarkPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance premium index: failed to parse mark price: %w", err)
	}
	index, err := strconv.ParseFloat(raw.IndexPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance premium index: failed to parse index price: %w", err)
	}
	rate, err := strconv.ParseFloat(raw.LastFundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("binance premium index: failed to parse funding rate: %w", err)
	}

	return &models.PriceQuote{
		Symbol:          raw.Symbol,
		MarkPrice:       mark,
		IndexPrice:      index,
		LastFundingRate: rate,
		NextFundingTime: time.UnixMilli(raw.NextFundingTime),
		Timestamp:       time.UnixMilli(raw.Time),
	}, nil
}

// Fetches the most recent settled funding rates for a symbol, oldest first.
func (b *BinanceAdapter) GetFundingHistory(ctx context.Context, symbol string, limit int) ([]models.FundingObservation, error) {
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=%d", b.baseURL, symbol, limit)

	body, err := b.get(ctx, "funding history", url)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol      string `json:"symbol"`
		FundingTime int64  `json:"fundingTime"` // Unix ms timestamp
		FundingRate string `json:"fundingRate"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance funding history: failed to parse response: %w", err)
	}

	obs := make([]models.FundingObservation, 0, len(raw))
	for _, entry := range raw {
		rate, err := strconv.ParseFloat(entry.FundingRate, 64)
		if err != nil {
			return nil, fmt.Errorf("binance funding history: failed to parse rate %q: %w", entry.FundingRate, err)
		}
		obs = append(obs, models.FundingObservation{
			Symbol:      entry.Symbol,
			FundingTime: time.UnixMilli(entry.FundingTime),
			FundingRate: rate,
		})
	}

	// Binance serves these oldest-first already; sort anyway so callers
	// can rely on the ordering.
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].FundingTime.Before(obs[j].FundingTime)
	})

	return obs, nil
}

// Fetches the trading rules for every listed contract.
func (b *BinanceAdapter) GetExchangeInfo(ctx context.Context) ([]models.SymbolInfo, error) {
	url := fmt.Sprintf("%s/fapi/v1/exchangeInfo", b.baseURL)

	body, err := b.get(ctx, "exchange info", url)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			Pair              string `json:"pair"`
			ContractType      string `json:"contractType"`
			Status            string `json:"status"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
		} `json:"symbols"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance exchange info: failed to parse response: %w", err)
	}

	infos := make([]models.SymbolInfo, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		infos = append(infos, models.SymbolInfo{
			Symbol:         s.Symbol,
			Pair:           s.Pair,
			ContractType:   s.ContractType,
			Status:         s.Status,
			PricePrecision: s.PricePrecision,
			QtyPrecision:   s.QuantityPrecision,
		})
	}

	return infos, nil
}

// Private helper. Performs one GET and returns the response body.
func (b *BinanceAdapter) get(ctx context.Context, op, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binance %s: failed to build request: %w", op, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance %s: unexpected status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance %s: failed to read response body: %w", op, err)
	}

	return body, nil
}
