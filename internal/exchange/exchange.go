package exchange

import (
	"context"

	"perpcarry/internal/models"
)

// Exchange is a USD-margined perpetual futures market data source.
type Exchange interface {
	// GetPremiumIndex returns the current mark/index prices, last funding
	// rate and next funding time for one symbol.
	GetPremiumIndex(ctx context.Context, symbol string) (*models.PriceQuote, error)
	// GetFundingHistory returns up to limit settled funding observations,
	// sorted by funding time ascending.
	GetFundingHistory(ctx context.Context, symbol string, limit int) ([]models.FundingObservation, error)
	// GetExchangeInfo returns the trading rules for all listed contracts.
	GetExchangeInfo(ctx context.Context) ([]models.SymbolInfo, error)
	Name() string
}
