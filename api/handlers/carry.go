package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"perpcarry/internal/analytics"
	"perpcarry/internal/carry"
	"perpcarry/internal/scheduler"
)

type CarryHandler struct {
	scheduler       *scheduler.Scheduler
	analyzer        *analytics.Analyzer
	defaultNotional float64
	historyLimit    int
}

func NewCarryHandler(sched *scheduler.Scheduler, analyzer *analytics.Analyzer, defaultNotional float64, historyLimit int) *CarryHandler {
	return &CarryHandler{
		scheduler:       sched,
		analyzer:        analyzer,
		defaultNotional: defaultNotional,
		historyLimit:    historyLimit,
	}
}

// Handles GET /carry/:symbol.
func (h *CarryHandler) GetCarry(c fiber.Ctx) error {
	symbol := c.Params("symbol")

	if symbol == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "symbol parameter is required",
		})
	}

	log.Info().
		Str("symbol", symbol).
		Msg("fetching carry snapshot")

	snap, ok := h.scheduler.GetSnapshot(symbol)

	if !ok {
		log.Warn().Str("symbol", symbol).Msg("symbol not found in cache")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "symbol not available, check configured symbols",
		})
	}

	return c.Status(fiber.StatusOK).JSON(snap)
}

// Handles GET /carry/:symbol/funding. Recomputes the cumulative funding
// PnL series from fresh history for the requested notional and side.
func (h *CarryHandler) GetFundingSeries(c fiber.Ctx) error {
	symbol := c.Params("symbol")

	notional := h.defaultNotional
	if q := c.Query("notional"); q != "" {
		parsed, err := strconv.ParseFloat(q, 64)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "notional must be a positive number",
			})
		}
		notional = parsed
	}

	side := carry.Side(c.Query("side", string(carry.SideShort)))
	if side != carry.SideLong && side != carry.SideShort {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "side must be either long or short",
		})
	}

	limit := h.historyLimit
	if q := c.Query("limit"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed <= 0 || parsed > 1000 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be between 1 and 1000",
			})
		}
		limit = parsed
	}

	series, err := h.analyzer.FundingSeries(c.Context(), symbol, notional, side, limit)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("funding series failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "failed to fetch funding history",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"symbol":   symbol,
		"notional": notional,
		"side":     side,
		"series":   series,
	})
}

// Handles GET /carry/:symbol/fair. Prices a dated future off the cached
// index price by cost of carry.
func (h *CarryHandler) GetFairPrice(c fiber.Ctx) error {
	symbol := c.Params("symbol")

	snap, ok := h.scheduler.GetSnapshot(symbol)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "symbol not available, check configured symbols",
		})
	}

	rate, err := strconv.ParseFloat(c.Query("rate", "0"), 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "rate must be a number",
		})
	}

	yield, err := strconv.ParseFloat(c.Query("yield", "0"), 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "yield must be a number",
		})
	}

	expiry, err := time.Parse(time.RFC3339, c.Query("expiry"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "expiry must be an RFC3339 timestamp",
		})
	}

	now := time.Now()
	if expiry.Before(now) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "expiry must be in the future",
		})
	}

	tYears := carry.YearFraction(now, expiry)
	fair, err := carry.CostOfCarryFairPrice(snap.IndexPrice, rate, yield, tYears)
	if err != nil {
		if errors.Is(err, carry.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "fair price computation failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"symbol":       symbol,
		"spot":         snap.IndexPrice,
		"rate":         rate,
		"yield":        yield,
		"t_years":      tYears,
		"fair_price":   fair,
		"mark_price":   snap.MarkPrice,
		"mark_vs_fair": snap.MarkPrice - fair,
	})
}

// Handles GET /symbols.
func (h *CarryHandler) GetSymbols(c fiber.Ctx) error {
	listing := h.scheduler.GetSymbols()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"count":   len(listing),
		"symbols": listing,
	})
}
