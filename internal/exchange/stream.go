package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DefaultBinanceStreamURL is the Binance USD-M combined stream endpoint.
const DefaultBinanceStreamURL = "wss://fstream.binance.com/stream"

const reconnectDelay = 5 * time.Second

// MarkPriceUpdate is one markPrice stream event.
type MarkPriceUpdate struct {
	Symbol          string
	MarkPrice       float64
	IndexPrice      float64
	FundingRate     float64 // the current predicted rate for the running interval
	NextFundingTime time.Time
	EventTime       time.Time
}

// MarkPriceStream subscribes to the live mark price feed for a set of
// symbols and fans events into a channel until the context is cancelled.
type MarkPriceStream struct {
	wsURL   string
	symbols []string
	updates chan MarkPriceUpdate
}

func NewMarkPriceStream(wsURL string, symbols []string) *MarkPriceStream {
	if wsURL == "" {
		wsURL = DefaultBinanceStreamURL
	}
	return &MarkPriceStream{
		wsURL:   wsURL,
		symbols: symbols,
		updates: make(chan MarkPriceUpdate, 64),
	}
}

// Updates returns the channel events are delivered on. Closed when Run exits.
func (s *MarkPriceStream) Updates() <-chan MarkPriceUpdate {
	return s.updates
}

// Run connects, reads until failure, and reconnects with a fixed delay.
// Blocks until ctx is cancelled; callers run it in a goroutine.
func (s *MarkPriceStream) Run(ctx context.Context) {
	defer close(s.updates)

	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@markPrice"
	}
	url := fmt.Sprintf("%s?streams=%s", s.wsURL, strings.Join(streams, "/"))

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Warn().Err(err).Msg("mark price stream: dial failed, retrying")
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		log.Info().Strs("symbols", s.symbols).Msg("mark price stream connected")
		s.readLoop(ctx, conn)
		conn.Close()

		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

func (s *MarkPriceStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the blocking read when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg struct {
			Stream string `json:"stream"`
			Data   struct {
				EventType       string `json:"e"`
				EventTime       int64  `json:"E"`
				Symbol          string `json:"s"`
				MarkPrice       string `json:"p"`
				IndexPrice      string `json:"i"`
				FundingRate     string `json:"r"`
				NextFundingTime int64  `json:"T"`
			} `json:"data"`
		}

		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("mark price stream: read failed, reconnecting")
			}
			return
		}

		if msg.Data.EventType != "markPriceUpdate" {
			continue
		}

		mark, err := strconv.ParseFloat(msg.Data.MarkPrice, 64)
		if err != nil {
			continue
		}
		index, err := strconv.ParseFloat(msg.Data.IndexPrice, 64)
		if err != nil {
			continue
		}
		// Funding rate is empty on some delivery contracts; treat as zero.
		rate, _ := strconv.ParseFloat(msg.Data.FundingRate, 64)

		update := MarkPriceUpdate{
			Symbol:          msg.Data.Symbol,
			MarkPrice:       mark,
			IndexPrice:      index,
			FundingRate:     rate,
			NextFundingTime: time.UnixMilli(msg.Data.NextFundingTime),
			EventTime:       time.UnixMilli(msg.Data.EventTime),
		}

		select {
		case s.updates <- update:
		default:
			// Drop rather than stall the read loop when the consumer lags.
		}
	}
}

// Waits for d or the context, whichever first; false means cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
