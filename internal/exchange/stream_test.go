package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkPriceStreamDeliversUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "btcusdt@markPrice")

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = conn.WriteJSON(map[string]any{
			"stream": "btcusdt@markPrice",
			"data": map[string]any{
				"e": "markPriceUpdate",
				"E": 1717234800000,
				"s": "BTCUSDT",
				"p": "30100.00000000",
				"i": "30000.50000000",
				"r": "0.00010000",
				"T": 1717257600000,
			},
		})
		require.NoError(t, err)

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := NewMarkPriceStream(wsURL, []string{"BTCUSDT"})
	go stream.Run(ctx)

	select {
	case update := <-stream.Updates():
		assert.Equal(t, "BTCUSDT", update.Symbol)
		assert.Equal(t, 30100.0, update.MarkPrice)
		assert.Equal(t, 30000.5, update.IndexPrice)
		assert.Equal(t, 0.0001, update.FundingRate)
		assert.Equal(t, time.UnixMilli(1717257600000), update.NextFundingTime)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mark price update")
	}

	cancel()

	select {
	case _, open := <-stream.Updates():
		assert.False(t, open, "updates channel should close on shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for updates channel to close")
	}
}

func TestMarkPriceStreamSkipsUnparseableEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Wrong event type, then a garbled price, then a good event.
		conn.WriteJSON(map[string]any{
			"stream": "btcusdt@markPrice",
			"data":   map[string]any{"e": "kline", "s": "BTCUSDT"},
		})
		conn.WriteJSON(map[string]any{
			"stream": "btcusdt@markPrice",
			"data":   map[string]any{"e": "markPriceUpdate", "s": "BTCUSDT", "p": "oops", "i": "1"},
		})
		conn.WriteJSON(map[string]any{
			"stream": "btcusdt@markPrice",
			"data": map[string]any{
				"e": "markPriceUpdate", "E": 1, "s": "BTCUSDT",
				"p": "30100", "i": "30000", "r": "0.0001", "T": 2,
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := NewMarkPriceStream(wsURL, []string{"BTCUSDT"})
	go stream.Run(ctx)

	select {
	case update := <-stream.Updates():
		assert.Equal(t, 30100.0, update.MarkPrice)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the valid update")
	}
}
