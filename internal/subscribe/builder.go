// Package subscribe builds the per-venue WebSocket subscribe frame.
// Every function here reproduces one exchange's wire schema bit-exact —
// these are the only functions in the gateway allowed to know the literal
// shape of a subscribe frame.
package subscribe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

// BuildFunc renders the subscribe frame for one (exchange, socket type)
// pair given the target symbol.
type BuildFunc func(symbol string) (json.RawMessage, error)

// Registry maps "<exchange>/<socketType>" to its frame builder.
type Registry struct {
	builders map[string]BuildFunc
}

func key(exchange string, st model.SocketType) string {
	return strings.ToLower(exchange) + "/" + string(st)
}

// NewRegistry wires every exchange builder this gateway supports.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]BuildFunc)}

	r.register("upbit", model.SocketTicker, upbitBithumbTicker)
	r.register("upbit", model.SocketOrderbook, upbitBithumbOrderbook)
	r.register("bithumb", model.SocketTicker, upbitBithumbTicker)
	r.register("bithumb", model.SocketOrderbook, upbitBithumbOrderbook)

	r.register("coinone", model.SocketTicker, coinoneFrame("TICKER"))
	r.register("coinone", model.SocketOrderbook, coinoneFrame("ORDERBOOK"))

	r.register("korbit", model.SocketTicker, korbitFrame("ticker"))
	r.register("korbit", model.SocketOrderbook, korbitFrame("orderbook"))

	r.register("binance", model.SocketTicker, binanceFrame("ticker"))
	r.register("binance", model.SocketOrderbook, binanceFrame("depth20"))

	r.register("kraken", model.SocketTicker, krakenTicker)
	r.register("kraken", model.SocketOrderbook, krakenBook)

	r.register("gateio", model.SocketTicker, gateioTicker)
	r.register("gateio", model.SocketOrderbook, gateioOrderbook)

	r.register("okx", model.SocketTicker, okxFrame("tickers"))
	r.register("okx", model.SocketOrderbook, okxFrame("books"))

	r.register("bybit", model.SocketTicker, bybitTicker)
	r.register("bybit", model.SocketOrderbook, bybitOrderbook)

	r.register("coinbase", model.SocketTicker, coinbaseFrame("ticker"))

	return r
}

func (r *Registry) register(exchange string, st model.SocketType, fn BuildFunc) {
	r.builders[key(exchange, st)] = fn
}

// Build renders the subscribe frame for exchange/socketType/symbol, or
// ErrUnknownBuilder if no venue registered a builder for that pair.
func (r *Registry) Build(exchange string, st model.SocketType, symbol string) (json.RawMessage, error) {
	fn, ok := r.builders[key(exchange, st)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownBuilder, exchange, st)
	}
	return fn(symbol)
}

// ErrUnknownBuilder is returned when no subscribe-frame builder is
// registered for an (exchange, socketType) pair.
var ErrUnknownBuilder = fmt.Errorf("subscribe: no builder registered")

// --- Korea ---

func upbitBithumbTicker(symbol string) (json.RawMessage, error) {
	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{
			"type":           "ticker",
			"codes":          []string{"KRW-" + strings.ToUpper(symbol)},
			"isOnlyRealtime": true,
		},
	}
	return json.Marshal(frame)
}

func upbitBithumbOrderbook(symbol string) (json.RawMessage, error) {
	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{
			"type":           "orderbook",
			"codes":          []string{"KRW-" + strings.ToUpper(symbol)},
			"isOnlyRealtime": true,
			"level":          1000,
		},
	}
	return json.Marshal(frame)
}

func coinoneFrame(channel string) BuildFunc {
	return func(symbol string) (json.RawMessage, error) {
		frame := map[string]any{
			"request_type": "SUBSCRIBE",
			"channel":      channel,
			"topic": map[string]string{
				"quote_currency":  "KRW",
				"target_currency": strings.ToUpper(symbol),
			},
		}
		return json.Marshal(frame)
	}
}

func korbitFrame(reqType string) BuildFunc {
	return func(symbol string) (json.RawMessage, error) {
		frame := map[string]any{
			"accessToken": nil,
			"timestamp":   time.Now().Unix(),
			"event":       "korbit:subscribe",
			"data": map[string]any{
				"channels": []string{fmt.Sprintf("%s:%s_krw", reqType, strings.ToLower(symbol))},
			},
		}
		return json.Marshal(frame)
	}
}

// --- North America / Europe ---

func binanceFrame(reqType string) BuildFunc {
	return func(symbol string) (json.RawMessage, error) {
		frame := map[string]any{
			"id":     uuid.NewString(),
			"method": "SUBSCRIBE",
			"params": []string{fmt.Sprintf("%susdt@%s", strings.ToLower(symbol), reqType)},
		}
		return json.Marshal(frame)
	}
}

func krakenTicker(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"method": "subscribe",
		"params": map[string]any{
			"channel": "ticker",
			"symbol":  []string{strings.ToUpper(symbol) + "/USD"},
		},
	}
	return json.Marshal(frame)
}

func krakenBook(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"method": "subscribe",
		"params": map[string]any{
			"channel": "book",
			"symbol":  []string{strings.ToUpper(symbol) + "/USD"},
		},
		"req_id": time.Now().UnixNano(),
	}
	return json.Marshal(frame)
}

func coinbaseFrame(channel string) BuildFunc {
	return func(symbol string) (json.RawMessage, error) {
		frame := map[string]any{
			"type":        "subscribe",
			"product_ids": []string{strings.ToUpper(symbol) + "-USDT"},
			"channels":    []string{channel},
		}
		return json.Marshal(frame)
	}
}

// --- Asia ---

func gateioTicker(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"time":    time.Now().Unix(),
		"channel": "spot.tickers",
		"event":   "subscribe",
		"payload": []string{strings.ToUpper(symbol) + "_USDT"},
	}
	return json.Marshal(frame)
}

func gateioOrderbook(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"time":    time.Now().Unix(),
		"channel": "spot.order_book",
		"event":   "subscribe",
		"payload": []string{strings.ToUpper(symbol) + "_USDT", "100", "100ms"},
	}
	return json.Marshal(frame)
}

func okxFrame(channel string) BuildFunc {
	return func(symbol string) (json.RawMessage, error) {
		frame := map[string]any{
			"op": "subscribe",
			"args": []map[string]string{
				{"channel": channel, "instId": strings.ToUpper(symbol) + "-USDT"},
			},
		}
		return json.Marshal(frame)
	}
}

func bybitTicker(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"req_id": uuid.NewString(),
		"op":     "subscribe",
		"args":   []string{fmt.Sprintf("tickers.%sUSDT", strings.ToUpper(symbol))},
	}
	return json.Marshal(frame)
}

func bybitOrderbook(symbol string) (json.RawMessage, error) {
	frame := map[string]any{
		"req_id": uuid.NewString(),
		"op":     "subscribe",
		"args":   []string{fmt.Sprintf("orderbook.50.%sUSDT", strings.ToUpper(symbol))},
	}
	return json.Marshal(frame)
}
