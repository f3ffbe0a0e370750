// Package model holds the wire-level and pipeline data types shared across
// the gateway: venue descriptors' payload shapes, the normalized price
// snapshot, and the envelopes exchanged between the preprocessing pipeline
// and the bus producer.
package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Region is one of the three geographies the gateway ingests from.
type Region string

const (
	RegionKorea Region = "korea"
	RegionAsia  Region = "asia"
	RegionNE    Region = "ne"
)

// Transport selects the wire protocol a Venue is reached over.
type Transport string

const (
	TransportSocket Transport = "socket"
	TransportRest   Transport = "rest"
)

// SocketType names the stream kind a session subscribes to; it also selects
// the topic suffix and the batch buffer a message lands in.
type SocketType string

const (
	SocketTicker    SocketType = "ticker"
	SocketOrderbook SocketType = "orderbook"
)

// RawMessage is an opaque per-exchange payload. It carries no invariants
// beyond being valid JSON; the pipeline decodes it lazily.
type RawMessage = json.RawMessage

// PriceData holds the six normalized numeric fields of a PriceSnapshot, all
// quantized to 0.1 with half-up rounding. A nil pointer is the missing-field
// sentinel.
type PriceData struct {
	OpeningPrice      *decimal.Decimal `json:"opening_price"`
	TradePrice        *decimal.Decimal `json:"trade_price"`
	MaxPrice          *decimal.Decimal `json:"max_price"`
	MinPrice          *decimal.Decimal `json:"min_price"`
	PrevClosingPrice  *decimal.Decimal `json:"prev_closing_price"`
	AccTradeVolume24h *decimal.Decimal `json:"acc_trade_volume_24h"`
}

// Quantize rounds d half-up to one decimal place. Idempotent: quantizing an
// already-quantized value returns it unchanged.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(1)
}

// QuantizePtr quantizes an optional field, preserving the missing sentinel.
func QuantizePtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	q := Quantize(*d)
	return &q
}

// PriceSnapshot is the normalized record produced for every venue tick,
// whether sourced from a socket stream or a REST poll.
type PriceSnapshot struct {
	Market    string    `json:"market"` // "<exchange>-<SYMBOL>"
	Symbol    string    `json:"symbol"`
	Timestamp int64     `json:"timestamp"` // epoch seconds, monotonic per venue-stream
	Data      PriceData `json:"data"`
}

// NewMarket builds the "<exchange>-<UPPER_SYMBOL>" market tag every
// normalized record carries.
func NewMarket(exchange, symbol string) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(exchange), strings.ToUpper(symbol))
}

// SocketLowData is the publish envelope built on every BatchBuffer flush.
// It is created on flush and discarded once handed to the bus producer.
type SocketLowData struct {
	Region string        `json:"region"`
	Market string        `json:"market"`
	Symbol string        `json:"symbol"`
	Data   []RawMessage  `json:"data"`
}

// QueueEntry is what the socket session enqueues and the pipeline's drain
// loop consumes.
type QueueEntry struct {
	Market  string
	Symbol  string
	Message RawMessage
}

// ErrorEnvelope is the single-element error payload published to ErrorTopic
// whenever a frame fails to parse.
type ErrorEnvelope struct {
	Error string `json:"error"`
}

// PartitionKey builds the "<exchange>:<datatype>-<symbol>" string used as a
// partitioning key, lower-cased on the exchange/datatype tokens only.
func PartitionKey(exchange string, socketType SocketType, symbol string) string {
	return fmt.Sprintf("%s:%s-%s", strings.ToLower(exchange), strings.ToLower(string(socketType)), symbol)
}

// ErrorKey builds the "<exchange>:error-<symbol>" key used for ErrorTopic
// publishes.
func ErrorKey(exchange, symbol string) string {
	return fmt.Sprintf("%s:error-%s", strings.ToLower(exchange), symbol)
}

// KoreaConsolidated, AsiaConsolidated, and NEConsolidated are the typed
// per-region consolidated REST records. A nil venue field is the
// false-valued slot a failed fetch leaves behind; restpoll.RecordBuilder
// closures assemble these from the fetch fan-out's slot map.
type KoreaConsolidated struct {
	Timestamp int64          `json:"timestamp"`
	Upbit     *PriceSnapshot `json:"upbit"`
	Bithumb   *PriceSnapshot `json:"bithumb"`
	Coinone   *PriceSnapshot `json:"coinone"`
	Korbit    *PriceSnapshot `json:"korbit"`
}

type AsiaConsolidated struct {
	Timestamp int64          `json:"timestamp"`
	OKX       *PriceSnapshot `json:"okx"`
	Bybit     *PriceSnapshot `json:"bybit"`
	Gateio    *PriceSnapshot `json:"gateio"`
}

type NEConsolidated struct {
	Timestamp int64          `json:"timestamp"`
	Binance   *PriceSnapshot `json:"binance"`
	Kraken    *PriceSnapshot `json:"kraken"`
	Coinbase  *PriceSnapshot `json:"coinbase"`
}
