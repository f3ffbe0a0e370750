// Package pipeline implements the preprocessing stage between a socket
// session and the bus: control-frame filtering, ticker field projection,
// orderbook classification, per-exchange batching, and flush-to-bus.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

// Publisher is the subset of *bus.Producer the pipeline needs; an interface
// so tests can inject a recorder instead of a live producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error
}

// PartitionFunc resolves a "<exchange>:<dt>-<symbol>" key to a partition
// index; production wiring binds this to internal/partition.Pin with the
// region's fixed map and available-partition list closed over.
type PartitionFunc func(key string) int32

// BatchThreshold is the per-exchange flush threshold: a BatchBuffer flushes
// as soon as it reaches this many entries.
const BatchThreshold = 100

// MaxQueueLen bounds the in-process queue; Enqueue drops the oldest entry
// once the queue reaches this length.
const MaxQueueLen = 10_000

// ErrorTopic is the single error sink.
const ErrorTopic = "ErrorTopic"

// Pipeline is one session's preprocessing instance; it owns its BatchBuffers
// for the lifetime of that session and is not shared across sessions.
type Pipeline struct {
	Region          string
	Exchange        string
	SocketType      model.SocketType
	RegionTopicRoot string
	Whitelist       map[string]bool

	log       zerolog.Logger
	publisher Publisher
	partition PartitionFunc

	qmu   sync.Mutex
	queue []model.QueueEntry

	overflow atomic.Uint64

	bmu     sync.Mutex
	buffers map[string][]model.RawMessage
}

// New builds a Pipeline for one (region, exchange, socketType) session.
func New(region, exchange string, st model.SocketType, regionTopicRoot string, whitelist []string, publisher Publisher, partitionFn PartitionFunc, log zerolog.Logger) *Pipeline {
	wl := make(map[string]bool, len(whitelist))
	for _, w := range whitelist {
		wl[w] = true
	}
	return &Pipeline{
		Region:          region,
		Exchange:        exchange,
		SocketType:      st,
		RegionTopicRoot: regionTopicRoot,
		Whitelist:       wl,
		log:             log.With().Str("component", "pipeline").Str("exchange", exchange).Str("socket_type", string(st)).Logger(),
		publisher:       publisher,
		partition:       partitionFn,
		buffers:         make(map[string][]model.RawMessage),
	}
}

// Enqueue appends a raw frame to the in-process queue, dropping the oldest
// entry and incrementing the overflow counter once MaxQueueLen is reached.
func (p *Pipeline) Enqueue(market, symbol string, raw model.RawMessage) {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	if len(p.queue) >= MaxQueueLen {
		p.queue = p.queue[1:]
		p.overflow.Add(1)
	}
	p.queue = append(p.queue, model.QueueEntry{Market: market, Symbol: symbol, Message: raw})
}

// OverflowCount reports how many entries have been dropped for backpressure.
func (p *Pipeline) OverflowCount() uint64 { return p.overflow.Load() }

// QueueLen reports the current queue depth (for tests and health reporting).
func (p *Pipeline) QueueLen() int {
	p.qmu.Lock()
	defer p.qmu.Unlock()
	return len(p.queue)
}

// DrainOnce dequeues and processes one entry, returning false if the queue
// was empty.
func (p *Pipeline) DrainOnce(ctx context.Context) bool {
	p.qmu.Lock()
	if len(p.queue) == 0 {
		p.qmu.Unlock()
		return false
	}
	entry := p.queue[0]
	p.queue = p.queue[1:]
	p.qmu.Unlock()

	p.process(ctx, entry)
	return true
}

func (p *Pipeline) process(ctx context.Context, entry model.QueueEntry) {
	var raw map[string]any
	if err := json.Unmarshal(entry.Message, &raw); err != nil {
		p.fail(ctx, entry, fmt.Errorf("pipeline: decode: %w", err))
		return
	}

	if isControlFrame(raw) {
		p.log.Info().Str("market", entry.Market).Msg("dropping control frame")
		return
	}

	raw = unwrapArgData(raw)

	var out []byte
	var err error
	if p.SocketType == model.SocketTicker {
		out, err = json.Marshal(projectFields(raw, p.Whitelist))
	} else {
		classifyOrderbook(raw) // classification is informational only; see OrderbookClass
		out, err = json.Marshal(raw)
	}
	if err != nil {
		p.fail(ctx, entry, fmt.Errorf("pipeline: re-encode: %w", err))
		return
	}

	p.append(ctx, entry, out)
}

func (p *Pipeline) append(ctx context.Context, entry model.QueueEntry, msg model.RawMessage) {
	exchange := exchangeFromMarket(entry.Market)

	p.bmu.Lock()
	p.buffers[exchange] = append(p.buffers[exchange], msg)
	full := len(p.buffers[exchange]) >= BatchThreshold
	var batch []model.RawMessage
	if full {
		batch = p.buffers[exchange]
		p.buffers[exchange] = nil
	}
	p.bmu.Unlock()

	if full {
		p.flush(ctx, exchange, entry.Market, entry.Symbol, batch)
	}
}

func (p *Pipeline) flush(ctx context.Context, exchange, market, symbol string, batch []model.RawMessage) {
	key := model.PartitionKey(exchange, p.SocketType, symbol)
	topic := fmt.Sprintf("%s-%s", p.RegionTopicRoot, p.SocketType)
	partIdx := p.partition(key)
	envelope := model.SocketLowData{Region: p.Region, Market: market, Symbol: symbol, Data: batch}

	if err := p.publisher.Publish(ctx, topic, key, partIdx, envelope); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("flush publish failed")
	}
}

// FlushAll force-flushes every non-empty buffer, used on graceful shutdown:
// batches are never partial unless a shutdown explicitly triggers a flush.
func (p *Pipeline) FlushAll(ctx context.Context, market, symbol string) {
	p.bmu.Lock()
	pending := p.buffers
	p.buffers = make(map[string][]model.RawMessage)
	p.bmu.Unlock()

	for exchange, batch := range pending {
		if len(batch) == 0 {
			continue
		}
		p.flush(ctx, exchange, market, symbol, batch)
	}
}

func (p *Pipeline) fail(ctx context.Context, entry model.QueueEntry, err error) {
	exchange := exchangeFromMarket(entry.Market)
	p.log.Error().Err(err).Str("market", entry.Market).Msg("processing failure")

	key := model.ErrorKey(exchange, entry.Symbol)
	partIdx := p.partition(key)
	if pubErr := p.publisher.Publish(ctx, ErrorTopic, key, partIdx, model.ErrorEnvelope{Error: err.Error()}); pubErr != nil {
		p.log.Error().Err(pubErr).Msg("error-topic publish failed")
	}
}

// isControlFrame matches the four control-frame shapes
// step 1.
func isControlFrame(m map[string]any) bool {
	if v, ok := m["response_type"]; ok && v == "SUBSCRIBED" {
		return true
	}
	if v, ok := m["channel"]; ok && v == "heartbeat" {
		return true
	}
	if v, ok := m["method"]; ok && v == "subscribe" {
		return true
	}
	if v, ok := m["event"]; ok && v == "korbit:subscribe" {
		return true
	}
	return false
}

// unwrapArgData unwraps the {arg, data} envelope some venues (okx, bybit)
// wrap frames in, promoting the first element of data to the top level.
func unwrapArgData(m map[string]any) map[string]any {
	if _, hasArg := m["arg"]; !hasArg {
		return m
	}
	data, ok := m["data"]
	if !ok {
		return m
	}
	switch d := data.(type) {
	case []any:
		if len(d) > 0 {
			if dm, ok := d[0].(map[string]any); ok {
				return dm
			}
		}
	case map[string]any:
		return d
	}
	return m
}

var nestedProjectionKeys = map[string]bool{
	"data": true, "result": true, "time_ms": true, "ts": true, "timestamp": true,
}

// projectFields retains whitelisted scalar fields as-is; for the nested
// container keys, a scalar value is retained
// under its original key unconditionally (it carries no whitelist-able
// column name of its own), and a dict/list value has its first element's
// whitelisted keys promoted to the top level.
func projectFields(m map[string]any, whitelist map[string]bool) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		if !nestedProjectionKeys[k] {
			if whitelist[k] {
				out[k] = v
			}
			continue
		}
		switch vv := v.(type) {
		case float64, string, bool:
			out[k] = vv
		case []any:
			if len(vv) > 0 {
				if dm, ok := vv[0].(map[string]any); ok {
					promote(out, dm, whitelist)
				}
			}
		case map[string]any:
			promote(out, vv, whitelist)
		}
	}
	return out
}

func promote(out, src map[string]any, whitelist map[string]bool) {
	for k, v := range src {
		if whitelist[k] {
			out[k] = v
		}
	}
}

// OrderbookClass is the tagged classification used to distinguish payload
// kinds; it does not change which buffer a message lands in (a single
// per-exchange BatchBuffer absorbs all three), and the pipeline neither
// routes nor logs by it.
type OrderbookClass string

const (
	ClassSnapshot OrderbookClass = "snapshot"
	ClassUpdate   OrderbookClass = "update"
	ClassDefault  OrderbookClass = "default"
)

func classifyOrderbook(m map[string]any) OrderbookClass {
	switch m["type"] {
	case "snapshot":
		return ClassSnapshot
	case "update":
		return ClassUpdate
	default:
		return ClassDefault
	}
}

func exchangeFromMarket(market string) string {
	if i := strings.Index(market, "-"); i >= 0 {
		return market[:i]
	}
	return market
}
