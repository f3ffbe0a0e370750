// Package bus implements a batched, idempotent publisher over a
// Kafka-compatible broker with a custom deterministic partitioner (see
// internal/partition) and a per-topic retry buffer. The underlying client
// is constructed lazily, on first use, the same way this module's other
// outbound clients are.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config carries the Kafka settings file keys.
type Config struct {
	BootstrapServers []string
	SecurityProtocol string
	MaxBatchSize     int32
	MaxRequestSize   int32
	Acks             string // "all", "leader", "none"
}

// Producer wraps a lazily-started *kgo.Client with idempotent production,
// acks=all, bounded request size, and a per-topic FIFO retry buffer drained
// on the next successful publish to that topic.
type Producer struct {
	cfg    Config
	log    zerolog.Logger
	mu     sync.Mutex
	client *kgo.Client

	// produceFn does the actual send; it defaults to the real client but
	// tests substitute a stub so retry-buffer semantics can be exercised
	// without a live broker.
	produceFn func(ctx context.Context, topic, key string, partitionIdx int32, payload []byte) error

	retryMu sync.Mutex
	retry   map[string][]pending
}

type pending struct {
	key     string
	part    int32
	payload []byte
}

const retryDrainCap = 5

// NewProducer constructs a Producer. The underlying client is not dialed
// until the first Publish call.
func NewProducer(cfg Config, log zerolog.Logger) *Producer {
	return &Producer{
		cfg:   cfg,
		log:   log.With().Str("component", "bus.producer").Logger(),
		retry: make(map[string][]pending),
	}
}

func (p *Producer) ensureStarted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.produceFn != nil {
		return nil
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(p.cfg.BootstrapServers...),
		kgo.Partitioner(kgo.ManualPartitioner()),
		kgo.ProducerBatchMaxBytes(p.cfg.MaxBatchSize),
		kgo.RequestRetries(3),
	}
	if p.cfg.MaxRequestSize > 0 {
		opts = append(opts, kgo.BrokerMaxWriteBytes(p.cfg.MaxRequestSize))
	}
	switch p.cfg.Acks {
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case "leader":
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()))
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("bus: start producer: %w", err)
	}
	p.client = client
	p.produceFn = p.produceViaClient
	return nil
}

// Close stops the producer, retaining any buffered retry envelopes (spec
// §7 BrokerFatal policy: log, retain buffered messages).
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
		p.produceFn = nil
	}
}

// Publish sends one framed record to topic/partition with key, JSON-
// encoding envelope. Broker-class failures are buffered per-topic for a
// later drain; non-broker failures are buffered too but logged as
// "unexpected".
func (p *Producer) Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	if startErr := p.ensureStarted(); startErr != nil {
		p.buffer(topic, key, partitionIdx, payload)
		p.log.Error().Err(startErr).Str("topic", topic).Msg("producer start failed, buffering message")
		return startErr
	}

	if err := p.produceFn(ctx, topic, key, partitionIdx, payload); err != nil {
		p.buffer(topic, key, partitionIdx, payload)
		if isBrokerClassError(err) {
			p.log.Warn().Err(err).Str("topic", topic).Msg("broker-class publish failure, buffered for retry")
		} else {
			p.log.Error().Err(err).Str("topic", topic).Msg("unexpected publish failure, buffered for retry")
		}
		return err
	}

	p.drain(ctx, topic)
	return nil
}

func (p *Producer) produceViaClient(ctx context.Context, topic, key string, partitionIdx int32, payload []byte) error {
	rec := &kgo.Record{
		Topic:     topic,
		Key:       []byte(key),
		Value:     payload,
		Partition: partitionIdx,
	}
	results := p.client.ProduceSync(ctx, rec)
	return results.FirstErr()
}

func (p *Producer) buffer(topic, key string, partitionIdx int32, payload []byte) {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	p.retry[topic] = append(p.retry[topic], pending{key: key, part: partitionIdx, payload: payload})
}

// drain flushes up to retryDrainCap buffered envelopes for topic, FIFO,
// after a successful publish to that topic.
func (p *Producer) drain(ctx context.Context, topic string) {
	p.retryMu.Lock()
	queued := p.retry[topic]
	if len(queued) == 0 {
		p.retryMu.Unlock()
		return
	}
	n := retryDrainCap
	if n > len(queued) {
		n = len(queued)
	}
	toSend := queued[:n]
	p.retry[topic] = queued[n:]
	p.retryMu.Unlock()

	for _, item := range toSend {
		if err := p.produceFn(ctx, topic, item.key, item.part, item.payload); err != nil {
			p.buffer(topic, item.key, item.part, item.payload)
			p.log.Warn().Err(err).Str("topic", topic).Msg("retry-buffer drain failed, re-buffered")
			return
		}
	}
}

// BufferedCount reports how many envelopes are pending retry for topic
// (used by tests and health reporting).
func (p *Producer) BufferedCount(topic string) int {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	return len(p.retry[topic])
}

// isBrokerClassError classifies a publish failure as broker-class (no
// broker reachable, protocol error, connection error) vs. other, per spec
// §4.2 and the error table in §7. Broker-class failures are every error
// produceSync can actually return once the client has started: a closed
// client, a context deadline/cancellation while waiting on the broker, or
// a network-level dial/write/read failure. Anything else (e.g. a record
// that violates MaxRequestSize) is "other" and is logged as unexpected.
func isBrokerClassError(err error) bool {
	if errors.Is(err, kgo.ErrClientClosed) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
