// Package restpoll implements the REST poller: a per-region
// consolidated-snapshot fan-out that also serves as the recovery probe the
// retry supervisor delegates to when a socket is declared unhealthy.
package restpoll

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

// Publisher is the bus-facing seam the poller needs to publish consolidated
// snapshots; it matches pipeline.Publisher.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error
}

// PartitionFunc resolves the "<region>-Total" key to a partition index;
// production wiring binds this to partition.HashPartition.
type PartitionFunc func(key string) int32

// FetchFunc retrieves one venue's current PriceSnapshot.
type FetchFunc func(ctx context.Context, symbol string) (model.PriceSnapshot, error)

// RecordBuilder assembles the typed per-region consolidated record
// (KoreaConsolidated / AsiaConsolidated / NEConsolidated) from the
// per-exchange fetch results, where a nil slot is the false-valued result
// of a failed fetch.
type RecordBuilder func(timestamp int64, slots map[string]*model.PriceSnapshot) any

const (
	cycleInterval  = 1 * time.Second
	cooldownEvery  = 100
	cooldownPeriod = 10 * time.Second

	restRetries   = 3
	restBaseDelay = 2 * time.Second
	restMaxDelay  = 60 * time.Second
)

// Poller drives one region's consolidated REST snapshot.
type Poller struct {
	// Region is the lower-case tag used in the publish key ("<region>-Total").
	Region string
	// RegionDisplay is the topic-name casing (e.g. "Korea", "Asia", "NE").
	RegionDisplay string
	Symbol        string

	Venues    map[string]FetchFunc
	Build     RecordBuilder
	Publisher Publisher
	Partition PartitionFunc

	// Heartbeat, when set, is called once per cycle so a health.Tracker can
	// report this region as live; nil is a valid no-op default.
	Heartbeat func()

	log zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Poller for one region.
func New(region, regionDisplay, symbol string, venues map[string]FetchFunc, build RecordBuilder, publisher Publisher, partitionFn PartitionFunc, log zerolog.Logger) *Poller {
	return &Poller{
		Region:        region,
		RegionDisplay: regionDisplay,
		Symbol:        symbol,
		Venues:        venues,
		Build:         build,
		Publisher:     publisher,
		Partition:     partitionFn,
		log:           log.With().Str("component", "restpoll").Str("region", region).Logger(),
		sleep:         defaultSleep,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Poller) topic() string {
	return fmt.Sprintf("Total%sRestDataIn%s", p.RegionDisplay, p.Symbol)
}

func (p *Poller) key() string {
	return fmt.Sprintf("%s-Total", p.Region)
}

// RunCycle fans out one round of per-venue fetches with gather-with-exceptions
// semantics: a venue failure becomes a false-valued slot, never aborting the
// batch, then publishes the consolidated record via the hash partitioner.
func (p *Poller) RunCycle(ctx context.Context) {
	if p.Heartbeat != nil {
		p.Heartbeat()
	}
	slots := make(map[string]*model.PriceSnapshot, len(p.Venues))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for exchange, fetch := range p.Venues {
		wg.Add(1)
		go func(exchange string, fetch FetchFunc) {
			defer wg.Done()
			snap, err := p.fetchWithRetry(ctx, exchange, fetch)
			mu.Lock()
			if err != nil {
				p.log.Warn().Err(err).Str("exchange", exchange).Msg("venue fetch failed, false-slot")
				slots[exchange] = nil
			} else {
				slots[exchange] = &snap
			}
			mu.Unlock()
		}(exchange, fetch)
	}
	wg.Wait()

	envelope := p.Build(time.Now().Unix(), slots)
	key := p.key()
	partIdx := p.Partition(key)
	if err := p.Publisher.Publish(ctx, p.topic(), key, partIdx, envelope); err != nil {
		p.log.Error().Err(err).Str("topic", p.topic()).Msg("consolidated publish failed")
	}
}

// fetchWithRetry wraps one venue fetch with the REST retry policy: the
// initial attempt plus up to restRetries retries, exponential backoff from a 2s base delay with
// 0-10% jitter, the same formula internal/retry's backoff uses.
func (p *Poller) fetchWithRetry(ctx context.Context, exchange string, fetch FetchFunc) (model.PriceSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt <= restRetries; attempt++ {
		snap, err := fetch(ctx, p.Symbol)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if attempt == restRetries {
			break
		}
		delay := restDelay(attempt + 1)
		p.log.Warn().Err(err).Str("exchange", exchange).Int("attempt", attempt+1).Msg("rest fetch failed, retrying")
		if werr := p.sleep(ctx, delay); werr != nil {
			return model.PriceSnapshot{}, werr
		}
	}
	return model.PriceSnapshot{}, fmt.Errorf("restpoll: %s: %w", exchange, lastErr)
}

func restDelay(attempt int) time.Duration {
	exp := math.Pow(2, float64(attempt-1))
	base := time.Duration(float64(restBaseDelay) * exp)
	if base > restMaxDelay {
		base = restMaxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(base))
	return base + jitter
}

// Run loops RunCycle at 1Hz, inserting a 10s cool-down every 100 cycles.
// It runs until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	cycle := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.RunCycle(ctx)
		cycle++

		interval := cycleInterval
		if cycle%cooldownEvery == 0 {
			interval = cooldownPeriod
		}
		if err := p.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// RunFallback loops RunCycle the same way Run does, but checks probe after
// every cycle and returns nil as soon as probe succeeds -- the REST-fallback
// mode the retry supervisor delegates to. The region orchestrator binds it,
// with its probe, into a retry.Fallback closure.
func (p *Poller) RunFallback(ctx context.Context, probe func(ctx context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.RunCycle(ctx)

		if err := probe(ctx); err == nil {
			p.log.Info().Msg("probe succeeded, returning control to socket session")
			return nil
		}

		if err := p.sleep(ctx, cycleInterval); err != nil {
			return err
		}
	}
}
