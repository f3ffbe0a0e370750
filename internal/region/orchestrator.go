// Package region implements the region orchestrator: one goroutine per
// venue per socket type, each supervised by its own retry loop and feeding
// its own preprocessing pipeline, plus the region's standalone consolidated
// REST poller. A single venue's terminal failure is reported only after
// its retry policy is exhausted for that venue and never aborts its
// siblings -- a gather-without-exceptions fan-out built on a
// sync.WaitGroup and a buffered error channel.
package region

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/health"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/partition"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/pipeline"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/restpoll"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/retry"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/session"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/subscribe"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/venue"
)

// Publisher is the bus-facing seam the orchestrator hands down to every
// pipeline and poller it builds; *bus.Producer satisfies it directly.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error
}

// Deps collects the shared, already-constructed components an orchestrator
// wires together for one region. Registry and Subscribers are read-only
// after startup.
type Deps struct {
	Registry        *venue.Registry
	Subscribers     *subscribe.Registry
	Publisher       Publisher
	RegionTopicRoot string
	Partitions      []int32
	RestFetchers    map[string]restpoll.FetchFunc
	RestBuild       restpoll.RecordBuilder
	RetryPolicy     retry.Policy
	// Health, when set, receives one heartbeat per REST poll cycle so the
	// gateway's health surfaces (CLI `health`, HTTP /healthz) can report
	// this region as live; nil disables heartbeat reporting.
	Health          *health.Tracker
}

// Orchestrator launches and supervises every venue task for one region and
// its region-scoped REST poller, for the lifetime of ctx.
type Orchestrator struct {
	Region        model.Region
	RegionDisplay string
	Symbol        string

	deps Deps
	log  zerolog.Logger

	poller *restpoll.Poller
}

// New builds an Orchestrator for one region. symbol is the single trading
// symbol this gateway instance ingests (e.g. "BTC"), matching the
// per-symbol shape already established by C4's subscribe frames and C8's
// consolidated record.
func New(region model.Region, regionDisplay, symbol string, deps Deps, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		Region:        region,
		RegionDisplay: regionDisplay,
		Symbol:        symbol,
		deps:          deps,
		log:           log.With().Str("component", "region.orchestrator").Str("region", string(region)).Logger(),
	}
	hashFn := func(key string) int32 { return partition.HashPartition(key, deps.Partitions) }
	o.poller = restpoll.New(string(region), regionDisplay, symbol, deps.RestFetchers, deps.RestBuild, deps.Publisher, hashFn, o.log)
	if deps.Health != nil {
		regionTag := string(region)
		o.poller.Heartbeat = func() { deps.Health.Heartbeat(regionTag) }
	}
	return o
}

func (o *Orchestrator) partitionFn(key string) int32 {
	return partition.Pin(string(o.Region), key, o.deps.Partitions, o.deps.Partitions)
}

// Run launches the price-ticker and orderbook launchers for every socket
// venue in the region (or only those named in filter, when non-empty),
// plus the region's standalone consolidated REST poller, and blocks until
// ctx is cancelled or every task has exhausted its own recovery policy.
func (o *Orchestrator) Run(ctx context.Context, filter []string) error {
	venues := o.deps.Registry.List(o.Region)
	wanted := toSet(filter)

	var wg sync.WaitGroup
	errCh := make(chan error, 2*len(venues)+1)

	for _, v := range venues {
		if v.Transport != model.TransportSocket {
			continue
		}
		if len(wanted) > 0 && !wanted[v.Exchange] {
			continue
		}
		for _, st := range []model.SocketType{model.SocketTicker, model.SocketOrderbook} {
			if _, err := o.deps.Subscribers.Build(v.Exchange, st, o.Symbol); errors.Is(err, subscribe.ErrUnknownBuilder) {
				continue
			}
			wg.Add(1)
			go func(v venue.Venue, st model.SocketType) {
				defer wg.Done()
				if err := o.launchVenue(ctx, v, st); err != nil && ctx.Err() == nil {
					errCh <- fmt.Errorf("region: %s/%s/%s exhausted recovery: %w", o.Region, v.Exchange, st, err)
				}
			}(v, st)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.poller.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("region: %s rest poller stopped: %w", o.Region, err)
		}
	}()

	wg.Wait()
	close(errCh)

	var errs []error
	for e := range errCh {
		errs = append(errs, e)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// launchVenue is the price-ticker/orderbook launcher: it wires one venue's
// socket session, preprocessing pipeline (with its own single-consumer
// drain loop), and retry supervisor -- with the region's REST poller bound
// in as the Fallback probe loop -- together for the venue's lifetime.
func (o *Orchestrator) launchVenue(ctx context.Context, v venue.Venue, st model.SocketType) error {
	log := o.log.With().Str("exchange", v.Exchange).Str("socket_type", string(st)).Logger()
	market := model.NewMarket(v.Exchange, o.Symbol)

	pl := pipeline.New(string(o.Region), v.Exchange, st, o.deps.RegionTopicRoot, v.Whitelist, o.deps.Publisher, o.partitionFn, log)

	drainCtx, cancelDrain := context.WithCancel(ctx)
	go drainLoop(drainCtx, pl)
	defer func() {
		cancelDrain()
		pl.FlushAll(context.Background(), market, o.Symbol)
	}()

	subscribeFn := func(symbol string) (model.RawMessage, error) {
		return o.deps.Subscribers.Build(v.Exchange, st, symbol)
	}
	sess := session.New(v.Exchange, market, o.Symbol, v.Endpoint, subscribeFn, func(raw model.RawMessage) {
		pl.Enqueue(market, o.Symbol, raw)
	}, log)

	sup := retry.New(o.deps.RetryPolicy, log)
	fallback := func(ctx context.Context) error {
		return o.poller.RunFallback(ctx, probeDial(v.Endpoint, subscribeFn, o.Symbol))
	}

	return sup.Supervise(ctx, sess.Connect, fallback)
}

// probeDial is the retry supervisor's recovery probe for the REST-fallback
// path: the same dial -> subscribe -> read-one-frame sequence session.Connect
// performs, since a dial that succeeds against a venue whose subscribe
// channel is still broken must not end the fallback. The connection is
// closed on every exit path, success or failure.
func probeDial(endpoint string, subscribeFn func(string) (model.RawMessage, error), symbol string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			return err
		}
		defer conn.Close()

		frame, err := subscribeFn(symbol)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
		return nil
	}
}

// drainLoop is the pipeline's single-consumer drain loop: it repeatedly
// calls DrainOnce, backing off briefly when the queue runs dry so an idle
// venue doesn't spin.
func drainLoop(ctx context.Context, pl *pipeline.Pipeline) {
	for {
		if ctx.Err() != nil {
			return
		}
		if pl.DrainOnce(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
