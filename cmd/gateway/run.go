package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/bus"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/config"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/consolidate"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/health"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/logging"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/region"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/restfetch"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/restpoll"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/retry"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/subscribe"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/venue"
)

var (
	runRegions []string
	runVenues  []string
	runSymbol  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ingestion gateway daemon",
	Long: `run starts one region orchestrator per configured region (Korea, Asia, NE
by default), each launching socket sessions per venue plus one consolidated
REST poller for the region, until interrupted.`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runRegions, "region", []string{"korea", "asia", "ne"}, "regions to run (korea, asia, ne)")
	runCmd.Flags().StringSliceVar(&runVenues, "venue", nil, "restrict to these exchanges only (default: all venues in each region)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "BTC", "trading symbol to ingest")
	runCmd.Flags().StringVar(&runHTTPAddr, "http-addr", "", "if set, serve /healthz and /readyz on this address (e.g. 127.0.0.1:8080)")
}

var runHTTPAddr string

// regionSpec binds one region's fixed venue set, display casing, and
// partition count; symbol field-name maps are the clearly-marked REST stub
// named in internal/restfetch.
type regionSpec struct {
	region        model.Region
	display       string
	restBuild     restpoll.RecordBuilder
	restFieldMaps map[string]map[string]string
	partitions    []int32
}

var regionSpecs = map[string]regionSpec{
	"korea": {
		region: model.RegionKorea, display: "Korea", restBuild: consolidate.Korea,
		restFieldMaps: map[string]map[string]string{
			"upbit":   {"trade_price": "trade_price", "opening_price": "opening_price"},
			"bithumb": {"trade_price": "closing_price", "opening_price": "opening_price"},
			"coinone": {"trade_price": "last", "opening_price": "first"},
			"korbit":  {"trade_price": "last", "opening_price": "open"},
		},
		partitions: partitionRange(8),
	},
	"asia": {
		region: model.RegionAsia, display: "Asia", restBuild: consolidate.Asia,
		restFieldMaps: map[string]map[string]string{
			"okx":    {"trade_price": "last", "opening_price": "open24h"},
			"bybit":  {"trade_price": "lastPrice", "opening_price": "prevPrice24h"},
			"gateio": {"trade_price": "last", "opening_price": "open"},
		},
		partitions: partitionRange(7),
	},
	"ne": {
		region: model.RegionNE, display: "NE", restBuild: consolidate.NE,
		restFieldMaps: map[string]map[string]string{
			"binance":  {"trade_price": "lastPrice", "opening_price": "openPrice"},
			"kraken":   {"trade_price": "c", "opening_price": "o"},
			"coinbase": {"trade_price": "price", "opening_price": "open"},
		},
		partitions: partitionRange(5),
	},
}

// partitionRange builds the [0, n) partition slice for one region's fixed
// map: Korea provisions 8, Asia 7, NE 5, matching the producing cluster's
// per-region topic partition counts.
func partitionRange(n int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

func runGateway(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Env(flagEnv), logging.ParseLevel(flagLogLevel))

	busCfg, err := config.LoadBus(flagConfigDir)
	if err != nil {
		log.Error().Err(err).Msg("fatal configuration error loading bus settings")
		return err
	}
	producer := bus.NewProducer(busCfg.ToBusConfig(), log)
	defer producer.Close()

	limiter := restfetch.NewRateLimiter()
	breaker := restfetch.NewCircuitBreaker()
	tracker := health.NewTracker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if runHTTPAddr != "" {
		srv := newHealthServer(runHTTPAddr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("health http server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	errCh := make(chan error, len(runRegions))
	running := 0
	for _, r := range runRegions {
		spec, ok := regionSpecs[r]
		if !ok {
			log.Warn().Str("region", r).Msg("unknown region, skipping")
			continue
		}
		orch, err := buildOrchestrator(spec, busCfg, producer, limiter, breaker, tracker, log)
		if err != nil {
			log.Error().Err(err).Str("region", r).Msg("fatal configuration error")
			return err
		}
		running++
		go func(o *region.Orchestrator) {
			errCh <- o.Run(ctx, runVenues)
		}(orch)
	}

	var errs []error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildOrchestrator(spec regionSpec, busCfg config.BusConfig, producer *bus.Producer, limiter *restfetch.RateLimiter, breaker *restfetch.CircuitBreaker, tracker *health.Tracker, log zerolog.Logger) (*region.Orchestrator, error) {
	rc, err := config.LoadRegion(flagConfigDir, spec.region)
	if err != nil {
		return nil, err
	}

	reg := venue.NewRegistry()
	config.BuildRegistry(reg, spec.region, rc)

	fetchers := make(map[string]restpoll.FetchFunc, len(rc.Rest))
	for exchange, entry := range rc.Rest {
		fields := spec.restFieldMaps[exchange]
		fetchers[exchange] = restfetch.Stub(restfetch.VenueSpec{
			Exchange: exchange,
			URL:      entry.URL,
			Fields:   fields,
		}, limiter, breaker, nil)
	}

	deps := region.Deps{
		Registry:        reg,
		Subscribers:     subscribe.NewRegistry(),
		Publisher:       producer,
		RegionTopicRoot: busCfg.TopicRoot(spec.region),
		Partitions:      spec.partitions,
		RestFetchers:    fetchers,
		RestBuild:       spec.restBuild,
		RetryPolicy:     retry.DefaultPolicy(),
		Health:          tracker,
	}

	return region.New(spec.region, spec.display, runSymbol, deps, log), nil
}
