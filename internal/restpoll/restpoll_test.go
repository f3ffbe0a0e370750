package restpoll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

type recordingPublisher struct {
	topic, key string
	partition  int32
	envelope   any
	calls      int
}

func (r *recordingPublisher) Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error {
	r.topic, r.key, r.partition, r.envelope = topic, key, partitionIdx, envelope
	r.calls++
	return nil
}

type neRecord struct {
	Timestamp int64
	Binance   *model.PriceSnapshot
	Kraken    *model.PriceSnapshot
}

func buildNE(ts int64, slots map[string]*model.PriceSnapshot) any {
	return neRecord{Timestamp: ts, Binance: slots["binance"], Kraken: slots["kraken"]}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRunCycle_S5_PublishesConsolidatedRecordWithFalseSlot(t *testing.T) {
	pub := &recordingPublisher{}
	venues := map[string]FetchFunc{
		"binance": func(ctx context.Context, symbol string) (model.PriceSnapshot, error) {
			return model.PriceSnapshot{Market: "binance-BTC", Symbol: symbol, Timestamp: 1}, nil
		},
		"kraken": func(ctx context.Context, symbol string) (model.PriceSnapshot, error) {
			return model.PriceSnapshot{}, errors.New("tls handshake failure")
		},
	}
	p := New("ne", "NE", "BTC", venues, buildNE, pub,
		func(string) int32 { return 0 }, zerolog.Nop())
	p.sleep = noSleep

	p.RunCycle(context.Background())

	require.Equal(t, 1, pub.calls)
	require.Equal(t, "TotalNERestDataInBTC", pub.topic)
	require.Equal(t, "ne-Total", pub.key)

	rec := pub.envelope.(neRecord)
	require.NotNil(t, rec.Binance)
	require.Nil(t, rec.Kraken, "failed venue fetch must surface as a false/nil slot")
}

func TestRunFallback_ReturnsWhenProbeSucceeds(t *testing.T) {
	pub := &recordingPublisher{}
	venues := map[string]FetchFunc{
		"binance": func(ctx context.Context, symbol string) (model.PriceSnapshot, error) {
			return model.PriceSnapshot{Market: "binance-BTC", Symbol: symbol}, nil
		},
	}
	p := New("ne", "NE", "BTC", venues, buildNE, pub, func(string) int32 { return 0 }, zerolog.Nop())
	p.sleep = noSleep

	probeCalls := 0
	probe := func(ctx context.Context) error {
		probeCalls++
		if probeCalls >= 2 {
			return nil
		}
		return errors.New("socket still down")
	}

	err := p.RunFallback(context.Background(), probe)
	require.NoError(t, err)
	require.Equal(t, 2, probeCalls)
	require.GreaterOrEqual(t, pub.calls, 2)
}

func TestFetchWithRetry_RetriesThenSucceeds(t *testing.T) {
	pub := &recordingPublisher{}
	attempts := 0
	venues := map[string]FetchFunc{
		"binance": func(ctx context.Context, symbol string) (model.PriceSnapshot, error) {
			attempts++
			if attempts < 3 {
				return model.PriceSnapshot{}, errors.New("timeout")
			}
			return model.PriceSnapshot{Market: "binance-BTC"}, nil
		},
	}
	p := New("ne", "NE", "BTC", venues, buildNE, pub, func(string) int32 { return 0 }, zerolog.Nop())
	p.sleep = noSleep

	p.RunCycle(context.Background())
	require.Equal(t, 3, attempts)
	rec := pub.envelope.(neRecord)
	require.NotNil(t, rec.Binance)
}
