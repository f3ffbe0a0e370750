package restfetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

func decimalMustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestStub_DecodesConfiguredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"last_price": "101.50",
			"open_price": "100.00",
		})
	}))
	defer srv.Close()

	spec := VenueSpec{
		Exchange: "upbit",
		URL:      srv.URL,
		Fields:   map[string]string{"trade_price": "last_price", "opening_price": "open_price"},
	}
	fetch := Stub(spec, NewRateLimiter(), NewCircuitBreaker(), nil)

	snap, err := fetch(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, "upbit-BTC", snap.Market)
	require.NotNil(t, snap.Data.TradePrice)
	require.True(t, snap.Data.TradePrice.Equal(decimalMustParse("101.5")))
	require.Nil(t, snap.Data.MaxPrice)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker()
	failing := func(ctx context.Context) error { return errInjected }

	for i := 0; i < 3; i++ {
		err := cb.Call(context.Background(), "venue", 3, time.Minute, failing)
		require.Error(t, err)
	}

	err := cb.Call(context.Background(), "venue", 3, time.Minute, failing)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ClosesOnSuccessAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker()
	failing := func(ctx context.Context) error { return errInjected }
	succeeding := func(ctx context.Context) error { return nil }

	for i := 0; i < 2; i++ {
		_ = cb.Call(context.Background(), "venue", 2, 10*time.Millisecond, failing)
	}
	require.ErrorIs(t, cb.Call(context.Background(), "venue", 2, 10*time.Millisecond, failing), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Call(context.Background(), "venue", 2, 10*time.Millisecond, succeeding))
	require.NoError(t, cb.Call(context.Background(), "venue", 2, 10*time.Millisecond, succeeding))
}

func TestRateLimiter_BlocksUntilContextCancelled(t *testing.T) {
	rl := NewRateLimiter()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := rl.Allow(ctx, "v", 0.001, 1)
	_ = err // first call consumes the burst token immediately
	err = rl.Allow(ctx, "v", 0.001, 1)
	require.Error(t, err)
}
