package subscribe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

func TestBuild_AllRegisteredVenuesProduceValidJSON(t *testing.T) {
	r := NewRegistry()
	pairs := []struct {
		exchange string
		st       model.SocketType
	}{
		{"upbit", model.SocketTicker}, {"upbit", model.SocketOrderbook},
		{"bithumb", model.SocketTicker}, {"bithumb", model.SocketOrderbook},
		{"coinone", model.SocketTicker}, {"coinone", model.SocketOrderbook},
		{"korbit", model.SocketTicker}, {"korbit", model.SocketOrderbook},
		{"binance", model.SocketTicker}, {"binance", model.SocketOrderbook},
		{"kraken", model.SocketTicker}, {"kraken", model.SocketOrderbook},
		{"gateio", model.SocketTicker}, {"gateio", model.SocketOrderbook},
		{"okx", model.SocketTicker}, {"okx", model.SocketOrderbook},
		{"bybit", model.SocketTicker}, {"bybit", model.SocketOrderbook},
		{"coinbase", model.SocketTicker},
	}
	for _, p := range pairs {
		frame, err := r.Build(p.exchange, p.st, "btc")
		require.NoErrorf(t, err, "%s/%s", p.exchange, p.st)
		require.Truef(t, json.Valid(frame), "%s/%s produced invalid JSON", p.exchange, p.st)
	}
}

func TestBuild_UnknownVenueReturnsErrUnknownBuilder(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("nonexistent", model.SocketTicker, "btc")
	require.ErrorIs(t, err, ErrUnknownBuilder)
}

func TestBuild_CoinbaseOrderbookIsUnregistered(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("coinbase", model.SocketOrderbook, "btc")
	require.ErrorIs(t, err, ErrUnknownBuilder)
}

func TestUpbitTicker_CodesUseKRWPrefix(t *testing.T) {
	frame, err := upbitBithumbTicker("btc")
	require.NoError(t, err)

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(frame, &parts))
	require.Len(t, parts, 2)

	var body map[string]any
	require.NoError(t, json.Unmarshal(parts[1], &body))
	require.Equal(t, "ticker", body["type"])
	codes, ok := body["codes"].([]any)
	require.True(t, ok)
	require.Equal(t, "KRW-BTC", codes[0])
}

func TestKrakenBook_HasReqID(t *testing.T) {
	frame, err := krakenBook("eth")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(frame, &body))
	require.Equal(t, "subscribe", body["method"])
	require.Contains(t, body, "req_id")
}
