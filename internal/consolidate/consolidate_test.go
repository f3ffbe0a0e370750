package consolidate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

func TestKorea_MissingVenueIsFalseSlot(t *testing.T) {
	slots := map[string]*model.PriceSnapshot{
		"upbit": {Market: "upbit-BTC"},
	}
	rec := Korea(100, slots).(model.KoreaConsolidated)
	require.Equal(t, int64(100), rec.Timestamp)
	require.NotNil(t, rec.Upbit)
	require.Nil(t, rec.Bithumb)
	require.Nil(t, rec.Coinone)
	require.Nil(t, rec.Korbit)
}

func TestNE_CoinbaseFalseSlotWhenFetchFails(t *testing.T) {
	slots := map[string]*model.PriceSnapshot{
		"binance":  {Market: "binance-BTC"},
		"kraken":   {Market: "kraken-BTC"},
		"coinbase": nil,
	}
	rec := NE(200, slots).(model.NEConsolidated)
	require.NotNil(t, rec.Binance)
	require.NotNil(t, rec.Kraken)
	require.Nil(t, rec.Coinbase)
}
