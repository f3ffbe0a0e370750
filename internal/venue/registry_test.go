package venue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

func TestRegistry_LookupKnownVenue(t *testing.T) {
	r := NewRegistry()
	r.Register(Venue{
		Region:    model.RegionKorea,
		Exchange:  "upbit",
		Transport: model.TransportSocket,
		Endpoint:  "wss://api.upbit.com/websocket/v1",
		Whitelist: []string{"trade_price", "code"},
	})

	v, err := r.Lookup(model.RegionKorea, "upbit", model.TransportSocket)
	require.NoError(t, err)
	require.Equal(t, "wss://api.upbit.com/websocket/v1", v.Endpoint)
}

func TestRegistry_LookupUnknownVenueReturnsErrUnknownVenue(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(model.RegionKorea, "nonexistent", model.TransportSocket)
	require.ErrorIs(t, err, ErrUnknownVenue)
}

func TestRegistry_ListReturnsOnlyRequestedRegion(t *testing.T) {
	r := NewRegistry()
	r.Register(Venue{Region: model.RegionKorea, Exchange: "upbit", Transport: model.TransportSocket})
	r.Register(Venue{Region: model.RegionNE, Exchange: "binance", Transport: model.TransportSocket})

	korea := r.List(model.RegionKorea)
	require.Len(t, korea, 1)
	require.Equal(t, "upbit", korea[0].Exchange)
}
