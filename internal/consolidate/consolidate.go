// Package consolidate builds the typed per-region consolidated REST records
// (model.KoreaConsolidated/AsiaConsolidated/NEConsolidated) from C8's
// per-venue fetch slot map, binding restpoll.RecordBuilder to each region's
// fixed venue set.
package consolidate

import "github.com/MajorShareholderClub/ExchangePipeline/internal/model"

// Korea builds a restpoll.RecordBuilder for the Korea region's four venues.
func Korea(ts int64, slots map[string]*model.PriceSnapshot) any {
	return model.KoreaConsolidated{
		Timestamp: ts,
		Upbit:     slots["upbit"],
		Bithumb:   slots["bithumb"],
		Coinone:   slots["coinone"],
		Korbit:    slots["korbit"],
	}
}

// Asia builds a restpoll.RecordBuilder for the Asia region's three venues.
func Asia(ts int64, slots map[string]*model.PriceSnapshot) any {
	return model.AsiaConsolidated{
		Timestamp: ts,
		OKX:       slots["okx"],
		Bybit:     slots["bybit"],
		Gateio:    slots["gateio"],
	}
}

// NE builds a restpoll.RecordBuilder for the NE region's three venues.
func NE(ts int64, slots map[string]*model.PriceSnapshot) any {
	return model.NEConsolidated{
		Timestamp: ts,
		Binance:   slots["binance"],
		Kraken:    slots["kraken"],
		Coinbase:  slots["coinbase"],
	}
}
