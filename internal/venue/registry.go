// Package venue implements the venue descriptor registry: a
// (region, exchange, transport) -> Venue lookup, populated once at startup
// from parsed config and never mutated afterward. It has no
// fallback-chain/probe concerns of its own -- those belong to the retry
// supervisor and REST poller.
package venue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
)

// ErrUnknownVenue is returned by Lookup when no Venue is registered for the
// requested (region, exchange, transport) tuple.
var ErrUnknownVenue = errors.New("venue: unknown venue")

// Venue is the immutable descriptor: region/exchange tag,
// transport, endpoint, and the ticker-field whitelist (socket venues) or
// REST parameter list (rest venues). It holds no subscription-frame
// builder; those are looked up by exchange in internal/subscribe.
type Venue struct {
	Region    model.Region
	Exchange  string
	Transport model.Transport
	Endpoint  string

	// Whitelist names the ticker fields to retain after filtering (socket
	// venues) or the six PriceSnapshot fields present in the vendor REST
	// response (rest venues).
	Whitelist []string
}

type key struct {
	region    model.Region
	exchange  string
	transport model.Transport
}

// Registry is built once at startup from parsed config and never mutated
// afterward.
type Registry struct {
	mu     sync.RWMutex
	venues map[key]Venue
	byReg  map[model.Region][]Venue
}

// NewRegistry builds an empty Registry; Register populates it during
// startup config loading.
func NewRegistry() *Registry {
	return &Registry{
		venues: make(map[key]Venue),
		byReg:  make(map[model.Region][]Venue),
	}
}

// Register adds one Venue. Only called during startup wiring (internal/config).
func (r *Registry) Register(v Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{region: v.Region, exchange: v.Exchange, transport: v.Transport}
	r.venues[k] = v
	r.byReg[v.Region] = append(r.byReg[v.Region], v)
}

// List returns every Venue registered for region.
func (r *Registry) List(region model.Region) []Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Venue, len(r.byReg[region]))
	copy(out, r.byReg[region])
	return out
}

// Lookup resolves one (region, exchange, transport) tuple.
func (r *Registry) Lookup(region model.Region, exchange string, transport model.Transport) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[key{region: region, exchange: exchange, transport: transport}]
	if !ok {
		return Venue{}, fmt.Errorf("%w: %s/%s/%s", ErrUnknownVenue, region, exchange, transport)
	}
	return v, nil
}
