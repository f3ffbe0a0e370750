// Package health tracks per-region liveness for the gateway's
// `gateway run --http-addr` /healthz endpoint, which reads from a Tracker
// instead of each region orchestrator rolling its own bookkeeping. The
// `gateway health` CLI command does not use it; it probes venue endpoints
// directly.
package health

import (
	"sync"
	"time"
)

// Tracker records the most recent heartbeat timestamp per region. A region
// orchestrator calls Heartbeat once per REST poll cycle (1Hz), so a region
// more than a few seconds stale is a reliable signal that its goroutines
// have wedged or exited.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Heartbeat records that region is alive as of now.
func (t *Tracker) Heartbeat(region string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[region] = time.Now()
}

// RegionStatus is one region's liveness snapshot.
type RegionStatus struct {
	Region       string        `json:"region"`
	LastSeen     time.Time     `json:"last_seen"`
	SinceSeconds float64       `json:"since_seconds"`
	Stale        bool          `json:"stale"`
}

// staleAfter is the window after which a region with no heartbeat is
// reported stale; generous relative to the 1s/10s-cooldown REST cadence so
// a cool-down cycle never flaps the status.
const staleAfter = 30 * time.Second

// Snapshot reports the current status of every region that has ever
// heartbeat-ed, in no particular order.
func (t *Tracker) Snapshot() []RegionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RegionStatus, 0, len(t.last))
	now := time.Now()
	for region, ts := range t.last {
		since := now.Sub(ts)
		out = append(out, RegionStatus{
			Region:       region,
			LastSeen:     ts,
			SinceSeconds: since.Seconds(),
			Stale:        since > staleAfter,
		})
	}
	return out
}
