package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/health"
)

// newHealthServer builds the `run --http-addr` liveness endpoint, local-only
// by default -- a read-only probe surface, never a control plane, so it
// carries exactly two routes and no middleware stack.
func newHealthServer(addr string, tracker *health.Tracker, log zerolog.Logger) *http.Server {
	router := mux.NewRouter()

	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snapshot := tracker.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		status := http.StatusOK
		for _, s := range snapshot {
			if s.Stale {
				status = http.StatusServiceUnavailable
				break
			}
		}
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Error().Err(err).Msg("healthz: encode response failed")
		}
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
