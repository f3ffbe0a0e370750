package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/config"
)

// healthCmd is the metrics-free health check: a one-shot HTTP reachability
// probe per configured REST venue, printed to stdout; socket venues are
// listed as configured but not dialed. It
// carries no Prometheus wiring (see Non-goals) -- it exists to answer "is
// this region's configuration pointed at something alive" before `run`.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe reachability of every configured REST venue endpoint",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	regions := []string{"korea", "asia", "ne"}
	client := &http.Client{Timeout: 5 * time.Second}

	for _, r := range regions {
		spec, ok := regionSpecs[r]
		if !ok {
			continue
		}
		rc, err := config.LoadRegion(flagConfigDir, spec.region)
		if err != nil {
			fmt.Printf("[%s] config: FAIL (%v)\n", spec.display, err)
			continue
		}
		for exchange, entry := range rc.Rest {
			status := probeHTTP(client, entry.URL)
			fmt.Printf("[%s] %-10s rest   %s\n", spec.display, exchange, status)
		}
		for exchange := range rc.Socket {
			fmt.Printf("[%s] %-10s socket configured\n", spec.display, exchange)
		}
	}
	return nil
}

func probeHTTP(client *http.Client, url string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "FAIL (" + err.Error() + ")"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "FAIL (" + err.Error() + ")"
	}
	defer resp.Body.Close()
	return fmt.Sprintf("OK (%d)", resp.StatusCode)
}
