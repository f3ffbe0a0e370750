package region

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/restpoll"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/retry"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/subscribe"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/venue"
)

type recordedPublish struct {
	topic, key string
	envelope   any
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []recordedPublish
}

func (r *recordingPublisher) Publish(ctx context.Context, topic, key string, partitionIdx int32, envelope any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedPublish{topic: topic, key: key, envelope: envelope})
	return nil
}

func (r *recordingPublisher) snapshot() []recordedPublish {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedPublish, len(r.calls))
	copy(out, r.calls)
	return out
}

var upgrader = websocket.Upgrader{}

// singleFrameServer upgrades every connection, reads the subscribe frame,
// replies with one ticker-shaped JSON message, then immediately closes --
// mirroring a venue that streams exactly one update and then drops the
// socket, so the session's next read fails fast with a transient-wire fault
// instead of blocking on the 30s frame read deadline.
func singleFrameServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(websocketHandler(t))
}

func websocketHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		msg := []byte(`{"code":"KRW-BTC","trade_price":100.5,"opening_price":99.0}`)
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func TestOrchestrator_Run_FlushesPartialBatchOnShutdown(t *testing.T) {
	srv := singleFrameServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	reg := venue.NewRegistry()
	reg.Register(venue.Venue{
		Region:    model.RegionKorea,
		Exchange:  "upbit",
		Transport: model.TransportSocket,
		Endpoint:  wsURL,
		Whitelist: []string{"trade_price", "code", "opening_price"},
	})

	pub := &recordingPublisher{}
	deps := Deps{
		Registry:        reg,
		Subscribers:     subscribe.NewRegistry(),
		Publisher:       pub,
		RegionTopicRoot: "KOREA_REAL_TOPIC_NAME",
		Partitions:      []int32{0, 1, 2, 3, 4, 5, 6, 7},
		RestFetchers:    map[string]restpoll.FetchFunc{},
		RestBuild: func(ts int64, slots map[string]*model.PriceSnapshot) any {
			return struct{ Timestamp int64 }{Timestamp: ts}
		},
		RetryPolicy: retry.DefaultPolicy(),
	}

	orch := New(model.RegionKorea, "Korea", "BTC", deps, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx, []string{"upbit"}) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not shut down after context cancellation")
	}

	calls := pub.snapshot()
	require.NotEmpty(t, calls, "expected at least one published batch")

	var sawPipelineFlush bool
	for _, c := range calls {
		if strings.Contains(c.topic, "KOREA_REAL_TOPIC_NAME") {
			sawPipelineFlush = true
		}
	}
	require.True(t, sawPipelineFlush, "expected the venue's partial batch to be flushed to its region topic on shutdown")
}
