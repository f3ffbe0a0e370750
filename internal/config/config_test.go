package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/venue"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRegion_ParsesSocketAndRest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "korea", "_market_socket.yaml"), `
upbit:
  url: "wss://api.upbit.com/websocket/v1"
  whitelist: ["trade_price", "code"]
`)
	writeFile(t, filepath.Join(dir, "korea", "_market_rest.yaml"), `
upbit:
  url: "https://api.upbit.com/v1/ticker"
  params: ["opening_price", "trade_price"]
`)

	rc, err := LoadRegion(dir, model.RegionKorea)
	require.NoError(t, err)
	require.Equal(t, "wss://api.upbit.com/websocket/v1", rc.Socket["upbit"].URL)
	require.Equal(t, []string{"trade_price", "code"}, rc.Socket["upbit"].Whitelist)
	require.Equal(t, []string{"opening_price", "trade_price"}, rc.Rest["upbit"].Params)
}

func TestLoadRegion_MissingFileIsConfigError(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadRegion(dir, model.RegionKorea)
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadBus_ValidatesBootstrapServers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bus.yaml"), `
security_protocol: "PLAINTEXT"
max_batch_size: 1000000
max_request_size: 1000000
acks: "all"
korea_topic_root: "KOREA_REAL_TOPIC_NAME"
`)
	_, err := LoadBus(dir)
	require.ErrorIs(t, err, ErrConfig)
}

func TestLoadBus_Success(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bus.yaml"), `
bootstrap_servers: ["localhost:9092"]
security_protocol: "PLAINTEXT"
max_batch_size: 1000000
max_request_size: 1000000
acks: "all"
korea_topic_root: "KOREA_REAL_TOPIC_NAME"
asia_topic_root: "ASIA_REAL_TOPIC_NAME"
ne_topic_root: "NE_REAL_TOPIC_NAME"
`)
	b, err := LoadBus(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"localhost:9092"}, b.BootstrapServers)
	require.Equal(t, "KOREA_REAL_TOPIC_NAME", b.TopicRoot(model.RegionKorea))
	require.Equal(t, "NE_REAL_TOPIC_NAME", b.TopicRoot(model.RegionNE))
}

func TestBuildRegistry_RegistersBothTransports(t *testing.T) {
	reg := venue.NewRegistry()
	rc := RegionConfig{
		Socket: map[string]SocketVenueEntry{"upbit": {URL: "wss://x", Whitelist: []string{"trade_price"}}},
		Rest:   map[string]RestVenueEntry{"upbit": {URL: "https://x", Params: []string{"trade_price"}}},
	}
	BuildRegistry(reg, model.RegionKorea, rc)

	_, err := reg.Lookup(model.RegionKorea, "upbit", model.TransportSocket)
	require.NoError(t, err)
	_, err = reg.Lookup(model.RegionKorea, "upbit", model.TransportRest)
	require.NoError(t, err)
}
