// Package config parses the two per-region market YAML files and the bus
// settings file into typed structs and a populated venue.Registry: one load
// function per concern, a missing or unreadable file reported as ErrConfig,
// yaml.Unmarshal into a typed struct, then a validation pass.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MajorShareholderClub/ExchangePipeline/internal/bus"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/model"
	"github.com/MajorShareholderClub/ExchangePipeline/internal/venue"
)

// ErrConfig is the distinguished configuration-error sentinel wrapped by
// every load and validation failure in this package; callers can match it
// with errors.Is. cmd/gateway exits 1 on any startup error.
var ErrConfig = errors.New("config: invalid configuration")

// SocketVenueEntry is one exchange's row in _market_socket.yaml.
type SocketVenueEntry struct {
	URL       string   `yaml:"url"`
	Whitelist []string `yaml:"whitelist"`
}

// RestVenueEntry is one exchange's row in _market_rest.yaml.
type RestVenueEntry struct {
	URL    string   `yaml:"url"`
	Params []string `yaml:"params"`
}

// RegionConfig is the parsed pair of market files for one region.
type RegionConfig struct {
	Socket map[string]SocketVenueEntry `yaml:"-"`
	Rest   map[string]RestVenueEntry   `yaml:"-"`
}

// BusConfig mirrors configs/bus.yaml, including the per-region topic roots
// the bus settings file carries alongside the broker connection keys.
type BusConfig struct {
	BootstrapServers []string `yaml:"bootstrap_servers"`
	SecurityProtocol string   `yaml:"security_protocol"`
	MaxBatchSize     int32    `yaml:"max_batch_size"`
	MaxRequestSize   int32    `yaml:"max_request_size"`
	Acks             string   `yaml:"acks"`
	KoreaTopicRoot   string   `yaml:"korea_topic_root"`
	AsiaTopicRoot    string   `yaml:"asia_topic_root"`
	NETopicRoot      string   `yaml:"ne_topic_root"`
}

// ToBusConfig converts to bus.Config, the producer's own settings shape.
func (b BusConfig) ToBusConfig() bus.Config {
	return bus.Config{
		BootstrapServers: b.BootstrapServers,
		SecurityProtocol: b.SecurityProtocol,
		MaxBatchSize:     b.MaxBatchSize,
		MaxRequestSize:   b.MaxRequestSize,
		Acks:             b.Acks,
	}
}

// TopicRoot returns the RegionTopicRoot for region.
func (b BusConfig) TopicRoot(region model.Region) string {
	switch region {
	case model.RegionKorea:
		return b.KoreaTopicRoot
	case model.RegionAsia:
		return b.AsiaTopicRoot
	case model.RegionNE:
		return b.NETopicRoot
	default:
		return ""
	}
}

// LoadRegion reads configs/<region>/_market_socket.yaml and
// configs/<region>/_market_rest.yaml.
func LoadRegion(configDir string, region model.Region) (RegionConfig, error) {
	regionDir := filepath.Join(configDir, string(region))

	var rc RegionConfig

	socket, err := loadSocketFile(filepath.Join(regionDir, "_market_socket.yaml"))
	if err != nil {
		return RegionConfig{}, err
	}
	rc.Socket = socket

	rest, err := loadRestFile(filepath.Join(regionDir, "_market_rest.yaml"))
	if err != nil {
		return RegionConfig{}, err
	}
	rc.Rest = rest

	return rc, nil
}

func loadSocketFile(path string) (map[string]SocketVenueEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing socket config %s", ErrConfig, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var out map[string]SocketVenueEntry
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return out, nil
}

func loadRestFile(path string) (map[string]RestVenueEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing rest config %s", ErrConfig, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var out map[string]RestVenueEntry
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return out, nil
}

// LoadBus reads configs/bus.yaml.
func LoadBus(configDir string) (BusConfig, error) {
	path := filepath.Join(configDir, "bus.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BusConfig{}, fmt.Errorf("%w: missing bus config %s", ErrConfig, path)
		}
		return BusConfig{}, fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}
	var out BusConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return BusConfig{}, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	if err := validateBus(out); err != nil {
		return BusConfig{}, err
	}
	return out, nil
}

func validateBus(b BusConfig) error {
	if len(b.BootstrapServers) == 0 {
		return fmt.Errorf("%w: bootstrap_servers is required", ErrConfig)
	}
	if b.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max_batch_size must be positive", ErrConfig)
	}
	return nil
}

// BuildRegistry populates reg with every socket and rest Venue found in rc
// for region. Called once at startup.
func BuildRegistry(reg *venue.Registry, region model.Region, rc RegionConfig) {
	for exchange, entry := range rc.Socket {
		reg.Register(venue.Venue{
			Region:    region,
			Exchange:  exchange,
			Transport: model.TransportSocket,
			Endpoint:  entry.URL,
			Whitelist: entry.Whitelist,
		})
	}
	for exchange, entry := range rc.Rest {
		reg.Register(venue.Venue{
			Region:    region,
			Exchange:  exchange,
			Transport: model.TransportRest,
			Endpoint:  entry.URL,
			Whitelist: entry.Params,
		})
	}
}
