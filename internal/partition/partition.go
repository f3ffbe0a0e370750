// Package partition implements the deterministic custom partitioner: it
// pins every (exchange, data-type) stream to a fixed partition within a
// region, with fallback and hash-mode variants, wired into franz-go's
// manual-partitioner mode (see internal/bus).
package partition

import (
	"math/rand"
	"strings"
)

type exchangeMapping struct {
	ticker    int32
	orderbook int32
}

// koreaMapping and the other two region maps are the fixed partition tables,
// matching the producing cluster's own partition assignment.
var koreaMapping = map[string]exchangeMapping{
	"upbit":   {ticker: 0, orderbook: 1},
	"bithumb": {ticker: 2, orderbook: 3},
	"coinone": {ticker: 4, orderbook: 5},
	"korbit":  {ticker: 6, orderbook: 7},
}

var neMapping = map[string]exchangeMapping{
	"binance": {ticker: 0, orderbook: 1},
	"kraken":  {ticker: 2, orderbook: 3},
	// coinbase only streams tickers in this region.
	"coinbase": {ticker: 4, orderbook: -1},
}

var asiaMapping = map[string]exchangeMapping{
	"okx":    {ticker: 1, orderbook: 2},
	"bybit":  {ticker: 3, orderbook: 4},
	"gateio": {ticker: 5, orderbook: 6},
}

func mappingFor(region string) map[string]exchangeMapping {
	switch strings.ToLower(region) {
	case "korea":
		return koreaMapping
	case "ne":
		return neMapping
	case "asia":
		return asiaMapping
	default:
		return nil
	}
}

// Pin returns the pinned partition for key = "<exchange>:<dt>-<symbol>"
// within region, falling back to available[0] when the pinned partition
// isn't currently available, and to a uniform random choice among
// allPartitions on parse failure or unknown tags.
func Pin(region, key string, allPartitions, available []int32) int32 {
	exchange, dataType, ok := parseKey(key)
	if !ok {
		return randomChoice(allPartitions)
	}

	mapping := mappingFor(region)
	if mapping == nil {
		return randomChoice(allPartitions)
	}

	em, ok := mapping[exchange]
	if !ok {
		return randomChoice(allPartitions)
	}

	var pinned int32
	switch dataType {
	case "ticker":
		pinned = em.ticker
	case "orderbook":
		pinned = em.orderbook
	default:
		return randomChoice(allPartitions)
	}

	if pinned < 0 {
		return randomChoice(allPartitions)
	}
	if contains(available, pinned) {
		return pinned
	}
	if len(available) == 0 {
		return randomChoice(allPartitions)
	}
	return available[0]
}

// parseKey splits "<exchange>:<dt>-<symbol>" into lower-cased exchange and
// data-type tokens. The symbol portion is not needed for partitioning.
func parseKey(key string) (exchange, dataType string, ok bool) {
	colon := strings.Index(key, ":")
	if colon < 0 {
		return "", "", false
	}
	exchange = strings.ToLower(strings.Trim(key[:colon], `"`))

	rest := key[colon+1:]
	dash := strings.Index(rest, "-")
	if dash < 0 {
		return "", "", false
	}
	dataType = strings.ToLower(strings.Trim(rest[:dash], `"`))
	if exchange == "" || dataType == "" {
		return "", "", false
	}
	return exchange, dataType, true
}

func contains(xs []int32, v int32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func randomChoice(xs []int32) int32 {
	if len(xs) == 0 {
		return 0
	}
	return xs[rand.Intn(len(xs))]
}

// HashPartition computes the murmur2-style masked hash used for the
// consolidated REST topic: a 32-bit hash, masked to 31 bits,
// modulo the partition count.
func HashPartition(key string, allPartitions []int32) int32 {
	if len(allPartitions) == 0 {
		return 0
	}
	h := murmur2([]byte(key))
	h &= 0x7fffffff
	return allPartitions[int(h)%len(allPartitions)]
}

// murmur2 is the Kafka-compatible murmur2 hash (matches the algorithm used
// by kafka-python's murmur2, which the original source imports directly).
func murmur2(data []byte) uint32 {
	const (
		seed uint32 = 0x9747b28c
		m    uint32 = 0x5bd1e995
		r           = 24
	)
	length := len(data)
	h := seed ^ uint32(length)
	i := 0
	for length-i >= 4 {
		k := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
		i += 4
	}
	switch length - i {
	case 3:
		h ^= uint32(data[i+2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[i+1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[i])
		h *= m
	}
	h ^= h >> 13
	h *= m
	h ^= h >> 15
	return h
}
