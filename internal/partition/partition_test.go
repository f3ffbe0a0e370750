package partition

import "testing"

func TestPin_PinnedWhenAvailable(t *testing.T) {
	all := []int32{0, 1, 2, 3, 4, 5, 6, 7}
	got := Pin("korea", "upbit:ticker-BTC", all, all)
	if got != 0 {
		t.Fatalf("want partition 0, got %d", got)
	}
	got = Pin("korea", "bithumb:orderbook-ETH", all, all)
	if got != 3 {
		t.Fatalf("want partition 3, got %d", got)
	}
}

func TestPin_FallsBackWhenPinnedUnavailable(t *testing.T) {
	all := []int32{0, 1, 2, 3}
	available := []int32{2, 3}
	got := Pin("korea", "upbit:ticker-BTC", all, available)
	if got != 2 {
		t.Fatalf("want fallback to available[0]=2, got %d", got)
	}
}

func TestPin_UnknownExchangeRandomizes(t *testing.T) {
	all := []int32{0, 1, 2}
	got := Pin("korea", "unknown-exchange:ticker-BTC", all, all)
	found := false
	for _, v := range all {
		if v == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected result within allPartitions, got %d", got)
	}
}

func TestPin_NECoinbaseOrderbookSentinelRandomizes(t *testing.T) {
	all := []int32{0, 1, 2, 3, 4}
	got := Pin("ne", "coinbase:orderbook-BTC", all, all)
	found := false
	for _, v := range all {
		if v == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected random fallback within allPartitions, got %d", got)
	}
}

func TestPin_MalformedKeyRandomizes(t *testing.T) {
	all := []int32{5}
	got := Pin("korea", "no-colon-here", all, all)
	if got != 5 {
		t.Fatalf("want only option 5, got %d", got)
	}
}

func TestHashPartition_Deterministic(t *testing.T) {
	all := []int32{0, 1, 2, 3, 4}
	a := HashPartition("upbit:ticker-BTC", all)
	b := HashPartition("upbit:ticker-BTC", all)
	if a != b {
		t.Fatalf("HashPartition must be deterministic for the same key, got %d vs %d", a, b)
	}
}

func TestHashPartition_WithinRange(t *testing.T) {
	all := []int32{0, 1, 2}
	for _, key := range []string{"a", "bb", "ccc", "dddd", "eeeee"} {
		got := HashPartition(key, all)
		if got < 0 || got > 2 {
			t.Fatalf("HashPartition(%q) = %d out of range", key, got)
		}
	}
}
