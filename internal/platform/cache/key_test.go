package cache

import (
	"strings"
	"testing"
)

func TestKeyBuilderIsOrderIndependent(t *testing.T) {
	b := NewKeyBuilder("names", 0)
	first := b.Build("elvish", map[string]string{"gender": "feminine", "count": "5", "length": "medium", "minScore": "0.6"})
	second := b.Build("Elvish", map[string]string{"minscore": "0.6", "length": "medium", "count": "5", " gender ": "feminine"})
	if first != second {
		t.Fatalf("expected identical keys, got %q and %q", first, second)
	}
	if first != "names:elvish:count=5&gender=feminine&length=medium&minscore=0.6" {
		t.Fatalf("unexpected key %q", first)
	}
}

func TestKeyBuilderSeparatesCultures(t *testing.T) {
	b := NewKeyBuilder("", 0)
	params := map[string]string{"count": "1"}
	if b.Build("elvish", params) == b.Build("human", params) {
		t.Fatalf("expected culture to be part of the key")
	}
	if !strings.HasPrefix(b.Build("elvish", params), b.Prefix("elvish")) {
		t.Fatalf("expected key to start with the culture prefix")
	}
	if strings.HasPrefix(b.Prefix("elvishkin"), b.Prefix("elvish")) {
		t.Fatalf("culture prefixes must not overlap")
	}
}

func TestKeyBuilderHashesLongKeys(t *testing.T) {
	b := NewKeyBuilder("names", 40)
	params := map[string]string{"gender": "feminine", "count": "20", "length": "medium", "minscore": "0.75"}

	key := b.Build("dwarven", params)
	if len(key) > 40 {
		t.Fatalf("expected hashed key within bound, got %d chars: %q", len(key), key)
	}
	if !strings.HasPrefix(key, "names:dwarven:h=") || len(key) != len("names:dwarven:h=")+16 {
		t.Fatalf("unexpected hashed key %q", key)
	}
	if key != b.Build("dwarven", map[string]string{"minscore": "0.75", "length": "medium", "count": "20", "gender": "feminine"}) {
		t.Fatalf("expected hashed keys to be stable")
	}
	params["count"] = "19"
	if key == b.Build("dwarven", params) {
		t.Fatalf("expected different params to hash differently")
	}
}
