package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestMemoryClaim(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 2)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, "a"); !ok {
		t.Fatalf("first claim rejected")
	}
	if ok, _ := m.Claim(ctx, "a"); ok {
		t.Fatalf("duplicate accepted")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := m.Claim(ctx, "a"); !ok {
		t.Fatalf("expired key still blocked")
	}
}

func TestMemoryBounded(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour, 2)
	m.now = func() time.Time { return now }
	ctx := context.Background()
	for i, k := range []string{"a", "b", "c"} {
		now = now.Add(time.Duration(i) * time.Second)
		if ok, _ := m.Claim(ctx, k); !ok {
			t.Fatalf("claim %s rejected", k)
		}
	}
	if len(m.keys) != 2 {
		t.Fatalf("keys=%d", len(m.keys))
	}
	if _, ok := m.keys["a"]; ok {
		t.Fatalf("oldest key not evicted")
	}
}

func TestMemoryRelease(t *testing.T) {
	m := NewMemory(time.Hour, 0)
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, "a"); !ok {
		t.Fatalf("first claim rejected")
	}
	if err := m.Release(ctx, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := m.Claim(ctx, "a"); !ok {
		t.Fatalf("released key still blocked")
	}
	if err := m.Release(ctx, "never-claimed"); err != nil {
		t.Fatalf("release unknown: %v", err)
	}
}
