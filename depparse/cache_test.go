package depparse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brunobiangulo/depfacts/extract"
	backend "github.com/redis/go-redis/v9"
)

func countingSource(calls *int) Source {
	return SourceFunc(func(ctx context.Context, text string) ([]extract.Edge, error) {
		*calls++
		if text == "fail" {
			return nil, errors.New("upstream down")
		}
		return []extract.Edge{{Governor: "dog", Relation: "amod", Dependent: text}}, nil
	})
}

func TestCachedParse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	calls := 0
	c := NewCached(countingSource(&calls), client, SchemeBasic, WithCacheTTL(time.Hour))
	ctx := context.Background()

	first, err := c.Parse(ctx, "big")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Parse(ctx, "big")
	if err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(second) != 1 || second[0] != first[0] {
		t.Errorf("cached = %v, want %v", second, first)
	}

	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "depfacts:deps:basic:") {
		t.Errorf("keys = %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestCachedSchemeIsPartOfKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	calls := 0
	src := countingSource(&calls)

	NewCached(src, client, SchemeBasic).Parse(context.Background(), "big")
	NewCached(src, client, SchemeEnhanced).Parse(context.Background(), "big")

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	calls := 0
	c := NewCached(countingSource(&calls), client, SchemeBasic)

	for i := 0; i < 2; i++ {
		if _, err := c.Parse(context.Background(), "fail"); err == nil {
			t.Fatal("expected error, got nil")
		}
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("keys = %v, want none", mr.Keys())
	}
}

func TestCachedBypassesUnavailableRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := backend.NewClient(&backend.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	calls := 0
	c := NewCached(countingSource(&calls), client, SchemeBasic)

	edges, err := c.Parse(context.Background(), "big")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(edges) != 1 || calls != 1 {
		t.Errorf("edges = %v, calls = %d", edges, calls)
	}
}

func TestCachedCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	calls := 0
	c := NewCached(countingSource(&calls), client, SchemeBasic, WithCachePrefix("t:"))
	mr.Set(c.key("big"), "not json")

	edges, err := c.Parse(context.Background(), "big")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || len(edges) != 1 {
		t.Errorf("calls = %d, edges = %v", calls, edges)
	}
	if got, _ := mr.Get(c.key("big")); got == "not json" {
		t.Error("corrupt entry was not replaced")
	}
}
