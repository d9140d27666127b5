package loadcachefake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/loadcache"
	"github.com/goforj/loadcache/loadcachefake"
)

func TestSourceValuesAndErrors(t *testing.T) {
	src := loadcachefake.New[string, string]()
	src.SetValue("a", "1")
	src.SetError("b", errors.New("nope"))

	ctx := context.Background()
	if v, err := src.Load(ctx, "a"); err != nil || v != "1" {
		t.Fatalf("unexpected load: v=%q err=%v", v, err)
	}
	if _, err := src.Load(ctx, "b"); err == nil {
		t.Fatalf("expected configured error")
	}
	if _, err := src.Load(ctx, "unknown"); err == nil {
		t.Fatalf("expected unconfigured key to fail")
	}

	src.AssertLoaded(t, "a", 1)
	src.AssertLoaded(t, "b", 1)
	src.AssertTotal(t, 3)
	src.AssertNotLoaded(t, "never")

	src.Reset()
	src.AssertTotal(t, 0)
	if v, err := src.Load(ctx, "a"); err != nil || v != "1" {
		t.Fatalf("values must survive reset: v=%q err=%v", v, err)
	}
}

func TestSourceLatencyRespectsContext(t *testing.T) {
	src := loadcachefake.New[string, string]()
	src.SetValue("slow", "v")
	src.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Load(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSourceDrivesCacheAssertions(t *testing.T) {
	src := loadcachefake.New[string, int]()
	src.SetValue("n", 7)

	c := loadcache.New[string, int]()
	for i := 0; i < 5; i++ {
		v, err := c.Get("n", src.Load)
		if err != nil || v != 7 {
			t.Fatalf("get %d: v=%d err=%v", i, v, err)
		}
	}
	src.AssertLoaded(t, "n", 1)

	c.Invalidate("n")
	if _, err := c.Get("n", src.Load); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	src.AssertLoaded(t, "n", 2)
}
