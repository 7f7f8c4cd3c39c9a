package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sparkacademy/portal-service/internal/cache"
)

func newSparkTestService(t *testing.T) (*sparkService, *stubGenerator, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gen := &stubGenerator{payload: `{"message":"Keep going!","topic":"Momentum"}`}
	svc := NewSparkService(cache.NewCacheHelper(client, cache.SparkCacheConfig.Prefix), testLogger(), gen).(*sparkService)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc, gen, mr
}

func TestGetDailySparkGeneratesThenServesCache(t *testing.T) {
	svc, gen, mr := newSparkTestService(t)
	ctx := context.Background()

	first, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if first.Source != SparkGenerated {
		t.Fatalf("first source = %s, want generated", first.Source)
	}
	if first.Message != "Keep going!" || first.Topic != "Momentum" {
		t.Fatalf("first spark = %+v", first)
	}
	if first.Date != "2025-03-10" {
		t.Fatalf("date = %s, want 2025-03-10", first.Date)
	}

	second, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if second.Source != SparkCached {
		t.Fatalf("second source = %s, want cached", second.Source)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}

	if !mr.Exists("spark:user-1:last") {
		t.Fatal("warm key was not written")
	}
	if ttl := mr.TTL("spark:user-1:2025-03-10"); ttl != 15*time.Hour {
		t.Fatalf("daily key TTL = %v, want 15h until midnight", ttl)
	}
}

func TestGetDailySparkNewDayRegenerates(t *testing.T) {
	svc, gen, _ := newSparkTestService(t)
	ctx := context.Background()

	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	if _, err := svc.GetDailySpark(ctx, "user-1"); err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}

	clock = clock.Add(24 * time.Hour)
	gen.payload = `{"message":"New day, new topic.","topic":"Fresh start"}`

	next, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if next.Source != SparkGenerated || next.Date != "2025-03-11" {
		t.Fatalf("next day spark = %+v, want regenerated for 2025-03-11", next)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
}

func TestGetDailySparkWarmFallback(t *testing.T) {
	svc, gen, _ := newSparkTestService(t)
	ctx := context.Background()

	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	if _, err := svc.GetDailySpark(ctx, "user-1"); err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}

	// Next day the provider is down; the warm copy still serves
	clock = clock.Add(24 * time.Hour)
	gen.err = errors.New("provider down")

	warm, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if warm.Source != SparkCached {
		t.Fatalf("warm source = %s, want cached", warm.Source)
	}
	if warm.Message != "Keep going!" {
		t.Fatalf("warm message = %q, want yesterday's spark", warm.Message)
	}
}

func TestGetDailySparkFallbackQuote(t *testing.T) {
	svc, gen, _ := newSparkTestService(t)
	gen.err = errors.New("provider down")
	ctx := context.Background()

	first, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if first.Source != SparkFallback {
		t.Fatalf("source = %s, want fallback", first.Source)
	}
	if first.Message == "" {
		t.Fatal("fallback message is empty")
	}

	// Deterministic: refreshing the page does not reroll the quote
	again, err := svc.GetDailySpark(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if again.Message != first.Message {
		t.Fatalf("fallback rerolled: %q then %q", first.Message, again.Message)
	}
}

func TestGetDailySparkRejectsBlankGeneration(t *testing.T) {
	svc, gen, _ := newSparkTestService(t)
	gen.payload = `{"message":"   ","topic":"Empty"}`

	resp, err := svc.GetDailySpark(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetDailySpark() error = %v", err)
	}
	if resp.Source != SparkFallback {
		t.Fatalf("source = %s, want fallback when the provider returns a blank message", resp.Source)
	}
}

func TestUntilMidnight(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), 15 * time.Hour},
		{time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC), 30 * time.Minute},
		{time.Date(2025, 3, 10, 23, 59, 30, 0, time.UTC), time.Minute},
	}
	for _, tt := range tests {
		if got := untilMidnight(tt.now); got != tt.want {
			t.Fatalf("untilMidnight(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}
