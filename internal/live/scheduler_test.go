package live

import (
	"testing"
	"time"
)

// oneSecondPCM returns a buffer whose playback length is exactly one second
// at the given rate (16-bit mono).
func oneSecondPCM(sampleRate int) []byte {
	return make([]byte, sampleRate*2)
}

func TestSchedulerChunksAreGapless(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewPlaybackScheduler(24000, 100*time.Millisecond)
	s.now = func() time.Time { return base }

	chunk := oneSecondPCM(24000)

	var prevEnd time.Time
	for i := 0; i < 5; i++ {
		start, d := s.Schedule(chunk)
		if i == 0 {
			want := base.Add(100 * time.Millisecond)
			if !start.Equal(want) {
				t.Fatalf("first chunk start = %v, want %v", start, want)
			}
		} else if !start.Equal(prevEnd) {
			t.Fatalf("chunk %d start = %v, want previous end %v", i, start, prevEnd)
		}
		if d != time.Second {
			t.Fatalf("chunk %d duration = %v, want 1s", i, d)
		}
		prevEnd = start.Add(d)
	}
}

func TestSchedulerDurationFollowsSampleRate(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		byteLen    int
		want       time.Duration
	}{
		{"one second at 24k", 24000, 48000, time.Second},
		{"half second at 24k", 24000, 24000, 500 * time.Millisecond},
		{"one second at 16k", 16000, 32000, time.Second},
		{"empty chunk", 24000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPlaybackScheduler(tt.sampleRate, 0)
			s.now = func() time.Time { return time.Unix(0, 0) }

			_, d := s.Schedule(make([]byte, tt.byteLen))
			if d != tt.want {
				t.Fatalf("duration = %v, want %v", d, tt.want)
			}
		})
	}
}

func TestSchedulerFlushRestartsFromNow(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	s := NewPlaybackScheduler(24000, 50*time.Millisecond)
	s.now = func() time.Time { return now }

	// build up a backlog of scheduled audio
	chunk := oneSecondPCM(24000)
	for i := 0; i < 3; i++ {
		s.Schedule(chunk)
	}
	if s.Pending() == 0 {
		t.Fatal("expected pending audio before flush")
	}

	s.Flush()
	if s.Pending() != 0 {
		t.Fatalf("pending after flush = %v, want 0", s.Pending())
	}

	// next chunk after a flush schedules fresh, not after the old backlog
	now = base.Add(10 * time.Second)
	start, _ := s.Schedule(chunk)
	want := now.Add(50 * time.Millisecond)
	if !start.Equal(want) {
		t.Fatalf("start after flush = %v, want %v", start, want)
	}
}

func TestSchedulerNeverSchedulesInThePast(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	s := NewPlaybackScheduler(24000, 100*time.Millisecond)
	s.now = func() time.Time { return now }

	s.Schedule(oneSecondPCM(24000))

	// clock jumps past the scheduled backlog
	now = base.Add(time.Minute)
	start, _ := s.Schedule(oneSecondPCM(24000))
	if start.Before(now) {
		t.Fatalf("start = %v is before now = %v", start, now)
	}
}
