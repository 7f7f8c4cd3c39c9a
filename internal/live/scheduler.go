package live

import (
	"sync"
	"time"
)

// PlaybackScheduler assigns gapless play-at times to sequential audio
// chunks. The first chunk after a flush starts at now plus the lead-in;
// every later chunk starts exactly where the previous one ends, so chunks
// never overlap and never leave a gap.
type PlaybackScheduler struct {
	mu         sync.Mutex
	cursor     time.Time
	lead       time.Duration
	sampleRate int

	// now is replaceable in tests
	now func() time.Time
}

// NewPlaybackScheduler creates a scheduler for 16-bit mono PCM at the
// given sample rate
func NewPlaybackScheduler(sampleRate int, lead time.Duration) *PlaybackScheduler {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &PlaybackScheduler{
		lead:       lead,
		sampleRate: sampleRate,
		now:        time.Now,
	}
}

// Schedule returns the play-at time and duration for a chunk of PCM bytes
// and advances the cursor past it
func (s *PlaybackScheduler) Schedule(pcm []byte) (time.Time, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	earliest := s.now().Add(s.lead)
	if s.cursor.Before(earliest) {
		s.cursor = earliest
	}

	start := s.cursor
	d := s.chunkDuration(len(pcm))
	s.cursor = s.cursor.Add(d)
	return start, d
}

// Flush resets the cursor so the next chunk schedules fresh from now.
// Called on turn completion and on interruption.
func (s *PlaybackScheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = time.Time{}
}

// Pending reports how much scheduled audio is still ahead of the clock
func (s *PlaybackScheduler) Pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.cursor.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *PlaybackScheduler) chunkDuration(byteLen int) time.Duration {
	samples := byteLen / 2 // 16-bit mono
	return time.Duration(samples) * time.Second / time.Duration(s.sampleRate)
}
