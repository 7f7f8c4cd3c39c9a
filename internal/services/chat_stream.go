package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sparkacademy/portal-service/internal/llm"
)

const (
	// tokenBufferSize bounds the backlog between the network consumer and
	// the paced emitter. A provider that outruns the reveal blocks here
	// instead of growing memory without bound.
	tokenBufferSize = 256

	revealInterval = 40 * time.Millisecond
	revealDivisor  = 6
	revealMinStep  = 3
)

// tokenStream is the slice of the provider stream the reveal loop reads
type tokenStream interface {
	Recv() (llm.StreamEvent, error)
	Close() error
}

// streamOutcome carries what the consumer learned from the provider. The
// consumer writes it before closing the token channel; the reveal loop
// reads it only after the channel is closed.
type streamOutcome struct {
	citations []llm.Citation
	err       error
}

// consumeStream drains the provider stream into the bounded token channel.
// It closes the channel when the stream ends, whether cleanly or not.
func consumeStream(ctx context.Context, stream tokenStream, tokens chan<- string, outcome *streamOutcome) {
	defer close(tokens)
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				outcome.err = err
			}
			return
		}
		if len(event.Citations) > 0 {
			outcome.citations = event.Citations
		}
		if event.Done {
			return
		}
		if event.Delta == "" {
			continue
		}

		select {
		case tokens <- event.Delta:
		case <-ctx.Done():
			outcome.err = ctx.Err()
			return
		}
	}
}

// revealPacer turns a bursty token stream into a smooth series of
// cumulative prefixes. The step size tracks the backlog, so a reply that
// arrives in one burst still reveals quickly instead of trailing the
// provider at a fixed crawl.
type revealPacer struct {
	interval time.Duration
	divisor  int
	minStep  int
}

func newRevealPacer() revealPacer {
	return revealPacer{
		interval: revealInterval,
		divisor:  revealDivisor,
		minStep:  revealMinStep,
	}
}

// run consumes tokens until the channel closes and the backlog is drained,
// calling emit with each cumulative prefix. Prefixes are cut on rune
// boundaries and the last emit carries the full text. Returns the full
// text and false when ctx ended the reveal early.
func (p revealPacer) run(ctx context.Context, tokens <-chan string, emit func(prefix string)) (string, bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var full []rune
	revealed := 0

	for {
		if tokens == nil && revealed == len(full) {
			return string(full), true
		}

		select {
		case <-ctx.Done():
			return string(full), false

		case tok, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			full = append(full, []rune(tok)...)

		case <-ticker.C:
			if revealed == len(full) {
				continue
			}
			revealed += p.step(len(full) - revealed)
			emit(string(full[:revealed]))
		}
	}
}

func (p revealPacer) step(backlog int) int {
	step := backlog / p.divisor
	if step < p.minStep {
		step = p.minStep
	}
	if step > backlog {
		step = backlog
	}
	return step
}
