package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by WaitForPress when the edge source has shut down.
var ErrClosed = errors.New("trigger: edge source closed")

// EdgeKind identifies a debounced trigger transition.
type EdgeKind int

const (
	Press EdgeKind = iota
	Release
)

// Edge is a single debounced transition of the trigger input.
type Edge struct {
	Kind EdgeKind
	At   time.Time
}

// EdgeSource delivers debounced trigger transitions in the order they
// occurred on the input. The channel is closed when the source shuts down.
type EdgeSource interface {
	Edges() <-chan Edge
	Close() error
}

// Button tracks trigger state from a stream of debounced edges and answers
// the two questions the acquisition loop asks: "did a press just happen?"
// (blocking, while armed) and "has the button been held long enough to
// stop?" (polled once per frame while recording).
//
// The cached state is published through atomics by a single consuming
// goroutine, so readers never need a lock and never observe a torn value.
type Button struct {
	src           EdgeSource
	holdThreshold time.Duration

	pressed   atomic.Bool
	pressedAt atomic.Int64 // unix nanos of the last press edge

	presses chan time.Time
	done    chan struct{}
}

// New wraps a debounced edge source. holdThreshold is the minimum
// continuous-press duration that qualifies a press as a stop request.
func New(src EdgeSource, holdThreshold time.Duration) *Button {
	b := Button{
		src:           src,
		holdThreshold: holdThreshold,
		presses:       make(chan time.Time, 1),
		done:          make(chan struct{}),
	}

	go b.consume()
	return &b
}

func (b *Button) consume() {
	defer close(b.done)

	for edge := range b.src.Edges() {
		switch edge.Kind {
		case Press:
			b.pressedAt.Store(edge.At.UnixNano())
			b.pressed.Store(true)

			select {
			case b.presses <- edge.At:
			default: // nobody armed
			}

		case Release:
			b.pressed.Store(false)
		}
	}
}

// WaitForPress blocks until the next debounced press edge and returns its
// instant. At most one press delivered while nobody was waiting is buffered
// and returned immediately. A Button serves a single mission: once armed
// and triggered it is only ever polled, then torn down with its bundle.
func (b *Button) WaitForPress(ctx context.Context) (time.Time, error) {
	select {
	case at := <-b.presses:
		return at, nil
	case <-b.done:
		return time.Time{}, ErrClosed
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// Pressed reports the cached instantaneous state of the trigger input.
func (b *Button) Pressed() bool {
	return b.pressed.Load()
}

// StopRequested reports whether the trigger has been held continuously for
// at least the hold threshold as of now. A momentary press never qualifies.
func (b *Button) StopRequested(now time.Time) bool {
	if !b.pressed.Load() {
		return false
	}
	return now.Sub(time.Unix(0, b.pressedAt.Load())) >= b.holdThreshold
}

// Close shuts down the edge source and waits for the state goroutine to
// drain out.
func (b *Button) Close() error {
	err := b.src.Close()
	<-b.done
	return err
}
