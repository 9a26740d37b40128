package trigger

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

var (
	hostInitOnce sync.Once
	hostInitErr  error
)

// GPIOSource reads debounced edges from a pulled-up GPIO pin. The button
// shorts the pin to ground, so a low level is a press.
type GPIOSource struct {
	pin      gpio.PinIO
	debounce time.Duration

	edges    chan Edge
	stop     chan struct{}
	stopOnce sync.Once
}

// NewGPIOSource configures the named pin as a pulled-up input and starts
// watching it for edges. Transitions closer together than the debounce
// interval are treated as contact bounce and suppressed.
func NewGPIOSource(pinName string, debounce time.Duration) (*GPIOSource, error) {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	if hostInitErr != nil {
		return nil, fmt.Errorf("initializing gpio host: %w", hostInitErr)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configuring pin %q: %w", pinName, err)
	}

	s := GPIOSource{
		pin:      pin,
		debounce: debounce,
		edges:    make(chan Edge, 8),
		stop:     make(chan struct{}),
	}

	go s.watch()
	return &s, nil
}

// Edges implements EdgeSource.
func (s *GPIOSource) Edges() <-chan Edge { return s.edges }

func (s *GPIOSource) watch() {
	defer close(s.edges)

	last := s.pin.Read()
	var lastChange time.Time

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		// Bounded wait so the stop channel is checked periodically.
		if !s.pin.WaitForEdge(s.debounce) {
			continue
		}

		level := s.pin.Read()
		now := time.Now()

		if level == last || now.Sub(lastChange) < s.debounce {
			continue // bounce or spurious wakeup
		}
		last = level
		lastChange = now

		kind := Release
		if level == gpio.Low {
			kind = Press
		}

		select {
		case s.edges <- Edge{Kind: kind, At: now}:
		case <-s.stop:
			return
		}
	}
}

// Close stops the watcher and releases the pin.
func (s *GPIOSource) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return s.pin.Halt()
}
