package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ============================================================================
// GPIO edge sources
// ============================================================================
//
// The decoders depend on a stream of (channel, level) notifications; they do
// not configure pins themselves. Two drivers provide that stream:
//
//   - periph (default): periph.io pins, one goroutine per pin blocking on
//     WaitForEdge. Portable across boards periph supports.
//   - cdev: the Linux GPIO character device with a single epoll loop over
//     the requested line-event fds (gpio_cdev.go).
//
// Both funnel edges into one buffered channel. A single producer goroutine
// consumes that channel and runs the decoders, which keeps edge delivery to
// each decoder strictly serialized: the decoders carry no locks and rely on
// that.
// ============================================================================

// rawEdge is one physical transition as reported by a pin watcher.
type rawEdge struct {
	Channel Channel
	Level   int // new logic level, 0 or 1
}

// pinWatcher feeds raw edges from the hardware into the edges channel until
// ctx is canceled.
type pinWatcher interface {
	Run(ctx context.Context, edges chan<- rawEdge)
	Close() error
}

// newPinWatcher builds the configured GPIO driver. Registration failures are
// configuration errors: callers treat them as fatal.
func newPinWatcher(cfg GPIOConfig, pins map[Channel]int, logger *slog.Logger) (pinWatcher, error) {
	switch cfg.Driver {
	case "periph":
		return newPeriphWatcher(pins, logger)
	case "cdev":
		return newCdevWatcher(cfg.Chip, pins, logger)
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", cfg.Driver)
	}
}

// ============================================================================
// periph.io driver
// ============================================================================

// periphWatcher watches pins through periph.io edge detection.
type periphWatcher struct {
	pins   map[Channel]gpio.PinIO
	logger *slog.Logger
}

// newPeriphWatcher initializes the host and configures every pin as a
// pulled-up input with both-edge detection.
func newPeriphWatcher(pins map[Channel]int, logger *slog.Logger) (*periphWatcher, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	w := &periphWatcher{
		pins:   make(map[Channel]gpio.PinIO, len(pins)),
		logger: logger,
	}
	for ch, bcm := range pins {
		name := fmt.Sprintf("GPIO%d", bcm)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no such pin %s (channel %s)", name, ch)
		}
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return nil, fmt.Errorf("configure %s (channel %s): %w", name, ch, err)
		}
		w.pins[ch] = p
	}
	return w, nil
}

// Run spawns one goroutine per pin and blocks until all of them exit.
func (w *periphWatcher) Run(ctx context.Context, edges chan<- rawEdge) {
	var wg sync.WaitGroup
	for ch, p := range w.pins {
		wg.Add(1)
		go func(ch Channel, p gpio.PinIO) {
			defer wg.Done()
			w.watchPin(ctx, ch, p, edges)
		}(ch, p)
	}
	wg.Wait()
}

// watchPin blocks on edge detection for a single pin. The short WaitForEdge
// timeout exists only so cancellation is noticed.
func (w *periphWatcher) watchPin(ctx context.Context, ch Channel, p gpio.PinIO, edges chan<- rawEdge) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !p.WaitForEdge(time.Second) {
			continue
		}

		level := 0
		if p.Read() == gpio.High {
			level = 1
		}

		select {
		case edges <- rawEdge{Channel: ch, Level: level}:
		default:
			// The producer is badly behind; dropping a raw edge here
			// costs at most one detent, blocking would stall edge
			// delivery for every pin.
			w.logger.Warn("edge buffer full, dropping edge", "channel", ch)
		}
	}
}

// Close halts edge detection on all pins.
func (w *periphWatcher) Close() error {
	var firstErr error
	for ch, p := range w.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("halt channel %s: %w", ch, err)
		}
	}
	return firstErr
}

// ============================================================================
// Edge producer
// ============================================================================

// runEdgeProducer consumes raw edges and runs the decoders. This is the only
// goroutine that touches decoder state. It performs no I/O and never blocks
// on the consumer: decoder emits go through EventQueue.Push.
func runEdgeProducer(
	ctx context.Context,
	edges <-chan rawEdge,
	decoder *QuadratureDecoder,
	button *ButtonDebouncer,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-edges:
			handleEdge(e, decoder, button, logger)
		}
	}
}

// handleEdge routes one raw edge to the right decoder. A panic out of the
// decoders must not take down edge delivery, so it is contained and logged
// here.
func handleEdge(e rawEdge, decoder *QuadratureDecoder, button *ButtonDebouncer, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("edge handler panicked", "channel", e.Channel, "panic", r)
		}
	}()

	switch e.Channel {
	case ChannelButton:
		button.OnEdge(e.Level)
	default:
		decoder.OnEdge(e.Channel, e.Level)
	}
}
