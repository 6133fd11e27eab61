package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Dispatch Loop - single consumer
// ============================================================================
// Wakes on the queue's signal, drains it completely, applies each event in
// arrival order. All backend I/O happens here, never in the producer
// context. One failed command must not stop the remaining drained events
// from being applied.
// ============================================================================

// notifyFunc observes each successfully applied event together with the
// volume after it. Used to fan state out (websocket, MQTT). Runs in the
// consumer context; must be quick.
type notifyFunc func(ev Event, volume int)

// runDispatch runs the consumer loop until ctx is canceled.
func runDispatch(
	ctx context.Context,
	queue *EventQueue,
	ctrl *VolumeController,
	wakeTimeout time.Duration,
	notify notifyFunc,
	logger *slog.Logger,
) {
	for {
		woke := queue.WaitForWake(ctx, wakeTimeout)
		if ctx.Err() != nil {
			logger.Info("dispatch loop stopping (context canceled)")
			return
		}
		if !woke {
			logger.Debug("dispatch wake timeout (liveness check)")
		}

		for _, ev := range queue.DrainAll() {
			if err := ctrl.Apply(ctx, ev); err != nil {
				if ctx.Err() != nil {
					// Canceled mid-apply. The backends run on this
					// ctx, so the in-flight command was aborted;
					// exit without treating that as a backend
					// failure.
					logger.Info("dispatch loop stopping (context canceled)")
					return
				}
				// Transient backend failure: drop and keep going.
				logger.Warn("apply failed", "event", ev, "error", err)
				continue
			}

			logger.Debug("applied", "event", ev, "volume", ctrl.Current())
			if notify != nil {
				notify(ev, ctrl.Current())
			}
		}
	}
}
