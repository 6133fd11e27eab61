package main

import (
	"context"
	"fmt"
	"log/slog"
)

// ============================================================================
// Volume Controller
// ============================================================================
// Owns the local mirror of the backend's volume. Synced once at startup,
// advanced locally on every turn, and mirrored out with exactly one backend
// command per applied event. Backend failures are logged and dropped, which
// means the mirror can drift until the next restart; there is deliberately
// no periodic re-sync.
//
// Touched only by the dispatch loop, so no synchronization.
// ============================================================================

// VolumeController applies decoded events to the external volume backend,
// clamped to [min, max].
type VolumeController struct {
	backend VolumeBackend
	logger  *slog.Logger

	min  int
	max  int
	step int

	current int
}

// NewVolumeController creates a controller over backend with the given range.
func NewVolumeController(backend VolumeBackend, min, max, step int, logger *slog.Logger) *VolumeController {
	return &VolumeController{
		backend: backend,
		logger:  logger,
		min:     min,
		max:     max,
		step:    step,
		current: min,
	}
}

// Current returns the locally mirrored volume.
func (v *VolumeController) Current() int { return v.current }

// clamp bounds n to [min, max].
func (v *VolumeController) clamp(n int) int {
	if n > v.max {
		return v.max
	}
	if n < v.min {
		return v.min
	}
	return n
}

// Sync queries the backend for the current absolute volume and stores it.
// Called once at startup. On failure the local state falls back to a safe
// default so the knob still works relative to it.
func (v *VolumeController) Sync(ctx context.Context) error {
	n, err := v.backend.GetVolume(ctx)
	if err != nil {
		v.current = v.clamp(safeDefaultVolume)
		return fmt.Errorf("query backend volume: %w", err)
	}
	v.current = v.clamp(n)
	v.logger.Info("volume synced from backend", "volume", v.current)
	return nil
}

// Apply issues exactly one backend command for the event. For turns the
// local mirror advances first and the clamped value is mirrored out; for
// presses only a toggle-mute command is sent (mute state stays with the
// backend). Errors are returned for logging but the local mirror keeps the
// advanced value: the next successful command re-aligns the backend.
func (v *VolumeController) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case TurnEvent:
		next := v.clamp(v.current + e.Delta*v.step)
		moved := next != v.current
		v.current = next

		// A single-step move maps onto the backend's relative
		// plus/minus surface; everything else mirrors the absolute
		// clamped value (including clamped no-ops, to keep the
		// backend aligned).
		if moved && v.step == 1 {
			if err := v.backend.Adjust(ctx, e.Delta); err != nil {
				return fmt.Errorf("adjust volume: %w", err)
			}
			return nil
		}
		if err := v.backend.SetVolume(ctx, next); err != nil {
			return fmt.Errorf("set volume %d: %w", next, err)
		}
		return nil

	case PressEvent:
		if err := v.backend.ToggleMute(ctx); err != nil {
			return fmt.Errorf("toggle mute: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported event type: %T", ev)
	}
}
