package main

// Default GPIO pin assignments (BCM numbering).
// These match the hardware this daemon was originally built for: a KY-040
// style encoder with the switch wired active-low.
const (
	defaultClkPin = 13 // encoder channel A
	defaultDtPin  = 6  // encoder channel B
	defaultSwPin  = 5  // push button
)

// Volume control defaults
const (
	defaultVolumeMin  = 0
	defaultVolumeMax  = 100
	defaultVolumeStep = 1

	// Fallback used when the backend cannot be queried at startup.
	safeDefaultVolume = 50
)

// Button debounce defaults
const (
	defaultButtonDebounceMS = 500 // minimum interval between accepted presses
)

// Dispatch loop defaults
const (
	// The dispatch loop normally wakes on the queue's wake signal; the
	// timeout is only a liveness safety net in case a wake is ever missed.
	defaultWakeTimeoutS = 1200
)

// Backend defaults
const (
	defaultBackendKind      = "cli"
	defaultBackendBin       = "volumio"
	defaultBackendBaseURL   = "http://127.0.0.1:3000"
	defaultBackendTimeoutMS = 2000
)

// GPIO driver defaults
const (
	defaultGPIODriver = "periph"
	defaultGPIOChip   = "/dev/gpiochip0"

	// Buffer between the pin watchers and the edge producer goroutine.
	// Edges are tiny; a burst from a fast spin fits comfortably.
	edgeChanBuf = 128
)
