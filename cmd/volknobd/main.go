package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("volknobd v%s\n", version)
	fmt.Println("Rotary-encoder volume knob daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  volknobd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that decodes a quadrature rotary encoder (plus push button)")
	fmt.Println("  on GPIO pins and drives an external volume service. Turns adjust")
	fmt.Println("  volume in clamped steps; the button toggles mute.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (flags below override it)")
	fmt.Println()
	fmt.Println("  -clk-pin int")
	fmt.Printf("        Encoder channel A pin, BCM numbering (default %d)\n", defaultClkPin)
	fmt.Println()
	fmt.Println("  -dt-pin int")
	fmt.Printf("        Encoder channel B pin, BCM numbering (default %d)\n", defaultDtPin)
	fmt.Println()
	fmt.Println("  -sw-pin int")
	fmt.Printf("        Push button pin, BCM numbering (default %d)\n", defaultSwPin)
	fmt.Println()
	fmt.Println("  -swap-direction")
	fmt.Println("        Flip which channel leading means \"louder\" (wiring-dependent)")
	fmt.Println()
	fmt.Println("  -gpio-driver string")
	fmt.Printf("        GPIO driver: periph|cdev (default %q)\n", defaultGPIODriver)
	fmt.Println()
	fmt.Println("  -backend string")
	fmt.Printf("        Volume backend: cli|http (default %q)\n", defaultBackendKind)
	fmt.Println()
	fmt.Println("  -backend-bin string")
	fmt.Printf("        cli backend: volume tool binary (default %q)\n", defaultBackendBin)
	fmt.Println()
	fmt.Println("  -backend-url string")
	fmt.Printf("        http backend: player REST base URL (default %q)\n", defaultBackendBaseURL)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/volknobd.sock\")")
	fmt.Println()
	fmt.Println("  -state-ws")
	fmt.Println("        Enable the state websocket endpoint")
	fmt.Println()
	fmt.Println("  -state-ws-port int")
	fmt.Println("        State websocket listen port (default 3002)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (Volumio CLI backend, pins 13/6/5)")
	fmt.Println("  volknobd")
	fmt.Println()
	fmt.Println("  # REST backend on another host, swapped rotation direction")
	fmt.Println("  volknobd -backend http -backend-url http://volumio.local:3000 -swap-direction")
	fmt.Println()
	fmt.Println("  # Config file with a flag override")
	fmt.Println("  volknobd -config /etc/volknobd.yml -log-level debug")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to the GPIO pins (run as root or add user to 'gpio' group)")
	fmt.Println("  - Volume is re-synced from the backend on every start; nothing is persisted")
	fmt.Println("  - Backend command failures are dropped, so the local volume mirror can")
	fmt.Println("    drift from the player until the next restart")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		clkPin        = flag.Int("clk-pin", defaultClkPin, "Encoder channel A pin (BCM)")
		dtPin         = flag.Int("dt-pin", defaultDtPin, "Encoder channel B pin (BCM)")
		swPin         = flag.Int("sw-pin", defaultSwPin, "Push button pin (BCM)")
		swapDirection = flag.Bool("swap-direction", false, "Flip rotation direction")
		gpioDriver    = flag.String("gpio-driver", defaultGPIODriver, "GPIO driver: periph|cdev")
		backendKind   = flag.String("backend", defaultBackendKind, "Volume backend: cli|http")
		backendBin    = flag.String("backend-bin", defaultBackendBin, "cli backend: volume tool binary")
		backendURL    = flag.String("backend-url", defaultBackendBaseURL, "http backend: player REST base URL")
		ipcSocketPath = flag.String("ipc-socket", "/tmp/volknobd.sock", "Unix domain socket path for IPC")
		stateWS       = flag.Bool("state-ws", false, "Enable the state websocket endpoint")
		stateWSPort   = flag.Int("state-ws-port", 3002, "State websocket listen port")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config file first, then flag overrides on top — but only for flags
	// the user actually set.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "clk-pin":
			overrides.ClkPin = clkPin
		case "dt-pin":
			overrides.DtPin = dtPin
		case "sw-pin":
			overrides.SwPin = swPin
		case "swap-direction":
			overrides.SwapDirection = swapDirection
		case "gpio-driver":
			overrides.GPIODriver = gpioDriver
		case "backend":
			overrides.BackendKind = backendKind
		case "backend-bin":
			overrides.BackendBin = backendBin
		case "backend-url":
			overrides.BackendBaseURL = backendURL
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "state-ws":
			overrides.StateWSEnabled = stateWS
		case "state-ws-port":
			overrides.StateWSPort = stateWSPort
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Volume backend
	backendTimeout := time.Duration(cfg.Backend.TimeoutMS) * time.Millisecond
	var backend VolumeBackend
	switch cfg.Backend.Kind {
	case "cli":
		backend = NewCLIBackend(cfg.Backend.Bin, backendTimeout, logger)
	case "http":
		backend, err = NewHTTPBackend(cfg.Backend.BaseURL, backendTimeout, logger)
		if err != nil {
			logger.Error("failed to create http backend", "error", err)
			os.Exit(1)
		}
	}
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Controller + initial sync. A backend that cannot be queried is not
	// fatal: the knob still works relative to the safe default.
	ctrl := NewVolumeController(backend, cfg.Volume.Min, cfg.Volume.Max, cfg.Volume.Step, logger)
	if err := ctrl.Sync(ctx); err != nil {
		logger.Warn("could not sync volume from backend", "error", err, "fallback", ctrl.Current())
	}

	// Event pipeline: decoders push into the queue, the dispatch loop
	// drains it.
	queue := NewEventQueue()
	decoder := newQuadratureDecoder(cfg.Encoder.SwapDirection, queue.Push)
	button := newButtonDebouncer(time.Duration(cfg.Button.DebounceMS)*time.Millisecond, queue.Push)

	// GPIO registration is a configuration concern: failure is fatal.
	watcher, err := newPinWatcher(cfg.GPIO, cfg.pinMap(), logger)
	if err != nil {
		logger.Error("failed to set up gpio pins", "driver", cfg.GPIO.Driver, "error", err)
		os.Exit(1)
	}

	edges := make(chan rawEdge, edgeChanBuf)
	go watcher.Run(ctx, edges)
	go runEdgeProducer(ctx, edges, decoder, button, logger)

	// Optional state fan-out
	var hub *Hub
	if cfg.StateWS.Enabled {
		hub = NewHub(logger, ctrl.Current())
		go hub.Run(ctx)
		go func() {
			if err := runStateWS(ctx, cfg.StateWS.Port, hub, logger); err != nil {
				logger.Error("state ws server error", "error", err)
			}
		}()
	}

	var mqttPub *mqttPublisher
	if cfg.MQTT.Enabled {
		mqttPub, err = newMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("failed to connect to mqtt broker", "error", err)
			os.Exit(1)
		}
	}

	notify := func(ev Event, volume int) {
		if hub != nil {
			hub.BroadcastEvent(ev, volume)
		}
		if mqttPub != nil {
			mqttPub.PublishEvent(ev, volume)
		}
	}

	// IPC server for volknob-ctl and scripting
	go func() {
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, queue, logger); err != nil {
			logger.Error("ipc server error", "error", err)
		}
	}()

	// Dispatch loop: the single consumer
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		runDispatch(ctx, queue, ctrl, time.Duration(cfg.Dispatch.WakeTimeoutS)*time.Second, notify, logger)
	}()

	logger.Info("listening",
		"clk_pin", cfg.Encoder.ClkPin,
		"dt_pin", cfg.Encoder.DtPin,
		"sw_pin", cfg.Button.Pin,
		"gpio_driver", cfg.GPIO.Driver,
		"backend", cfg.Backend.Kind,
		"volume", ctrl.Current(),
		"ipc", cfg.IPC.SocketPath,
		"state_ws_enabled", cfg.StateWS.Enabled,
		"mqtt_enabled", cfg.MQTT.Enabled)

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	logger.Info("shutting down")
	cancel()

	// Release pin registrations and wait for the dispatch loop to exit.
	// Cancellation aborts any in-flight backend command; remaining queued
	// events are dropped.
	if err := watcher.Close(); err != nil {
		logger.Warn("gpio close failed", "error", err)
	}
	select {
	case <-dispatchDone:
	case <-time.After(5 * time.Second):
		logger.Warn("dispatch loop did not stop in time")
	}

	if mqttPub != nil {
		mqttPub.Close()
	}
}
