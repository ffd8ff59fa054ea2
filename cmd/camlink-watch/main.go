// camlink-watch is a terminal dashboard for live camera links: it opens a
// handle per host, subscribes to the frame stream, and renders connection
// state, throughput and per-frame telemetry.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trailcam/camlink"
	"github.com/trailcam/camlink/config"
	"github.com/trailcam/camlink/emitter"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	logPath := flag.String("log", "", "write logs to this file (default: discard)")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camlink-watch %s\n", version)
		os.Exit(0)
	}

	hosts := flag.Args()
	if len(hosts) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one device host is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  camlink-watch 192.168.50.1:8080\n")
		fmt.Fprintf(os.Stderr, "  camlink-watch --config camlink.yaml cam-a:8080 cam-b:8080\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// The TUI owns stdout, so logs go to a file or nowhere.
	logWriter := io.Writer(io.Discard)
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logWriter = f
	}
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var events emitter.Sink = emitter.LogSink{}
	if cfg.MQTT.Enabled {
		mqttSink := emitter.NewMQTTSink(cfg.MQTT, cfg.ClientID+"-watch")
		if err := mqttSink.Connect(); err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to MQTT broker: %v\n", err)
			os.Exit(1)
		}
		defer mqttSink.Close()
		events = emitter.Multi{emitter.LogSink{}, mqttSink}
	}

	registry := camlink.New(cfg, events)
	defer registry.Close()

	ctx := context.Background()
	model, err := newModel(registry, hosts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())

	// Frame consumers feed telemetry into the TUI; each host gets its own
	// subscriber channel so one slow render never stalls the links.
	for _, h := range model.handles {
		frames := make(chan *camlink.Frame, 4)
		if err := h.Subscribe("camlink-watch", frames); err != nil {
			fmt.Fprintf(os.Stderr, "Error subscribing to %s: %v\n", h.Host(), err)
			os.Exit(1)
		}
		h.Run(ctx)

		go func(host string, frames <-chan *camlink.Frame) {
			for frame := range frames {
				p.Send(frameMsg{host: host, info: frame.Info})
			}
		}(h.Host(), frames)
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
