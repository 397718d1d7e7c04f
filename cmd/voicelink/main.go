// voicelink: voice client for a remote assistant endpoint
// Captures the microphone, streams it to the assistant and plays the replies
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-voicelink/internal/config"
	"github.com/teslashibe/go-voicelink/internal/log"
	"github.com/teslashibe/go-voicelink/pkg/audioio"
	"github.com/teslashibe/go-voicelink/pkg/web"
	"github.com/teslashibe/go-voicelink/pkg/widget"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	assistantID = flag.String("assistant-id", "", "Assistant identifier (overrides config)")
	serverURL   = flag.String("server", "", "Server origin, e.g. https://host (overrides config)")
	backend     = flag.String("backend", "", "Audio backend: auto, exec, mock")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	open        = flag.Bool("open", false, "Open the widget immediately")
	httpAddr    = flag.String("http", "", "Dashboard listen address, e.g. 127.0.0.1:8181")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voicelink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *assistantID != "" {
		cfg.AssistantID = *assistantID
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *open {
		cfg.Widget.InitialState = "expanded"
	}
	if *httpAddr != "" {
		cfg.Dashboard.Addr = *httpAddr
	}

	log.Init(cfg.Log)
	logger := log.L()

	if err := cfg.Validate(); err != nil {
		return err
	}

	wcfg, err := widget.FromConfig(&cfg)
	if err != nil {
		return err
	}

	audioCfg := audioio.Config{
		Backend:    audioio.Backend(cfg.Audio.Backend),
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		Device:     cfg.Audio.Device,
	}
	source, err := audioio.NewSource(audioCfg, logger)
	if err != nil {
		return fmt.Errorf("microphone: %w", err)
	}
	sink, err := audioio.NewSink(audioCfg, logger)
	if err != nil {
		source.Close()
		return fmt.Errorf("speaker: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var observer widget.Observer = widget.NewLogObserver(logger)
	var dash *web.Server
	if cfg.Dashboard.Addr != "" {
		dash = web.NewServer(observer, logger, web.WithGatherer(reg))
		observer = dash
	}

	w, err := widget.New(wcfg, widget.Deps{
		Source:     source,
		Sink:       sink,
		Observer:   observer,
		Registerer: reg,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("voicelink starting",
		"endpoint", wcfg.Endpoint,
		"backend", source.Name(),
		"open", wcfg.Open,
	)

	if dash != nil {
		dash.Attach(w)
		go func() {
			if err := dash.Listen(cfg.Dashboard.Addr); err != nil {
				logger.Error("dashboard stopped", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dash.Shutdown(sctx)
		}()
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Info("voicelink stopped")
	return nil
}
