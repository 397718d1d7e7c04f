// assistant-stub: local stand-in for the assistant endpoint
// Answers every committed utterance with a text reply and a tone
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-voicelink/internal/log"
	"github.com/teslashibe/go-voicelink/pkg/stubserver"
)

var (
	addr   = flag.String("addr", ":5050", "Listen address")
	debug  = flag.Bool("debug", false, "Enable debug logging")
	silent = flag.Bool("silent", false, "Never answer pings")
	reply  = flag.String("reply", "", "Text reply (default: built-in greeting)")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(log.Config{Level: level})
	l := log.Component("assistant-stub")

	cfg := stubserver.DefaultConfig()
	cfg.Silent = *silent
	if *reply != "" {
		cfg.Reply = *reply
	}

	middleware := []fiber.Handler{recover.New()}
	if *debug {
		middleware = append(middleware, logger.New())
	}
	srv := stubserver.New(cfg, log.L(), middleware...)
	app := srv.App()

	go func() {
		l.Info("endpoint", "ws", "ws://localhost"+*addr+"/ws/<assistant-id>", "health", "http://localhost"+*addr+"/healthz")
		if err := srv.Listen(*addr); err != nil {
			l.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		l.Error("shutdown failed", "error", err)
	}
}
