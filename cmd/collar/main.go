package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dogspeed/internal/config"
	"dogspeed/internal/web"
)

func main() {
	var configPath string
	var calibrate time.Duration
	flag.StringVar(&configPath, "config", "./collar.yaml", "Path to YAML config")
	flag.DurationVar(&calibrate, "calibrate", 0, "Sample the magnetometer for this long, save the calibration and exit")
	flag.Parse()

	os.Exit(run(configPath, calibrate))
}

func run(configPath string, calibrate time.Duration) (code int) {
	logs := web.NewLogBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config load failed path=%s err=%v; using defaults", configPath, err)
		cfg = config.Default()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logs)
	if err != nil {
		log.Printf("collar init failed: %v", err)
		return 1
	}
	defer rt.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("collar fatal: %v", r)
			rt.safeState()
			code = 1
		}
	}()

	if calibrate > 0 {
		if err := rt.calibrate(ctx, calibrate); err != nil {
			log.Printf("calibration failed: %v", err)
			return 1
		}
		return 0
	}

	log.Printf("collar starting device_id=%s mode=%s clock=%s source=%s", rt.deviceID, cfg.Fusion.Mode, cfg.Fusion.Clock, cfg.Fusion.Source)
	if err := rt.run(ctx); err != nil {
		log.Printf("collar stopped: %v", err)
		return 1
	}
	log.Printf("collar stopping")
	return 0
}
