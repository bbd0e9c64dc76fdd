package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fpvbridge/internal/config"
)

func main() {
	// Optional .env next to the binary; absence is fine.
	_ = godotenv.Load()

	var (
		configPath string
		device     string
		baud       int
		port       int
		stationary bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (optional)")
	flag.StringVar(&device, "serial", "", "Serial device the sensor is attached to")
	flag.IntVar(&baud, "baud", 0, "Baud rate for the sensor serial link")
	flag.IntVar(&port, "publish-port", 0, "TCP port the broadcast endpoint binds on")
	flag.BoolVar(&stationary, "stationary", false, "Read the position once at startup and reuse it")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	// Flags override the file, but only the ones actually given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serial":
			cfg.Serial.Device = device
		case "baud":
			cfg.Serial.Baud = baud
		case "publish-port":
			cfg.Publish.Port = port
		case "stationary":
			cfg.GPS.Stationary = stationary
		case "debug":
			cfg.Debug = debug
		}
	})
	if err := config.DefaultAndValidate(&cfg); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fpvbridge: %v", err)
	}
	log.Printf("fpvbridge stopped")
}
