package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/balancer/internal/app"
	"github.com/relabs-tech/balancer/internal/config"
)

func main() {
	configPath := flag.String("config", "./balancer_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting balancer telemetry console (MQTT subscriber)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunTelemetryConsole(ctx, config.Get(), os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
