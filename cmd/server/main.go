package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Device.ManifestPath, "manifest", cfg.Device.ManifestPath, "Device manifest to seed from")
	flag.StringVar(&cfg.Policy.Glob, "policy", cfg.Policy.Glob, "Glob of policy files")
	flag.StringVar(&cfg.Audit.Path, "audit", cfg.Audit.Path, "SQLite transition history")
	flag.StringVar(&cfg.Standby.URL, "standby", cfg.Standby.URL, "Remote standby service URL")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()
	if cfg.Logging.Development && os.Getenv("LOG_LEVEL") == "" {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
