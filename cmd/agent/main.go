package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledstrip-controller/internal/agent"
	"ledstrip-controller/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env: %v", err)
	}

	defaultPath := os.Getenv("LEDSTRIP_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.json"
	}
	configPath := flag.String("config", defaultPath, "path to the JSON or YAML config file")
	flag.Parse()

	log.Printf("Starting LED strip controller version: %s, commit: %s, built: %s", version, commit, date)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := agent.NewAgent(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	go a.Run()

	// Wait for termination signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agent...")
	a.Shutdown()
	log.Println("Agent shut down gracefully.")
}
