package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/getfinn/bridge/internal/bridge"
	"github.com/getfinn/bridge/internal/config"
)

// Version info - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	transport := flag.String("transport", "", "Override transport: websocket (duplex) or http (one-shot)")
	version := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *version {
		fmt.Printf("Bridge Daemon\n")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Println("===========================================")
	log.Printf("   Bridge Daemon %s", Version)
	log.Println("===========================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *transport == config.TransportWebSocket || *transport == config.TransportHTTP {
		cfg.Transport = *transport
	}

	// Headless: no editor host attached, diffs render as unified text.
	// Editor deployments construct the bridge with their host instead.
	b, err := bridge.New(cfg, nil, nil)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}

	if err := b.Run(); err != nil {
		log.Fatalf("Failed to start bridge: %v", err)
	}

	log.Println("Daemon stopped")
}
