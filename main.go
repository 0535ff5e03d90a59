// Package main provides an SD/MMC host agent with WebSocket block access.
// It drives a card through the generic protocol engine and exposes read,
// write and erase operations to connected WebSocket clients.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/systray"

	"github.com/dotside-studios/sdmmc-agent/buildinfo"
	"github.com/dotside-studios/sdmmc-agent/sdmmc"
)

var (
	// CLI flags
	defaultPort   = 18080
	portFlag      int
	cardTypeFlag  string
	imagePathFlag string
	cliFlag       bool
	apiSecretFlag string
	versionFlag   bool
)

// buildHost constructs the host controller backend. The agent ships with a
// simulated host; the -card and -image flags pick the emulated card type
// and preload its contents.
func buildHost() (sdmmc.HostOperations, error) {
	cardType, ok := sdmmc.ParseCardType(cardTypeFlag)
	if !ok {
		return nil, fmt.Errorf("unknown card type %q", cardTypeFlag)
	}

	host := sdmmc.NewSimHost(cardType)

	if imagePathFlag != "" {
		image, err := os.ReadFile(imagePathFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to read card image: %w", err)
		}
		host.LoadImage(image)
		log.Printf("Loaded %d byte card image from %s", len(image), imagePathFlag)
	}

	return host, nil
}

func main() {
	flag.IntVar(&portFlag, "port", defaultPort, "Port to listen on for the web interface")
	flag.StringVar(&cardTypeFlag, "card", "SDHC", "Emulated card type (MMC, SD, SDHC, SDXC, eMMC)")
	flag.StringVar(&imagePathFlag, "image", "", "Path to a raw card image to preload (optional)")
	flag.BoolVar(&cliFlag, "cli", false, "Run in CLI mode (default: system tray mode)")
	flag.StringVar(&apiSecretFlag, "api-secret", "", "API secret for session handshake (optional)")
	flag.BoolVar(&versionFlag, "version", false, "Print version information and exit")
	flag.Parse()

	if versionFlag {
		fmt.Println(buildinfo.BuildInfo())
		return
	}

	host, err := buildHost()
	if err != nil {
		log.Fatalf("Failed to configure host controller: %v", err)
	}

	agent := NewAgent(host)
	agent.ServerPort = portFlag
	agent.APISecret = apiSecretFlag

	// Run in CLI mode only if explicitly requested
	if cliFlag {
		if err := agent.Start(); err != nil {
			log.Fatalf("Failed to start agent: %v", err)
		}
		defer agent.Stop()

		// Set up signal handling for graceful shutdown
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// Wait for shutdown signal
		<-sigChan
		log.Println("Shutdown signal received, stopping server...")
	} else {
		// Default systray mode
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			systray.Quit()
		}()

		app := NewSystrayApp(agent)
		app.Run()
	}
}
