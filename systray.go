package main

import (
	"fmt"
	"log"
	"net"
	"os/exec"
	"runtime"
	"time"

	"fyne.io/systray"

	"github.com/dotside-studios/sdmmc-agent/buildinfo"
)

// getLocalIPs returns a list of local IP addresses (excluding loopback)
func getLocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips
}

// SystrayApp manages the system tray interface for the SD/MMC agent
type SystrayApp struct {
	agent *Agent

	// Menu items
	mStatus       *systray.MenuItem
	mCardType     *systray.MenuItem
	mCardCapacity *systray.MenuItem
	mStart        *systray.MenuItem
	mStop         *systray.MenuItem

	// URL menu items
	mURLsMenu   *systray.MenuItem
	mServerURL  *systray.MenuItem
	mCopyServer *systray.MenuItem
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{agent: agent}
}

// Run starts the systray application
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

// onReady is called when the systray is ready
func (s *SystrayApp) onReady() {
	s.setupUI()
	s.autoStartAgent()
	s.startCardInfoUpdater()
}

// onExit is called when the systray is exiting
func (s *SystrayApp) onExit() {
	s.agent.Stop()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	// Status section
	s.mStatus = systray.AddMenuItem("Starting...", "Agent Status")
	s.mStatus.Disable()

	// URLs menu
	s.mURLsMenu = systray.AddMenuItem("Server URL", "Server address")
	s.mServerURL = s.mURLsMenu.AddSubMenuItem("Not running", "Agent WebSocket URL")
	s.mServerURL.Disable()
	s.mCopyServer = s.mURLsMenu.AddSubMenuItem("  Copy URL", "Copy agent URL to clipboard")

	systray.AddSeparator()

	// Card info section
	s.mCardType = systray.AddMenuItem("Card: None", "Current card type")
	s.mCardType.Disable()

	s.mCardCapacity = systray.AddMenuItem("Capacity: -", "Current card capacity")
	s.mCardCapacity.Disable()

	systray.AddSeparator()

	// Agent control section
	s.mStart = systray.AddMenuItem("Start Agent", "Start the SD/MMC agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the SD/MMC agent")
	s.mStart.Disable() // Disable start since we're auto-starting
	s.mStop.Disable()  // Will be enabled once agent starts

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go s.handleMenuEvents(mQuit)
}

// autoStartAgent starts the agent automatically
func (s *SystrayApp) autoStartAgent() {
	go func() {
		if err := s.agent.Start(); err == nil {
			s.updateStatus("Running")
			s.updateServerURL()
			s.mStop.Enable()
		} else {
			s.updateStatus("Failed to Start")
			s.mStart.Enable()
		}
	}()
}

// startCardInfoUpdater starts a goroutine to update card information
func (s *SystrayApp) startCardInfoUpdater() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		lastType := ""
		lastCapacity := ""

		for range ticker.C {
			cardType, capacity := s.cardInfoTitles()

			if cardType != lastType {
				s.mCardType.SetTitle(cardType)
				lastType = cardType
			}
			if capacity != lastCapacity {
				s.mCardCapacity.SetTitle(capacity)
				lastCapacity = capacity
			}
		}
	}()
}

// cardInfoTitles derives the card menu titles from the slot status.
func (s *SystrayApp) cardInfoTitles() (cardType, capacity string) {
	status := s.agent.Status()
	switch {
	case status.Initialized && status.Info != nil:
		cardType = "Card: " + status.Info.CardType.String()
		capacity = fmt.Sprintf("Capacity: %d MB", status.Info.CapacityBytes/(1024*1024))
	case status.Present:
		cardType = "Card: Not initialized"
		capacity = "Capacity: -"
	default:
		cardType = "Card: None"
		capacity = "Capacity: -"
	}
	return
}

// handleMenuEvents processes all menu click events
func (s *SystrayApp) handleMenuEvents(mQuit *systray.MenuItem) {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.handleStartAgent()
		case <-s.mStop.ClickedCh:
			s.handleStopAgent()
		case <-s.mCopyServer.ClickedCh:
			if url := s.serverURL(); url != "" {
				if err := copyToClipboard(url); err != nil {
					log.Printf("[systray] Failed to copy to clipboard: %v", err)
				} else {
					log.Printf("[systray] Copied agent URL to clipboard")
				}
			}
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// handleStartAgent starts the agent
func (s *SystrayApp) handleStartAgent() {
	if err := s.agent.Start(); err == nil {
		s.updateStatus("Running")
		s.updateServerURL()
		s.mStart.Disable()
		s.mStop.Enable()
	} else {
		s.updateStatus("Failed to Start")
	}
}

// handleStopAgent stops the agent
func (s *SystrayApp) handleStopAgent() {
	s.agent.Stop()
	s.updateStatus("Stopped")
	s.mServerURL.SetTitle("Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

// updateStatus updates the status menu item
func (s *SystrayApp) updateStatus(status string) {
	s.mStatus.SetTitle(status)
}

// serverURL returns the agent WebSocket URL clients should connect to.
func (s *SystrayApp) serverURL() string {
	if s.agent.Server == nil {
		return ""
	}

	ips := getLocalIPs()
	ip := "localhost"
	if len(ips) > 0 {
		ip = ips[0]
	}
	return fmt.Sprintf("ws://%s:%d/ws", ip, s.agent.ServerPort)
}

// updateServerURL updates the server URL display
func (s *SystrayApp) updateServerURL() {
	if url := s.serverURL(); url != "" {
		s.mServerURL.SetTitle(url)
	}
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	_, err = stdin.Write([]byte(text))
	if err != nil {
		return err
	}

	stdin.Close()
	return cmd.Wait()
}
