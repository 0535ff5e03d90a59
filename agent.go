package main

import (
	"errors"
	"log"
	"os"

	"github.com/dotside-studios/sdmmc-agent/sdmmc"
	"github.com/dotside-studios/sdmmc-agent/server"
)

// Agent ties together the card monitor and the WebSocket server over a
// single SD/MMC host controller.
type Agent struct {
	Logger     *log.Logger
	Host       sdmmc.HostOperations
	Monitor    *sdmmc.Monitor
	Server     *server.Server
	APISecret  string
	ServerPort int
}

func NewAgent(host sdmmc.HostOperations) *Agent {
	return &Agent{
		Logger: log.New(os.Stderr, "[agent] ", log.LstdFlags),
		Host:   host,
	}
}

func (a *Agent) Start() error {
	if a.Monitor != nil {
		return errors.New("agent is already running")
	}
	if a.Host == nil {
		return errors.New("no host controller configured")
	}

	a.Monitor = sdmmc.NewMonitor(sdmmc.NewEngine(a.Host))

	a.Server = server.New(server.Config{
		Monitor:   a.Monitor,
		Port:      a.ServerPort,
		APISecret: a.APISecret,
	})

	// Server.Start blocks and also starts the monitor worker.
	go a.Server.Start()
	return nil
}

func (a *Agent) Stop() {
	if a.Monitor == nil && a.Server == nil {
		a.Logger.Println("Agent is not running")
		return
	}

	a.Logger.Println("Stopping agent...")

	// Stop the server first so no new card operations arrive, then the
	// monitor worker.
	if a.Server != nil {
		a.Server.Stop()
		a.Server = nil
	}

	if a.Monitor != nil {
		a.Monitor.Stop()
		a.Monitor = nil
	}

	a.Logger.Println("Agent stopped successfully")
}

// Status returns the current slot status, or a zero status when the agent
// is not running.
func (a *Agent) Status() sdmmc.CardStatus {
	if a.Monitor == nil {
		return sdmmc.CardStatus{Message: "Agent not running"}
	}
	return a.Monitor.Status()
}
