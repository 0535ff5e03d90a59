// Package server provides HTTP and WebSocket server infrastructure for the SD/MMC agent.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/sdmmc-agent/buildinfo"
	"github.com/dotside-studios/sdmmc-agent/protocol"
	"github.com/dotside-studios/sdmmc-agent/sdmmc"
)

// DefaultSessionTimeout is how long an idle control session stays valid.
const DefaultSessionTimeout = 30 * time.Minute

// Config holds the server configuration
type Config struct {
	Monitor        *sdmmc.Monitor
	Port           int
	APISecret      string        // Optional API secret for the handshake
	SessionTimeout time.Duration // Zero means DefaultSessionTimeout
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	instanceID string
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	sessions   *SessionManager

	// Client WebSocket management
	clients    map[*websocket.Conn]bool
	clientsMux sync.RWMutex
	upgrader   websocket.Upgrader

	// Handler registry for message routing
	handlerRegistry *HandlerRegistry

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server
}

// New creates a new server instance
func New(config Config) *Server {
	if config.SessionTimeout == 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}

	s := &Server{
		config:     config,
		instanceID: uuid.NewString(),
		clients:    make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
		sessions:        NewSessionManager(config.APISecret, config.SessionTimeout),
	}

	// Register card operation handlers
	if config.Monitor != nil {
		cardHandler := NewCardHandler(config.Monitor)
		cardHandler.Register(s)
	}

	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Sessions returns the server's session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(message *WebsocketMessage) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for client := range s.clients {
		err := client.WriteJSON(message)
		if err != nil {
			log.Printf("WebSocket write error: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// BroadcastCardStatus sends the slot status to all connected WebSocket clients
func (s *Server) BroadcastCardStatus(status sdmmc.CardStatus) {
	s.broadcast(&WebsocketMessage{
		Type:    WSMessageTypeCardStatus,
		Payload: protocol.FromCardStatus(status),
	})
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Routes builds the HTTP handler tree for the agent API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(apiV1+"/handshake", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHandshake(w, r)
	}))

	mux.HandleFunc("/ws", enableCORS(s.handleWebSocket))

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("SD/MMC Agent Server Running"))
	}))

	return mux
}

// recoverServer handles panic recovery and server restart
func (s *Server) recoverServer() {
	if r := recover(); r != nil {
		log.Printf("Server panic recovered: %v", r)
		log.Println("Restarting server in 5 seconds...")
		time.Sleep(5 * time.Second)
		s.Start()
	}
}

// Start starts the HTTP server and begins handling requests.
// It blocks until Stop is called.
func (s *Server) Start() error {
	defer s.recoverServer()

	log.Printf("Starting SD/MMC Agent...")

	monitor := s.config.Monitor
	if monitor != nil {
		monitor.Start()
		status := monitor.Status()
		if status.Present {
			log.Printf("Card detected in slot")
		} else {
			log.Printf("No card in slot, waiting for card...")
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.Routes(),
	}

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			panic(err)
		}
	}()

	// Register mDNS service for auto-discovery
	if err := s.startMDNS(); err != nil {
		log.Printf("Warning: Failed to start mDNS service: %v", err)
		log.Printf("Auto-discovery will not be available, but server will continue normally")
	}

	// Start lifecycle handlers (CardHandler will start its status pump)
	s.handlerRegistry.StartLifecycleHandlers(s.ctx)

	// Block until shutdown is requested
	<-s.ctx.Done()
	log.Println("Server context cancelled, initiating shutdown...")

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Printf("mDNS service stopped")
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// startMDNS registers the agent as an mDNS service so client tools can
// discover it on the local network.
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
		"id=" + s.instanceID,
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	log.Printf("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)

	return nil
}

// remoteHost strips the port from a RemoteAddr so session binding survives
// across the handshake and WebSocket connections.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// handleHandshake claims the control session (POST /api/v1/handshake).
// The returned token must be presented when opening the WebSocket.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Secret string `json:"secret,omitempty"`
	}
	json.NewDecoder(r.Body).Decode(&requestBody)

	origin := r.Header.Get("Origin")
	token := s.sessions.Acquire(requestBody.Secret, origin, remoteHost(r.RemoteAddr))
	if token == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "Session already claimed or invalid secret",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token": token,
	})
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
	w.Header().Set("Access-Control-Allow-Credentials", "true")

	token := r.URL.Query().Get("token")
	if !s.sessions.Validate(token, r.Header.Get("Origin"), remoteHost(r.RemoteAddr)) {
		log.Printf("WebSocket connection rejected: invalid session token")
		http.Error(w, "Unauthorized: Invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		conn.Close()
		// Release session when WebSocket disconnects
		s.sessions.Release()
		log.Printf("WebSocket disconnected, session released")
	}()

	s.clientsMux.Lock()
	s.clients[conn] = true
	s.clientsMux.Unlock()

	// Send initial slot status
	if s.config.Monitor != nil {
		conn.WriteJSON(WebsocketMessage{
			Type:    WSMessageTypeCardStatus,
			Payload: protocol.FromCardStatus(s.config.Monitor.Status()),
		})
	}

	// Keep connection alive and handle incoming messages
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.clientsMux.Lock()
			delete(s.clients, conn)
			s.clientsMux.Unlock()
			break
		}

		if messageType == websocket.TextMessage {
			s.sessions.RefreshTimeout()

			var wsRequest WebsocketRequest
			if err := json.Unmarshal(message, &wsRequest); err != nil {
				log.Printf("Failed to parse WebSocket message: %v", err)
				SendErrorResponse(conn, "", "PARSE_ERROR", "Invalid message format")
				continue
			}

			handler, ok := s.handlerRegistry.Get(wsRequest.Type)
			if !ok {
				log.Printf("Unknown message type: %s", wsRequest.Type)
				SendErrorResponse(conn, wsRequest.ID, "UNKNOWN_TYPE", fmt.Sprintf("Unknown message type: %s", wsRequest.Type))
				continue
			}

			if err := handler(r.Context(), conn, wsRequest); err != nil {
				// Error already sent by handler, just log it
				log.Printf("Handler error for message type '%s': %v", wsRequest.Type, err)
			}
		}
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"version":   buildinfo.Version,
		"agentId":   s.instanceID,
		"timestamp": time.Now().Format("2006-01-02T15:04:05Z07:00"),
	}

	if s.config.Monitor != nil {
		status := s.config.Monitor.Status()
		payload["card"] = map[string]any{
			"present":     status.Present,
			"initialized": status.Initialized,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
