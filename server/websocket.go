package server

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// WebsocketMessage represents a message pushed to WebSocket clients.
type WebsocketMessage struct {
	ID      string `json:"id,omitempty"` // Request ID for correlation
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WebsocketRequest represents an incoming request from WebSocket clients.
type WebsocketRequest struct {
	ID      string          `json:"id,omitempty"` // Client-generated request ID
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebsocketResponse represents a response to a WebSocket request.
type WebsocketResponse struct {
	ID      string `json:"id,omitempty"` // Same as request ID
	Type    string `json:"type"`         // Response type (e.g., "writeResponse")
	Success bool   `json:"success"`      // Whether operation succeeded
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"` // Error message if failed
}

// SendSuccessResponse sends a success response for the given request.
func SendSuccessResponse(conn *websocket.Conn, requestID string, responseType string, payload any) error {
	return conn.WriteJSON(WebsocketResponse{
		ID:      requestID,
		Type:    responseType,
		Success: true,
		Payload: payload,
	})
}

// SendErrorResponse sends a structured error response for the given request.
func SendErrorResponse(conn *websocket.Conn, requestID string, errorCode string, message string) error {
	return conn.WriteJSON(WebsocketResponse{
		ID:      requestID,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": errorCode,
		},
	})
}
