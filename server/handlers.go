package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/sdmmc-agent/protocol"
	"github.com/dotside-studios/sdmmc-agent/sdmmc"
)

// CardHandler routes card operation requests from WebSocket clients to the
// card monitor and pumps slot status changes back out to all clients.
type CardHandler struct {
	monitor *sdmmc.Monitor
	server  HandlerServer
}

// NewCardHandler creates a handler backed by the given card monitor.
func NewCardHandler(monitor *sdmmc.Monitor) *CardHandler {
	return &CardHandler{monitor: monitor}
}

// Register implements ServerHandler. It registers the card message handlers
// and the status broadcast lifecycle.
func (h *CardHandler) Register(server HandlerServer) {
	h.server = server

	server.Handle(WSMessageTypeCardInfo, h.handleCardInfo)
	server.Handle(WSMessageTypeReadRequest, h.handleReadRequest)
	server.Handle(WSMessageTypeWriteRequest, h.handleWriteRequest)
	server.Handle(WSMessageTypeEraseRequest, h.handleEraseRequest)
	server.Handle(WSMessageTypeSyncRequest, h.handleSyncRequest)
	server.Handle(WSMessageTypeReinitRequest, h.handleReinitRequest)

	server.StartLifecycle(h.startStatusPump)
}

// startStatusPump forwards monitor status updates to connected clients
// until the server context is cancelled.
func (h *CardHandler) startStatusPump(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case status := <-h.monitor.StatusUpdates():
				log.Printf("Broadcasting card status: present=%v initialized=%v", status.Present, status.Initialized)
				h.server.BroadcastCardStatus(status)
			}
		}
	}()
}

// sendCardError reports a failed card operation back to the client.
func sendCardError(conn *websocket.Conn, requestID string, err error) error {
	SendErrorResponse(conn, requestID, protocol.ErrorCodeFor(err), err.Error())
	return err
}

func (h *CardHandler) handleCardInfo(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	info, err := h.monitor.Info()
	if err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeCardInfo, protocol.FromCardInfo(info))
}

func (h *CardHandler) handleReadRequest(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	var readReq protocol.ReadRequest
	if err := json.Unmarshal(req.Payload, &readReq); err != nil {
		SendErrorResponse(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid read request payload")
		return fmt.Errorf("failed to parse read request: %w", err)
	}

	if readReq.Count > MaxTransferSectors {
		SendErrorResponse(conn, req.ID, protocol.ErrCodeInvalidRequest,
			fmt.Sprintf("Read request exceeds %d sector limit", MaxTransferSectors))
		return fmt.Errorf("read request for %d sectors exceeds limit", readReq.Count)
	}

	data, err := h.monitor.ReadSectors(readReq.Sector, readReq.Count)
	if err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeReadResponse, protocol.ReadResponse{
		Sector: readReq.Sector,
		Count:  readReq.Count,
		Data:   data,
	})
}

func (h *CardHandler) handleWriteRequest(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	var writeReq protocol.WriteRequest
	if err := json.Unmarshal(req.Payload, &writeReq); err != nil {
		SendErrorResponse(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid write request payload")
		return fmt.Errorf("failed to parse write request: %w", err)
	}

	if len(writeReq.Data) > MaxTransferSectors*int(sdmmc.BlockSize) {
		SendErrorResponse(conn, req.ID, protocol.ErrCodeInvalidRequest,
			fmt.Sprintf("Write request exceeds %d sector limit", MaxTransferSectors))
		return fmt.Errorf("write request of %d bytes exceeds limit", len(writeReq.Data))
	}

	n, err := h.monitor.WriteSectors(writeReq.Sector, writeReq.Data)
	if err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeWriteResponse, protocol.WriteResponse{
		Sector:       writeReq.Sector,
		BytesWritten: n,
	})
}

func (h *CardHandler) handleEraseRequest(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	var eraseReq protocol.EraseRequest
	if err := json.Unmarshal(req.Payload, &eraseReq); err != nil {
		SendErrorResponse(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid erase request payload")
		return fmt.Errorf("failed to parse erase request: %w", err)
	}

	if err := h.monitor.EraseSectors(eraseReq.Sector, eraseReq.Count); err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeEraseResponse, eraseReq)
}

func (h *CardHandler) handleSyncRequest(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	if err := h.monitor.Sync(); err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeSyncResponse, nil)
}

func (h *CardHandler) handleReinitRequest(ctx context.Context, conn *websocket.Conn, req WebsocketRequest) error {
	if err := h.monitor.Reinit(); err != nil {
		return sendCardError(conn, req.ID, err)
	}

	return SendSuccessResponse(conn, req.ID, WSMessageTypeReinitResponse, protocol.FromCardStatus(h.monitor.Status()))
}
