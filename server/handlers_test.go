package server

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/sdmmc-agent/protocol"
	"github.com/dotside-studios/sdmmc-agent/sdmmc"
)

// wsResponse mirrors WebsocketResponse with a raw payload for test decoding.
type wsResponse struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// roundTrip sends one request over the connection and reads one response.
func roundTrip(t *testing.T, conn *websocket.Conn, id string, messageType string, payload any) wsResponse {
	t.Helper()

	if err := conn.WriteJSON(WebsocketMessage{ID: id, Type: messageType, Payload: payload}); err != nil {
		t.Fatalf("failed to send %s: %v", messageType, err)
	}

	var resp wsResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read %s response: %v", messageType, err)
	}
	return resp
}

// readInitialStatus discards the cardStatus message sent on connect.
func readInitialStatus(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	var msg wsResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read initial status: %v", err)
	}
	if msg.Type != WSMessageTypeCardStatus {
		t.Fatalf("initial message type = %q, want %q", msg.Type, WSMessageTypeCardStatus)
	}
}

// errorCode extracts the error code from a failed response payload.
func errorCode(t *testing.T, resp wsResponse) string {
	t.Helper()

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatalf("failed to decode error payload %s: %v", resp.Payload, err)
	}
	return payload.Code
}

// newCardConn sets up a connected, authenticated client over a simulated card.
func newCardConn(t *testing.T) *websocket.Conn {
	t.Helper()

	_, ts := newTestServer(t, "")
	token, _ := handshake(t, ts, "")
	conn := dialWS(t, ts, token)
	readInitialStatus(t, conn)
	return conn
}

func TestCardHandler_CardInfo(t *testing.T) {
	conn := newCardConn(t)

	resp := roundTrip(t, conn, "info-1", WSMessageTypeCardInfo, nil)
	if !resp.Success {
		t.Fatalf("cardInfo failed: %s", resp.Error)
	}
	if resp.Type != WSMessageTypeCardInfo {
		t.Errorf("response type = %q, want %q", resp.Type, WSMessageTypeCardInfo)
	}

	var info protocol.CardInfo
	if err := json.Unmarshal(resp.Payload, &info); err != nil {
		t.Fatalf("failed to decode card info: %v", err)
	}
	if info.CardType != "SDHC" {
		t.Errorf("cardType = %q, want %q", info.CardType, "SDHC")
	}
	if info.BlockSize != 512 {
		t.Errorf("blockSize = %d, want 512", info.BlockSize)
	}
	if info.SectorCount != info.CapacityBytes/512 {
		t.Errorf("sectorCount = %d, want %d", info.SectorCount, info.CapacityBytes/512)
	}
}

func TestCardHandler_ReadWriteRoundTrip(t *testing.T) {
	conn := newCardConn(t)

	data := bytes.Repeat([]byte{0xA5}, 2*512)
	resp := roundTrip(t, conn, "w-1", WSMessageTypeWriteRequest, protocol.WriteRequest{
		Sector: 6,
		Data:   data,
	})
	if !resp.Success {
		t.Fatalf("write failed: %s", resp.Error)
	}

	var writeResp protocol.WriteResponse
	if err := json.Unmarshal(resp.Payload, &writeResp); err != nil {
		t.Fatalf("failed to decode write response: %v", err)
	}
	if writeResp.BytesWritten != len(data) {
		t.Errorf("bytesWritten = %d, want %d", writeResp.BytesWritten, len(data))
	}

	resp = roundTrip(t, conn, "r-1", WSMessageTypeReadRequest, protocol.ReadRequest{
		Sector: 6,
		Count:  2,
	})
	if !resp.Success {
		t.Fatalf("read failed: %s", resp.Error)
	}

	var readResp protocol.ReadResponse
	if err := json.Unmarshal(resp.Payload, &readResp); err != nil {
		t.Fatalf("failed to decode read response: %v", err)
	}
	if !bytes.Equal(readResp.Data, data) {
		t.Error("read data does not match written data")
	}

	resp = roundTrip(t, conn, "e-1", WSMessageTypeEraseRequest, protocol.EraseRequest{
		Sector: 6,
		Count:  2,
	})
	if !resp.Success {
		t.Fatalf("erase failed: %s", resp.Error)
	}

	resp = roundTrip(t, conn, "s-1", WSMessageTypeSyncRequest, nil)
	if !resp.Success {
		t.Fatalf("sync failed: %s", resp.Error)
	}

	// Erased sectors read back zero.
	resp = roundTrip(t, conn, "r-2", WSMessageTypeReadRequest, protocol.ReadRequest{
		Sector: 6,
		Count:  2,
	})
	if !resp.Success {
		t.Fatalf("read after erase failed: %s", resp.Error)
	}
	if err := json.Unmarshal(resp.Payload, &readResp); err != nil {
		t.Fatalf("failed to decode read response: %v", err)
	}
	if !bytes.Equal(readResp.Data, make([]byte, 2*512)) {
		t.Error("erased sectors do not read back zero")
	}
}

func TestCardHandler_InvalidWrite(t *testing.T) {
	conn := newCardConn(t)

	resp := roundTrip(t, conn, "w-bad", WSMessageTypeWriteRequest, protocol.WriteRequest{
		Sector: 0,
		Data:   make([]byte, 100), // not a multiple of the sector size
	})
	if resp.Success {
		t.Fatal("expected partial-sector write to fail")
	}
	if code := errorCode(t, resp); code != protocol.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", code, protocol.ErrCodeInvalidRequest)
	}
}

func TestCardHandler_ReadLimit(t *testing.T) {
	conn := newCardConn(t)

	resp := roundTrip(t, conn, "r-big", WSMessageTypeReadRequest, protocol.ReadRequest{
		Sector: 0,
		Count:  MaxTransferSectors + 1,
	})
	if resp.Success {
		t.Fatal("expected oversized read to fail")
	}
	if code := errorCode(t, resp); code != protocol.ErrCodeInvalidRequest {
		t.Errorf("error code = %q, want %q", code, protocol.ErrCodeInvalidRequest)
	}
}

func TestCardHandler_NoCard(t *testing.T) {
	sim := sdmmc.NewSimHost(sdmmc.CardTypeSdHc)
	sim.SetPresent(false)
	monitor := sdmmc.NewMonitor(sdmmc.NewEngine(sim))

	srv := New(Config{Monitor: monitor, SessionTimeout: time.Minute})
	ts := httptestServer(t, srv)
	token, _ := handshake(t, ts, "")
	conn := dialWS(t, ts, token)
	readInitialStatus(t, conn)

	resp := roundTrip(t, conn, "info-1", WSMessageTypeCardInfo, nil)
	if resp.Success {
		t.Fatal("expected cardInfo to fail with no card")
	}
	if code := errorCode(t, resp); code != protocol.ErrCodeNoCard {
		t.Errorf("error code = %q, want %q", code, protocol.ErrCodeNoCard)
	}

	resp = roundTrip(t, conn, "r-1", WSMessageTypeReadRequest, protocol.ReadRequest{Sector: 0, Count: 1})
	if resp.Success {
		t.Fatal("expected read to fail with no card")
	}
	if code := errorCode(t, resp); code != protocol.ErrCodeNoCard {
		t.Errorf("error code = %q, want %q", code, protocol.ErrCodeNoCard)
	}
}

func TestCardHandler_Reinit(t *testing.T) {
	conn := newCardConn(t)

	resp := roundTrip(t, conn, "ri-1", WSMessageTypeReinitRequest, nil)
	if !resp.Success {
		t.Fatalf("reinit failed: %s", resp.Error)
	}

	var status protocol.CardStatus
	if err := json.Unmarshal(resp.Payload, &status); err != nil {
		t.Fatalf("failed to decode reinit payload: %v", err)
	}
	if !status.Initialized {
		t.Errorf("status after reinit = %+v, want initialized", status)
	}
}
