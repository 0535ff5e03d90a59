package server

import "github.com/dotside-studios/sdmmc-agent/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_sdmmc-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication
const (
	WSMessageTypeCardStatus     = "cardStatus"
	WSMessageTypeCardInfo       = "cardInfo"
	WSMessageTypeReadRequest    = "readRequest"
	WSMessageTypeReadResponse   = "readResponse"
	WSMessageTypeWriteRequest   = "writeRequest"
	WSMessageTypeWriteResponse  = "writeResponse"
	WSMessageTypeEraseRequest   = "eraseRequest"
	WSMessageTypeEraseResponse  = "eraseResponse"
	WSMessageTypeSyncRequest    = "syncRequest"
	WSMessageTypeSyncResponse   = "syncResponse"
	WSMessageTypeReinitRequest  = "reinitRequest"
	WSMessageTypeReinitResponse = "reinitResponse"
	WSMessageTypeError          = "error"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

// MaxTransferSectors caps the sector count of a single read or write request
// so one client request cannot hold the card lock for arbitrarily long.
const MaxTransferSectors = 2048
