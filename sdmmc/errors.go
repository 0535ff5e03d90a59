package sdmmc

import (
	"fmt"
	"strings"
)

// ErrorCode represents a specific kind of driver error for programmatic
// handling.
type ErrorCode int

const (
	// Driver errors (100-199)
	ErrCodeNotFound ErrorCode = iota + 100
	ErrCodeBusy
	ErrCodeInvalidParam
	ErrCodeTimeout
	ErrCodeIO
	ErrCodeNotSupported
	ErrCodeNoMemory
	ErrCodePermissionDenied
	ErrCodeDevice
	ErrCodeCustom
)

// CardError provides structured error information for programmatic handling.
type CardError struct {
	Code       ErrorCode
	Op         string // Operation that failed (e.g., "Init", "ReadBlocks")
	Cmd        uint32 // Optional: command opcode involved
	HasCmd     bool   // Whether Cmd is meaningful
	DeviceCode uint32 // Controller-specific code for ErrCodeDevice
	Message    string // Human-readable message
	Cause      error  // Underlying error
}

func (e *CardError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.HasCmd {
		fmt.Fprintf(&sb, " (CMD%d)", e.Cmd)
	}
	if e.Code == ErrCodeDevice {
		fmt.Fprintf(&sb, " (device code 0x%X)", e.DeviceCode)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *CardError) Unwrap() error {
	return e.Cause
}

func (e *CardError) Is(target error) bool {
	if t, ok := target.(*CardError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewNotFoundError creates an error for a missing card or an operation
// attempted before a successful Init.
func NewNotFoundError(op string) *CardError {
	return &CardError{
		Code:    ErrCodeNotFound,
		Op:      op,
		Message: "no card present",
	}
}

// NewBusyError creates an error for a card that stayed busy.
func NewBusyError(op string, cause error) *CardError {
	return &CardError{
		Code:    ErrCodeBusy,
		Op:      op,
		Message: "card busy",
		Cause:   cause,
	}
}

// NewInvalidParamError creates an error for invalid caller-supplied
// parameters such as undersized buffers.
func NewInvalidParamError(op, message string) *CardError {
	if message == "" {
		message = "invalid parameter"
	}
	return &CardError{
		Code:    ErrCodeInvalidParam,
		Op:      op,
		Message: message,
	}
}

// NewTimeoutError creates an error for an exhausted retry or poll budget.
func NewTimeoutError(op string) *CardError {
	return &CardError{
		Code:    ErrCodeTimeout,
		Op:      op,
		Message: "timed out",
	}
}

// NewIOError creates an error for a failed host transfer.
func NewIOError(op string, cause error) *CardError {
	return &CardError{
		Code:    ErrCodeIO,
		Op:      op,
		Message: "i/o error",
		Cause:   cause,
	}
}

// NewNotSupportedError creates an error for unsupported operations.
func NewNotSupportedError(op string) *CardError {
	return &CardError{
		Code:    ErrCodeNotSupported,
		Op:      op,
		Message: "operation not supported",
	}
}

// NewNoMemoryError creates an error for allocation failures in the host
// layer.
func NewNoMemoryError(op string) *CardError {
	return &CardError{
		Code:    ErrCodeNoMemory,
		Op:      op,
		Message: "out of memory",
	}
}

// NewPermissionDeniedError creates an error for operations rejected by the
// card, such as writes to a locked card.
func NewPermissionDeniedError(op string) *CardError {
	return &CardError{
		Code:    ErrCodePermissionDenied,
		Op:      op,
		Message: "permission denied",
	}
}

// NewDeviceError creates an error carrying a controller-specific code.
func NewDeviceError(op string, deviceCode uint32) *CardError {
	return &CardError{
		Code:       ErrCodeDevice,
		Op:         op,
		DeviceCode: deviceCode,
		Message:    "device error",
	}
}

// NewCustomError creates an error with a free-form message.
func NewCustomError(op, message string) *CardError {
	return &CardError{
		Code:    ErrCodeCustom,
		Op:      op,
		Message: message,
	}
}

// errorCode extracts the ErrorCode from an error, or false if it is not a
// CardError.
func errorCode(err error) (ErrorCode, bool) {
	if e, ok := err.(*CardError); ok {
		return e.Code, true
	}
	return 0, false
}

// IsNotFoundError checks if an error indicates a missing card.
func IsNotFoundError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeNotFound
}

// IsBusyError checks if an error indicates a busy card.
func IsBusyError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeBusy
}

// IsInvalidParamError checks if an error indicates a bad parameter.
func IsInvalidParamError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeInvalidParam
}

// IsTimeoutError checks if an error indicates an exhausted retry budget.
func IsTimeoutError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeTimeout
}

// IsIOError checks if an error indicates a failed host transfer.
func IsIOError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeIO
}

// IsNotSupportedError checks if an error indicates an unsupported operation.
func IsNotSupportedError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeNotSupported
}

// IsDeviceError checks if an error carries a controller-specific code.
func IsDeviceError(err error) bool {
	code, ok := errorCode(err)
	return ok && code == ErrCodeDevice
}
