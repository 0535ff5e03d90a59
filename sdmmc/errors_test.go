package sdmmc

import (
	"errors"
	"testing"
)

func TestCardError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CardError
		expected string
	}{
		{
			name: "with op and message",
			err: &CardError{
				Code:    ErrCodeNotFound,
				Op:      "Init",
				Message: "no card present",
			},
			expected: "Init: no card present",
		},
		{
			name: "with op, message, and cause",
			err: &CardError{
				Code:    ErrCodeIO,
				Op:      "ReadBlocks",
				Message: "i/o error",
				Cause:   errors.New("bus fault"),
			},
			expected: "ReadBlocks: i/o error: bus fault",
		},
		{
			name: "with command opcode",
			err: &CardError{
				Code:    ErrCodeTimeout,
				Op:      "Init",
				Cmd:     41,
				HasCmd:  true,
				Message: "timed out",
			},
			expected: "Init: timed out (CMD41)",
		},
		{
			name: "device error carries its code",
			err: &CardError{
				Code:       ErrCodeDevice,
				Op:         "SendCommand",
				DeviceCode: 0xBEEF,
				Message:    "device error",
			},
			expected: "SendCommand: device error (device code 0xBEEF)",
		},
		{
			name: "message only",
			err: &CardError{
				Code:    ErrCodeCustom,
				Message: "something odd",
			},
			expected: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("CardError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCardError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewIOError("ReadBlocks", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("CardError.Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := NewNotFoundError("Init")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("CardError.Unwrap() = %v, want nil", unwrapped)
	}
}

func TestCardError_Is(t *testing.T) {
	err1 := NewTimeoutError("Init")
	err2 := &CardError{Code: ErrCodeTimeout, Message: "different message"}
	err3 := NewNotFoundError("Init")

	if !err1.Is(err2) {
		t.Error("CardError.Is() should return true for same code")
	}
	if err1.Is(err3) {
		t.Error("CardError.Is() should return false for different code")
	}
	if err1.Is(errors.New("not a CardError")) {
		t.Error("CardError.Is() should return false for non-CardError")
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		expected  bool
	}{
		{"not found", NewNotFoundError("Init"), IsNotFoundError, true},
		{"not found vs timeout", NewTimeoutError("Init"), IsNotFoundError, false},
		{"busy", NewBusyError("Flush", nil), IsBusyError, true},
		{"invalid param", NewInvalidParamError("ReadBlocks", ""), IsInvalidParamError, true},
		{"timeout", NewTimeoutError("Init"), IsTimeoutError, true},
		{"io", NewIOError("ReadData", errors.New("x")), IsIOError, true},
		{"not supported", NewNotSupportedError("CMD8"), IsNotSupportedError, true},
		{"device", NewDeviceError("SendCommand", 7), IsDeviceError, true},
		{"plain error", errors.New("plain"), IsTimeoutError, false},
		{"nil", nil, IsNotFoundError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.predicate(tt.err); got != tt.expected {
				t.Errorf("predicate(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestNewDeviceError(t *testing.T) {
	err := NewDeviceError("SendCommand", 0x42)

	if err.Code != ErrCodeDevice {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeDevice)
	}
	if err.DeviceCode != 0x42 {
		t.Errorf("DeviceCode = %#x, want 0x42", err.DeviceCode)
	}
	if err.Op != "SendCommand" {
		t.Errorf("Op = %q, want %q", err.Op, "SendCommand")
	}
}

func TestNewInvalidParamError_DefaultMessage(t *testing.T) {
	err := NewInvalidParamError("WriteBlocks", "")
	if err.Message != "invalid parameter" {
		t.Errorf("Message = %q, want %q", err.Message, "invalid parameter")
	}

	custom := NewInvalidParamError("WriteBlocks", "buffer shorter than one block")
	if custom.Message != "buffer shorter than one block" {
		t.Errorf("Message = %q, want custom message", custom.Message)
	}
}
