package nfc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNFCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NFCError
		expected string
	}{
		{
			name:     "with op and message",
			err:      &NFCError{Code: ErrCodeNotSupported, Op: "WriteData", Message: "operation not supported"},
			expected: "WriteData: operation not supported",
		},
		{
			name: "with op, message, and cause",
			err: &NFCError{
				Code:    ErrCodeReadFailed,
				Op:      "ReadData",
				Message: "read failed",
				Cause:   errors.New("connection lost"),
			},
			expected: "ReadData: read failed: connection lost",
		},
		{
			name:     "message only",
			err:      &NFCError{Code: ErrCodeNotSupported, Message: "not supported"},
			expected: "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNFCError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("rf failure")
	err := NewWriteError("WriteData", "04AABB", cause)

	assert.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, ErrReadOnly))

	wrapped := fmt.Errorf("session: %w", &NFCError{Code: ErrCodeReadOnly, Op: "WriteData"})
	assert.ErrorIs(t, wrapped, ErrReadOnly)
	assert.Equal(t, ErrCodeReadOnly, GetErrorCode(wrapped))
}

func TestIsTagRemovedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"structured", NewTagRemovedError("ReadData", nil), true},
		{"wrapped structured", fmt.Errorf("x: %w", NewTagRemovedError("ReadData", nil)), true},
		{"libnfc string", errors.New("RF Transmission Error"), true},
		{"target removed", errors.New("Target was removed"), true},
		{"other", errors.New("timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTagRemovedError(tt.err))
		})
	}
}

func TestIsNotSupportedError(t *testing.T) {
	assert.True(t, IsNotSupportedError(NewNotSupportedError("ReadData")))
	assert.True(t, IsNotSupportedError(fmt.Errorf("read: %w", NewNotSupportedError("ReadData"))))
	assert.ErrorIs(t, NewNotSupportedError("WriteData"), ErrNotSupported)
	assert.False(t, IsNotSupportedError(ErrReadOnly))
	assert.False(t, IsNotSupportedError(errors.New("plain")))
	assert.Equal(t, ErrorCode(0), GetErrorCode(errors.New("plain")))
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrCodeInvalidData, "Decode", "bad byte 0x%02X", 0xAB)
	assert.Equal(t, "Decode: bad byte 0xAB", err.Error())
	assert.ErrorIs(t, err, ErrInvalidData)
}
