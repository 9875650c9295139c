package nfc

import (
	"fmt"
	"sync"
)

// MockDevice is a test implementation of Device that simulates NFC hardware.
//
// Example:
//
//	device := NewMockDevice()
//	device.SetTags(NewMockTag("04A1B2C3"))
//	tags, _ := device.GetTags()
type MockDevice struct {
	// DeviceName is the simulated device name returned by String()
	DeviceName string

	// DeviceConnection is the simulated connection string returned by Connection()
	DeviceConnection string

	// IsOpen tracks whether the device is currently open
	IsOpen bool

	// InitError, if set, will be returned by InitiatorInit()
	InitError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// GetTagsFunc allows custom GetTags behavior for testing
	// If nil, returns Tags or GetTagsError
	GetTagsFunc func() ([]Tag, error)

	// Tags is the list of tags returned by GetTags()
	Tags []Tag

	// GetTagsError, if set, will be returned by GetTags()
	GetTagsError error

	// Polls counts GetTags calls
	Polls int

	// CallLog tracks non-polling method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockDevice creates a new MockDevice with default values.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		DeviceName:       "Mock NFC Reader",
		DeviceConnection: "mock:usb:001",
		IsOpen:           true,
		CallLog:          make([]string, 0),
	}
}

// Close simulates closing the device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Close")

	if !m.IsOpen {
		return fmt.Errorf("device already closed")
	}
	if m.CloseError != nil {
		return m.CloseError
	}
	m.IsOpen = false
	return nil
}

// InitiatorInit simulates initializing the device as an initiator.
func (m *MockDevice) InitiatorInit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "InitiatorInit")

	if !m.IsOpen {
		return fmt.Errorf("device not open")
	}
	return m.InitError
}

// String returns the device name.
func (m *MockDevice) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceName
}

// Connection returns the device connection string.
func (m *MockDevice) Connection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DeviceConnection
}

// GetTags simulates polling the field.
func (m *MockDevice) GetTags() ([]Tag, error) {
	m.mu.Lock()
	m.Polls++
	fn := m.GetTagsFunc
	tags := append([]Tag(nil), m.Tags...)
	err := m.GetTagsError
	isOpen := m.IsOpen
	m.mu.Unlock()

	if !isOpen {
		return nil, fmt.Errorf("device not open")
	}
	if fn != nil {
		return fn()
	}
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// SetTags replaces the tags present in the field.
func (m *MockDevice) SetTags(tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags = tags
}

// PollCount returns how many times GetTags was called.
func (m *MockDevice) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Polls
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockDevice) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
