package nfc

import (
	"fmt"
	"sync"
	"time"
)

// MockTag is a test implementation of Tag that simulates NFC tag behavior.
//
// MockTag allows testing sessions without physical tags by providing
// configurable NDEF status and read/write results.
//
// Example:
//
//	tag := NewMockTag("04A1B2C3")
//	tag.Status = NDEFStatusReadOnly
//	tag.Data, _ = NewNDEFMessage(NewTextRecord("hi", "en")).Encode()
type MockTag struct {
	// TagUID is the UID returned by UID()
	TagUID string

	// TagType is the type string returned by Type()
	TagType string

	// Status and Capacity are returned by QueryNDEFStatus()
	Status   NDEFStatus
	Capacity int

	// Data is the raw NDEF message returned by ReadData() and replaced by WriteData()
	Data []byte

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// QueryStatusError, if set, will be returned by QueryNDEFStatus()
	QueryStatusError error

	// ReadDataError, if set, will be returned by ReadData()
	ReadDataError error

	// WriteDataError, if set, will be returned by WriteData()
	WriteDataError error

	// OperationDelay is slept before ReadData and WriteData complete
	OperationDelay time.Duration

	// IsConnected tracks whether the tag is currently connected
	IsConnected bool

	// WriteCount counts successful WriteData calls
	WriteCount int

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockTag creates a new read-write MockTag with default values.
func NewMockTag(uid string) *MockTag {
	return &MockTag{
		TagUID:   uid,
		TagType:  "Mock Tag",
		Status:   NDEFStatusReadWrite,
		Capacity: 137,
		CallLog:  make([]string, 0),
	}
}

// UID returns the tag's UID.
func (m *MockTag) UID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagUID
}

// Type returns the tag's type string.
func (m *MockTag) Type() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagType
}

// Connect simulates connecting to the tag.
func (m *MockTag) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Connect")

	if m.ConnectError != nil {
		return m.ConnectError
	}
	if m.IsConnected {
		return fmt.Errorf("tag already connected")
	}
	m.IsConnected = true
	return nil
}

// Disconnect simulates disconnecting from the tag.
func (m *MockTag) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Disconnect")

	if !m.IsConnected {
		return fmt.Errorf("tag not connected")
	}
	m.IsConnected = false
	return nil
}

// QueryNDEFStatus returns the configured status.
func (m *MockTag) QueryNDEFStatus() (NDEFStatus, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "QueryNDEFStatus")

	if !m.IsConnected {
		return 0, 0, NewNotConnectedError("QueryNDEFStatus", m.TagUID)
	}
	if m.QueryStatusError != nil {
		return 0, 0, m.QueryStatusError
	}
	return m.Status, m.Capacity, nil
}

// ReadData simulates reading the NDEF message from the tag.
func (m *MockTag) ReadData() ([]byte, error) {
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "ReadData")

	if !m.IsConnected {
		return nil, NewNotConnectedError("ReadData", m.TagUID)
	}
	if m.ReadDataError != nil {
		return nil, m.ReadDataError
	}
	if m.Data == nil {
		return nil, nil
	}

	// Return a copy to prevent external modification
	dataCopy := make([]byte, len(m.Data))
	copy(dataCopy, m.Data)
	return dataCopy, nil
}

// WriteData simulates replacing the NDEF message on the tag.
func (m *MockTag) WriteData(data []byte) error {
	m.delay()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, fmt.Sprintf("WriteData(%d bytes)", len(data)))

	if !m.IsConnected {
		return NewNotConnectedError("WriteData", m.TagUID)
	}
	if m.Status == NDEFStatusReadOnly {
		return ErrReadOnly
	}
	if m.WriteDataError != nil {
		return m.WriteDataError
	}

	m.Data = make([]byte, len(data))
	copy(m.Data, data)
	m.WriteCount++
	return nil
}

// Message decodes the stored data, for assertions.
func (m *MockTag) Message() (*NDEFMessage, error) {
	m.mu.Lock()
	data := append([]byte(nil), m.Data...)
	m.mu.Unlock()
	return DecodeNDEF(data)
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockTag) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}

// Called reports whether the call log contains an entry with the given prefix.
func (m *MockTag) Called(prefix string) bool {
	for _, entry := range m.GetCallLog() {
		if len(entry) >= len(prefix) && entry[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (m *MockTag) delay() {
	m.mu.Lock()
	d := m.OperationDelay
	m.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}
