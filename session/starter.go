package session

import (
	"fmt"

	"github.com/nedpals/davi-nfc-writer/dispatch"
)

// Starter creates reader sessions for the controller.
type Starter interface {
	NewSession(delegate ReaderSessionDelegate) (*ReaderSession, error)
}

// DeviceStarter creates sessions that poll a single reader and deliver
// their callbacks on one shared queue.
type DeviceStarter struct {
	source DeviceSource
	queue  *dispatch.Queue
	opts   Options
}

// NewDeviceStarter returns a Starter for source.
func NewDeviceStarter(source DeviceSource, queue *dispatch.Queue, opts Options) *DeviceStarter {
	return &DeviceStarter{source: source, queue: queue, opts: opts}
}

// NewSession checks the reader can be opened and returns a new session.
func (d *DeviceStarter) NewSession(delegate ReaderSessionDelegate) (*ReaderSession, error) {
	d.source.Lock()
	_, err := d.source.Acquire()
	d.source.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadingUnavailable, err)
	}
	return NewReaderSession(d.source, delegate, d.queue, d.opts), nil
}
