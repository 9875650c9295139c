package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-nfc-writer/dispatch"
	"github.com/nedpals/davi-nfc-writer/nfc"
)

// recordingDelegate captures callbacks for assertions.
type recordingDelegate struct {
	mu          sync.Mutex
	active      int
	detected    chan []*Tag
	invalidated []*InvalidationError
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{detected: make(chan []*Tag, 4)}
}

func (d *recordingDelegate) ReaderSessionDidBecomeActive(*ReaderSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active++
}

func (d *recordingDelegate) ReaderSessionDidDetect(_ *ReaderSession, tags []*Tag) {
	d.detected <- tags
}

func (d *recordingDelegate) ReaderSessionDidInvalidate(_ *ReaderSession, err *InvalidationError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated = append(d.invalidated, err)
}

func (d *recordingDelegate) invalidations() []*InvalidationError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*InvalidationError(nil), d.invalidated...)
}

// gatedTag holds WriteData until release is closed.
type gatedTag struct {
	*nfc.MockTag
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
	inFlight atomic.Bool
}

func newGatedTag(uid string) *gatedTag {
	return &gatedTag{
		MockTag: nfc.NewMockTag(uid),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedTag) WriteData(data []byte) error {
	g.inFlight.Store(true)
	defer g.inFlight.Store(false)
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.MockTag.WriteData(data)
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newTestSession(t *testing.T, device *nfc.MockDevice, opts Options) (*ReaderSession, *recordingDelegate) {
	t.Helper()
	manager := nfc.NewMockManager()
	manager.MockDevice = device
	queue := dispatch.NewQueue("session-test")
	t.Cleanup(queue.Close)

	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	delegate := newRecordingDelegate()
	s := NewReaderSession(nfc.NewDeviceManager(manager, "mock:usb:001"), delegate, queue, opts)
	t.Cleanup(s.Invalidate)
	return s, delegate
}

func waitDetected(t *testing.T, d *recordingDelegate) []*Tag {
	t.Helper()
	select {
	case tags := <-d.detected:
		return tags
	case <-time.After(waitTimeout):
		t.Fatal("no tags detected")
		return nil
	}
}

func waitDone(t *testing.T, s *ReaderSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish invalidating")
	}
}

func TestReaderSession_DetectsOnce(t *testing.T) {
	device := nfc.NewMockDevice()
	tag := nfc.NewMockTag("04AA")
	device.SetTags(tag)

	s, delegate := newTestSession(t, device, Options{})
	require.NotEmpty(t, s.ID())
	s.Begin()
	s.Begin()

	tags := waitDetected(t, delegate)
	require.Len(t, tags, 1)
	assert.Equal(t, "04AA", tags[0].UID())
	assert.Equal(t, "Mock Tag", tags[0].Type())
	assert.True(t, s.IsReady())

	polls := device.PollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, device.PollCount())
	assert.Empty(t, delegate.detected)

	delegate.mu.Lock()
	assert.Equal(t, 1, delegate.active)
	delegate.mu.Unlock()
}

func TestReaderSession_InvalidateOnce(t *testing.T) {
	s, delegate := newTestSession(t, nfc.NewMockDevice(), Options{})
	s.Begin()

	s.SetAlertMessage("done")
	s.Invalidate()
	s.InvalidateWithError("ignored")
	s.Invalidate()
	waitDone(t, s)

	got := delegate.invalidations()
	require.Len(t, got, 1)
	assert.Equal(t, ReasonUserCanceled, got[0].Reason)
	assert.Equal(t, "done", got[0].Message)
	assert.ErrorIs(t, got[0], ErrSessionInvalidated)
	assert.Equal(t, "done", s.AlertMessage())
	assert.False(t, s.IsReady())

	// Begin after invalidation does nothing
	s.Begin()
	assert.True(t, s.IsInvalidated())
}

func TestReaderSession_InvalidateWithError(t *testing.T) {
	s, delegate := newTestSession(t, nfc.NewMockDevice(), Options{})
	s.Begin()
	s.InvalidateWithError("Tag is read-only")
	waitDone(t, s)

	got := delegate.invalidations()
	require.Len(t, got, 1)
	assert.Equal(t, "Tag is read-only", got[0].Message)
	assert.Equal(t, "Tag is read-only", s.AlertMessage())
}

func TestReaderSession_Timeout(t *testing.T) {
	s, delegate := newTestSession(t, nfc.NewMockDevice(), Options{Timeout: 20 * time.Millisecond})
	s.Begin()
	waitDone(t, s)

	got := delegate.invalidations()
	require.Len(t, got, 1)
	assert.Equal(t, ReasonTimeout, got[0].Reason)
}

func TestReaderSession_DeviceError(t *testing.T) {
	device := nfc.NewMockDevice()
	device.GetTagsError = errors.New("usb gone")

	s, delegate := newTestSession(t, device, Options{})
	s.Begin()
	waitDone(t, s)

	got := delegate.invalidations()
	require.Len(t, got, 1)
	assert.Equal(t, ReasonDeviceError, got[0].Reason)
	assert.ErrorContains(t, got[0], "usb gone")
}

func TestReaderSession_TagOperations(t *testing.T) {
	device := nfc.NewMockDevice()
	tag := nfc.NewMockTag("04AA")
	device.SetTags(tag)

	s, delegate := newTestSession(t, device, Options{})
	s.Begin()
	handle := waitDetected(t, delegate)[0]

	errs := make(chan error, 1)

	// Operations before Connect fail
	handle.QueryNDEFStatus(func(_ nfc.NDEFStatus, _ int, err error) { errs <- err })
	assert.ErrorIs(t, <-errs, ErrTagNotConnected)

	s.Connect(handle, func(err error) { errs <- err })
	require.NoError(t, <-errs)

	statuses := make(chan nfc.NDEFStatus, 1)
	handle.QueryNDEFStatus(func(status nfc.NDEFStatus, capacity int, err error) {
		assert.NoError(t, err)
		assert.Equal(t, 137, capacity)
		statuses <- status
	})
	assert.Equal(t, nfc.NDEFStatusReadWrite, <-statuses)

	handle.WriteNDEF(nfc.NewNDEFMessage(nfc.NewURIRecord("https://example.com")), func(err error) { errs <- err })
	require.NoError(t, <-errs)

	messages := make(chan *nfc.NDEFMessage, 1)
	handle.ReadNDEF(func(msg *nfc.NDEFMessage, err error) {
		assert.NoError(t, err)
		messages <- msg
	})
	msg := <-messages
	require.NotNil(t, msg)
	record, _ := msg.First()
	assert.Equal(t, "https://example.com", record.PayloadString())

	s.Invalidate()
	waitDone(t, s)
	assert.True(t, tag.Called("Disconnect"))

	handle.ReadNDEF(func(_ *nfc.NDEFMessage, err error) { errs <- err })
	assert.ErrorIs(t, <-errs, ErrSessionInvalidated)
}

func TestReaderSession_InvalidateWaitsForInFlightWrite(t *testing.T) {
	device := nfc.NewMockDevice()
	tag := newGatedTag("04AA")
	device.SetTags(tag)

	s, delegate := newTestSession(t, device, Options{})
	s.Begin()
	handle := waitDetected(t, delegate)[0]

	errs := make(chan error, 1)
	s.Connect(handle, func(err error) { errs <- err })
	require.NoError(t, <-errs)

	handle.WriteNDEF(nfc.NewNDEFMessage(nfc.NewTextRecord("pending", "en")), func(err error) { errs <- err })
	waitClosed(t, tag.started, "write to start")

	invalidated := make(chan struct{})
	go func() {
		s.Invalidate()
		close(invalidated)
	}()

	select {
	case <-invalidated:
		t.Fatal("Invalidate returned while a write was using the reader")
	case <-time.After(30 * time.Millisecond):
	}
	assert.False(t, tag.Called("Disconnect"))

	close(tag.release)
	waitClosed(t, invalidated, "Invalidate")
	require.NoError(t, <-errs)

	calls := tag.GetCallLog()
	require.NotEmpty(t, calls)
	assert.Equal(t, "Disconnect", calls[len(calls)-1])
	assert.Equal(t, 1, tag.WriteCount)
}

func TestReaderSession_ConnectForeignTag(t *testing.T) {
	device := nfc.NewMockDevice()
	device.SetTags(nfc.NewMockTag("04AA"))

	first, d1 := newTestSession(t, device, Options{})
	second, d2 := newTestSession(t, device, Options{})
	first.Begin()
	second.Begin()
	foreign := waitDetected(t, d1)[0]
	waitDetected(t, d2)

	errs := make(chan error, 1)
	second.Connect(foreign, func(err error) { errs <- err })
	assert.ErrorIs(t, <-errs, ErrTagNotConnected)
}

func TestInvalidationError_Error(t *testing.T) {
	err := &InvalidationError{Reason: ReasonDeviceError, Message: "NFC reader error", Cause: errors.New("usb")}
	assert.Equal(t, "NFC reader error (device-error): usb", err.Error())

	bare := &InvalidationError{Reason: ReasonTimeout}
	assert.Equal(t, "session invalidated (timeout)", bare.Error())
}
