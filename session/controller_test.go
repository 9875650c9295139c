package session

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-nfc-writer/dispatch"
	"github.com/nedpals/davi-nfc-writer/nfc"
)

const waitTimeout = 2 * time.Second

type harness struct {
	manager *nfc.MockManager
	devices *nfc.DeviceManager
	ctrl    *Controller
	events  chan Event
}

func newHarness(t *testing.T, cfg Config, opts Options) *harness {
	t.Helper()

	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	if opts.Timeout == 0 {
		opts.Timeout = waitTimeout
	}

	manager := nfc.NewMockManager()
	devices := nfc.NewDeviceManager(manager, "mock:usb:001")
	sessionQueue := dispatch.NewQueue("session")
	uiQueue := dispatch.NewQueue("ui")
	t.Cleanup(uiQueue.Close)
	t.Cleanup(sessionQueue.Close)

	ctrl := NewController(NewDeviceStarter(devices, sessionQueue, opts), uiQueue, cfg)
	t.Cleanup(ctrl.Close)

	h := &harness{
		manager: manager,
		devices: devices,
		ctrl:    ctrl,
		events:  make(chan Event, 64),
	}
	ctrl.Subscribe(func(ev Event) { h.events <- ev })
	return h
}

func (h *harness) device() *nfc.MockDevice {
	return h.manager.MockDevice
}

func (h *harness) placeTag(tags ...nfc.Tag) {
	h.device().SetTags(tags...)
}

func (h *harness) waitOutcome(t *testing.T) *Outcome {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == EventOutcome {
				return ev.Outcome
			}
		case <-deadline:
			t.Fatal("timed out waiting for session outcome")
			return nil
		}
	}
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !h.ctrl.Active() }, waitTimeout, 5*time.Millisecond)
}

func textTag(t *testing.T, text string) *nfc.MockTag {
	t.Helper()
	tag := nfc.NewMockTag("04A1B2C3")
	data, err := nfc.NewNDEFMessage(nfc.NewTextRecord(text, "en")).Encode()
	require.NoError(t, err)
	tag.Data = data
	return tag
}

func TestController_ReadPublishesFirstRecord(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := nfc.NewMockTag("04A1B2C3")
	data, err := nfc.NewNDEFMessage(
		nfc.NewTextRecord("hello", "en"),
		nfc.NewTextRecord("second", "en"),
	).Encode()
	require.NoError(t, err)
	tag.Data = data
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartReading())
	assert.Equal(t, OperationRead, h.ctrl.Operation())

	outcome := h.waitOutcome(t)
	assert.True(t, outcome.Success)
	assert.Equal(t, "Reading succeeded: hello", outcome.Message)
	assert.Equal(t, "hello", outcome.Value)
	assert.Equal(t, "04A1B2C3", outcome.TagUID)
	assert.Equal(t, "read", outcome.Operation)

	select {
	case ev := <-h.events:
		require.Equal(t, EventTagMessage, ev.Type)
		assert.Equal(t, "hello", ev.TagMessage)
	case <-time.After(waitTimeout):
		t.Fatal("tag message was not published")
	}
	assert.Equal(t, "hello", h.ctrl.TagMessage())

	h.waitIdle(t)
	assert.True(t, tag.Called("Disconnect"))
	assert.False(t, tag.Called("WriteData"))
}

func TestController_ReadRawPayload(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := nfc.NewMockTag("04A1B2C3")
	data, err := nfc.NewNDEFMessage(nfc.NDEFRecord{
		TNF:     nfc.TNFMIMEMedia,
		Type:    []byte("text/plain"),
		Payload: []byte("raw text"),
	}).Encode()
	require.NoError(t, err)
	tag.Data = data
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartReading())
	outcome := h.waitOutcome(t)
	assert.True(t, outcome.Success)
	assert.Equal(t, "raw text", outcome.Value)
}

func TestController_NonReadWriteStatusInvalidates(t *testing.T) {
	tests := []struct {
		name    string
		status  nfc.NDEFStatus
		message string
	}{
		{"not supported", nfc.NDEFStatusNotSupported, "Tag is not NDEF compatible"},
		{"read-only", nfc.NDEFStatusReadOnly, "Tag is read-only"},
		{"unknown", nfc.NDEFStatus(99), "Unknown NDEF status"},
	}

	for _, tt := range tests {
		for _, op := range []Operation{OperationRead, OperationWriteText, OperationWriteURL, OperationWriteDeeplink} {
			t.Run(tt.name+"/"+op.String(), func(t *testing.T) {
				h := newHarness(t, Config{}, Options{})
				tag := textTag(t, "existing")
				tag.Status = tt.status
				h.placeTag(tag)

				require.NoError(t, h.ctrl.Start(op, "new message"))
				outcome := h.waitOutcome(t)
				assert.False(t, outcome.Success)
				assert.Equal(t, tt.message, outcome.Message)

				h.waitIdle(t)
				assert.False(t, tag.Called("ReadData"))
				assert.False(t, tag.Called("WriteData"))
			})
		}
	}
}

func TestController_SessionErrors(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		message string
		setup   func(tag *nfc.MockTag)
		want    string
	}{
		{
			name:  "connect error",
			op:    OperationRead,
			setup: func(tag *nfc.MockTag) { tag.ConnectError = errors.New("no response") },
			want:  "Connection error: no response",
		},
		{
			name:  "status query error",
			op:    OperationRead,
			setup: func(tag *nfc.MockTag) { tag.QueryStatusError = errors.New("io") },
			want:  "Error checking NDEF status",
		},
		{
			name:  "read error",
			op:    OperationRead,
			setup: func(tag *nfc.MockTag) { tag.ReadDataError = errors.New("crc mismatch") },
			want:  "Reading error: crc mismatch",
		},
		{
			name:  "empty tag",
			op:    OperationRead,
			setup: func(tag *nfc.MockTag) { tag.Data = nil },
			want:  "No records found",
		},
		{
			name:  "write error",
			op:    OperationWriteText,
			setup: func(tag *nfc.MockTag) { tag.WriteDataError = errors.New("nack") },
			want:  "Writing error: nack",
		},
		{
			name:    "malformed data",
			op:      OperationRead,
			message: "",
			setup:   func(tag *nfc.MockTag) { tag.Data = []byte{0x51, 0x01} },
			want:    "Reading error:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, Options{})
			tag := textTag(t, "existing")
			tt.setup(tag)
			h.placeTag(tag)

			require.NoError(t, h.ctrl.Start(tt.op, "payload"))
			outcome := h.waitOutcome(t)
			assert.False(t, outcome.Success)
			assert.True(t, strings.HasPrefix(outcome.Message, tt.want), "got %q", outcome.Message)
			h.waitIdle(t)
		})
	}
}

func TestController_WriteText(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := textTag(t, "old")
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartWriting("hi there"))
	outcome := h.waitOutcome(t)
	require.True(t, outcome.Success, outcome.Message)
	assert.Equal(t, "Writing succeeded", outcome.Message)
	assert.Equal(t, "hi there", outcome.Value)
	assert.Equal(t, "write", outcome.Operation)

	h.waitIdle(t)
	assert.Equal(t, 1, tag.WriteCount)

	msg, err := tag.Message()
	require.NoError(t, err)
	require.Equal(t, 1, msg.Len())
	record, _ := msg.First()
	assert.True(t, record.IsTextRecord())
	assert.Equal(t, "en", record.Language())
	text, err := record.Text()
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
}

func TestController_WriteTextLanguage(t *testing.T) {
	h := newHarness(t, Config{Language: "es"}, Options{})
	tag := textTag(t, "old")
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartWriting("hola"))
	require.True(t, h.waitOutcome(t).Success)
	h.waitIdle(t)

	msg, err := tag.Message()
	require.NoError(t, err)
	record, _ := msg.First()
	assert.Equal(t, "es", record.Language())
}

func TestController_WriteEmptyMessage(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := textTag(t, "old")
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartWriting(""))
	outcome := h.waitOutcome(t)
	assert.False(t, outcome.Success)
	assert.Equal(t, "No message to write", outcome.Message)
	h.waitIdle(t)
	assert.False(t, tag.Called("WriteData"))
}

func TestController_WriteURLAndDeeplink(t *testing.T) {
	tests := []struct {
		name  string
		start func(c *Controller) error
		want  string
	}{
		{"url", (*Controller).StartWritingURL, DefaultWriteURL},
		{"deeplink", (*Controller).StartWritingDeeplink, DefaultDeeplinkURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, Options{})
			tag := textTag(t, "old")
			h.placeTag(tag)

			require.NoError(t, tt.start(h.ctrl))
			outcome := h.waitOutcome(t)
			require.True(t, outcome.Success, outcome.Message)
			assert.Equal(t, "Writing succeeded", outcome.Message)
			assert.Equal(t, tt.want, outcome.Value)
			h.waitIdle(t)

			msg, err := tag.Message()
			require.NoError(t, err)
			require.Equal(t, 1, msg.Len())
			record, _ := msg.First()
			assert.True(t, record.IsURIRecord())
			uri, err := record.URI()
			require.NoError(t, err)
			assert.Equal(t, tt.want, uri)
		})
	}
}

func TestController_InvalidURLNeverWrites(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		op   Operation
	}{
		{"relative url", Config{WriteURL: "portfolio/index.html"}, OperationWriteURL},
		{"unparsable url", Config{WriteURL: "http://[::1"}, OperationWriteURL},
		{"deeplink without host", Config{DeeplinkURL: "nfcreader://"}, OperationWriteDeeplink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, Options{})
			tag := textTag(t, "old")
			h.placeTag(tag)

			require.NoError(t, h.ctrl.Start(tt.op, ""))
			outcome := h.waitOutcome(t)
			assert.False(t, outcome.Success)
			assert.Equal(t, "Could not create the NDEF payload", outcome.Message)
			h.waitIdle(t)
			assert.False(t, tag.Called("WriteData"))
		})
	}
}

func TestController_OnlyFirstTagIsUsed(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	first := textTag(t, "first")
	second := textTag(t, "second")
	second.TagUID = "04FFFFFF"
	h.placeTag(first, second)

	require.NoError(t, h.ctrl.StartReading())
	outcome := h.waitOutcome(t)
	assert.Equal(t, "first", outcome.Value)
	h.waitIdle(t)
	assert.Empty(t, second.GetCallLog())
}

func TestController_NoRetryAfterFailure(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := textTag(t, "old")
	tag.WriteDataError = errors.New("nack")
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartWriting("new"))
	assert.False(t, h.waitOutcome(t).Success)
	h.waitIdle(t)

	polls := h.device().PollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polls, h.device().PollCount(), "session kept polling after invalidation")

	connects := 0
	writes := 0
	for _, call := range tag.GetCallLog() {
		if call == "Connect" {
			connects++
		}
		if strings.HasPrefix(call, "WriteData") {
			writes++
		}
	}
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, writes)
}

func TestController_NewStartSupersedesActiveSession(t *testing.T) {
	h := newHarness(t, Config{}, Options{})

	require.NoError(t, h.ctrl.StartReading())
	require.True(t, h.ctrl.Active())

	require.NoError(t, h.ctrl.StartWritingURL())
	assert.Equal(t, OperationWriteURL, h.ctrl.Operation())

	tag := textTag(t, "old")
	h.placeTag(tag)

	outcome := h.waitOutcome(t)
	require.True(t, outcome.Success, outcome.Message)
	assert.Equal(t, "writeURL", outcome.Operation)
	h.waitIdle(t)

	assert.False(t, tag.Called("ReadData"))
	assert.Equal(t, 1, tag.WriteCount)
	assert.Empty(t, h.ctrl.TagMessage())

	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event after outcome: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestController_SupersededCallbacksIgnored(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := textTag(t, "slow")
	tag.OperationDelay = 50 * time.Millisecond
	h.placeTag(tag)

	require.NoError(t, h.ctrl.StartReading())
	require.Eventually(t, func() bool { return tag.Called("ReadData") || tag.Called("QueryNDEFStatus") }, waitTimeout, time.Millisecond)

	// The read is still in flight. Replace the tag so the next session finds a new one.
	next := textTag(t, "fresh")
	next.TagUID = "04BBBBBB"
	h.placeTag(next)
	require.NoError(t, h.ctrl.StartReading())

	outcome := h.waitOutcome(t)
	assert.Equal(t, "04BBBBBB", outcome.TagUID)
	assert.Equal(t, "fresh", outcome.Value)
	h.waitIdle(t)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "fresh", h.ctrl.TagMessage())
}

func TestController_SupersedeDuringWrite(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	tag := newGatedTag("04A1B2C3")

	var overlapping atomic.Int32
	h.device().GetTagsFunc = func() ([]nfc.Tag, error) {
		if tag.inFlight.Load() {
			overlapping.Add(1)
		}
		return []nfc.Tag{tag}, nil
	}

	require.NoError(t, h.ctrl.StartWriting("first"))
	waitClosed(t, tag.started, "write to start")

	started := make(chan error, 1)
	go func() { started <- h.ctrl.StartReading() }()

	select {
	case err := <-started:
		t.Fatalf("read session started while the write held the reader (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(tag.release)
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("StartReading did not return after the write finished")
	}

	// The superseded write publishes nothing; the read sees what it wrote.
	outcome := h.waitOutcome(t)
	assert.Equal(t, "read", outcome.Operation)
	require.True(t, outcome.Success, outcome.Message)
	assert.Equal(t, "first", outcome.Value)
	h.waitIdle(t)

	assert.Zero(t, overlapping.Load())
	assert.Equal(t, 1, tag.WriteCount)
	assert.Equal(t, OperationRead, h.ctrl.Operation())

	select {
	case ev := <-h.events:
		if ev.Type == EventOutcome {
			t.Fatalf("unexpected second outcome: %+v", ev.Outcome)
		}
	case <-time.After(30 * time.Millisecond):
	}
}

func TestController_StartDoesNotBlockState(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	opened := make(chan struct{})
	release := make(chan struct{})
	h.manager.OpenDeviceFunc = func(path string) (nfc.Device, error) {
		close(opened)
		<-release
		return h.device(), nil
	}

	started := make(chan error, 1)
	go func() { started <- h.ctrl.StartReading() }()
	waitClosed(t, opened, "device open")

	done := make(chan struct{})
	go func() {
		h.ctrl.TagMessage()
		h.ctrl.Active()
		close(done)
	}()
	waitClosed(t, done, "controller state while the reader opens")

	close(release)
	require.NoError(t, <-started)
	assert.True(t, h.ctrl.Active())
}

func TestController_Timeout(t *testing.T) {
	h := newHarness(t, Config{}, Options{Timeout: 40 * time.Millisecond})

	require.NoError(t, h.ctrl.StartReading())
	outcome := h.waitOutcome(t)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Session timeout", outcome.Message)
	h.waitIdle(t)
}

func TestController_DeviceErrorResetsReader(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	h.device().GetTagsError = errors.New("usb gone")

	require.NoError(t, h.ctrl.StartReading())
	outcome := h.waitOutcome(t)
	assert.False(t, outcome.Success)
	assert.Equal(t, "NFC reader error", outcome.Message)
	h.waitIdle(t)
	assert.False(t, h.devices.HasDevice())
}

func TestController_ReadingUnavailable(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	h.manager.OpenDeviceError = errors.New("no reader")

	err := h.ctrl.StartReading()
	assert.ErrorIs(t, err, ErrReadingUnavailable)
	assert.False(t, h.ctrl.Active())
}

func TestController_Closed(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	require.NoError(t, h.ctrl.StartReading())

	h.ctrl.Close()
	assert.ErrorIs(t, h.ctrl.StartReading(), ErrControllerClosed)
	h.waitIdle(t)
}

func TestController_Unsubscribe(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	extra := make(chan Event, 4)
	unsubscribe := h.ctrl.Subscribe(func(ev Event) { extra <- ev })
	unsubscribe()

	h.placeTag(textTag(t, "x"))
	require.NoError(t, h.ctrl.StartReading())
	h.waitOutcome(t)
	h.waitIdle(t)

	assert.Empty(t, extra)
}

func TestParseAbsoluteURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"https://javios.eu/portfolio/", false},
		{"nfcreader://jca.nfcreader.open", false},
		{"tel:+15551234", false},
		{"/relative/path", true},
		{"nfcreader://", true},
		{"http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := parseAbsoluteURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, u.String())
		})
	}
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "read", OperationRead.String())
	assert.Equal(t, "write", OperationWriteText.String())
	assert.Equal(t, "writeURL", OperationWriteURL.String())
	assert.Equal(t, "writeDeeplink", OperationWriteDeeplink.String())
	assert.Equal(t, "unknown", Operation(42).String())
	assert.False(t, OperationRead.IsWrite())
	assert.True(t, OperationWriteDeeplink.IsWrite())
}
