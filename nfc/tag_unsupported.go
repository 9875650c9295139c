package nfc

// unsupportedTag represents a detected tag without NDEF support in this
// reader stack (MIFARE Classic, DESFire, unknown ISO14443A targets).
// It still connects so a session can report the status to the user.
type unsupportedTag struct {
	uid       string
	typeName  string
	connected bool
}

var _ Tag = (*unsupportedTag)(nil)

// NewUnsupportedTag creates a Tag that always reports NDEFStatusNotSupported.
func NewUnsupportedTag(uid, typeName string) Tag {
	return &unsupportedTag{uid: uid, typeName: typeName}
}

func (t *unsupportedTag) UID() string  { return t.uid }
func (t *unsupportedTag) Type() string { return t.typeName }

func (t *unsupportedTag) Connect() error {
	t.connected = true
	return nil
}

func (t *unsupportedTag) Disconnect() error {
	t.connected = false
	return nil
}

func (t *unsupportedTag) QueryNDEFStatus() (NDEFStatus, int, error) {
	if !t.connected {
		return 0, 0, NewNotConnectedError("QueryNDEFStatus", t.uid)
	}
	return NDEFStatusNotSupported, 0, nil
}

func (t *unsupportedTag) ReadData() ([]byte, error) {
	return nil, NewNotSupportedError("ReadData")
}

func (t *unsupportedTag) WriteData(data []byte) error {
	return NewNotSupportedError("WriteData")
}
