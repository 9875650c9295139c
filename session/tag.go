package session

import (
	"github.com/nedpals/davi-nfc-writer/nfc"
)

// Tag is a tag detected by a ReaderSession. Its operations require the
// session to be connected to it and report back on the session queue.
type Tag struct {
	session *ReaderSession
	tag     nfc.Tag
}

// UID returns the tag UID as uppercase hex.
func (t *Tag) UID() string {
	return t.tag.UID()
}

// Type returns the tag type name.
func (t *Tag) Type() string {
	return t.tag.Type()
}

// QueryNDEFStatus reports the tag's NDEF status and capacity in bytes.
func (t *Tag) QueryNDEFStatus(cb func(status nfc.NDEFStatus, capacity int, err error)) {
	go func() {
		var (
			status   nfc.NDEFStatus
			capacity int
		)
		err := t.session.withTag(t, func() (err error) {
			status, capacity, err = t.tag.QueryNDEFStatus()
			return err
		})
		t.session.deliver(func() { cb(status, capacity, err) })
	}()
}

// ReadNDEF reads the tag's NDEF message. An empty tag yields a nil message
// and no error.
func (t *Tag) ReadNDEF(cb func(msg *nfc.NDEFMessage, err error)) {
	go func() {
		msg, err := t.readNDEF()
		t.session.deliver(func() { cb(msg, err) })
	}()
}

func (t *Tag) readNDEF() (*nfc.NDEFMessage, error) {
	var data []byte
	err := t.session.withTag(t, func() (err error) {
		data, err = t.tag.ReadData()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return nfc.DecodeNDEF(data)
}

// WriteNDEF replaces the tag's NDEF message.
func (t *Tag) WriteNDEF(msg *nfc.NDEFMessage, cb func(err error)) {
	go func() {
		err := t.writeNDEF(msg)
		t.session.deliver(func() { cb(err) })
	}()
}

func (t *Tag) writeNDEF(msg *nfc.NDEFMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return t.session.withTag(t, func() error {
		return t.tag.WriteData(data)
	})
}
