package nfc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// PageTag is page level access to an NFC Forum Type 2 tag
// (MIFARE Ultralight, Ultralight C, NTAG21x). freefare.UltralightTag
// satisfies it.
type PageTag interface {
	UID() string
	Connect() error
	Disconnect() error
	ReadPage(page byte) ([4]byte, error)
	WritePage(page byte, data [4]byte) error
}

// type2Tag implements Tag on top of page access, following the NFC Forum
// Type 2 layout: capability container in page 3, TLV data area from page 4.
type type2Tag struct {
	pages     PageTag
	typeName  string
	connected bool
	mu        sync.Mutex
}

var _ Tag = (*type2Tag)(nil)

// NewType2Tag wraps page access in a Tag.
func NewType2Tag(pages PageTag, typeName string) Tag {
	return &type2Tag{pages: pages, typeName: typeName}
}

func (t *type2Tag) UID() string {
	return t.pages.UID()
}

func (t *type2Tag) Type() string {
	return t.typeName
}

func (t *type2Tag) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	if err := t.pages.Connect(); err != nil {
		return WrapError(ErrCodeTagNotConnected, "Connect", "connect failed", err)
	}
	t.connected = true
	return nil
}

func (t *type2Tag) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	return t.pages.Disconnect()
}

// capabilityContainer is the decoded content of page 3.
type capabilityContainer struct {
	magic    byte
	version  byte
	dataSize int // bytes in the data area
	access   byte
}

func (cc capabilityContainer) status() NDEFStatus {
	if cc.magic != type2CCMagic || cc.version>>4 != 1 || cc.dataSize == 0 {
		return NDEFStatusNotSupported
	}
	if cc.access>>4 != 0 {
		return NDEFStatusNotSupported
	}
	if cc.access&0x0F == 0x0F {
		return NDEFStatusReadOnly
	}
	return NDEFStatusReadWrite
}

// maxMessageSize is the largest NDEF message that fits in the data area
// once framed in an NDEF TLV with terminator.
func (cc capabilityContainer) maxMessageSize() int {
	size := cc.dataSize - 3
	if size >= 0xFF {
		size = cc.dataSize - 5
	}
	if size < 0 {
		return 0
	}
	return size
}

func (t *type2Tag) readPage(op string, page byte) ([4]byte, error) {
	data, err := t.pages.ReadPage(page)
	if err != nil {
		if IsTagRemovedError(err) {
			return data, NewTagRemovedError(op, err)
		}
		return data, NewReadError(op, t.pages.UID(), err)
	}
	return data, nil
}

func (t *type2Tag) readCC(op string) (capabilityContainer, error) {
	page, err := t.readPage(op, type2CCPage)
	if err != nil {
		return capabilityContainer{}, err
	}
	return capabilityContainer{
		magic:    page[0],
		version:  page[1],
		dataSize: int(page[2]) * 8,
		access:   page[3],
	}, nil
}

// staticLocked reports whether the static lock bytes in page 2 lock the whole data area.
func (t *type2Tag) staticLocked(op string) (bool, error) {
	page, err := t.readPage(op, 2)
	if err != nil {
		return false, err
	}
	return page[2] == 0xFF && page[3] == 0xFF, nil
}

func (t *type2Tag) QueryNDEFStatus() (NDEFStatus, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return 0, 0, NewNotConnectedError("QueryNDEFStatus", t.pages.UID())
	}

	cc, err := t.readCC("QueryNDEFStatus")
	if err != nil {
		return 0, 0, err
	}
	status := cc.status()
	if status == NDEFStatusReadWrite {
		locked, err := t.staticLocked("QueryNDEFStatus")
		if err != nil {
			return 0, 0, err
		}
		if locked {
			status = NDEFStatusReadOnly
		}
	}
	if status == NDEFStatusNotSupported {
		return status, 0, nil
	}
	return status, cc.maxMessageSize(), nil
}

func (t *type2Tag) ReadData() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, NewNotConnectedError("ReadData", t.pages.UID())
	}

	cc, err := t.readCC("ReadData")
	if err != nil {
		return nil, err
	}
	if cc.status() == NDEFStatusNotSupported {
		return nil, NewNotSupportedError("ReadData")
	}

	lastPage := type2DataStartPage + (cc.dataSize+type2PageSize-1)/type2PageSize
	area := make([]byte, 0, cc.dataSize)
	for page := type2DataStartPage; page < lastPage; page++ {
		data, err := t.readPage("ReadData", byte(page))
		if err != nil {
			return nil, err
		}
		area = append(area, data[:]...)
		// Stop once the NDEF TLV is complete.
		if msg, ok := TLVFindNDEF(area); ok {
			return append([]byte(nil), msg...), nil
		}
	}

	logrus.WithField("uid", t.pages.UID()).Debug("type2Tag.ReadData: no NDEF Message TLV found")
	return nil, nil
}

func (t *type2Tag) WriteData(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	uid := t.pages.UID()
	if !t.connected {
		return NewNotConnectedError("WriteData", uid)
	}

	cc, err := t.readCC("WriteData")
	if err != nil {
		return err
	}
	switch cc.status() {
	case NDEFStatusNotSupported:
		return NewNotSupportedError("WriteData")
	case NDEFStatusReadOnly:
		return &NFCError{Code: ErrCodeReadOnly, Op: "WriteData", TagUID: uid, Message: "tag is read-only"}
	}
	if locked, err := t.staticLocked("WriteData"); err != nil {
		return err
	} else if locked {
		return &NFCError{Code: ErrCodeReadOnly, Op: "WriteData", TagUID: uid, Message: "tag is locked"}
	}
	if len(data) > cc.maxMessageSize() {
		return &NFCError{
			Code:    ErrCodeCapacityExceeded,
			Op:      "WriteData",
			TagUID:  uid,
			Message: "NDEF message exceeds tag capacity",
		}
	}

	framed, err := TLVEncode(data, TLVNDEF)
	if err != nil {
		return err
	}
	for offset, page := 0, type2DataStartPage; offset < len(framed); page++ {
		var chunk [4]byte
		offset += copy(chunk[:], framed[offset:])
		if err := t.pages.WritePage(byte(page), chunk); err != nil {
			if IsTagRemovedError(err) {
				return NewTagRemovedError("WriteData", err)
			}
			return NewWriteError("WriteData", uid, err)
		}
	}

	logrus.WithFields(logrus.Fields{"uid": uid, "bytes": len(data)}).Debug("type2Tag.WriteData: NDEF message written")
	return nil
}
