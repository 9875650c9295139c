package nfc

// NDEFStatus is the NDEF capability a tag reports.
type NDEFStatus int

const (
	// NDEFStatusNotSupported means the tag cannot hold an NDEF message.
	NDEFStatusNotSupported NDEFStatus = iota + 1
	// NDEFStatusReadWrite means the NDEF message can be read and replaced.
	NDEFStatusReadWrite
	// NDEFStatusReadOnly means the NDEF message can only be read.
	NDEFStatusReadOnly
)

func (s NDEFStatus) String() string {
	switch s {
	case NDEFStatusNotSupported:
		return "not-supported"
	case NDEFStatusReadWrite:
		return "read-write"
	case NDEFStatusReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Tag represents an NFC tag at the hardware protocol level.
//
// Tag exposes the NDEF level operations a reader session needs: connect,
// query the NDEF capability, and read or replace the raw NDEF message.
//
// Example:
//
//	tags, _ := device.GetTags()
//	tag := tags[0]
//	_ = tag.Connect()
//	defer tag.Disconnect()
//	status, capacity, _ := tag.QueryNDEFStatus()
//	if status == nfc.NDEFStatusReadWrite {
//	    data, _ := tag.ReadData()
//	    msg, _ := nfc.DecodeNDEF(data)
//	}
type Tag interface {
	UID() string
	Type() string
	Connect() error
	Disconnect() error
	// QueryNDEFStatus reports the NDEF capability and the maximum
	// NDEF message size in bytes.
	QueryNDEFStatus() (NDEFStatus, int, error)
	// ReadData returns the raw NDEF message bytes, or nil for an empty tag.
	ReadData() ([]byte, error)
	// WriteData replaces the NDEF message with the given raw bytes.
	WriteData(data []byte) error
}
