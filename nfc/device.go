package nfc

// Device represents an NFC reader/writer hardware device.
//
// A Device is obtained from a Manager and polls for tags in its field.
//
// Example:
//
//	manager := nfc.NewManager()
//	device, err := manager.OpenDevice("")
//	defer device.Close()
type Device interface {
	Close() error
	InitiatorInit() error
	String() string
	Connection() string
	GetTags() ([]Tag, error)
}
