package session

// Operation is what a session does once it finds a read-write tag.
type Operation int

const (
	OperationRead Operation = iota
	OperationWriteText
	OperationWriteURL
	OperationWriteDeeplink
)

func (o Operation) String() string {
	switch o {
	case OperationRead:
		return "read"
	case OperationWriteText:
		return "write"
	case OperationWriteURL:
		return "writeURL"
	case OperationWriteDeeplink:
		return "writeDeeplink"
	default:
		return "unknown"
	}
}

// IsWrite reports whether the operation replaces the tag content.
func (o Operation) IsWrite() bool {
	return o != OperationRead
}
