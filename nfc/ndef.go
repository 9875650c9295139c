package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Type Name Format values (lower 3 bits of the record header).
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMIMEMedia   byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// Record header flags.
const (
	flagMB  byte = 0x80 // Message Begin
	flagME  byte = 0x40 // Message End
	flagCF  byte = 0x20 // Chunk Flag
	flagSR  byte = 0x10 // Short Record
	flagIL  byte = 0x08 // ID Length present
	maskTNF byte = 0x07
)

// DefaultLanguage is used for Text records when no language code is given.
const DefaultLanguage = "en"

// Well-known record type names.
var (
	RTDText = []byte("T")
	RTDURI  = []byte("U")
)

// uriPrefixes is the NFC Forum URI RTD abbreviation table, indexed by identifier code.
var uriPrefixes = [...]string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// NDEFRecord represents a single NDEF record within a message.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// NewTextRecord builds a well-known Text record with UTF-8 encoding.
func NewTextRecord(text, lang string) NDEFRecord {
	return NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    RTDText,
		Payload: MakeTextRecordPayload(text, lang),
	}
}

// NewURIRecord builds a well-known URI record, abbreviating the longest known prefix.
func NewURIRecord(uri string) NDEFRecord {
	return NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    RTDURI,
		Payload: MakeURIRecordPayload(uri),
	}
}

// IsTextRecord returns true if this is a Text Record.
func (r NDEFRecord) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == string(RTDText)
}

// IsURIRecord returns true if this is a URI Record.
func (r NDEFRecord) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && string(r.Type) == string(RTDURI)
}

// Text decodes a Text record payload.
func (r NDEFRecord) Text() (string, error) {
	if !r.IsTextRecord() {
		return "", Errorf(ErrCodeInvalidData, "Text", "record is not a text record (tnf=%d, type=%q)", r.TNF, r.Type)
	}
	return parseTextRecordPayload(r.Payload)
}

// Language returns the language code of a Text record, or "" for other records.
func (r NDEFRecord) Language() string {
	if !r.IsTextRecord() || len(r.Payload) == 0 {
		return ""
	}
	langLen := int(r.Payload[0] & 0x3F)
	if 1+langLen > len(r.Payload) {
		return ""
	}
	return string(r.Payload[1 : 1+langLen])
}

// URI decodes a URI record payload, expanding the prefix abbreviation.
func (r NDEFRecord) URI() (string, error) {
	if !r.IsURIRecord() {
		return "", Errorf(ErrCodeInvalidData, "URI", "record is not a URI record (tnf=%d, type=%q)", r.TNF, r.Type)
	}
	return parseURIRecordPayload(r.Payload)
}

// PayloadString returns the record's payload as display text.
// Text and URI records are decoded per their RTD; anything else is taken
// as raw UTF-8. Records that do not decode to valid UTF-8 yield "".
func (r NDEFRecord) PayloadString() string {
	switch {
	case r.IsTextRecord():
		text, err := r.Text()
		if err != nil {
			return ""
		}
		return text
	case r.IsURIRecord():
		uri, err := r.URI()
		if err != nil {
			return ""
		}
		return uri
	}
	if !utf8.Valid(r.Payload) {
		return ""
	}
	return string(r.Payload)
}

// NDEFMessage is an ordered list of NDEF records.
type NDEFMessage struct {
	records []NDEFRecord
}

// NewNDEFMessage creates a message holding the given records.
func NewNDEFMessage(records ...NDEFRecord) *NDEFMessage {
	return &NDEFMessage{records: append([]NDEFRecord(nil), records...)}
}

// Records returns the list of NDEF records in this message.
func (m *NDEFMessage) Records() []NDEFRecord {
	return m.records
}

// Len returns the number of records.
func (m *NDEFMessage) Len() int {
	return len(m.records)
}

// First returns the first record, if any.
func (m *NDEFMessage) First() (NDEFRecord, bool) {
	if m == nil || len(m.records) == 0 {
		return NDEFRecord{}, false
	}
	return m.records[0], true
}

// Encode converts the NDEF message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if m == nil || len(m.records) == 0 {
		return nil, Errorf(ErrCodeInvalidData, "Encode", "cannot encode empty NDEF message")
	}
	return encodeNDEFRecords(m.records)
}

// DecodeNDEF parses raw bytes into an NDEFMessage.
// Returns error if the data is not valid NDEF format.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseNDEFRecords(data)
	if err != nil {
		return nil, err
	}
	return &NDEFMessage{records: records}, nil
}

// MakeTextRecordPayload creates an NDEF Text Record payload with the specified text and language code.
func MakeTextRecordPayload(text, lang string) []byte {
	if lang == "" {
		lang = DefaultLanguage
	}
	langCode := []byte(lang)
	if len(langCode) > 0x3F {
		langCode = langCode[:0x3F]
	}
	payload := make([]byte, 0, 1+len(langCode)+len(text))
	payload = append(payload, byte(len(langCode))) // bit 7 clear: UTF-8
	payload = append(payload, langCode...)
	payload = append(payload, text...)
	return payload
}

// MakeURIRecordPayload creates the payload for an NDEF URI record.
func MakeURIRecordPayload(uri string) []byte {
	code := 0
	for i := 1; i < len(uriPrefixes); i++ {
		p := uriPrefixes[i]
		if strings.HasPrefix(uri, p) && len(p) > len(uriPrefixes[code]) {
			code = i
		}
	}
	rest := uri[len(uriPrefixes[code]):]
	payload := make([]byte, 0, 1+len(rest))
	payload = append(payload, byte(code))
	payload = append(payload, rest...)
	return payload
}

func parseTextRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", Errorf(ErrCodeInvalidData, "Text", "text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLength := int(status & 0x3F)
	isUTF16 := status&0x80 != 0

	textStart := 1 + langLength
	if textStart > len(payload) {
		return "", Errorf(ErrCodeInvalidData, "Text", "text record payload too short (language code or text missing)")
	}
	textBytes := payload[textStart:]

	if !isUTF16 {
		if !utf8.Valid(textBytes) {
			return "", Errorf(ErrCodeInvalidData, "Text", "text record is not valid UTF-8")
		}
		return string(textBytes), nil
	}
	if len(textBytes)%2 != 0 {
		return "", Errorf(ErrCodeInvalidData, "Text", "invalid UTF-16 text length: %d", len(textBytes))
	}
	return decodeUTF16(textBytes), nil
}

// decodeUTF16 honours a byte order mark and defaults to big endian.
func decodeUTF16(b []byte) string {
	var order binary.ByteOrder = binary.BigEndian
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		case b[0] == 0xFF && b[1] == 0xFE:
			order = binary.LittleEndian
			b = b[2:]
		}
	}
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = order.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u16s))
}

func parseURIRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", Errorf(ErrCodeInvalidData, "URI", "URI record payload too short")
	}
	code := int(payload[0])
	prefix := ""
	if code < len(uriPrefixes) {
		prefix = uriPrefixes[code]
	}
	if !utf8.Valid(payload[1:]) {
		return "", Errorf(ErrCodeInvalidData, "URI", "URI record is not valid UTF-8")
	}
	return prefix + string(payload[1:]), nil
}

// parseNDEFRecords parses raw NDEF message bytes into a slice of NDEFRecord structs.
func parseNDEFRecords(data []byte) ([]NDEFRecord, error) {
	if len(data) == 0 {
		return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "empty NDEF message")
	}

	var records []NDEFRecord
	offset := 0

	for offset < len(data) {
		header := data[offset]
		if len(records) == 0 && header&flagMB == 0 {
			return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "first record at offset %d lacks the message begin flag", offset)
		}
		if header&flagCF != 0 {
			return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "chunked records are not supported (offset %d)", offset)
		}
		pos := offset + 1

		if pos >= len(data) {
			return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "truncated type length at offset %d", pos)
		}
		typeLength := int(data[pos])
		pos++

		var payloadLength int
		if header&flagSR != 0 {
			if pos >= len(data) {
				return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "truncated short record payload length at offset %d", pos)
			}
			payloadLength = int(data[pos])
			pos++
		} else {
			if pos+4 > len(data) {
				return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "truncated payload length at offset %d", pos)
			}
			payloadLength = int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
		}

		idLength := 0
		if header&flagIL != 0 {
			if pos >= len(data) {
				return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "truncated ID length at offset %d", pos)
			}
			idLength = int(data[pos])
			pos++
		}

		remaining := len(data) - pos
		if typeLength > remaining || idLength > remaining-typeLength || payloadLength > remaining-typeLength-idLength {
			return nil, Errorf(ErrCodeInvalidData, "DecodeNDEF", "record at offset %d exceeds message bounds", offset)
		}

		record := NDEFRecord{TNF: header & maskTNF}
		record.Type = append([]byte(nil), data[pos:pos+typeLength]...)
		pos += typeLength
		if idLength > 0 {
			record.ID = append([]byte(nil), data[pos:pos+idLength]...)
			pos += idLength
		}
		record.Payload = append([]byte(nil), data[pos:pos+payloadLength]...)
		pos += payloadLength

		records = append(records, record)
		offset = pos

		if header&flagME != 0 {
			break
		}
	}

	return records, nil
}

// encodeNDEFRecords encodes a slice of NDEFRecord structs into raw NDEF message bytes.
func encodeNDEFRecords(records []NDEFRecord) ([]byte, error) {
	var result []byte

	for i, record := range records {
		if len(record.Type) > 0xFF || len(record.ID) > 0xFF {
			return nil, Errorf(ErrCodeInvalidData, "Encode", "record %d: type or id longer than 255 bytes", i)
		}

		header := record.TNF & maskTNF
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(record.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(record.ID) > 0 {
			header |= flagIL
		}

		result = append(result, header, byte(len(record.Type)))
		if short {
			result = append(result, byte(len(record.Payload)))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(len(record.Payload)))
		}
		if len(record.ID) > 0 {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		result = append(result, record.ID...)
		result = append(result, record.Payload...)
	}

	return result, nil
}

// String summarizes the record for logs.
func (r NDEFRecord) String() string {
	return fmt.Sprintf("NDEFRecord{tnf=%d type=%q payload=%d bytes}", r.TNF, r.Type, len(r.Payload))
}
