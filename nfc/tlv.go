package nfc

// TLV block types found in the data area of NFC Forum tags.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// TLVMaxLength is the largest value the three byte length form can carry.
const TLVMaxLength = 0xFFFF

// TLVEncode frames data as a single TLV followed by a Terminator TLV.
// Lengths of 0xFF and above use the three byte form (0xFF + big endian uint16).
// Data longer than TLVMaxLength is rejected.
func TLVEncode(data []byte, tlvType byte) ([]byte, error) {
	length := len(data)
	if length > TLVMaxLength {
		return nil, Errorf(ErrCodeCapacityExceeded, "TLVEncode", "TLV value of %d bytes exceeds %d", length, TLVMaxLength)
	}
	result := make([]byte, 0, len(data)+5)
	result = append(result, tlvType)
	if length < 0xFF {
		result = append(result, byte(length))
	} else {
		result = append(result, 0xFF, byte(length>>8), byte(length))
	}
	result = append(result, data...)
	return append(result, TLVTerminator), nil
}

// TLVEncodedSize returns the number of bytes TLVEncode produces for n bytes of data.
func TLVEncodedSize(n int) int {
	if n < 0xFF {
		return n + 3
	}
	return n + 5
}

// TLVFindNDEF walks the TLV blocks in data and returns the value of the
// first NDEF Message TLV. NULL TLVs are skipped, other TLVs are stepped
// over, and a Terminator ends the search.
func TLVFindNDEF(data []byte) ([]byte, bool) {
	offset := 0
	for offset < len(data) {
		tlvType := data[offset]
		switch tlvType {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false
		}

		lengthStart := offset + 1
		if lengthStart >= len(data) {
			return nil, false
		}

		var length, valueStart int
		if data[lengthStart] == 0xFF {
			if lengthStart+2 >= len(data) {
				return nil, false
			}
			length = int(data[lengthStart+1])<<8 | int(data[lengthStart+2])
			valueStart = lengthStart + 3
		} else {
			length = int(data[lengthStart])
			valueStart = lengthStart + 1
		}

		if valueStart+length > len(data) {
			return nil, false
		}
		if tlvType == TLVNDEF {
			return data[valueStart : valueStart+length], true
		}
		offset = valueStart + length
	}
	return nil, false
}
