package nfc

import "time"

// Card type names reported by Tag.Type.
const (
	CardTypeMifareClassic1K   = "MIFARE Classic 1K"
	CardTypeMifareClassic4K   = "MIFARE Classic 4K"
	CardTypeMifareUltralight  = "MIFARE Ultralight"
	CardTypeMifareUltralightC = "MIFARE Ultralight C"
	CardTypeDesfire           = "DESFire"
	CardTypeUnknown           = "Unknown"
)

// Device enumeration and recovery.
const (
	DeviceEnumRetries    = 3
	DeviceEnumRetryDelay = 100 * time.Millisecond
)

// Type 2 tag memory layout.
const (
	type2PageSize      = 4
	type2CCPage        = 3
	type2DataStartPage = 4
	type2CCMagic       = 0xE1
)
