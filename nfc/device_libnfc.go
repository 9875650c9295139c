package nfc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
	"github.com/sirupsen/logrus"
)

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	return d.device.InitiatorInit()
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// GetTags polls the field once. Freefare-known tags come first; remaining
// ISO14443A targets are reported as unsupported so the caller can tell the
// user why nothing happened.
func (d *libnfcDevice) GetTags() ([]Tag, error) {
	var found []Tag
	seen := make(map[string]bool)

	ffTags, ffErr := freefare.GetTags(d.device)
	if ffErr != nil {
		logrus.WithError(ffErr).Debug("freefare.GetTags failed")
	}
	for _, ffTag := range ffTags {
		uid := strings.ToUpper(ffTag.UID())
		if seen[uid] {
			continue
		}
		seen[uid] = true

		switch t := ffTag.(type) {
		case freefare.UltralightTag:
			found = append(found, NewType2Tag(t, ultralightTypeName(t)))
		case freefare.ClassicTag:
			name := CardTypeMifareClassic1K
			if t.Type() == freefare.Classic4k {
				name = CardTypeMifareClassic4K
			}
			found = append(found, NewUnsupportedTag(uid, name))
		case freefare.DESFireTag:
			found = append(found, NewUnsupportedTag(uid, CardTypeDesfire))
		default:
			logrus.WithField("uid", uid).Debugf("Found other Freefare tag: %T", t)
			found = append(found, NewUnsupportedTag(uid, CardTypeUnknown))
		}
	}

	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	targets, listErr := d.device.InitiatorListPassiveTargets(modulation)
	if listErr != nil {
		if ffErr != nil && len(found) == 0 {
			return nil, fmt.Errorf("error from freefare (%v) and passive targets (%w)", ffErr, listErr)
		}
		logrus.WithError(listErr).Debug("Error listing passive targets")
		return found, nil
	}
	for _, target := range targets {
		isoA, ok := target.(*nfc.ISO14443aTarget)
		if !ok || isoA.UIDLen == 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		uid := strings.ToUpper(hex.EncodeToString(isoA.UID[:isoA.UIDLen]))
		if seen[uid] {
			continue
		}
		seen[uid] = true
		found = append(found, NewUnsupportedTag(uid, CardTypeUnknown))
	}

	return found, nil
}

func ultralightTypeName(t freefare.UltralightTag) string {
	if t.Type() == freefare.UltralightC {
		return CardTypeMifareUltralightC
	}
	return CardTypeMifareUltralight
}
