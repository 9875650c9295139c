package nfc

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeviceManager owns the connection to a single NFC device. The device is
// opened lazily on first use and dropped after errors so the next session
// reopens it.
//
// libnfc handles are not safe for concurrent use. Callers hold the lease
// (Lock/Unlock) around every poll and tag operation; switching or closing
// the device waits for it.
type DeviceManager struct {
	manager    Manager
	device     Device
	devicePath string

	lease sync.Mutex
	mu    sync.Mutex
}

// NewDeviceManager creates a new DeviceManager for managing an NFC device connection.
// An empty devicePath selects the first device libnfc finds.
func NewDeviceManager(manager Manager, devicePath string) *DeviceManager {
	return &DeviceManager{
		manager:    manager,
		devicePath: devicePath,
	}
}

// DevicePath returns the path of the device being managed.
func (dm *DeviceManager) DevicePath() string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.devicePath
}

// HasDevice returns true if a device is currently open.
func (dm *DeviceManager) HasDevice() bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.device != nil
}

// Lock takes exclusive use of the device and the tags it reports.
func (dm *DeviceManager) Lock() {
	dm.lease.Lock()
}

// Unlock releases the lease taken by Lock.
func (dm *DeviceManager) Unlock() {
	dm.lease.Unlock()
}

// Acquire returns the open device, opening and initializing it if needed.
func (dm *DeviceManager) Acquire() (Device, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device != nil {
		return dm.device, nil
	}

	devicePath := dm.devicePath
	if devicePath == "" {
		devices, err := dm.manager.ListDevices()
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no NFC devices found")
		}
		devicePath = devices[0]
	}

	dev, err := dm.manager.OpenDevice(devicePath)
	if err != nil {
		return nil, fmt.Errorf("open device %q: %w", devicePath, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("initialize device %q: %w", devicePath, err)
	}

	logrus.WithFields(logrus.Fields{
		"device":     dev.String(),
		"connection": dev.Connection(),
	}).Info("Connected NFC device")

	dm.device = dev
	return dev, nil
}

// Reset closes the current device after an error; the next Acquire reopens it.
func (dm *DeviceManager) Reset(cause error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device == nil {
		return
	}
	logrus.WithError(cause).Warn("Resetting NFC device")
	if err := dm.device.Close(); err != nil {
		logrus.WithError(err).Debug("Error closing device during reset")
	}
	dm.device = nil
}

// SetDevicePath switches to another device, closing the current one.
func (dm *DeviceManager) SetDevicePath(path string) {
	dm.lease.Lock()
	defer dm.lease.Unlock()
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.devicePath == path {
		return
	}
	if dm.device != nil {
		dm.device.Close()
		dm.device = nil
	}
	dm.devicePath = path
}

// ListDevices lists the devices visible to the underlying manager.
func (dm *DeviceManager) ListDevices() ([]string, error) {
	dm.lease.Lock()
	defer dm.lease.Unlock()
	return dm.manager.ListDevices()
}

// Close releases the device once the current lease holder is done.
func (dm *DeviceManager) Close() error {
	dm.lease.Lock()
	defer dm.lease.Unlock()
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.device == nil {
		return nil
	}
	err := dm.device.Close()
	dm.device = nil
	return err
}
