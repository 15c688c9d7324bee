package hid

import (
	"fmt"

	"github.com/karalabe/hid"
)

// DeviceInfo describes a HID device that could act as a switch
type DeviceInfo struct {
	VendorID     uint16
	ProductID    uint16
	Path         string
	Manufacturer string
	Product      string
	SerialNumber string
	UsagePage    uint16
	Usage        uint16
}

// Label is a one-line description for pickers
func (d DeviceInfo) Label() string {
	name := d.Product
	if name == "" {
		name = "Unknown device"
	}
	if d.Manufacturer != "" {
		name = d.Manufacturer + " " + name
	}
	return fmt.Sprintf("%s (0x%04X:0x%04X)", name, d.VendorID, d.ProductID)
}

func toInfo(d hid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		VendorID:     d.VendorID,
		ProductID:    d.ProductID,
		Path:         d.Path,
		Manufacturer: d.Manufacturer,
		Product:      d.Product,
		SerialNumber: d.Serial,
		UsagePage:    d.UsagePage,
		Usage:        d.Usage,
	}
}

// ListDevices returns every HID device on the system
func ListDevices() ([]DeviceInfo, error) {
	if !hid.Supported() {
		return nil, fmt.Errorf("HID access is not supported on this platform")
	}
	devices := hid.Enumerate(0, 0)

	result := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		result[i] = toInfo(d)
	}
	return result, nil
}

// FindDevice returns the first device matching the IDs, or nil
func FindDevice(vendorID, productID uint16) *DeviceInfo {
	devices := hid.Enumerate(vendorID, productID)
	if len(devices) == 0 {
		return nil
	}
	info := toInfo(devices[0])
	return &info
}
