package hid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/pleimann/gazeboard/internal/utils"
)

var ErrDeviceClosed = errors.New("device closed")

// Device is an open assistive switch
type Device struct {
	vendorID  uint16
	productID uint16
	parse     ReportParser
	device    *hid.Device
	mu        sync.Mutex
	closed    bool
}

// NewDevice opens the switch with the given vendor and product IDs
func NewDevice(vendorID, productID uint16, parse ReportParser) (*Device, error) {
	if parse == nil {
		parse = ParseEvent
	}
	devices := hid.Enumerate(vendorID, productID)
	if len(devices) == 0 {
		if len(hid.Enumerate(0, 0)) == 0 {
			return nil, fmt.Errorf("no HID devices found on system - check USB connection")
		}
		return nil, fmt.Errorf("no switch found with VendorID=0x%04X, ProductID=0x%04X\n"+
			"  Run '%s list-devices' to see available devices\n"+
			"  Run '%s set-switch' to pick the switch",
			vendorID, productID, utils.ExecutableName(), utils.ExecutableName())
	}

	// Some devices expose several interfaces and not all of them can be opened
	dev, err := openFirst(devices)
	if err != nil {
		return nil, fmt.Errorf("failed to open switch 0x%04X:0x%04X: %w\n"+
			"  This may be a permissions issue. On Linux, add a udev rule granting\n"+
			"  your user access to the device; on macOS allow your terminal under\n"+
			"  System Settings > Privacy & Security > Input Monitoring",
			vendorID, productID, err)
	}

	return &Device{
		vendorID:  vendorID,
		productID: productID,
		parse:     parse,
		device:    dev,
	}, nil
}

func openFirst(devices []hid.DeviceInfo) (*hid.Device, error) {
	var lastErr error
	for _, info := range devices {
		dev, err := info.Open()
		if err == nil {
			return dev, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close closes the device
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.device != nil {
		return d.device.Close()
	}
	return nil
}

// ReadEvents reads reports until ctx is done or the device fails.
// Reports that do not parse are skipped.
func (d *Device) ReadEvents(ctx context.Context, events chan<- Event) error {
	buf := make([]byte, 64)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return ErrDeviceClosed
		}
		dev := d.device
		d.mu.Unlock()

		n, err := dev.Read(buf)
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}
		if n == 0 {
			continue
		}

		event, err := d.parse(buf[:n])
		if err != nil {
			continue
		}

		select {
		case events <- *event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reconnect reopens the device after it was unplugged
func (d *Device) Reconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		d.device.Close()
		d.device = nil
	}
	d.closed = false

	devices := hid.Enumerate(d.vendorID, d.productID)
	if len(devices) == 0 {
		return fmt.Errorf("device not found")
	}
	dev, err := openFirst(devices)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	d.device = dev
	return nil
}

// WaitForDevice polls until the device can be reopened
func (d *Device) WaitForDevice(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Reconnect(); err == nil {
				return nil
			}
		}
	}
}
