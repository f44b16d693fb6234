package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/blecentral/internal/ble/protocol"
)

// TinyGoAdapter drives the host BLE stack through tinygo-org/bluetooth
// (CoreBluetooth on macOS, BlueZ over D-Bus on Linux, WinRT on Windows).
// On macOS, peripheral addresses are CoreBluetooth UUIDs, not MAC addresses.
//
// Pairing is handled by the operating system on first encrypted access, so
// Bond reports success immediately.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	device   *bluetooth.Device
	address  string
	linkEmit EventFunc // receives Disconnected when the link drops on its own
	session  uint64    // bumped by Disconnect to orphan in-flight connects
	chars    map[CharacteristicRef]bluetooth.DeviceCharacteristic
}

// NewTinyGoAdapter creates an adapter on the default host controller.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter: bluetooth.DefaultAdapter,
		chars:   make(map[CharacteristicRef]bluetooth.DeviceCharacteristic),
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// tinygo/bluetooth fires this with connected=false when a peripheral
	// drops, including after our own Disconnect. Only unrequested drops of
	// the current device are reported.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		if a.device == nil || a.address != addr {
			a.mu.Unlock()
			return
		}
		emit := a.linkEmit
		a.clearLocked()
		a.mu.Unlock()

		slog.Warn("[BLE] peripheral dropped link", "address", addr)
		if emit != nil {
			emit(Disconnected{Err: errors.New("peripheral disconnected")})
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(service uuid.UUID, emit EventFunc) error {
	filter, err := bluetooth.ParseUUID(service.String())
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	seen := mapset.NewSet()
	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(filter) {
				return
			}
			addr := result.Address.String()
			if !seen.Add(addr) {
				return
			}
			emit(ScanMatch{Peripheral: Peripheral{
				Address: addr,
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			}})
		})
		if err != nil {
			emit(AdapterError{Err: fmt.Errorf("ble: scan: %w", err)})
		}
	}()
	return nil
}

func (a *TinyGoAdapter) StopScan() error {
	if err := a.adapter.StopScan(); err != nil {
		// StopScan fails when no scan is running.
		slog.Debug("[BLE] stop scan", "error", err)
	}
	return nil
}

func (a *TinyGoAdapter) Bond(_ Peripheral, emit EventFunc) error {
	emit(Bonded{})
	return nil
}

func (a *TinyGoAdapter) Connect(p Peripheral, emit EventFunc) error {
	var addr bluetooth.Address
	addr.Set(p.Address)

	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	// Connect blocks internally with its own timeout.
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			emit(ConnectFailed{Err: err})
			return
		}

		a.mu.Lock()
		if a.session != session {
			// Disconnect was requested while we were connecting.
			a.mu.Unlock()
			if err := device.Disconnect(); err != nil {
				slog.Warn("[BLE] drop orphaned connection", "address", p.Address, "error", err)
			}
			return
		}
		a.device = &device
		a.address = p.Address
		a.linkEmit = emit
		a.chars = make(map[CharacteristicRef]bluetooth.DeviceCharacteristic)
		a.mu.Unlock()

		emit(Connected{})
	}()
	return nil
}

func (a *TinyGoAdapter) DiscoverServices(emit EventFunc) error {
	a.mu.Lock()
	device := a.device
	a.mu.Unlock()
	if device == nil {
		return errors.New("ble: not connected")
	}

	go func() {
		services, chars, err := discoverAll(device)
		if err != nil {
			emit(ServicesDiscovered{Err: err})
			return
		}
		a.mu.Lock()
		if a.device == device {
			a.chars = chars
		}
		a.mu.Unlock()
		emit(ServicesDiscovered{Services: services})
	}()
	return nil
}

func discoverAll(device *bluetooth.Device) ([]Service, map[CharacteristicRef]bluetooth.DeviceCharacteristic, error) {
	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ble: discover services: %w", err)
	}

	chars := make(map[CharacteristicRef]bluetooth.DeviceCharacteristic)
	services := make([]Service, 0, len(svcs))
	for _, svc := range svcs {
		svcUUID, err := uuid.Parse(svc.UUID().String())
		if err != nil {
			continue
		}
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("ble: discover characteristics of %s: %w", svcUUID, err)
		}
		s := Service{UUID: svcUUID}
		for _, c := range found {
			charUUID, err := uuid.Parse(c.UUID().String())
			if err != nil {
				continue
			}
			s.Characteristics = append(s.Characteristics, charUUID)
			chars[CharacteristicRef{Service: svcUUID, Characteristic: charUUID}] = c
		}
		services = append(services, s)
	}
	return services, chars, nil
}

func (a *TinyGoAdapter) characteristic(ref CharacteristicRef) (bluetooth.DeviceCharacteristic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.chars[ref]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: characteristic %s not discovered", ref.Characteristic)
	}
	return c, nil
}

func (a *TinyGoAdapter) ReadCharacteristic(ref CharacteristicRef, emit EventFunc) error {
	c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, protocol.MaxAttributeLen)
		n, err := c.Read(buf)
		if err != nil {
			emit(CharacteristicRead{Ref: ref, Err: err})
			return
		}
		emit(CharacteristicRead{Ref: ref, Value: buf[:n]})
	}()
	return nil
}

func (a *TinyGoAdapter) WriteCharacteristic(ref CharacteristicRef, data []byte, emit EventFunc) error {
	c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	go func() {
		_, err := c.Write(data)
		emit(CharacteristicWritten{Ref: ref, Err: err})
	}()
	return nil
}

func (a *TinyGoAdapter) SetNotify(ref CharacteristicRef, enabled bool, emit EventFunc) error {
	c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	if !enabled {
		return c.EnableNotifications(nil)
	}
	return c.EnableNotifications(func(buf []byte) {
		value := make([]byte, len(buf))
		copy(value, buf)
		emit(CharacteristicChanged{Ref: ref, Value: value})
	})
}

func (a *TinyGoAdapter) Disconnect(emit EventFunc) error {
	a.mu.Lock()
	a.session++
	device := a.device
	a.clearLocked()
	a.mu.Unlock()

	if device == nil {
		emit(Disconnected{})
		return nil
	}
	go func() {
		if err := device.Disconnect(); err != nil {
			emit(Disconnected{Err: err})
			return
		}
		emit(Disconnected{})
	}()
	return nil
}

// clearLocked forgets the current connection (caller must hold mu).
func (a *TinyGoAdapter) clearLocked() {
	a.device = nil
	a.address = ""
	a.linkEmit = nil
	a.chars = make(map[CharacteristicRef]bluetooth.DeviceCharacteristic)
}
