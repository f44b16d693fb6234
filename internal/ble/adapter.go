// Package ble drives a single BLE peripheral through scan, bond, connect,
// discovery and read/write/notify. Radio access goes through the Adapter
// interface; the Machine serializes every adapter event onto one event loop.
package ble

import (
	"fmt"

	"github.com/google/uuid"
)

// Peripheral identifies a discovered BLE peripheral.
type Peripheral struct {
	Address string
	Name    string
	RSSI    int
}

// CharacteristicRef addresses a characteristic found by service discovery.
type CharacteristicRef struct {
	Service        uuid.UUID
	Characteristic uuid.UUID
}

// Service is one discovered GATT service and its characteristic UUIDs.
type Service struct {
	UUID            uuid.UUID
	Characteristics []uuid.UUID
}

// EventFunc receives adapter events. Implementations must not block.
type EventFunc func(Event)

// Adapter abstracts the platform BLE stack. Every method is fire-and-forget:
// it returns an error only when the request could not be issued, and reports
// completion later through the emit function passed with the call.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports a ScanMatch for every peripheral advertising service
	// until StopScan is called.
	Scan(service uuid.UUID, emit EventFunc) error
	// StopScan ends the current scan. Safe to call when not scanning.
	StopScan() error
	// Bond pairs with the peripheral and reports Bonded or BondFailed.
	Bond(p Peripheral, emit EventFunc) error
	// Connect opens a GATT connection and reports Connected or ConnectFailed.
	// A later link loss is reported as Disconnected through the same emit.
	Connect(p Peripheral, emit EventFunc) error
	// DiscoverServices reports ServicesDiscovered for the current connection.
	DiscoverServices(emit EventFunc) error
	// ReadCharacteristic reports CharacteristicRead.
	ReadCharacteristic(ref CharacteristicRef, emit EventFunc) error
	// WriteCharacteristic reports CharacteristicWritten. data is owned by the
	// adapter once the call returns.
	WriteCharacteristic(ref CharacteristicRef, data []byte, emit EventFunc) error
	// SetNotify enables or disables value-change delivery for ref. While
	// enabled, changes are reported as CharacteristicChanged.
	SetNotify(ref CharacteristicRef, enabled bool, emit EventFunc) error
	// Disconnect releases the transport and reports exactly one Disconnected,
	// whether or not a connection existed.
	Disconnect(emit EventFunc) error
}

// NewAdapter returns the backend named by kind: "tinygo" for the host
// stack or "hci" for raw HCI sockets (Linux only).
func NewAdapter(kind string) (Adapter, error) {
	switch kind {
	case "", "tinygo":
		return NewTinyGoAdapter(), nil
	case "hci":
		return newHCIAdapter()
	default:
		return nil, fmt.Errorf("ble: unknown adapter %q", kind)
	}
}

// Event is an adapter callback. The concrete types below form a closed set.
type Event interface {
	isEvent()
}

// ScanMatch reports a peripheral advertising the scanned service.
type ScanMatch struct {
	Peripheral Peripheral
}

// Bonded reports a completed bond.
type Bonded struct{}

// BondFailed reports a failed bond.
type BondFailed struct {
	Err error
}

// Connected reports an established GATT connection.
type Connected struct{}

// ConnectFailed reports a connection attempt that did not succeed.
type ConnectFailed struct {
	Err error
}

// Disconnected reports that the link is down, either requested or lost.
type Disconnected struct {
	Err error // nil when requested
}

// ServicesDiscovered reports the result of service discovery.
type ServicesDiscovered struct {
	Services []Service
	Err      error
}

// CharacteristicRead reports the outcome of a read.
type CharacteristicRead struct {
	Ref   CharacteristicRef
	Value []byte
	Err   error
}

// CharacteristicWritten reports the outcome of a write.
type CharacteristicWritten struct {
	Ref CharacteristicRef
	Err error
}

// CharacteristicChanged carries a notification or indication value.
type CharacteristicChanged struct {
	Ref   CharacteristicRef
	Value []byte
}

// AdapterError reports an asynchronous failure not tied to another event,
// such as a scan that stopped on its own.
type AdapterError struct {
	Err error
}

func (ScanMatch) isEvent()             {}
func (Bonded) isEvent()                {}
func (BondFailed) isEvent()            {}
func (Connected) isEvent()             {}
func (ConnectFailed) isEvent()         {}
func (Disconnected) isEvent()          {}
func (ServicesDiscovered) isEvent()    {}
func (CharacteristicRead) isEvent()    {}
func (CharacteristicWritten) isEvent() {}
func (CharacteristicChanged) isEvent() {}
func (AdapterError) isEvent()          {}
