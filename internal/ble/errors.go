package ble

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chaz8081/blecentral/internal/permission"
)

var (
	ErrPermission             = errors.New("ble: permission not granted")
	ErrUnsupported            = errors.New("ble: bluetooth unsupported or disabled")
	ErrInvalidState           = errors.New("ble: operation not allowed in current state")
	ErrNotReady               = errors.New("ble: session not ready")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
	ErrOperationInProgress    = errors.New("ble: operation already in progress")
	ErrDisconnected           = errors.New("ble: disconnected")
	ErrLinkLost               = errors.New("ble: link lost")
	ErrPayloadTooLarge        = errors.New("ble: payload too large")
	ErrClosed                 = errors.New("ble: machine closed")
)

// PermissionError reports a start attempt without granted permissions.
type PermissionError struct {
	Status permission.Status
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("ble: permission not granted (status %s)", e.Status)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermission }

// BondError reports a failed bond. The session moves to Failed.
type BondError struct {
	Address string
	Err     error
}

func (e *BondError) Error() string {
	return fmt.Sprintf("ble: bond with %s failed: %v", e.Address, e.Err)
}

func (e *BondError) Unwrap() error { return e.Err }

// ConnectError reports a failed connection. The session moves to Failed.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: connect to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CharacteristicNotFoundError reports an operation on a role that discovery
// did not bind.
type CharacteristicNotFoundError struct {
	Role Role
	UUID uuid.UUID
}

func (e *CharacteristicNotFoundError) Error() string {
	return fmt.Sprintf("ble: %s characteristic %s not found", e.Role, e.UUID)
}

func (e *CharacteristicNotFoundError) Is(target error) bool {
	return target == ErrCharacteristicNotFound
}

// GattError reports a failed read, write or notify request. The session
// stays Ready and the operation may be retried.
type GattError struct {
	Op             string // "read", "write" or "notify"
	Characteristic uuid.UUID
	Err            error
}

func (e *GattError) Error() string {
	return fmt.Sprintf("ble: gatt %s %s: %v", e.Op, e.Characteristic, e.Err)
}

func (e *GattError) Unwrap() error { return e.Err }
