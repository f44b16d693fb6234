package ble

import (
	"encoding/binary"

	"github.com/currantlabs/ble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// bluetoothBase is the Bluetooth Base UUID that 16- and 32-bit assigned
// numbers expand into.
var bluetoothBase = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// toHCIUUID converts to the little-endian byte order HCI uses on the wire.
func toHCIUUID(u uuid.UUID) ble.UUID {
	return ble.UUID(ble.Reverse(u[:]))
}

// fromHCIUUID expands a 16-, 32- or 128-bit HCI UUID.
func fromHCIUUID(u ble.UUID) (uuid.UUID, error) {
	be := ble.Reverse(u)
	switch len(be) {
	case 2, 4:
		out := bluetoothBase
		var short uint32
		if len(be) == 2 {
			short = uint32(binary.BigEndian.Uint16(be))
		} else {
			short = binary.BigEndian.Uint32(be)
		}
		binary.BigEndian.PutUint32(out[:4], short)
		return out, nil
	case 16:
		return uuid.FromBytes(be)
	default:
		return uuid.Nil, errors.Errorf("invalid HCI UUID length %d", len(u))
	}
}

// catchErrs runs fn and turns a panic from the HCI stack into an error.
func catchErrs(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "hci panic")
				return
			}
			err = errors.Errorf("hci panic: %v", r)
		}
	}()
	return fn()
}
