package ble

import (
	"errors"
	"testing"

	"github.com/currantlabs/ble"
	"github.com/google/uuid"
	"gotest.tools/assert"
)

func TestHCIUUIDRoundTrip(t *testing.T) {
	for _, u := range []uuid.UUID{DefaultServiceUUID, DefaultWriteUUID, DefaultIndicateUUID} {
		got, err := fromHCIUUID(toHCIUUID(u))
		assert.NilError(t, err)
		assert.Equal(t, got, u)
	}
}

func TestHCIUUIDIsLittleEndian(t *testing.T) {
	u := uuid.MustParse("00010203-0405-0607-0809-0a0b0c0d0e0f")
	hci := toHCIUUID(u)
	assert.Equal(t, hci[0], byte(0x0f))
	assert.Equal(t, hci[15], byte(0x00))
}

func TestHCIUUIDExpandsShortForms(t *testing.T) {
	// Battery Service, 0x180F, as sent over HCI.
	got, err := fromHCIUUID(ble.UUID{0x0f, 0x18})
	assert.NilError(t, err)
	assert.Equal(t, got, uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb"))

	got, err = fromHCIUUID(ble.UUID{0x04, 0x03, 0x02, 0x01})
	assert.NilError(t, err)
	assert.Equal(t, got, uuid.MustParse("01020304-0000-1000-8000-00805f9b34fb"))
}

func TestHCIUUIDRejectsBadLength(t *testing.T) {
	_, err := fromHCIUUID(ble.UUID{1, 2, 3})
	assert.ErrorContains(t, err, "length 3")
}

func TestCatchErrs(t *testing.T) {
	assert.NilError(t, catchErrs(func() error { return nil }))

	err := catchErrs(func() error { panic(errors.New("hci gone")) })
	assert.ErrorContains(t, err, "hci gone")

	err = catchErrs(func() error { panic("raw") })
	assert.ErrorContains(t, err, "raw")
}
