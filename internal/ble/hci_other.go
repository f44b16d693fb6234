//go:build !linux

package ble

import "github.com/pkg/errors"

func newHCIAdapter() (Adapter, error) {
	return nil, errors.New("ble: hci adapter requires linux")
}
