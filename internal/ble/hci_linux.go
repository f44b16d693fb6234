//go:build linux

package ble

import (
	"context"
	"log/slog"
	"sync"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HCIAdapter talks to the controller over a raw HCI socket, bypassing
// BlueZ. It needs CAP_NET_ADMIN and a controller not claimed by bluetoothd.
type HCIAdapter struct {
	mu         sync.Mutex
	enabled    bool
	cancelScan context.CancelFunc
	client     ble.Client
	session    uint64
	chars      map[CharacteristicRef]*ble.Characteristic
}

// NewHCIAdapter creates an adapter for the first HCI controller.
func NewHCIAdapter() (*HCIAdapter, error) {
	return &HCIAdapter{chars: make(map[CharacteristicRef]*ble.Characteristic)}, nil
}

var _ Adapter = (*HCIAdapter)(nil)

func newHCIAdapter() (Adapter, error) {
	return NewHCIAdapter()
}

func (a *HCIAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	err := catchErrs(func() error {
		device, err := linux.NewDevice()
		if err != nil {
			return errors.Wrap(err, "newLinuxDevice issue")
		}
		ble.SetDefaultDevice(device)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "ble: enable hci")
	}
	a.enabled = true
	return nil
}

func (a *HCIAdapter) Scan(service uuid.UUID, emit EventFunc) error {
	want := toHCIUUID(service)
	ctx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	if a.cancelScan != nil {
		a.cancelScan()
	}
	a.cancelScan = cancel
	a.mu.Unlock()

	filter := func(adv ble.Advertisement) bool {
		for _, u := range adv.Services() {
			if u.Equal(want) {
				return true
			}
		}
		return false
	}
	handler := func(adv ble.Advertisement) {
		emit(ScanMatch{Peripheral: Peripheral{
			Address: adv.Address().String(),
			Name:    adv.LocalName(),
			RSSI:    adv.RSSI(),
		}})
	}

	go func() {
		err := catchErrs(func() error {
			return ble.Scan(ctx, false, handler, filter)
		})
		if err != nil && ctx.Err() == nil {
			emit(AdapterError{Err: errors.Wrap(err, "ble: hci scan")})
		}
	}()
	return nil
}

func (a *HCIAdapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelScan != nil {
		a.cancelScan()
		a.cancelScan = nil
	}
	return nil
}

// Bond reports success: the raw HCI stack has no SMP support, so links
// stay unencrypted.
func (a *HCIAdapter) Bond(p Peripheral, emit EventFunc) error {
	slog.Debug("[BLE] hci adapter does not pair, continuing unencrypted", "address", p.Address)
	emit(Bonded{})
	return nil
}

func (a *HCIAdapter) Connect(p Peripheral, emit EventFunc) error {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	go func() {
		var client ble.Client
		err := catchErrs(func() error {
			c, e := ble.Dial(context.Background(), ble.NewAddr(p.Address))
			client = c
			return e
		})
		if err != nil {
			emit(ConnectFailed{Err: errors.Wrapf(err, "dial %s", p.Address)})
			return
		}

		a.mu.Lock()
		if a.session != session {
			a.mu.Unlock()
			if err := client.CancelConnection(); err != nil {
				slog.Warn("[BLE] drop orphaned connection", "address", p.Address, "error", err)
			}
			return
		}
		a.client = client
		a.chars = make(map[CharacteristicRef]*ble.Characteristic)
		a.mu.Unlock()

		emit(Connected{})
		go a.watchLink(client, emit)
	}()
	return nil
}

// watchLink reports an unrequested drop of client.
func (a *HCIAdapter) watchLink(client ble.Client, emit EventFunc) {
	<-client.Disconnected()
	a.mu.Lock()
	current := a.client == client
	if current {
		a.clearLocked()
	}
	a.mu.Unlock()
	if current {
		emit(Disconnected{Err: errors.New("hci link dropped")})
	}
}

func (a *HCIAdapter) DiscoverServices(emit EventFunc) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return errors.New("ble: not connected")
	}

	go func() {
		var profile *ble.Profile
		err := catchErrs(func() error {
			p, e := client.DiscoverProfile(true)
			profile = p
			return e
		})
		if err != nil {
			emit(ServicesDiscovered{Err: errors.Wrap(err, "discover profile")})
			return
		}

		chars := make(map[CharacteristicRef]*ble.Characteristic)
		var services []Service
		for _, s := range profile.Services {
			svcUUID, err := fromHCIUUID(s.UUID)
			if err != nil {
				continue
			}
			svc := Service{UUID: svcUUID}
			for _, c := range s.Characteristics {
				charUUID, err := fromHCIUUID(c.UUID)
				if err != nil {
					continue
				}
				svc.Characteristics = append(svc.Characteristics, charUUID)
				chars[CharacteristicRef{Service: svcUUID, Characteristic: charUUID}] = c
			}
			services = append(services, svc)
		}

		a.mu.Lock()
		if a.client == client {
			a.chars = chars
		}
		a.mu.Unlock()
		emit(ServicesDiscovered{Services: services})
	}()
	return nil
}

func (a *HCIAdapter) characteristic(ref CharacteristicRef) (ble.Client, *ble.Characteristic, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil, nil, errors.New("ble: not connected")
	}
	c, ok := a.chars[ref]
	if !ok {
		return nil, nil, errors.Errorf("ble: characteristic %s not discovered", ref.Characteristic)
	}
	return a.client, c, nil
}

func (a *HCIAdapter) ReadCharacteristic(ref CharacteristicRef, emit EventFunc) error {
	client, c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	go func() {
		var value []byte
		err := catchErrs(func() error {
			v, e := client.ReadCharacteristic(c)
			value = v
			return e
		})
		emit(CharacteristicRead{Ref: ref, Value: value, Err: err})
	}()
	return nil
}

func (a *HCIAdapter) WriteCharacteristic(ref CharacteristicRef, data []byte, emit EventFunc) error {
	client, c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	go func() {
		err := catchErrs(func() error {
			return client.WriteCharacteristic(c, data, false)
		})
		emit(CharacteristicWritten{Ref: ref, Err: err})
	}()
	return nil
}

func (a *HCIAdapter) SetNotify(ref CharacteristicRef, enabled bool, emit EventFunc) error {
	client, c, err := a.characteristic(ref)
	if err != nil {
		return err
	}
	// Characteristics that only indicate are subscribed through the
	// indication CCCD bit.
	ind := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	return catchErrs(func() error {
		if !enabled {
			return client.Unsubscribe(c, ind)
		}
		return client.Subscribe(c, ind, func(buf []byte) {
			value := make([]byte, len(buf))
			copy(value, buf)
			emit(CharacteristicChanged{Ref: ref, Value: value})
		})
	})
}

func (a *HCIAdapter) Disconnect(emit EventFunc) error {
	a.mu.Lock()
	a.session++
	client := a.client
	a.clearLocked()
	a.mu.Unlock()

	if client == nil {
		emit(Disconnected{})
		return nil
	}
	go func() {
		err := catchErrs(client.CancelConnection)
		if err != nil {
			emit(Disconnected{Err: errors.Wrap(err, "cancel connection")})
			return
		}
		<-client.Disconnected()
		emit(Disconnected{})
	}()
	return nil
}

func (a *HCIAdapter) clearLocked() {
	a.client = nil
	a.chars = make(map[CharacteristicRef]*ble.Characteristic)
}
