package ble

import (
	"fmt"

	"github.com/google/uuid"
)

// Default GATT identifiers shared with the peripheral firmware.
var (
	DefaultServiceUUID  = uuid.MustParse("00000000-0000-1111-1111-111111111111")
	DefaultReadUUID     = uuid.MustParse("00000000-1111-1111-1111-111111111111")
	DefaultWriteUUID    = uuid.MustParse("00000000-2222-1111-1111-111111111111")
	DefaultNotifyUUID   = uuid.MustParse("00000000-3333-1111-1111-111111111111")
	DefaultIndicateUUID = uuid.MustParse("00000000-4444-1111-1111-111111111111")
)

// Role is the semantic purpose of a characteristic.
type Role int

const (
	RoleRead Role = iota
	RoleWrite
	RoleNotify
	RoleIndicate
)

// Roles lists every role in resolution order.
var Roles = []Role{RoleRead, RoleWrite, RoleNotify, RoleIndicate}

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleNotify:
		return "notify"
	case RoleIndicate:
		return "indicate"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("ble: unknown role %q", s)
}

// ServiceDescriptor is the fixed set of UUIDs the central looks for.
type ServiceDescriptor struct {
	Service  uuid.UUID
	Read     uuid.UUID
	Write    uuid.UUID
	Notify   uuid.UUID
	Indicate uuid.UUID
}

// DefaultDescriptor returns the descriptor matching the reference peripheral.
func DefaultDescriptor() ServiceDescriptor {
	return ServiceDescriptor{
		Service:  DefaultServiceUUID,
		Read:     DefaultReadUUID,
		Write:    DefaultWriteUUID,
		Notify:   DefaultNotifyUUID,
		Indicate: DefaultIndicateUUID,
	}
}

// ParseDescriptor builds a descriptor from UUID strings.
func ParseDescriptor(service, read, write, notify, indicate string) (ServiceDescriptor, error) {
	var d ServiceDescriptor
	fields := []struct {
		name string
		in   string
		out  *uuid.UUID
	}{
		{"service", service, &d.Service},
		{"read", read, &d.Read},
		{"write", write, &d.Write},
		{"notify", notify, &d.Notify},
		{"indicate", indicate, &d.Indicate},
	}
	for _, f := range fields {
		u, err := uuid.Parse(f.in)
		if err != nil {
			return ServiceDescriptor{}, fmt.Errorf("ble: parse %s uuid %q: %w", f.name, f.in, err)
		}
		*f.out = u
	}
	return d, nil
}

// UUIDFor returns the characteristic UUID assigned to role.
func (d ServiceDescriptor) UUIDFor(role Role) uuid.UUID {
	switch role {
	case RoleRead:
		return d.Read
	case RoleWrite:
		return d.Write
	case RoleNotify:
		return d.Notify
	case RoleIndicate:
		return d.Indicate
	default:
		return uuid.Nil
	}
}
