// Package permission gates BLE activity behind the runtime capabilities the
// central needs: location, bluetooth-connect and bluetooth-scan.
package permission

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/chaz8081/blecentral/internal/observe"
)

// Status is the observable permission state.
type Status int

const (
	// StatusPending means no decision has been made yet, or a prompt is outstanding.
	StatusPending Status = iota
	// StatusGranted means every capability was granted.
	StatusGranted
	// StatusDenied means at least one capability was refused.
	StatusDenied
	// StatusUnsupported means the radio is absent or disabled.
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Capabilities lists what a prompt asks the user to grant.
var Capabilities = []string{"location", "bluetooth-connect", "bluetooth-scan"}

// Prompter asks for the given capabilities and reports whether all of them
// were granted.
type Prompter interface {
	Prompt(ctx context.Context, capabilities []string) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, capabilities []string) (bool, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, capabilities []string) (bool, error) {
	return f(ctx, capabilities)
}

// AutoGrant grants every request without asking.
var AutoGrant = PrompterFunc(func(context.Context, []string) (bool, error) {
	return true, nil
})

// Manager checks radio support and resolves permission requests through a
// Prompter. Safe for concurrent use.
type Manager struct {
	probe    func() error
	prompter Prompter

	status     *observe.Value[Status]
	requesting atomic.Bool
}

// NewManager creates a Manager. probe reports whether the radio is usable
// (typically the adapter's Enable); a nil probe assumes it is.
func NewManager(probe func() error, prompter Prompter) *Manager {
	if prompter == nil {
		panic("permission: NewManager called with nil prompter")
	}
	return &Manager{
		probe:    probe,
		prompter: prompter,
		status:   observe.NewValue(StatusPending),
	}
}

// Status returns the current status snapshot.
func (m *Manager) Status() Status {
	return m.status.Get()
}

// Subscribe returns a channel receiving the current status and every change.
func (m *Manager) Subscribe(buf int) (<-chan Status, func()) {
	return m.status.Subscribe(buf)
}

// Check probes radio support and, when supported, requests the capabilities
// if they are not granted yet. An unsupported radio is terminal.
func (m *Manager) Check() {
	if m.status.Get() == StatusUnsupported {
		return
	}
	if m.probe != nil {
		if err := m.probe(); err != nil {
			slog.Warn("[PERM] bluetooth unsupported or disabled", "error", err)
			m.status.Set(StatusUnsupported)
			return
		}
	}
	m.RequestIfNeeded()
}

// RequestIfNeeded starts an asynchronous prompt unless the capabilities are
// already granted, the radio is unsupported, or a prompt is outstanding.
// Each prompt resolves the status exactly once to Granted or Denied.
func (m *Manager) RequestIfNeeded() {
	switch m.status.Get() {
	case StatusGranted, StatusUnsupported:
		return
	}
	if !m.requesting.CompareAndSwap(false, true) {
		return
	}
	m.status.Set(StatusPending)

	go func() {
		defer m.requesting.Store(false)
		granted, err := m.prompter.Prompt(context.Background(), Capabilities)
		if err != nil {
			slog.Warn("[PERM] prompt failed, treating as denied", "error", err)
			granted = false
		}
		if granted {
			slog.Info("[PERM] granted", "capabilities", Capabilities)
			m.status.Set(StatusGranted)
			return
		}
		slog.Info("[PERM] denied")
		m.status.Set(StatusDenied)
	}()
}

// Wait blocks until the status is no longer Pending or ctx is done.
func (m *Manager) Wait(ctx context.Context) (Status, error) {
	ch, cancel := m.status.Subscribe(4)
	defer cancel()
	for {
		select {
		case s := <-ch:
			if s != StatusPending {
				return s, nil
			}
		case <-ctx.Done():
			return m.status.Get(), ctx.Err()
		}
	}
}
