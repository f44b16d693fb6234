package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"

	"github.com/chaz8081/blecentral/internal/ble/protocol"
	"github.com/chaz8081/blecentral/internal/observe"
	"github.com/chaz8081/blecentral/internal/permission"
	"github.com/chaz8081/blecentral/internal/store"
)

// State is a step in the peripheral connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateBonding
	StateConnecting
	StateDiscovering
	StateReady
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateBonding:
		return "bonding"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Binding associates a role with a discovered characteristic.
type Binding struct {
	Role Role
	Ref  CharacteristicRef
}

// Snapshot is the published view of the session.
type Snapshot struct {
	State         State
	Peripheral    Peripheral
	HasPeripheral bool
	Roles         []Role // bound roles, only non-empty while Ready
	Err           error  // terminal error for Failed, or why the session last ended
}

// Notification is a value pushed by the peripheral on a subscribed characteristic.
type Notification struct {
	Role  Role
	Ref   CharacteristicRef
	Value []byte
}

// Text decodes the notification payload as UTF-8.
func (n Notification) Text() (string, error) {
	return protocol.DecodeText(n.Value)
}

// PermissionGate reports whether BLE activity is allowed.
type PermissionGate interface {
	Status() permission.Status
	RequestIfNeeded()
}

// AddressStore persists the last matched peripheral address.
type AddressStore interface {
	Save(key, value string) error
}

// Options configures the Machine.
type Options struct {
	Descriptor        ServiceDescriptor
	OperationTimeout  time.Duration // applied to reads/writes whose ctx has no deadline
	DisconnectTimeout time.Duration // how long Disconnecting waits for the adapter
	MaxWriteBytes     int
	Store             AddressStore // optional
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Descriptor:        DefaultDescriptor(),
		OperationTimeout:  10 * time.Second,
		DisconnectTimeout: 5 * time.Second,
		MaxWriteBytes:     protocol.MaxAttributeLen,
	}
}

type opKind int

const (
	opRead opKind = iota
	opWrite
)

func (k opKind) String() string {
	if k == opRead {
		return "read"
	}
	return "write"
}

type opKey struct {
	kind opKind
	char uuid.UUID
}

type opResult struct {
	value []byte
	err   error
}

// disconnectTimeout is queued by the Disconnecting timer.
type disconnectTimeout struct{}

func (disconnectTimeout) isEvent() {}

// Machine is the peripheral connection state machine. All adapter events
// pass through one queue and are applied in arrival order by a single
// goroutine; public methods are safe for concurrent use.
type Machine struct {
	adapter Adapter
	gate    PermissionGate
	opts    Options

	mu              sync.Mutex
	state           State
	gen             uint64 // bumped whenever in-flight callbacks become stale
	peripheral      Peripheral
	hasPeripheral   bool
	bindings        map[Role]Binding
	notifying       mapset.Set // characteristic UUIDs with notifications enabled
	pending         map[opKey]chan opResult
	lastErr         error
	disconnectTimer *time.Timer
	closed          bool

	snapshots     *observe.Value[Snapshot]
	notifications observe.Feed[Notification]

	queue    *eventQueue
	done     chan struct{}
	loopDone chan struct{}
}

// NewMachine creates a Machine in the Idle state and starts its event loop.
// Panics if adapter or gate is nil (programmer error).
func NewMachine(adapter Adapter, gate PermissionGate, opts Options) *Machine {
	if adapter == nil || gate == nil {
		panic("ble: NewMachine called with nil adapter or gate")
	}
	defaults := DefaultOptions()
	if opts.Descriptor == (ServiceDescriptor{}) {
		opts.Descriptor = defaults.Descriptor
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaults.OperationTimeout
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = defaults.DisconnectTimeout
	}
	if opts.MaxWriteBytes <= 0 || opts.MaxWriteBytes > protocol.MaxAttributeLen {
		opts.MaxWriteBytes = defaults.MaxWriteBytes
	}

	m := &Machine{
		adapter:   adapter,
		gate:      gate,
		opts:      opts,
		bindings:  make(map[Role]Binding),
		notifying: mapset.NewThreadUnsafeSet(),
		pending:   make(map[opKey]chan opResult),
		snapshots: observe.NewValue(Snapshot{State: StateIdle}),
		queue:     newEventQueue(),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	go m.loop()
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current published view of the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Peripheral returns the tracked peripheral, if any.
func (m *Machine) Peripheral() (Peripheral, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peripheral, m.hasPeripheral
}

// Bindings returns the current characteristic bindings ordered by role.
func (m *Machine) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Subscribe returns a channel receiving the current snapshot and every
// subsequent state change. Slow subscribers lose intermediate snapshots.
func (m *Machine) Subscribe(buf int) (<-chan Snapshot, func()) {
	return m.snapshots.Subscribe(buf)
}

// Notifications returns a channel of values from subscribed characteristics.
func (m *Machine) Notifications(buf int) (<-chan Notification, func()) {
	return m.notifications.Subscribe(buf)
}

// Start begins scanning for the descriptor's service. It requires the
// permission gate to be Granted and the machine to be Idle.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkStartLocked("start"); err != nil {
		return err
	}

	m.gen++
	m.lastErr = nil
	m.setStateLocked(StateScanning)
	slog.Info("[BLE] scanning", "service", m.opts.Descriptor.Service)

	if err := m.adapter.Scan(m.opts.Descriptor.Service, m.emitter()); err != nil {
		err = fmt.Errorf("ble: start scan: %w", err)
		m.failLocked(err)
		return err
	}
	return nil
}

// ConnectTo connects straight to an already bonded peripheral, skipping the
// scan and bond steps.
func (m *Machine) ConnectTo(p Peripheral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkStartLocked("connect"); err != nil {
		return err
	}

	m.gen++
	m.lastErr = nil
	m.peripheral = p
	m.hasPeripheral = true
	m.setStateLocked(StateConnecting)
	m.connectLocked()
	return nil
}

// Disconnect tears the session down from any state. The machine passes
// through Disconnecting and reaches Idle once the adapter confirms, or after
// the disconnect timeout. Calling it while Idle or Disconnecting is a no-op.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnectLocked()
}

// Reset returns the machine to Idle immediately, discarding every in-flight
// callback and releasing the transport on a best-effort basis. It is the only
// way out of Failed besides Disconnect.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.resetLocked()
	return nil
}

// Close releases the transport and stops the event loop.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.resetLocked()
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	<-m.loopDone
	return nil
}

// Read reads the characteristic bound to role.
func (m *Machine) Read(ctx context.Context, role Role) ([]byte, error) {
	return m.do(ctx, opRead, role, func(ref CharacteristicRef, emit EventFunc) error {
		return m.adapter.ReadCharacteristic(ref, emit)
	})
}

// ReadText reads the characteristic bound to role and decodes it as UTF-8.
func (m *Machine) ReadText(ctx context.Context, role Role) (string, error) {
	data, err := m.Read(ctx, role)
	if err != nil {
		return "", err
	}
	return protocol.DecodeText(data)
}

// Write writes data to the characteristic bound to role and waits for the
// peripheral's acknowledgement. The payload is copied before it is handed
// to the adapter.
func (m *Machine) Write(ctx context.Context, role Role, data []byte) error {
	if len(data) > m.opts.MaxWriteBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(data), m.opts.MaxWriteBytes)
	}
	payload := make([]byte, len(data))
	copy(payload, data)

	_, err := m.do(ctx, opWrite, role, func(ref CharacteristicRef, emit EventFunc) error {
		return m.adapter.WriteCharacteristic(ref, payload, emit)
	})
	return err
}

// WriteText writes text as raw UTF-8.
func (m *Machine) WriteText(ctx context.Context, role Role, text string) error {
	data, err := protocol.EncodeText(text)
	if err != nil {
		return err
	}
	return m.Write(ctx, role, data)
}

// SetNotify enables or disables value-change delivery for role. Values are
// published on Notifications.
func (m *Machine) SetNotify(role Role, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bindingLocked(role)
	if err != nil {
		return err
	}
	if err := m.adapter.SetNotify(b.Ref, enabled, m.emitter()); err != nil {
		return &GattError{Op: "notify", Characteristic: b.Ref.Characteristic, Err: err}
	}
	if enabled {
		m.notifying.Add(b.Ref.Characteristic)
	} else {
		m.notifying.Remove(b.Ref.Characteristic)
	}
	slog.Info("[BLE] notify", "role", role, "enabled", enabled)
	return nil
}

// do issues a read or write and waits for its completion event.
func (m *Machine) do(ctx context.Context, kind opKind, role Role, issue func(CharacteristicRef, EventFunc) error) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.OperationTimeout)
		defer cancel()
	}

	m.mu.Lock()
	b, err := m.bindingLocked(role)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	key := opKey{kind: kind, char: b.Ref.Characteristic}
	if _, busy := m.pending[key]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s %s", ErrOperationInProgress, kind, role)
	}
	ch := make(chan opResult, 1)
	m.pending[key] = ch
	if err := issue(b.Ref, m.emitter()); err != nil {
		delete(m.pending, key)
		m.mu.Unlock()
		return nil, &GattError{Op: kind.String(), Characteristic: b.Ref.Characteristic, Err: err}
	}
	m.mu.Unlock()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		m.mu.Lock()
		if m.pending[key] == ch {
			delete(m.pending, key)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("ble: %s %s: %w", kind, role, ctx.Err())
	}
}

// checkStartLocked validates that a new session may begin (caller must hold mu).
func (m *Machine) checkStartLocked(op string) error {
	if m.closed {
		return ErrClosed
	}
	if m.state != StateIdle {
		return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, m.state)
	}
	switch status := m.gate.Status(); status {
	case permission.StatusGranted:
		return nil
	case permission.StatusUnsupported:
		return ErrUnsupported
	case permission.StatusPending:
		m.gate.RequestIfNeeded()
		return &PermissionError{Status: status}
	default:
		return &PermissionError{Status: status}
	}
}

// bindingLocked returns the usable binding for role (caller must hold mu).
func (m *Machine) bindingLocked(role Role) (Binding, error) {
	if m.state != StateReady {
		return Binding{}, fmt.Errorf("%w (state %s)", ErrNotReady, m.state)
	}
	b, ok := m.bindings[role]
	if !ok {
		return Binding{}, &CharacteristicNotFoundError{Role: role, UUID: m.opts.Descriptor.UUIDFor(role)}
	}
	return b, nil
}

func (m *Machine) connectLocked() {
	slog.Info("[BLE] connecting", "address", m.peripheral.Address)
	if err := m.adapter.Connect(m.peripheral, m.emitter()); err != nil {
		m.failLocked(&ConnectError{Address: m.peripheral.Address, Err: err})
	}
}

func (m *Machine) disconnectLocked() error {
	switch m.state {
	case StateIdle, StateDisconnecting:
		return nil
	case StateScanning:
		m.stopScanLocked()
	}

	m.gen++
	m.failPendingLocked(ErrDisconnected)
	m.clearSessionLocked()
	m.lastErr = nil
	m.setStateLocked(StateDisconnecting)

	if err := m.adapter.Disconnect(m.emitter()); err != nil {
		slog.Warn("[BLE] disconnect failed, releasing session anyway", "error", err)
		m.finishDisconnectLocked()
		return fmt.Errorf("ble: disconnect: %w", err)
	}

	gen := m.gen
	m.disconnectTimer = time.AfterFunc(m.opts.DisconnectTimeout, func() {
		m.queue.push(queued{gen: gen, ev: disconnectTimeout{}})
	})
	return nil
}

func (m *Machine) finishDisconnectLocked() {
	m.stopTimerLocked()
	m.clearSessionLocked()
	m.setStateLocked(StateIdle)
	slog.Info("[BLE] disconnected")
}

func (m *Machine) resetLocked() {
	if m.state == StateIdle {
		if m.lastErr != nil {
			m.lastErr = nil
			m.publishLocked()
		}
		return
	}
	if m.state == StateScanning {
		m.stopScanLocked()
	}

	m.gen++
	m.stopTimerLocked()
	m.failPendingLocked(ErrDisconnected)
	if err := m.adapter.Disconnect(func(Event) {}); err != nil {
		slog.Warn("[BLE] release transport on reset", "error", err)
	}
	m.clearSessionLocked()
	m.lastErr = nil
	m.setStateLocked(StateIdle)
	slog.Info("[BLE] reset")
}

// failLocked moves the session to Failed. Bindings are dropped; the
// peripheral stays visible until Reset or Disconnect.
func (m *Machine) failLocked(err error) {
	if m.state == StateScanning {
		m.stopScanLocked()
	}
	releaseTransport := m.state == StateConnecting || m.state == StateDiscovering || m.state == StateReady

	m.gen++
	m.failPendingLocked(err)
	m.bindings = make(map[Role]Binding)
	m.notifying.Clear()
	m.lastErr = err
	m.setStateLocked(StateFailed)
	slog.Error("[BLE] session failed", "error", err)

	if releaseTransport {
		if derr := m.adapter.Disconnect(m.emitter()); derr != nil {
			slog.Warn("[BLE] release transport after failure", "error", derr)
		}
	}
}

func (m *Machine) stopScanLocked() {
	if err := m.adapter.StopScan(); err != nil {
		slog.Warn("[BLE] stop scan", "error", err)
	}
}

func (m *Machine) stopTimerLocked() {
	if m.disconnectTimer != nil {
		m.disconnectTimer.Stop()
		m.disconnectTimer = nil
	}
}

func (m *Machine) clearSessionLocked() {
	m.peripheral = Peripheral{}
	m.hasPeripheral = false
	m.bindings = make(map[Role]Binding)
	m.notifying.Clear()
}

func (m *Machine) failPendingLocked(err error) {
	for key, ch := range m.pending {
		ch <- opResult{err: err}
		delete(m.pending, key)
	}
}

func (m *Machine) setStateLocked(s State) {
	if m.state != s {
		slog.Debug("[BLE] state", "from", m.state, "to", s)
	}
	m.state = s
	m.publishLocked()
}

func (m *Machine) publishLocked() {
	m.snapshots.Set(m.snapshotLocked())
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         m.state,
		Peripheral:    m.peripheral,
		HasPeripheral: m.hasPeripheral,
		Err:           m.lastErr,
	}
	for _, r := range Roles {
		if _, ok := m.bindings[r]; ok {
			s.Roles = append(s.Roles, r)
		}
	}
	return s
}

// emitter returns an EventFunc tagging events with the current generation
// (caller must hold mu).
func (m *Machine) emitter() EventFunc {
	gen := m.gen
	return func(ev Event) {
		m.queue.push(queued{gen: gen, ev: ev})
	}
}

func (m *Machine) loop() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.done:
			return
		case <-m.queue.ready():
			items := m.queue.drain()
			for i, item := range items {
				if item.barrier != nil {
					item.barrier <- i == len(items)-1 && m.queue.len() == 0
					continue
				}
				m.mu.Lock()
				m.apply(item.gen, item.ev)
				m.mu.Unlock()
			}
		}
	}
}

// apply runs one event against the session (caller must hold mu).
func (m *Machine) apply(gen uint64, ev Event) {
	if gen != m.gen {
		slog.Debug("[BLE] dropping stale event", "event", fmt.Sprintf("%T", ev), "gen", gen, "current", m.gen)
		return
	}

	switch e := ev.(type) {
	case ScanMatch:
		m.onScanMatch(e)
	case Bonded:
		if m.state != StateBonding {
			return
		}
		slog.Info("[BLE] bonded", "address", m.peripheral.Address)
		m.setStateLocked(StateConnecting)
		m.connectLocked()
	case BondFailed:
		if m.state == StateBonding {
			m.failLocked(&BondError{Address: m.peripheral.Address, Err: e.Err})
		}
	case Connected:
		if m.state != StateConnecting {
			return
		}
		slog.Info("[BLE] connected", "address", m.peripheral.Address)
		m.setStateLocked(StateDiscovering)
		if err := m.adapter.DiscoverServices(m.emitter()); err != nil {
			m.failLocked(fmt.Errorf("ble: discover services: %w", err))
		}
	case ConnectFailed:
		if m.state == StateConnecting {
			m.failLocked(&ConnectError{Address: m.peripheral.Address, Err: e.Err})
		}
	case Disconnected:
		m.onDisconnected(e)
	case ServicesDiscovered:
		m.onServicesDiscovered(e)
	case CharacteristicRead:
		m.complete(opRead, e.Ref, e.Value, e.Err)
	case CharacteristicWritten:
		m.complete(opWrite, e.Ref, nil, e.Err)
	case CharacteristicChanged:
		m.onChanged(e)
	case AdapterError:
		if m.state == StateScanning {
			m.failLocked(fmt.Errorf("ble: scan: %w", e.Err))
			return
		}
		slog.Warn("[BLE] adapter error", "state", m.state, "error", e.Err)
	case disconnectTimeout:
		if m.state == StateDisconnecting {
			slog.Warn("[BLE] no disconnect confirmation, releasing session", "timeout", m.opts.DisconnectTimeout)
			m.finishDisconnectLocked()
		}
	}
}

func (m *Machine) onScanMatch(e ScanMatch) {
	if m.state != StateScanning {
		slog.Debug("[BLE] ignoring scan match", "address", e.Peripheral.Address, "state", m.state)
		return
	}
	// First match wins.
	m.stopScanLocked()
	m.peripheral = e.Peripheral
	m.hasPeripheral = true
	slog.Info("[BLE] found peripheral", "name", e.Peripheral.Name, "address", e.Peripheral.Address, "rssi", e.Peripheral.RSSI)

	if m.opts.Store != nil {
		if err := m.opts.Store.Save(store.AddressKey, e.Peripheral.Address); err != nil {
			slog.Warn("[BLE] failed to save device address", "error", err)
		}
	}

	m.setStateLocked(StateBonding)
	if err := m.adapter.Bond(e.Peripheral, m.emitter()); err != nil {
		m.failLocked(&BondError{Address: e.Peripheral.Address, Err: err})
	}
}

func (m *Machine) onDisconnected(e Disconnected) {
	switch m.state {
	case StateDisconnecting:
		m.finishDisconnectLocked()
	case StateConnecting:
		reason := e.Err
		if reason == nil {
			reason = ErrLinkLost
		}
		m.failLocked(&ConnectError{Address: m.peripheral.Address, Err: reason})
	case StateDiscovering, StateReady:
		err := ErrLinkLost
		if e.Err != nil {
			err = fmt.Errorf("%w: %v", ErrLinkLost, e.Err)
		}
		slog.Warn("[BLE] link lost", "address", m.peripheral.Address, "error", e.Err)
		m.gen++
		m.failPendingLocked(err)
		m.clearSessionLocked()
		m.lastErr = err
		m.setStateLocked(StateIdle)
	}
}

func (m *Machine) onServicesDiscovered(e ServicesDiscovered) {
	if m.state != StateDiscovering {
		return
	}
	if e.Err != nil {
		m.failLocked(fmt.Errorf("ble: discover services: %w", e.Err))
		return
	}
	slog.Info("[BLE] services discovered", "count", len(e.Services))

	desc := m.opts.Descriptor
	m.bindings = make(map[Role]Binding)
	for _, svc := range e.Services {
		if svc.UUID != desc.Service {
			continue
		}
		for _, role := range Roles {
			want := desc.UUIDFor(role)
			for _, c := range svc.Characteristics {
				if c == want {
					m.bindings[role] = Binding{Role: role, Ref: CharacteristicRef{Service: svc.UUID, Characteristic: c}}
					slog.Info("[BLE] characteristic bound", "role", role, "uuid", c)
					break
				}
			}
		}
	}
	for _, role := range Roles {
		if _, ok := m.bindings[role]; !ok {
			slog.Warn("[BLE] characteristic missing", "role", role, "uuid", desc.UUIDFor(role))
		}
	}
	m.setStateLocked(StateReady)
}

func (m *Machine) complete(kind opKind, ref CharacteristicRef, value []byte, err error) {
	key := opKey{kind: kind, char: ref.Characteristic}
	ch, ok := m.pending[key]
	if !ok {
		slog.Debug("[BLE] unsolicited completion", "op", kind, "uuid", ref.Characteristic)
		return
	}
	delete(m.pending, key)
	if err != nil {
		ch <- opResult{err: &GattError{Op: kind.String(), Characteristic: ref.Characteristic, Err: err}}
		return
	}
	ch <- opResult{value: value}
}

func (m *Machine) onChanged(e CharacteristicChanged) {
	if m.state != StateReady || !m.notifying.Contains(e.Ref.Characteristic) {
		return
	}
	role, ok := m.roleFor(e.Ref)
	if !ok {
		return
	}
	m.notifications.Send(Notification{Role: role, Ref: e.Ref, Value: e.Value})
}

func (m *Machine) roleFor(ref CharacteristicRef) (Role, bool) {
	for role, b := range m.bindings {
		if b.Ref == ref {
			return role, true
		}
	}
	return 0, false
}

// queued is one entry in the event queue. A non-nil barrier receives true
// once every earlier entry has been applied and nothing else is queued.
type queued struct {
	gen     uint64
	ev      Event
	barrier chan bool
}

// eventQueue is an unbounded FIFO so adapter callbacks never block.
type eventQueue struct {
	mu     sync.Mutex
	items  []queued
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(item queued) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) ready() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) drain() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
