package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
)

// Sim command errors, reported synchronously the way a real backend rejects
// impossible commands.
var (
	ErrUnknownDevice = errors.New("sim: unknown device")
	ErrUnknownGroup  = errors.New("sim: unknown group")
	ErrUnknownItem   = errors.New("sim: unknown item")
	ErrNotConnected  = errors.New("sim: device not connected")
	ErrNotNotifying  = errors.New("sim: notifications not enabled")
	ErrScanActive    = errors.New("sim: scan already active")
	ErrClosed        = errors.New("sim: driver closed")
	ErrNotPermitted  = errors.New("sim: operation not permitted by item properties")
)

// Peripheral declares one simulated device.
type Peripheral struct {
	ID            string
	Name          string
	Advertisement driver.Advertisement
	Groups        []Group

	// ConnectErr, when set, makes every connection attempt fail with it.
	ConnectErr error
	// DiscoverErr, when set, fails group discovery.
	DiscoverErr error
}

// Group declares one simulated service.
type Group struct {
	UUID    uuid.UUID
	Primary bool
	Items   []Item

	// DiscoverErr, when set, fails item discovery for this group.
	DiscoverErr error
}

// Item declares one simulated characteristic.
type Item struct {
	UUID       uuid.UUID
	Properties driver.Properties
	Value      []byte

	// ReadErr, WriteErr and NotifyErr, when set, fail the corresponding
	// operation's completion.
	ReadErr   error
	WriteErr  error
	NotifyErr error
}

// peripheral is the runtime state of a declared Peripheral.
type peripheral struct {
	def       Peripheral
	connected bool
	values    map[uuid.UUID][]byte
	notifying map[uuid.UUID]bool
	items     map[uuid.UUID]*Item
	groups    map[uuid.UUID]*Group
}

// Sim is a scripted driver.Driver. See the package documentation.
type Sim struct {
	mu       sync.Mutex
	state    driver.State
	handler  driver.Handler
	periphs  map[string]*peripheral
	order    []string
	scanning bool
	filter   driver.ScanFilter
	commands []string
	closed   bool

	queue []func(h driver.Handler)
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a Sim that reports StatePoweredOn.
func New() *Sim {
	s := &Sim{
		state:   driver.StatePoweredOn,
		periphs: make(map[string]*peripheral),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// AddPeripheral declares a device. It will be discovered by the next scan.
func (s *Sim) AddPeripheral(p Peripheral) {
	rt := &peripheral{
		def:       p,
		values:    make(map[uuid.UUID][]byte),
		notifying: make(map[uuid.UUID]bool),
		items:     make(map[uuid.UUID]*Item),
		groups:    make(map[uuid.UUID]*Group),
	}
	for gi := range p.Groups {
		g := &p.Groups[gi]
		rt.groups[g.UUID] = g
		for ii := range g.Items {
			it := &g.Items[ii]
			rt.items[it.UUID] = it
			rt.values[it.UUID] = it.Value
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.periphs[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.periphs[p.ID] = rt
}

// Close stops the dispatch goroutine. Pending events are dropped.
func (s *Sim) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Commands returns the audit trail of every accepted command, in issue
// order, formatted as "op device [key]".
func (s *Sim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// --- driver.Driver ---

// State returns the scripted readiness.
func (s *Sim) State() driver.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetHandler installs the event sink.
func (s *Sim) SetHandler(h driver.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// StartScan begins delivering DeviceDiscovered events for every declared
// peripheral matching the filter.
func (s *Sim) StartScan(filter driver.ScanFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.scanning {
		return ErrScanActive
	}
	s.scanning = true
	s.filter = filter
	s.record("start-scan", "", "")

	for _, id := range s.order {
		p := s.periphs[id]
		if !matchesFilter(p.def, filter) {
			continue
		}
		s.announceLocked(p)
	}
	return nil
}

// StopScan ends the scan. Stopping an inactive scan is a no-op.
func (s *Sim) StopScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.scanning = false
	s.record("stop-scan", "", "")
	return nil
}

// Connect starts a connection attempt.
func (s *Sim) Connect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.deviceLocked(id)
	if err != nil {
		return err
	}
	s.record("connect", id, "")

	if cerr := p.def.ConnectErr; cerr != nil {
		s.dispatchLocked(func(h driver.Handler) {
			h.DeviceConnectFailed(id, cerr)
		})
		return nil
	}
	s.dispatchLocked(func(h driver.Handler) {
		s.mu.Lock()
		p.connected = true
		s.mu.Unlock()
		h.DeviceConnected(id)
	})
	return nil
}

// CancelConnect tears the link down and confirms with a clean disconnect.
func (s *Sim) CancelConnect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.deviceLocked(id)
	if err != nil {
		return err
	}
	s.record("cancel-connect", id, "")

	s.dispatchLocked(func(h driver.Handler) {
		s.mu.Lock()
		p.connected = false
		p.notifying = make(map[uuid.UUID]bool)
		s.mu.Unlock()
		h.DeviceDisconnected(id, nil)
	})
	return nil
}

// DiscoverGroups completes with the peripheral's declared groups.
func (s *Sim) DiscoverGroups(id string, filter []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.connectedLocked(id)
	if err != nil {
		return err
	}
	s.record("discover-groups", id, "")

	if derr := p.def.DiscoverErr; derr != nil {
		s.dispatchLocked(func(h driver.Handler) {
			h.GroupsDiscovered(id, nil, derr)
		})
		return nil
	}

	var infos []driver.GroupInfo
	for gi := range p.def.Groups {
		g := &p.def.Groups[gi]
		if len(filter) > 0 && !containsUUID(filter, g.UUID) {
			continue
		}
		infos = append(infos, driver.GroupInfo{UUID: g.UUID, Primary: g.Primary})
	}
	s.dispatchLocked(func(h driver.Handler) {
		h.GroupsDiscovered(id, infos, nil)
	})
	return nil
}

// DiscoverItems completes with the group's declared items.
func (s *Sim) DiscoverItems(id string, group uuid.UUID, filter []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.connectedLocked(id)
	if err != nil {
		return err
	}
	g, ok := p.groups[group]
	if !ok {
		return ErrUnknownGroup
	}
	s.record("discover-items", id, group.String())

	if derr := g.DiscoverErr; derr != nil {
		s.dispatchLocked(func(h driver.Handler) {
			h.ItemsDiscovered(id, group, nil, derr)
		})
		return nil
	}

	var infos []driver.ItemInfo
	for ii := range g.Items {
		it := &g.Items[ii]
		if len(filter) > 0 && !containsUUID(filter, it.UUID) {
			continue
		}
		infos = append(infos, driver.ItemInfo{UUID: it.UUID, Properties: it.Properties})
	}
	s.dispatchLocked(func(h driver.Handler) {
		h.ItemsDiscovered(id, group, infos, nil)
	})
	return nil
}

// Read completes with the item's current value or its scripted read error.
func (s *Sim) Read(id string, item uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, it, err := s.itemLocked(id, item)
	if err != nil {
		return err
	}
	if !it.Properties.CanRead() {
		return ErrNotPermitted
	}
	s.record("read", id, item.String())

	rerr := it.ReadErr
	s.dispatchLocked(func(h driver.Handler) {
		if rerr != nil {
			h.ItemValueUpdated(id, item, nil, rerr)
			return
		}
		// Snapshot at delivery time so an earlier queued write is visible.
		s.mu.Lock()
		value := append([]byte(nil), p.values[item]...)
		s.mu.Unlock()
		h.ItemValueUpdated(id, item, value, nil)
	})
	return nil
}

// Write stores the value. With withResponse it completes through
// ItemWritten; without, it is fire-and-forget.
func (s *Sim) Write(id string, item uuid.UUID, data []byte, withResponse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, it, err := s.itemLocked(id, item)
	if err != nil {
		return err
	}
	if withResponse && !it.Properties.CanWrite() {
		return ErrNotPermitted
	}
	if !withResponse && !it.Properties.CanWriteWithoutResponse() {
		return ErrNotPermitted
	}

	if !withResponse {
		s.record("write-no-response", id, item.String())
		p.values[item] = append([]byte(nil), data...)
		return nil
	}

	s.record("write", id, item.String())
	werr := it.WriteErr
	stored := append([]byte(nil), data...)
	s.dispatchLocked(func(h driver.Handler) {
		if werr == nil {
			s.mu.Lock()
			p.values[item] = stored
			s.mu.Unlock()
		}
		h.ItemWritten(id, item, werr)
	})
	return nil
}

// SetNotify toggles notification delivery for the item.
func (s *Sim) SetNotify(id string, item uuid.UUID, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, it, err := s.itemLocked(id, item)
	if err != nil {
		return err
	}
	if !it.Properties.CanSubscribe() {
		return ErrNotPermitted
	}
	s.record("set-notify", id, fmt.Sprintf("%s=%t", item, enable))

	nerr := it.NotifyErr
	s.dispatchLocked(func(h driver.Handler) {
		if nerr != nil {
			s.mu.Lock()
			enabled := p.notifying[item]
			s.mu.Unlock()
			h.ItemNotifyStateChanged(id, item, enabled, nerr)
			return
		}
		s.mu.Lock()
		p.notifying[item] = enable
		s.mu.Unlock()
		h.ItemNotifyStateChanged(id, item, enable, nil)
	})
	return nil
}

// Compile-time interface satisfaction check.
var _ driver.Driver = (*Sim)(nil)

// --- scripting helpers ---

// SetState changes the scripted readiness and announces it.
func (s *Sim) SetState(st driver.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
	s.dispatchLocked(func(h driver.Handler) {
		h.DriverStateChanged(st)
	})
}

// Advertise re-announces a peripheral to an active scan, the way a real
// device's advertisement is seen repeatedly.
func (s *Sim) Advertise(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.deviceLocked(id)
	if err != nil {
		return err
	}
	if !s.scanning || !matchesFilter(p.def, s.filter) {
		return nil
	}
	s.announceLocked(p)
	return nil
}

// Notify emits an unsolicited value notification for an item with
// notifications enabled.
func (s *Sim) Notify(id string, item uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, _, err := s.itemLocked(id, item)
	if err != nil {
		return err
	}
	if !p.notifying[item] {
		return ErrNotNotifying
	}
	p.values[item] = append([]byte(nil), data...)
	value := append([]byte(nil), data...)
	s.dispatchLocked(func(h driver.Handler) {
		h.ItemValueUpdated(id, item, value, nil)
	})
	return nil
}

// DropLink simulates an unsolicited link drop.
func (s *Sim) DropLink(id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.connectedLocked(id)
	if err != nil {
		return err
	}
	s.dispatchLocked(func(h driver.Handler) {
		s.mu.Lock()
		p.connected = false
		p.notifying = make(map[uuid.UUID]bool)
		s.mu.Unlock()
		h.DeviceDisconnected(id, cause)
	})
	return nil
}

// SetConnectErr scripts the outcome of future connection attempts.
func (s *Sim) SetConnectErr(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.periphs[id]; ok {
		p.def.ConnectErr = err
	}
}

// SetReadErr scripts the outcome of future reads of an item.
func (s *Sim) SetReadErr(id string, item uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.periphs[id]; ok {
		if it, ok := p.items[item]; ok {
			it.ReadErr = err
		}
	}
}

// SetWriteErr scripts the outcome of future acknowledged writes to an item.
func (s *Sim) SetWriteErr(id string, item uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.periphs[id]; ok {
		if it, ok := p.items[item]; ok {
			it.WriteErr = err
		}
	}
}

// Value returns the stored value of an item, for asserting write effects.
func (s *Sim) Value(id string, item uuid.UUID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.periphs[id]; ok {
		return append([]byte(nil), p.values[item]...)
	}
	return nil
}

// --- internals ---

func (s *Sim) deviceLocked(id string) (*peripheral, error) {
	if s.closed {
		return nil, ErrClosed
	}
	p, ok := s.periphs[id]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return p, nil
}

func (s *Sim) connectedLocked(id string) (*peripheral, error) {
	p, err := s.deviceLocked(id)
	if err != nil {
		return nil, err
	}
	if !p.connected {
		return nil, ErrNotConnected
	}
	return p, nil
}

func (s *Sim) itemLocked(id string, item uuid.UUID) (*peripheral, *Item, error) {
	p, err := s.connectedLocked(id)
	if err != nil {
		return nil, nil, err
	}
	it, ok := p.items[item]
	if !ok {
		return nil, nil, ErrUnknownItem
	}
	return p, it, nil
}

func (s *Sim) announceLocked(p *peripheral) {
	id, name, adv := p.def.ID, p.def.Name, p.def.Advertisement
	s.dispatchLocked(func(h driver.Handler) {
		h.DeviceDiscovered(id, name, adv)
	})
}

func (s *Sim) record(op, id, key string) {
	entry := op
	if id != "" {
		entry += " " + id
	}
	if key != "" {
		entry += " " + key
	}
	s.commands = append(s.commands, entry)
}

// dispatchLocked queues fn for the dispatch goroutine. Called with s.mu
// held; fn runs without it.
func (s *Sim) dispatchLocked(fn func(h driver.Handler)) {
	s.queue = append(s.queue, fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run delivers queued events serially. The handler is captured per event, so
// events queued before SetHandler are delivered to the handler installed at
// delivery time (or dropped when there is none).
func (s *Sim) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		h := s.handler
		s.mu.Unlock()

		if h != nil {
			fn(h)
		}
	}
}

func matchesFilter(p Peripheral, filter driver.ScanFilter) bool {
	if len(filter.Groups) == 0 {
		return true
	}
	for _, want := range filter.Groups {
		if containsUUID(p.Advertisement.Groups, want) {
			return true
		}
		for _, g := range p.Groups {
			if g.UUID == want {
				return true
			}
		}
	}
	return false
}

func containsUUID(list []uuid.UUID, want uuid.UUID) bool {
	for _, u := range list {
		if u == want {
			return true
		}
	}
	return false
}
