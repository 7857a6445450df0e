package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
)

// Adapter command errors.
var (
	ErrUnknownDevice = errors.New("native: device has not been discovered")
	ErrNotConnected  = errors.New("native: device not connected")
	ErrUnknownGroup  = errors.New("native: group not discovered")
	ErrUnknownItem   = errors.New("native: item not discovered")
	ErrScanActive    = errors.New("native: scan already active")
	ErrClosed        = errors.New("native: driver closed")
)

// readBufferSize bounds a single characteristic read. 512 is the ATT
// maximum attribute value length.
const readBufferSize = 512

// Driver adapts tinygo.org/x/bluetooth to the driver.Driver contract.
type Driver struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	state    driver.State
	handler  driver.Handler
	addrs    map[string]bluetooth.Address
	conns    map[string]*conn
	scanning bool
	closed   bool

	queue []func(h driver.Handler)
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New enables the platform's default adapter and returns a Driver on top of
// it. The returned driver reports StatePoweredOn; an enable failure is
// returned instead of a driver.
func New() (*Driver, error) {
	return NewWithAdapter(bluetooth.DefaultAdapter)
}

// NewWithAdapter is like New for a specific adapter.
func NewWithAdapter(adapter *bluetooth.Adapter) (*Driver, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	d := &Driver{
		adapter: adapter,
		state:   driver.StatePoweredOn,
		addrs:   make(map[string]bluetooth.Address),
		conns:   make(map[string]*conn),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()

	adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if connected {
			// Connect outcomes are reported by the Connect goroutine.
			return
		}
		d.handleDrop(dev.Address.String())
	})

	return d, nil
}

// Close stops the dispatch goroutine and the per-device workers.
func (d *Driver) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		conns := d.conns
		d.conns = make(map[string]*conn)
		d.mu.Unlock()

		for _, c := range conns {
			c.stop()
		}
		close(d.done)
	})
}

// --- driver.Driver ---

// State returns the adapter readiness. tinygo exposes no power events after
// Enable, so a successfully enabled adapter stays powered on.
func (d *Driver) State() driver.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetHandler installs the event sink.
func (d *Driver) SetHandler(h driver.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// StartScan begins scanning. tinygo's Scan blocks, so it runs on its own
// goroutine until StopScan.
func (d *Driver) StartScan(filter driver.ScanFilter) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.scanning {
		d.mu.Unlock()
		return ErrScanActive
	}
	d.scanning = true
	d.mu.Unlock()

	go func() {
		err := d.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			d.handleScanResult(filter, result)
		})
		d.mu.Lock()
		d.scanning = false
		d.mu.Unlock()
		if err != nil {
			d.dispatch(func(h driver.Handler) {
				h.DriverStateChanged(driver.StatePoweredOff)
			})
			d.mu.Lock()
			d.state = driver.StatePoweredOff
			d.mu.Unlock()
		}
	}()
	return nil
}

// StopScan ends an active scan.
func (d *Driver) StopScan() error {
	d.mu.Lock()
	scanning := d.scanning
	d.mu.Unlock()
	if !scanning {
		return nil
	}
	return d.adapter.StopScan()
}

// Connect attempts a connection to a previously discovered device.
func (d *Driver) Connect(id string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	addr, ok := d.addrs[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownDevice
	}

	go func() {
		dev, err := d.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			d.dispatch(func(h driver.Handler) {
				h.DeviceConnectFailed(id, err)
			})
			return
		}

		c := newConn(dev)
		d.mu.Lock()
		d.conns[id] = c
		d.mu.Unlock()

		d.dispatch(func(h driver.Handler) {
			h.DeviceConnected(id)
		})
	}()
	return nil
}

// CancelConnect tears down the link. A device with no established link is
// confirmed disconnected immediately.
func (d *Driver) CancelConnect(id string) error {
	d.mu.Lock()
	c, ok := d.conns[id]
	d.mu.Unlock()

	if !ok {
		d.dispatch(func(h driver.Handler) {
			h.DeviceDisconnected(id, nil)
		})
		return nil
	}

	// The disconnect confirmation arrives through the adapter's connect
	// handler once BlueZ reports the link down.
	return c.dev.Disconnect()
}

// DiscoverGroups discovers services.
func (d *Driver) DiscoverGroups(id string, filter []uuid.UUID) error {
	c, err := d.conn(id)
	if err != nil {
		return err
	}
	blFilter, err := toPlatformUUIDs(filter)
	if err != nil {
		return err
	}

	c.submit(func() {
		svcs, derr := c.dev.DiscoverServices(blFilter)
		var infos []driver.GroupInfo
		if derr == nil {
			c.mu.Lock()
			for _, svc := range svcs {
				gid := fromPlatformUUID(svc.UUID())
				c.services[gid] = svc
				// BlueZ only surfaces primary services.
				infos = append(infos, driver.GroupInfo{UUID: gid, Primary: true})
			}
			c.mu.Unlock()
		}
		d.dispatch(func(h driver.Handler) {
			h.GroupsDiscovered(id, infos, derr)
		})
	})
	return nil
}

// DiscoverItems discovers characteristics within a group.
func (d *Driver) DiscoverItems(id string, group uuid.UUID, filter []uuid.UUID) error {
	c, err := d.conn(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	svc, ok := c.services[group]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownGroup
	}
	blFilter, err := toPlatformUUIDs(filter)
	if err != nil {
		return err
	}

	c.submit(func() {
		chars, derr := svc.DiscoverCharacteristics(blFilter)
		var infos []driver.ItemInfo
		if derr == nil {
			c.mu.Lock()
			for _, char := range chars {
				iid := fromPlatformUUID(char.UUID())
				c.chars[iid] = char
				// tinygo does not expose characteristic property
				// flags; report the common capability set.
				infos = append(infos, driver.ItemInfo{
					UUID: iid,
					Properties: driver.PropertyRead |
						driver.PropertyWrite |
						driver.PropertyWriteWithoutResponse |
						driver.PropertyNotify,
				})
			}
			c.mu.Unlock()
		}
		d.dispatch(func(h driver.Handler) {
			h.ItemsDiscovered(id, group, infos, derr)
		})
	})
	return nil
}

// Read reads a characteristic value.
func (d *Driver) Read(id string, item uuid.UUID) error {
	c, char, err := d.char(id, item)
	if err != nil {
		return err
	}

	c.submit(func() {
		buf := make([]byte, readBufferSize)
		n, rerr := char.Read(buf)
		var value []byte
		if rerr == nil {
			value = buf[:n]
		}
		d.dispatch(func(h driver.Handler) {
			h.ItemValueUpdated(id, item, value, rerr)
		})
	})
	return nil
}

// Write writes a characteristic value.
func (d *Driver) Write(id string, item uuid.UUID, data []byte, withResponse bool) error {
	c, char, err := d.char(id, item)
	if err != nil {
		return err
	}

	payload := append([]byte(nil), data...)
	c.submit(func() {
		var werr error
		if withResponse {
			_, werr = char.Write(payload)
		} else {
			_, werr = char.WriteWithoutResponse(payload)
		}
		if !withResponse {
			// Fire-and-forget: no completion event.
			return
		}
		d.dispatch(func(h driver.Handler) {
			h.ItemWritten(id, item, werr)
		})
	})
	return nil
}

// SetNotify enables or disables value notifications.
func (d *Driver) SetNotify(id string, item uuid.UUID, enable bool) error {
	c, char, err := d.char(id, item)
	if err != nil {
		return err
	}

	c.submit(func() {
		var cb func(buf []byte)
		if enable {
			cb = func(buf []byte) {
				value := append([]byte(nil), buf...)
				d.dispatch(func(h driver.Handler) {
					h.ItemValueUpdated(id, item, value, nil)
				})
			}
		}
		nerr := char.EnableNotifications(cb)
		d.dispatch(func(h driver.Handler) {
			h.ItemNotifyStateChanged(id, item, enable, nerr)
		})
	})
	return nil
}

// Compile-time interface satisfaction check.
var _ driver.Driver = (*Driver)(nil)

// --- internals ---

func (d *Driver) handleScanResult(filter driver.ScanFilter, result bluetooth.ScanResult) {
	id := result.Address.String()
	if id == "" {
		return
	}

	adv := driver.Advertisement{
		LocalName: result.LocalName(),
		RSSI:      result.RSSI,
	}
	if len(filter.Groups) > 0 && !advertisesAny(result, filter.Groups) {
		return
	}

	d.mu.Lock()
	d.addrs[id] = result.Address
	d.mu.Unlock()

	name := adv.LocalName
	d.dispatch(func(h driver.Handler) {
		h.DeviceDiscovered(id, name, adv)
	})
}

func (d *Driver) handleDrop(id string) {
	d.mu.Lock()
	c, ok := d.conns[id]
	if ok {
		delete(d.conns, id)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	c.stop()

	// BlueZ does not distinguish requested from spontaneous disconnects
	// here; the session layer's state machine does.
	d.dispatch(func(h driver.Handler) {
		h.DeviceDisconnected(id, nil)
	})
}

func (d *Driver) conn(id string) (*conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	c, ok := d.conns[id]
	if !ok {
		return nil, ErrNotConnected
	}
	return c, nil
}

func (d *Driver) char(id string, item uuid.UUID) (*conn, bluetooth.DeviceCharacteristic, error) {
	c, err := d.conn(id)
	if err != nil {
		return nil, bluetooth.DeviceCharacteristic{}, err
	}
	c.mu.Lock()
	char, ok := c.chars[item]
	c.mu.Unlock()
	if !ok {
		return nil, bluetooth.DeviceCharacteristic{}, ErrUnknownItem
	}
	return c, char, nil
}

// dispatch queues fn for the dispatch goroutine.
func (d *Driver) dispatch(fn func(h driver.Handler)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run delivers queued events serially.
func (d *Driver) run() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.done:
				return
			}
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		h := d.handler
		d.mu.Unlock()

		if h != nil {
			fn(h)
		}
	}
}

// conn is one established link: its discovered handles and the worker that
// serializes its blocking commands.
type conn struct {
	dev bluetooth.Device

	mu       sync.Mutex
	services map[uuid.UUID]bluetooth.DeviceService
	chars    map[uuid.UUID]bluetooth.DeviceCharacteristic

	cmds     []func()
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newConn(dev bluetooth.Device) *conn {
	c := &conn{
		dev:      dev,
		services: make(map[uuid.UUID]bluetooth.DeviceService),
		chars:    make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.work()
	return c
}

// submit queues a blocking command for in-order execution.
func (c *conn) submit(fn func()) {
	c.mu.Lock()
	c.cmds = append(c.cmds, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *conn) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *conn) work() {
	for {
		c.mu.Lock()
		if len(c.cmds) == 0 {
			c.mu.Unlock()
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}
		fn := c.cmds[0]
		c.cmds = c.cmds[1:]
		c.mu.Unlock()

		fn()
	}
}

// --- UUID conversion ---

func toPlatformUUIDs(ids []uuid.UUID) ([]bluetooth.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]bluetooth.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := bluetooth.ParseUUID(id.String())
		if err != nil {
			return nil, fmt.Errorf("uuid %s: %w", id, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func fromPlatformUUID(u bluetooth.UUID) uuid.UUID {
	id, err := uuid.Parse(u.String())
	if err != nil {
		return uuid.UUID{}
	}
	return id
}

func advertisesAny(result bluetooth.ScanResult, groups []uuid.UUID) bool {
	for _, g := range groups {
		u, err := bluetooth.ParseUUID(g.String())
		if err != nil {
			continue
		}
		if result.HasServiceUUID(u) {
			return true
		}
	}
	return false
}
