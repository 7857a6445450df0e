package central

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
	"github.com/bluelink-stack/bluelink-go/pkg/log"
	"github.com/bluelink-stack/bluelink-go/pkg/observe"
)

// Config carries the optional collaborators of a Coordinator.
type Config struct {
	// Logger receives operational logging. Nil disables it.
	Logger *slog.Logger

	// EventLogger receives one event per driver command issued and per
	// driver event received, for capture and replay. Nil disables it.
	EventLogger log.Logger
}

// Coordinator owns the driver handle, its readiness state, the single active
// discovery session and the session registry. It is the driver's event
// handler: every event is routed to the LinkSession it concerns.
type Coordinator struct {
	drv    driver.Driver
	logger *slog.Logger
	events log.Logger

	registry *registry
	state    *observe.Value[driver.State]
	scanning *observe.Value[bool]

	mu     sync.Mutex
	scan   *DiscoverySession
	closed bool
}

// New creates a Coordinator on top of drv and installs it as the driver's
// event handler.
func New(drv driver.Driver, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	events := cfg.EventLogger
	if events == nil {
		events = log.NoopLogger{}
	}

	c := &Coordinator{
		drv:      drv,
		logger:   logger,
		events:   events,
		state:    observe.NewValue(drv.State()),
		scanning: observe.NewValue(false),
	}
	c.registry = newRegistry(func(id string) *LinkSession {
		return newLinkSession(id, drv, logger, events)
	})

	drv.SetHandler(c)
	return c
}

// State is the observable driver readiness.
func (c *Coordinator) State() *observe.Value[driver.State] { return c.state }

// Scanning is the observable discovery-activity flag.
func (c *Coordinator) Scanning() *observe.Value[bool] { return c.scanning }

// Session returns the LinkSession for id, creating it on first reference.
// The same id always yields the same instance.
func (c *Coordinator) Session(id string) *LinkSession {
	return c.registry.resolve(id)
}

// Sessions returns every known session in creation order.
func (c *Coordinator) Sessions() []*LinkSession {
	return c.registry.all()
}

// Discover starts a discovery session. Preconditions are checked
// synchronously before the driver is touched: the driver must be powered on
// (ErrNotPoweredOn) and no discovery session may be active
// (ErrScanInProgress).
//
// Each device is surfaced on Results exactly once per session, as its
// LinkSession. The scan ends, and the driver's stop-scan command is issued
// exactly once, when ctx is cancelled or Stop is called — whichever comes
// first.
func (c *Coordinator) Discover(ctx context.Context, filter driver.ScanFilter) (*DiscoverySession, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state.Current() != driver.StatePoweredOn {
		c.mu.Unlock()
		return nil, ErrNotPoweredOn
	}
	if c.scan != nil {
		c.mu.Unlock()
		return nil, ErrScanInProgress
	}

	c.events.Log(log.NewEvent(log.DirectionCommand, log.OpStartScan, "", "", 0, nil))
	if err := c.drv.StartScan(filter); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	ds := newDiscoverySession(c)
	c.scan = ds
	c.scanning.Set(true)
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			ds.Stop()
		case <-ds.done:
		}
	}()

	return ds, nil
}

// StopDiscovery imperatively ends the active discovery session, if any.
func (c *Coordinator) StopDiscovery() {
	c.mu.Lock()
	ds := c.scan
	c.mu.Unlock()

	if ds != nil {
		ds.Stop()
	}
}

// endScan detaches ds and stops the driver scan. Called once per session,
// through DiscoverySession.Stop.
func (c *Coordinator) endScan(ds *DiscoverySession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scan != ds {
		return
	}
	c.scan = nil
	c.scanning.Set(false)

	c.events.Log(log.NewEvent(log.DirectionCommand, log.OpStopScan, "", "", 0, nil))
	if err := c.drv.StopScan(); err != nil {
		c.logger.Warn("stop scan failed", "error", err)
	}
}

// Close ends the active discovery session and detaches the Coordinator from
// the driver. Sessions remain readable but reject new work once their links
// drop.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ds := c.scan
	c.mu.Unlock()

	if ds != nil {
		ds.Stop()
	}
	c.drv.SetHandler(nil)
}

// --- driver.Handler ---

// DriverStateChanged records the new readiness and ends the active discovery
// session when the radio is no longer usable.
func (c *Coordinator) DriverStateChanged(st driver.State) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpStateChanged, "", st.String(), 0, nil))
	c.state.Set(st)

	if st != driver.StatePoweredOn {
		c.StopDiscovery()
	}
}

// DeviceDiscovered routes a scan result through the registry and the active
// discovery session's deduplication.
func (c *Coordinator) DeviceDiscovered(id string, name string, adv driver.Advertisement) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpDiscovered, id, name, len(adv.ManufacturerData), nil))

	c.mu.Lock()
	ds := c.scan
	c.mu.Unlock()
	if ds == nil {
		// Stale event from a scan that was just stopped.
		return
	}

	sess := c.registry.resolve(id)
	sess.handleAdvertisement(name, adv)
	ds.offer(sess)
}

// DeviceConnected routes a connect confirmation.
func (c *Coordinator) DeviceConnected(id string) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpConnected, id, "", 0, nil))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleConnected()
	} else {
		c.logger.Debug("connect event for unknown device", "device", id)
	}
}

// DeviceConnectFailed routes a connect failure.
func (c *Coordinator) DeviceConnectFailed(id string, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpConnectFailed, id, "", 0, err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleConnectFailed(err)
	} else {
		c.logger.Debug("connect failure for unknown device", "device", id)
	}
}

// DeviceDisconnected routes a link drop.
func (c *Coordinator) DeviceDisconnected(id string, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpDisconnected, id, "", 0, err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleDisconnected(err)
	} else {
		c.logger.Debug("disconnect for unknown device", "device", id)
	}
}

// GroupsDiscovered routes a service discovery completion.
func (c *Coordinator) GroupsDiscovered(id string, groups []driver.GroupInfo, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpGroupsDiscovered, id, "", len(groups), err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleGroupsDiscovered(groups, err)
	}
}

// ItemsDiscovered routes a characteristic discovery completion.
func (c *Coordinator) ItemsDiscovered(id string, group uuid.UUID, items []driver.ItemInfo, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpItemsDiscovered, id, group.String(), len(items), err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleItemsDiscovered(group, items, err)
	}
}

// ItemValueUpdated routes a read response or unsolicited notification.
func (c *Coordinator) ItemValueUpdated(id string, item uuid.UUID, value []byte, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpValueUpdated, id, item.String(), len(value), err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleValueUpdated(item, value, err)
	}
}

// ItemWritten routes a write completion.
func (c *Coordinator) ItemWritten(id string, item uuid.UUID, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpWritten, id, item.String(), 0, err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleWritten(item, err)
	}
}

// ItemNotifyStateChanged routes a notify toggle completion.
func (c *Coordinator) ItemNotifyStateChanged(id string, item uuid.UUID, enabled bool, err error) {
	c.events.Log(log.NewEvent(log.DirectionEvent, log.OpNotifyChanged, id, item.String(), 0, err))
	if sess, ok := c.registry.lookup(id); ok {
		sess.handleNotifyStateChanged(item, enabled, err)
	}
}

// Compile-time interface satisfaction check.
var _ driver.Handler = (*Coordinator)(nil)
