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

// LinkSession is the per-device unit owning connection state, the discovered
// Group/Item tree and the correlation queues that order request resolution.
//
// Exactly one LinkSession exists per device identifier for the lifetime of
// the owning Coordinator. A disconnect never destroys a session; it resets
// the transient sub-state (pending requests, discovered tree, notification
// flags) and leaves the session ready for the next connect.
//
// All mutation is serialized by one mutex per session; distinct sessions
// progress fully concurrently.
type LinkSession struct {
	id     string
	drv    driver.Driver
	logger *slog.Logger
	events log.Logger

	state *observe.Value[ConnState]
	name  *observe.Value[string]

	mu      sync.Mutex
	adv     driver.Advertisement
	groups  []*Group
	groupIx map[uuid.UUID]*Group
	itemIx  map[uuid.UUID]*Item
	queues  map[queueKey][]*pending
}

func newLinkSession(id string, drv driver.Driver, logger *slog.Logger, events log.Logger) *LinkSession {
	return &LinkSession{
		id:      id,
		drv:     drv,
		logger:  logger,
		events:  events,
		state:   observe.NewValue(ConnState{Stage: StageDisconnected}),
		name:    observe.NewValue(""),
		groupIx: make(map[uuid.UUID]*Group),
		itemIx:  make(map[uuid.UUID]*Item),
		queues:  make(map[queueKey][]*pending),
	}
}

// ID returns the device identifier the session is bound to.
func (s *LinkSession) ID() string { return s.id }

// Name is the observable driver-supplied display name. It is empty until the
// device has advertised one.
func (s *LinkSession) Name() *observe.Value[string] { return s.name }

// State is the observable connection state.
func (s *LinkSession) State() *observe.Value[ConnState] { return s.state }

// Advertisement returns the most recent advertisement seen for the device.
func (s *LinkSession) Advertisement() driver.Advertisement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adv
}

// Groups returns the discovered groups in discovery order.
func (s *LinkSession) Groups() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// Group returns the discovered group with the given UUID, or ErrNotFound.
func (s *LinkSession) Group(id uuid.UUID) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groupIx[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

// Item returns the discovered item with the given UUID from any group, or
// ErrNotFound.
func (s *LinkSession) Item(id uuid.UUID) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.itemIx[id]
	if !ok {
		return nil, ErrNotFound
	}
	return it, nil
}

// Connect requests a connection and returns a subscription to the connection
// state. When the session is already connecting or connected, no driver
// command is issued and the returned subscription simply reflects the
// in-flight outcome, so concurrent callers converge on one attempt.
func (s *LinkSession) Connect() *observe.Subscription[ConnState] {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Current().Stage {
	case StageDisconnected, StageConnectFailed:
	default:
		return s.state.Subscribe()
	}

	s.state.Set(ConnState{Stage: StageConnecting})
	sub := s.state.Subscribe()

	s.logCommand(log.OpConnect, "", 0)
	if err := s.drv.Connect(s.id); err != nil {
		s.state.Set(ConnState{Stage: StageConnectFailed, Err: err})
	}
	return sub
}

// WaitConnect connects and blocks until the attempt settles: nil once
// connected, the connect error on failure, or ctx.Err. Cancelling ctx does
// not cancel the underlying attempt.
func (s *LinkSession) WaitConnect(ctx context.Context) error {
	sub := s.Connect()
	defer sub.Cancel()

	for {
		st, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		switch st.Stage {
		case StageConnected:
			return nil
		case StageConnectFailed:
			return st.Err
		}
	}
}

// Disconnect requests a teardown of the link or of a pending connection
// attempt, returning a subscription to the connection state. When the
// session is already disconnected, failed or disconnecting, no driver
// command is issued.
func (s *LinkSession) Disconnect() *observe.Subscription[ConnState] {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Current().Stage {
	case StageConnecting, StageConnected:
	default:
		return s.state.Subscribe()
	}

	s.state.Set(ConnState{Stage: StageDisconnecting})
	sub := s.state.Subscribe()

	s.logCommand(log.OpCancelConnect, "", 0)
	if err := s.drv.CancelConnect(s.id); err != nil {
		// The backend refused the teardown; treat the link as gone.
		s.disconnectLocked(err)
	}
	return sub
}

// WaitDisconnect disconnects and blocks until the session reports
// disconnected, or ctx is done.
func (s *LinkSession) WaitDisconnect(ctx context.Context) error {
	sub := s.Disconnect()
	defer sub.Cancel()

	for {
		st, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if st.Stage == StageDisconnected || st.Stage == StageConnectFailed {
			return nil
		}
	}
}

// DiscoverGroups discovers services on the connected device and merges them
// into the session's tree. Re-discovering a known group returns the existing
// instance. An empty filter discovers everything. The returned map holds the
// groups surfaced by this discovery, keyed by UUID.
func (s *LinkSession) DiscoverGroups(ctx context.Context, filter ...uuid.UUID) (map[uuid.UUID]*Group, error) {
	p, err := s.issue(queueKey{kind: opDiscoverGroups}, log.OpDiscoverGroups, "", 0, func() error {
		return s.drv.DiscoverGroups(s.id, filter)
	})
	if err != nil {
		return nil, err
	}
	v, err := s.await(ctx, p)
	if err != nil {
		return nil, err
	}
	groups, _ := v.(map[uuid.UUID]*Group)
	return groups, nil
}

// DiscoverItems discovers characteristics within group and attaches them to
// it. Re-discovering a known item returns the existing instance. An empty
// filter discovers everything.
func (s *LinkSession) DiscoverItems(ctx context.Context, group *Group, filter ...uuid.UUID) (map[uuid.UUID]*Item, error) {
	key := queueKey{kind: opDiscoverItems, id: group.uuid}
	p, err := s.issue(key, log.OpDiscoverItems, group.uuid.String(), 0, func() error {
		return s.drv.DiscoverItems(s.id, group.uuid, filter)
	})
	if err != nil {
		return nil, err
	}
	v, err := s.await(ctx, p)
	if err != nil {
		return nil, err
	}
	items, _ := v.(map[uuid.UUID]*Item)
	return items, nil
}

// Read requests the item's current value from the device. Concurrent reads
// of the same item resolve in issue order.
func (s *LinkSession) Read(ctx context.Context, item *Item) ([]byte, error) {
	key := queueKey{kind: opRead, id: item.uuid}
	p, err := s.issue(key, log.OpRead, item.uuid.String(), 0, func() error {
		return s.drv.Read(s.id, item.uuid)
	})
	if err != nil {
		return nil, err
	}
	v, err := s.await(ctx, p)
	if err != nil {
		return nil, err
	}
	data, _ := v.([]byte)
	return data, nil
}

// Write performs an acknowledged write and waits for its completion.
func (s *LinkSession) Write(ctx context.Context, item *Item, data []byte) error {
	key := queueKey{kind: opWrite, id: item.uuid}
	p, err := s.issue(key, log.OpWrite, item.uuid.String(), len(data), func() error {
		return s.drv.Write(s.id, item.uuid, data, true)
	})
	if err != nil {
		return err
	}
	_, err = s.await(ctx, p)
	return err
}

// WriteWithoutResponse performs a fire-and-forget write. No completion is
// awaited and no correlation queue is involved; only errors the driver
// detects synchronously are reported.
func (s *LinkSession) WriteWithoutResponse(item *Item, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Current().Stage != StageConnected {
		return ErrNotConnected
	}
	s.logCommand(log.OpWriteNoResponse, item.uuid.String(), len(data))
	return s.drv.Write(s.id, item.uuid, data, false)
}

// SetNotify enables or disables value notifications on the item and returns
// the resulting notification state. When the requested state already matches
// the current state it returns immediately without touching the driver.
func (s *LinkSession) SetNotify(ctx context.Context, item *Item, enable bool) (bool, error) {
	s.mu.Lock()
	if s.state.Current().Stage != StageConnected {
		s.mu.Unlock()
		return false, ErrNotConnected
	}
	if item.notifying.Current() == enable {
		s.mu.Unlock()
		return enable, nil
	}
	key := queueKey{kind: opNotify, id: item.uuid}
	p, err := s.enqueueLocked(key, log.OpSetNotify, item.uuid.String(), 0, func() error {
		return s.drv.SetNotify(s.id, item.uuid, enable)
	})
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	v, err := s.await(ctx, p)
	if err != nil {
		return false, err
	}
	enabled, _ := v.(bool)
	return enabled, nil
}

// issue runs the request-precondition check, appends a pending handle to the
// key's queue and issues the driver command.
func (s *LinkSession) issue(key queueKey, op log.Op, logKey string, size int, cmd func() error) (*pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Current().Stage != StageConnected {
		return nil, ErrNotConnected
	}
	return s.enqueueLocked(key, op, logKey, size, cmd)
}

// enqueueLocked appends a pending handle and issues the driver command while
// holding the session mutex, so queue position and command order stay
// aligned across concurrent callers. A synchronously failing command removes
// its handle again: no completion will ever arrive for it.
func (s *LinkSession) enqueueLocked(key queueKey, op log.Op, logKey string, size int, cmd func() error) (*pending, error) {
	p := newPending()
	s.queues[key] = append(s.queues[key], p)

	s.logCommand(op, logKey, size)
	if err := cmd(); err != nil {
		q := s.queues[key]
		s.queues[key] = q[:len(q)-1]
		if len(s.queues[key]) == 0 {
			delete(s.queues, key)
		}
		return nil, err
	}
	return p, nil
}

// await blocks until the handle resolves or ctx is done. An abandoned wait
// leaves the handle queued with a cancellation marker: the driver command is
// not cancelled, and the completion that belongs to this handle will be
// popped and discarded rather than resolving a later request.
func (s *LinkSession) await(ctx context.Context, p *pending) (any, error) {
	select {
	case res := <-p.done:
		return res.value, res.err
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case res := <-p.done:
			// Resolved while we were acquiring the lock.
			return res.value, res.err
		default:
			p.abandoned = true
			return nil, ctx.Err()
		}
	}
}

// resolveLocked pops the head of the key's queue and resolves it, or
// discards the completion when the head was abandoned.
func (s *LinkSession) resolveLocked(key queueKey, res result) {
	q := s.queues[key]
	if len(q) == 0 {
		s.logger.Debug("completion with no pending request",
			"device", s.id, "kind", key.kind, "key", key.id)
		return
	}
	head := q[0]
	if len(q) == 1 {
		delete(s.queues, key)
	} else {
		s.queues[key] = q[1:]
	}
	if head.abandoned {
		return
	}
	head.done <- res
}

// --- driver event entry points, called from the Coordinator's dispatch ---

func (s *LinkSession) handleAdvertisement(name string, adv driver.Advertisement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adv = adv
	if name != "" && name != s.name.Current() {
		s.name.Set(name)
	}
}

func (s *LinkSession) handleConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.state.Current().Stage; st != StageConnecting {
		s.logger.Debug("connect confirmation in unexpected state",
			"device", s.id, "state", st)
		return
	}
	s.state.Set(ConnState{Stage: StageConnected})
}

func (s *LinkSession) handleConnectFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.state.Current().Stage; st != StageConnecting {
		s.logger.Debug("connect failure in unexpected state",
			"device", s.id, "state", st)
		return
	}
	s.state.Set(ConnState{Stage: StageConnectFailed, Err: err})
}

func (s *LinkSession) handleDisconnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(err)
}

// disconnectLocked performs the single transition to StageDisconnected,
// drains every correlation queue exactly once and resets the transient tree
// state. Requests issued after this point fail their precondition check, so
// nothing can be queued and stranded.
func (s *LinkSession) disconnectLocked(err error) {
	if s.state.Current().Stage == StageDisconnected {
		return
	}
	s.state.Set(ConnState{Stage: StageDisconnected, Err: err})

	for key, q := range s.queues {
		for _, p := range q {
			if p.abandoned {
				continue
			}
			p.done <- result{err: ErrDisconnectedMidOperation}
		}
		delete(s.queues, key)
	}

	// The discovered tree does not survive the link; values stay as the
	// last known (stale) data.
	for _, it := range s.itemIx {
		if it.notifying.Current() {
			it.notifying.Set(false)
		}
	}
	s.groups = nil
	s.groupIx = make(map[uuid.UUID]*Group)
	s.itemIx = make(map[uuid.UUID]*Item)
}

func (s *LinkSession) handleGroupsDiscovered(infos []driver.GroupInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey{kind: opDiscoverGroups}
	if err != nil {
		s.resolveLocked(key, result{err: err})
		return
	}

	found := make(map[uuid.UUID]*Group, len(infos))
	for _, info := range infos {
		g, ok := s.groupIx[info.UUID]
		if !ok {
			g = newGroup(s, info)
			s.groups = append(s.groups, g)
			s.groupIx[info.UUID] = g
		}
		found[info.UUID] = g
	}
	s.resolveLocked(key, result{value: found})
}

func (s *LinkSession) handleItemsDiscovered(groupID uuid.UUID, infos []driver.ItemInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey{kind: opDiscoverItems, id: groupID}
	if err != nil {
		s.resolveLocked(key, result{err: err})
		return
	}

	g, ok := s.groupIx[groupID]
	if !ok {
		s.logger.Debug("item discovery for unknown group",
			"device", s.id, "group", groupID)
		s.resolveLocked(key, result{err: ErrNotFound})
		return
	}

	found := make(map[uuid.UUID]*Item, len(infos))
	for _, info := range infos {
		it, ok := g.itemIx[info.UUID]
		if !ok {
			it = newItem(g, info)
			g.items = append(g.items, it)
			g.itemIx[info.UUID] = it
			s.itemIx[info.UUID] = it
		}
		found[info.UUID] = it
	}
	s.resolveLocked(key, result{value: found})
}

// handleValueUpdated serves both read responses and unsolicited
// notifications; the driver cannot tell them apart. A pending read at the
// head of the item's read queue claims the event as its response. Either
// way the item's observable slots are updated: the value slot on success,
// the error slot on failure.
func (s *LinkSession) handleValueUpdated(itemID uuid.UUID, data []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := queueKey{kind: opRead, id: itemID}
	if len(s.queues[key]) > 0 {
		s.resolveLocked(key, result{value: data, err: err})
	}

	it, ok := s.itemIx[itemID]
	if !ok {
		return
	}
	if err != nil {
		it.lastErr.Set(err)
		return
	}
	it.value.Set(data)
}

func (s *LinkSession) handleWritten(itemID uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolveLocked(queueKey{kind: opWrite, id: itemID}, result{err: err})
	if err != nil {
		if it, ok := s.itemIx[itemID]; ok {
			it.lastErr.Set(err)
		}
	}
}

func (s *LinkSession) handleNotifyStateChanged(itemID uuid.UUID, enabled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolveLocked(queueKey{kind: opNotify, id: itemID}, result{value: enabled, err: err})

	it, ok := s.itemIx[itemID]
	if !ok {
		return
	}
	if err != nil {
		it.lastErr.Set(err)
		return
	}
	if it.notifying.Current() != enabled {
		it.notifying.Set(enabled)
	}
}

// logCommand records an outgoing driver command in the traffic capture.
func (s *LinkSession) logCommand(op log.Op, key string, size int) {
	s.events.Log(log.NewEvent(log.DirectionCommand, op, s.id, key, size, nil))
}
