package central

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
)

// manualDriver accepts every command and never completes any of them on its
// own. Tests deliver completions themselves through the Coordinator's handler
// methods, which makes queue contents and resolution order fully
// deterministic.
type manualDriver struct {
	mu       sync.Mutex
	commands []string
	nextErr  error
}

func (d *manualDriver) record(parts ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.nextErr; err != nil {
		d.nextErr = nil
		return err
	}
	entry := parts[0]
	for _, p := range parts[1:] {
		entry += " " + p
	}
	d.commands = append(d.commands, entry)
	return nil
}

func (d *manualDriver) failNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextErr = err
}

func (d *manualDriver) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

func (d *manualDriver) State() driver.State { return driver.StatePoweredOn }

func (d *manualDriver) SetHandler(h driver.Handler) {}

func (d *manualDriver) StartScan(driver.ScanFilter) error { return d.record("start-scan") }

func (d *manualDriver) StopScan() error { return d.record("stop-scan") }

func (d *manualDriver) Connect(id string) error { return d.record("connect", id) }

func (d *manualDriver) CancelConnect(id string) error { return d.record("cancel-connect", id) }

func (d *manualDriver) DiscoverGroups(id string, filter []uuid.UUID) error {
	return d.record("discover-groups", id)
}

func (d *manualDriver) DiscoverItems(id string, group uuid.UUID, filter []uuid.UUID) error {
	return d.record("discover-items", id, group.String())
}

func (d *manualDriver) Read(id string, item uuid.UUID) error {
	return d.record("read", id, item.String())
}

func (d *manualDriver) Write(id string, item uuid.UUID, data []byte, withResponse bool) error {
	op := "write"
	if !withResponse {
		op = "write-no-response"
	}
	return d.record(op, id, item.String())
}

func (d *manualDriver) SetNotify(id string, item uuid.UUID, enable bool) error {
	return d.record("set-notify", id, fmt.Sprintf("%s=%t", item, enable))
}

var _ driver.Driver = (*manualDriver)(nil)

const testDevice = "AA:BB:CC:00:00:01"

var (
	testGroupID = uuid.MustParse("00000000-0000-0000-0000-00000000180d")
	testItemID  = uuid.MustParse("00000000-0000-0000-0000-000000002a37")
)

func newTestSession(t *testing.T) (*Coordinator, *manualDriver, *LinkSession) {
	t.Helper()
	drv := &manualDriver{}
	co := New(drv, Config{})
	t.Cleanup(co.Close)
	return co, drv, co.Session(testDevice)
}

// waitForCommands polls until the driver has recorded at least n commands.
func waitForCommands(t *testing.T, drv *manualDriver, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(drv.Commands()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("driver recorded %d commands, want at least %d", len(drv.Commands()), n)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connectSession drives the session to StageConnected.
func connectSession(t *testing.T, co *Coordinator, sess *LinkSession) {
	t.Helper()
	sess.Connect().Cancel()
	co.DeviceConnected(sess.ID())
	if st := sess.State().Current().Stage; st != StageConnected {
		t.Fatalf("stage = %v after connect confirmation, want %v", st, StageConnected)
	}
}

// discoverTestItem drives group and item discovery for the canonical test
// tree and returns the discovered item.
func discoverTestItem(t *testing.T, co *Coordinator, drv *manualDriver, sess *LinkSession) *Item {
	t.Helper()
	base := len(drv.Commands())

	groupCh := make(chan error, 1)
	go func() {
		_, err := sess.DiscoverGroups(testCtx(t))
		groupCh <- err
	}()
	waitForCommands(t, drv, base+1)
	co.GroupsDiscovered(sess.ID(), []driver.GroupInfo{{UUID: testGroupID, Primary: true}}, nil)
	if err := <-groupCh; err != nil {
		t.Fatalf("DiscoverGroups() error = %v", err)
	}

	g, err := sess.Group(testGroupID)
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}

	itemCh := make(chan error, 1)
	go func() {
		_, err := g.DiscoverItems(testCtx(t))
		itemCh <- err
	}()
	waitForCommands(t, drv, base+2)
	infos := []driver.ItemInfo{{
		UUID:       testItemID,
		Properties: driver.PropertyRead | driver.PropertyWrite | driver.PropertyNotify,
	}}
	co.ItemsDiscovered(sess.ID(), testGroupID, infos, nil)
	if err := <-itemCh; err != nil {
		t.Fatalf("DiscoverItems() error = %v", err)
	}

	it, err := g.Item(testItemID)
	if err != nil {
		t.Fatalf("Item() error = %v", err)
	}
	return it
}

func TestConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		co, drv, sess := newTestSession(t)

		sub := sess.Connect()
		defer sub.Cancel()
		if st := sess.State().Current().Stage; st != StageConnecting {
			t.Errorf("stage = %v after Connect, want %v", st, StageConnecting)
		}

		co.DeviceConnected(testDevice)
		if st := sess.State().Current().Stage; st != StageConnected {
			t.Errorf("stage = %v, want %v", st, StageConnected)
		}
		if cmds := drv.Commands(); len(cmds) != 1 || cmds[0] != "connect "+testDevice {
			t.Errorf("commands = %v, want one connect", cmds)
		}
	})

	t.Run("Coalesced", func(t *testing.T) {
		co, drv, sess := newTestSession(t)

		// A second Connect while the first is in flight must not issue a
		// second driver command; both callers observe the one attempt.
		sub1 := sess.Connect()
		defer sub1.Cancel()
		sub2 := sess.Connect()
		defer sub2.Cancel()

		if cmds := drv.Commands(); len(cmds) != 1 {
			t.Fatalf("commands = %v, want exactly one connect", cmds)
		}

		co.DeviceConnected(testDevice)
		if err := sess.WaitConnect(testCtx(t)); err != nil {
			t.Errorf("WaitConnect() error = %v", err)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		co, _, sess := newTestSession(t)
		errRefused := errors.New("connection refused")

		waitCh := make(chan error, 1)
		go func() { waitCh <- sess.WaitConnect(testCtx(t)) }()

		// Wait for the attempt before delivering the failure.
		deadline := time.Now().Add(2 * time.Second)
		for sess.State().Current().Stage != StageConnecting && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		co.DeviceConnectFailed(testDevice, errRefused)

		if err := <-waitCh; !errors.Is(err, errRefused) {
			t.Errorf("WaitConnect() error = %v, want %v", err, errRefused)
		}
		st := sess.State().Current()
		if st.Stage != StageConnectFailed || !errors.Is(st.Err, errRefused) {
			t.Errorf("state = %v, want connect-failed with cause", st)
		}
	})

	t.Run("SynchronousError", func(t *testing.T) {
		_, drv, sess := newTestSession(t)
		errRadio := errors.New("radio gone")
		drv.failNext(errRadio)

		if err := sess.WaitConnect(testCtx(t)); !errors.Is(err, errRadio) {
			t.Errorf("WaitConnect() error = %v, want %v", err, errRadio)
		}
	})

	t.Run("ReconnectAfterFailure", func(t *testing.T) {
		co, drv, sess := newTestSession(t)

		sess.Connect().Cancel()
		co.DeviceConnectFailed(testDevice, errors.New("first attempt"))

		sess.Connect().Cancel()
		co.DeviceConnected(testDevice)

		if st := sess.State().Current().Stage; st != StageConnected {
			t.Errorf("stage = %v after retry, want %v", st, StageConnected)
		}
		if got := len(drv.Commands()); got != 2 {
			t.Errorf("driver saw %d commands, want 2 connects", got)
		}
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("Requested", func(t *testing.T) {
		co, _, sess := newTestSession(t)
		connectSession(t, co, sess)

		waitCh := make(chan error, 1)
		go func() { waitCh <- sess.WaitDisconnect(testCtx(t)) }()

		deadline := time.Now().Add(2 * time.Second)
		for sess.State().Current().Stage != StageDisconnecting && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		co.DeviceDisconnected(testDevice, nil)

		if err := <-waitCh; err != nil {
			t.Errorf("WaitDisconnect() error = %v", err)
		}
		st := sess.State().Current()
		if st.Stage != StageDisconnected || st.Err != nil {
			t.Errorf("state = %v, want clean disconnected", st)
		}
	})

	t.Run("AlreadyDisconnected", func(t *testing.T) {
		_, drv, sess := newTestSession(t)

		sess.Disconnect().Cancel()
		if cmds := drv.Commands(); len(cmds) != 0 {
			t.Errorf("commands = %v, want none for a no-op disconnect", cmds)
		}
	})
}

func TestRequestPreconditions(t *testing.T) {
	_, drv, sess := newTestSession(t)

	// Requests on a disconnected session fail synchronously, before any
	// driver command is issued.
	if _, err := sess.DiscoverGroups(testCtx(t)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("DiscoverGroups() while disconnected error = %v, want %v", err, ErrNotConnected)
	}
	if cmds := drv.Commands(); len(cmds) != 0 {
		t.Errorf("commands = %v, want none", cmds)
	}
}

func TestReadFIFO(t *testing.T) {
	for _, n := range []int{1, 2, 6, 20} {
		t.Run(fmt.Sprintf("Depth%d", n), func(t *testing.T) {
			co, drv, sess := newTestSession(t)
			connectSession(t, co, sess)
			it := discoverTestItem(t, co, drv, sess)
			base := len(drv.Commands())

			// n concurrent reads of the same item, issued in a known order.
			// Completions carry distinct payloads, so a mismatched
			// resolution is visible.
			results := make([]chan []byte, n)
			for i := range results {
				results[i] = make(chan []byte, 1)
				ch := results[i]
				go func() {
					data, err := it.Read(testCtx(t))
					if err != nil {
						t.Errorf("Read() error = %v", err)
					}
					ch <- data
				}()
				waitForCommands(t, drv, base+i+1)
			}

			for i := 0; i < n; i++ {
				co.ItemValueUpdated(testDevice, testItemID, []byte{byte(i + 1)}, nil)
			}
			for i := 0; i < n; i++ {
				want := []byte{byte(i + 1)}
				if got := <-results[i]; !bytes.Equal(got, want) {
					t.Errorf("read %d = %x, want %x", i, got, want)
				}
			}
		})
	}
}

func TestAbandonedRead(t *testing.T) {
	co, drv, sess := newTestSession(t)
	connectSession(t, co, sess)
	it := discoverTestItem(t, co, drv, sess)
	base := len(drv.Commands())

	// First read is abandoned before its completion arrives.
	ctx, cancel := context.WithCancel(context.Background())
	abandonedCh := make(chan error, 1)
	go func() {
		_, err := it.Read(ctx)
		abandonedCh <- err
	}()
	waitForCommands(t, drv, base+1)
	cancel()
	if err := <-abandonedCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned Read() error = %v, want %v", err, context.Canceled)
	}

	// Second read queues behind the abandoned handle.
	secondCh := make(chan []byte, 1)
	go func() {
		data, err := it.Read(testCtx(t))
		if err != nil {
			t.Errorf("Read() error = %v", err)
		}
		secondCh <- data
	}()
	waitForCommands(t, drv, base+2)

	// The first completion belongs to the abandoned read and must be
	// discarded, never resolving the second one.
	co.ItemValueUpdated(testDevice, testItemID, []byte{0xaa}, nil)
	co.ItemValueUpdated(testDevice, testItemID, []byte{0xbb}, nil)

	if got := <-secondCh; !bytes.Equal(got, []byte{0xbb}) {
		t.Errorf("second read = %x, want bb", got)
	}
}

func TestWrite(t *testing.T) {
	t.Run("Acknowledged", func(t *testing.T) {
		co, drv, sess := newTestSession(t)
		connectSession(t, co, sess)
		it := discoverTestItem(t, co, drv, sess)

		errCh := make(chan error, 1)
		go func() { errCh <- it.Write(testCtx(t), []byte{0x42}) }()
		waitForCommands(t, drv, 4)
		co.ItemWritten(testDevice, testItemID, nil)

		if err := <-errCh; err != nil {
			t.Errorf("Write() error = %v", err)
		}
	})

	t.Run("WithoutResponse", func(t *testing.T) {
		co, drv, sess := newTestSession(t)
		connectSession(t, co, sess)
		it := discoverTestItem(t, co, drv, sess)
		base := len(drv.Commands())

		// Fire-and-forget: returns without any completion being delivered.
		if err := it.WriteWithoutResponse([]byte{0x42}); err != nil {
			t.Fatalf("WriteWithoutResponse() error = %v", err)
		}
		cmds := drv.Commands()
		if len(cmds) != base+1 || cmds[base] != "write-no-response "+testDevice+" "+testItemID.String() {
			t.Errorf("commands = %v, want a trailing write-no-response", cmds)
		}
	})

	t.Run("Failed", func(t *testing.T) {
		co, drv, sess := newTestSession(t)
		connectSession(t, co, sess)
		it := discoverTestItem(t, co, drv, sess)
		errDenied := errors.New("write not permitted")

		errCh := make(chan error, 1)
		go func() { errCh <- it.Write(testCtx(t), []byte{0x42}) }()
		waitForCommands(t, drv, 4)
		co.ItemWritten(testDevice, testItemID, errDenied)

		if err := <-errCh; !errors.Is(err, errDenied) {
			t.Errorf("Write() error = %v, want %v", err, errDenied)
		}
		if got := it.Err().Current(); !errors.Is(got, errDenied) {
			t.Errorf("item error slot = %v, want %v", got, errDenied)
		}
	})
}

func TestSetNotify(t *testing.T) {
	t.Run("Toggle", func(t *testing.T) {
		co, drv, sess := newTestSession(t)
		connectSession(t, co, sess)
		it := discoverTestItem(t, co, drv, sess)

		resCh := make(chan bool, 1)
		go func() {
			enabled, err := it.SetNotify(testCtx(t), true)
			if err != nil {
				t.Errorf("SetNotify() error = %v", err)
			}
			resCh <- enabled
		}()
		waitForCommands(t, drv, 4)
		co.ItemNotifyStateChanged(testDevice, testItemID, true, nil)

		if !<-resCh {
			t.Error("SetNotify(true) = false")
		}
		if !it.Notifying().Current() {
			t.Error("Notifying() = false after enable")
		}
	})

	t.Run("NoopWhenMatching", func(t *testing.T) {
		co, drv, sess := newTestSession(t)
		connectSession(t, co, sess)
		it := discoverTestItem(t, co, drv, sess)
		base := len(drv.Commands())

		// Requesting the state the item is already in touches nothing.
		enabled, err := it.SetNotify(testCtx(t), false)
		if err != nil || enabled {
			t.Errorf("SetNotify(false) = (%t, %v), want (false, nil)", enabled, err)
		}
		if got := len(drv.Commands()); got != base {
			t.Errorf("driver saw %d commands, want %d", got, base)
		}
	})
}

func TestNotificationUpdatesValue(t *testing.T) {
	co, drv, sess := newTestSession(t)
	connectSession(t, co, sess)
	it := discoverTestItem(t, co, drv, sess)

	sub := it.Value().Subscribe()
	defer sub.Cancel()

	// An unsolicited update with no pending read still lands in the value
	// slot.
	co.ItemValueUpdated(testDevice, testItemID, []byte{0x99}, nil)

	for {
		v, err := sub.Next(testCtx(t))
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if bytes.Equal(v, []byte{0x99}) {
			break
		}
	}

	// A failed update lands in the error slot and leaves the value alone.
	errStale := errors.New("read timeout")
	co.ItemValueUpdated(testDevice, testItemID, nil, errStale)
	if got := it.Err().Current(); !errors.Is(got, errStale) {
		t.Errorf("error slot = %v, want %v", got, errStale)
	}
	if got := it.Value().Current(); !bytes.Equal(got, []byte{0x99}) {
		t.Errorf("value slot = %x after failure, want 99 retained", got)
	}
}

func TestDrainOnDisconnect(t *testing.T) {
	co, drv, sess := newTestSession(t)
	connectSession(t, co, sess)
	it := discoverTestItem(t, co, drv, sess)
	base := len(drv.Commands())

	// Give the item a value and an active notification subscription.
	co.ItemValueUpdated(testDevice, testItemID, []byte{0x07}, nil)
	notifyCh := make(chan struct{})
	go func() {
		it.SetNotify(testCtx(t), true)
		close(notifyCh)
	}()
	waitForCommands(t, drv, base+1)
	co.ItemNotifyStateChanged(testDevice, testItemID, true, nil)
	<-notifyCh

	// One read in flight when the link drops.
	readCh := make(chan error, 1)
	go func() {
		_, err := it.Read(testCtx(t))
		readCh <- err
	}()
	waitForCommands(t, drv, base+2)

	errDropped := errors.New("supervision timeout")
	co.DeviceDisconnected(testDevice, errDropped)

	if err := <-readCh; !errors.Is(err, ErrDisconnectedMidOperation) {
		t.Errorf("in-flight Read() error = %v, want %v", err, ErrDisconnectedMidOperation)
	}

	st := sess.State().Current()
	if st.Stage != StageDisconnected || !errors.Is(st.Err, errDropped) {
		t.Errorf("state = %v, want disconnected with drop cause", st)
	}

	// The discovered tree is transient; the last known value is not.
	if got := sess.Groups(); len(got) != 0 {
		t.Errorf("Groups() = %d entries after disconnect, want 0", len(got))
	}
	if _, err := sess.Item(testItemID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Item() after disconnect error = %v, want %v", err, ErrNotFound)
	}
	if got := it.Value().Current(); !bytes.Equal(got, []byte{0x07}) {
		t.Errorf("value = %x after disconnect, want 07 retained", got)
	}
	if it.Notifying().Current() {
		t.Error("Notifying() = true after disconnect, want reset")
	}

	// The session survives for the next connect, but new work is refused
	// until then.
	if _, err := it.Read(testCtx(t)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read() after disconnect error = %v, want %v", err, ErrNotConnected)
	}
}

func TestDiscoveryIdempotent(t *testing.T) {
	co, drv, sess := newTestSession(t)
	connectSession(t, co, sess)
	it := discoverTestItem(t, co, drv, sess)
	base := len(drv.Commands())

	g, err := sess.Group(testGroupID)
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}

	// Re-discovery surfaces the same instances, never duplicates.
	groupCh := make(chan map[uuid.UUID]*Group, 1)
	go func() {
		groups, err := sess.DiscoverGroups(testCtx(t))
		if err != nil {
			t.Errorf("DiscoverGroups() error = %v", err)
		}
		groupCh <- groups
	}()
	waitForCommands(t, drv, base+1)
	co.GroupsDiscovered(testDevice, []driver.GroupInfo{{UUID: testGroupID, Primary: true}}, nil)

	groups := <-groupCh
	if groups[testGroupID] != g {
		t.Error("re-discovered group is a different instance")
	}
	if got := len(sess.Groups()); got != 1 {
		t.Errorf("Groups() = %d entries, want 1", got)
	}

	itemCh := make(chan map[uuid.UUID]*Item, 1)
	go func() {
		items, err := g.DiscoverItems(testCtx(t))
		if err != nil {
			t.Errorf("DiscoverItems() error = %v", err)
		}
		itemCh <- items
	}()
	waitForCommands(t, drv, base+2)
	co.ItemsDiscovered(testDevice, testGroupID, []driver.ItemInfo{{UUID: testItemID}}, nil)

	items := <-itemCh
	if items[testItemID] != it {
		t.Error("re-discovered item is a different instance")
	}
}

func TestDiscoveryFailure(t *testing.T) {
	co, drv, sess := newTestSession(t)
	connectSession(t, co, sess)
	errGatt := errors.New("gatt error 0x0e")

	groupCh := make(chan error, 1)
	go func() {
		_, err := sess.DiscoverGroups(testCtx(t))
		groupCh <- err
	}()
	waitForCommands(t, drv, 2)
	co.GroupsDiscovered(testDevice, nil, errGatt)

	if err := <-groupCh; !errors.Is(err, errGatt) {
		t.Errorf("DiscoverGroups() error = %v, want %v", err, errGatt)
	}
	if got := len(sess.Groups()); got != 0 {
		t.Errorf("Groups() = %d entries after failed discovery, want 0", got)
	}
}

func TestSessionIdentity(t *testing.T) {
	co, _, sess := newTestSession(t)

	if co.Session(testDevice) != sess {
		t.Error("Session() returned a different instance for the same id")
	}
	other := co.Session("AA:BB:CC:00:00:02")
	if other == sess {
		t.Error("distinct ids share a session")
	}
	if got := len(co.Sessions()); got != 2 {
		t.Errorf("Sessions() = %d entries, want 2", got)
	}
}
