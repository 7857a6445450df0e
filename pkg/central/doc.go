// Package central bridges an event-driven BLE central driver into an ordered,
// structured request/response and state-observation model.
//
// The driver backend (see pkg/driver) reports outcomes through single-shot
// events that carry no request token, only the identifier of the device,
// group or item they concern. This package turns those events into:
//
//   - a per-device connection state machine (LinkSession),
//   - FIFO-ordered resolution of concurrent requests that share a
//     correlation key, and
//   - observable state channels (pkg/observe) for everything a presentation
//     layer might want to watch.
//
// # Structure
//
// A Coordinator owns the driver handle, its readiness state, the single
// active DiscoverySession and the session registry. It installs itself as
// the driver's event handler and routes every event to the LinkSession it
// concerns. The registry guarantees exactly one LinkSession per device
// identifier for the Coordinator's lifetime, so every observer of a device
// sees the same state.
//
// A LinkSession owns the connection state machine, the discovered tree of
// Groups (GATT services) and Items (GATT characteristics), and one FIFO
// queue of pending requests per correlation key. When the link drops, every
// pending request is resolved with ErrDisconnectedMidOperation; the driver
// will never deliver their completions.
//
// Example:
//
//	co := central.New(drv, central.Config{})
//	defer co.Close()
//
//	ds, err := co.Discover(ctx, driver.ScanFilter{})
//	if err != nil {
//		return err
//	}
//	for sess := range ds.Results() {
//		if err := sess.WaitConnect(ctx); err != nil {
//			continue
//		}
//		groups, err := sess.DiscoverGroups(ctx)
//		...
//	}
//
// Nothing in this package retries or times out on its own; callers bound
// operations with a context and own any retry policy.
package central
