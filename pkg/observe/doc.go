// Package observe provides a multi-subscriber observable value container.
//
// A Value holds the latest published element and fans every update out to an
// arbitrary number of independent subscriptions. It is the building block for
// every piece of observable state in this module: connection state, scan
// activity, characteristic values, error slots and notification flags.
//
// # Guarantees
//
//   - Current is always available and reflects the latest Set, even when no
//     subscription exists.
//   - A new subscription's first element is the value current at subscription
//     time; no update published afterwards is skipped and none is duplicated.
//   - Delivery order per subscription matches publish order.
//   - Subscriptions are independent: cancelling one never affects another, and
//     a slow or abandoned consumer never blocks the publisher.
//
// Example:
//
//	state := observe.NewValue(StateIdle)
//	sub := state.Subscribe()
//	defer sub.Cancel()
//
//	for s := range sub.C() {
//		fmt.Println("state:", s)
//	}
package observe
