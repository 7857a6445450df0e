package observe

import "errors"

// ErrSubscriptionCancelled is returned by Next when the subscription has been
// cancelled.
var ErrSubscriptionCancelled = errors.New("subscription cancelled")
