package central

import (
	"context"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
	"github.com/bluelink-stack/bluelink-go/pkg/observe"
)

// Item is one discovered characteristic within a Group.
//
// An Item exposes three independent observable channels: the last known
// value, the last reported error and the notification-active flag. Value and
// error are deliberately separate facts: a failed operation does not clear
// the last known value, and a fresh value does not retract a concurrently
// reported error.
type Item struct {
	uuid  uuid.UUID
	props driver.Properties
	group *Group

	value     *observe.Value[[]byte]
	lastErr   *observe.Value[error]
	notifying *observe.Value[bool]
}

func newItem(group *Group, info driver.ItemInfo) *Item {
	return &Item{
		uuid:      info.UUID,
		props:     info.Properties,
		group:     group,
		value:     observe.NewValue[[]byte](nil),
		lastErr:   observe.NewValue[error](nil),
		notifying: observe.NewValue(false),
	}
}

// UUID returns the item's characteristic UUID.
func (i *Item) UUID() uuid.UUID { return i.uuid }

// Properties returns the item's capability flags.
func (i *Item) Properties() driver.Properties { return i.props }

// Group returns the group the item belongs to.
func (i *Item) Group() *Group { return i.group }

// Value is the observable last known value. It may be stale: it survives
// disconnects and failed operations, holding whatever was last read or
// notified.
func (i *Item) Value() *observe.Value[[]byte] { return i.value }

// Err is the observable last reported operation error, independent of Value.
func (i *Item) Err() *observe.Value[error] { return i.lastErr }

// Notifying is the observable notification-active flag.
func (i *Item) Notifying() *observe.Value[bool] { return i.notifying }

// Read requests the item's current value; see LinkSession.Read.
func (i *Item) Read(ctx context.Context) ([]byte, error) {
	return i.group.session.Read(ctx, i)
}

// Write performs an acknowledged write; see LinkSession.Write.
func (i *Item) Write(ctx context.Context, data []byte) error {
	return i.group.session.Write(ctx, i, data)
}

// WriteWithoutResponse performs a fire-and-forget write; see
// LinkSession.WriteWithoutResponse.
func (i *Item) WriteWithoutResponse(data []byte) error {
	return i.group.session.WriteWithoutResponse(i, data)
}

// SetNotify enables or disables notifications; see LinkSession.SetNotify.
func (i *Item) SetNotify(ctx context.Context, enable bool) (bool, error) {
	return i.group.session.SetNotify(ctx, i, enable)
}
