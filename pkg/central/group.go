package central

import (
	"context"

	"github.com/google/uuid"

	"github.com/bluelink-stack/bluelink-go/pkg/driver"
)

// Group is one discovered service on a link. Groups are created only by
// DiscoverGroups and are immutable afterwards except for the attachment of
// their Items; the owning LinkSession keeps them in discovery order.
type Group struct {
	uuid    uuid.UUID
	primary bool
	session *LinkSession

	// guarded by session.mu
	items  []*Item
	itemIx map[uuid.UUID]*Item
}

func newGroup(session *LinkSession, info driver.GroupInfo) *Group {
	return &Group{
		uuid:    info.UUID,
		primary: info.Primary,
		session: session,
		itemIx:  make(map[uuid.UUID]*Item),
	}
}

// UUID returns the group's service UUID.
func (g *Group) UUID() uuid.UUID { return g.uuid }

// Primary reports whether this is a primary service.
func (g *Group) Primary() bool { return g.primary }

// Session returns the link the group was discovered on.
func (g *Group) Session() *LinkSession { return g.session }

// Items returns the group's discovered items in discovery order.
func (g *Group) Items() []*Item {
	g.session.mu.Lock()
	defer g.session.mu.Unlock()
	out := make([]*Item, len(g.items))
	copy(out, g.items)
	return out
}

// Item returns the discovered item with the given UUID, or ErrNotFound when
// discovery has not surfaced it.
func (g *Group) Item(id uuid.UUID) (*Item, error) {
	g.session.mu.Lock()
	defer g.session.mu.Unlock()
	it, ok := g.itemIx[id]
	if !ok {
		return nil, ErrNotFound
	}
	return it, nil
}

// DiscoverItems discovers this group's items; see LinkSession.DiscoverItems.
func (g *Group) DiscoverItems(ctx context.Context, filter ...uuid.UUID) (map[uuid.UUID]*Item, error) {
	return g.session.DiscoverItems(ctx, g, filter...)
}
