package matrix

import (
	"sync"

	"github.com/42wim/matterfed/federation"
	"maunium.net/go/mautrix/id"
)

// Channel is what the bridge learned about a room from its state events. It
// only feeds event conversion; local storage stays the source of truth.
type Channel struct {
	ID       id.RoomID
	Name     string
	JoinRule string
	IsDirect bool
	sync.RWMutex
}

func (c *Channel) roomType() federation.RoomType {
	c.RLock()
	defer c.RUnlock()

	switch {
	case c.IsDirect:
		return federation.RoomTypeDirectMessage
	case c.JoinRule == "invite" || c.JoinRule == "knock" || c.JoinRule == "restricted":
		return federation.RoomTypePrivateGroup
	}

	return federation.RoomTypeChannel
}

func (c *Channel) name() string {
	c.RLock()
	defer c.RUnlock()

	return c.Name
}
