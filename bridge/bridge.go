package bridge

import (
	"github.com/42wim/matterfed/federation"
)

// Bridger is a federation transport: the capabilities the receiver needs plus
// the lifecycle of the connection.
type Bridger interface {
	federation.Bridge

	Protocol() string
	Connected() bool
	Logout() error
}

type Credentials struct {
	Login  string
	Pass   string
	Server string
	Token  string
	// AppService makes the bridge act on behalf of other users of its
	// homeserver, which needs an appservice token.
	AppService bool
}

const (
	EventRoomCreate = "room_create"
	EventMembership = "membership"
	EventMessage    = "message"
	EventRoomName   = "room_name"
)

// Event is an inbound federation event. Data holds one of
// *federation.RoomCreateInput, *federation.RoomChangeMembershipInput,
// *federation.RoomSendInternalMessageInput or *federation.RoomChangeNameInput.
type Event struct {
	Type string
	Data interface{}
}

// RoomID returns the external room id the event applies to.
func (e *Event) RoomID() string {
	switch d := e.Data.(type) {
	case *federation.RoomCreateInput:
		return d.ExternalRoomID
	case *federation.RoomChangeMembershipInput:
		return d.ExternalRoomID
	case *federation.RoomSendInternalMessageInput:
		return d.ExternalRoomID
	case *federation.RoomChangeNameInput:
		return d.ExternalRoomID
	}

	return ""
}

func NewRoomCreateEvent(in *federation.RoomCreateInput) *Event {
	return &Event{Type: EventRoomCreate, Data: in}
}

func NewMembershipEvent(in *federation.RoomChangeMembershipInput) *Event {
	return &Event{Type: EventMembership, Data: in}
}

func NewMessageEvent(in *federation.RoomSendInternalMessageInput) *Event {
	return &Event{Type: EventMessage, Data: in}
}

func NewRoomNameEvent(in *federation.RoomChangeNameInput) *Event {
	return &Event{Type: EventRoomName, Data: in}
}
