package federation

type RoomCreateInput struct {
	ExternalRoomID      string
	ExternalInviterID   string
	NormalizedInviterID string
	ExternalRoomName    string
	NormalizedRoomID    string
	RoomType            RoomType
	// InternallyCreated is set when this server created the room itself and
	// storage already reflects it.
	InternallyCreated bool
}

type RoomChangeMembershipInput struct {
	ExternalRoomID      string
	NormalizedRoomID    string
	ExternalRoomName    string
	ExternalInviterID   string
	NormalizedInviterID string
	// InviterUsernameOnly is used as the local username when the inviter
	// belongs to the local homeserver.
	InviterUsernameOnly string
	ExternalInviteeID   string
	NormalizedInviteeID string
	InviteeUsernameOnly string
	EventOrigin         EventOrigin
	RoomType            RoomType
	Leave               bool
}

type RoomSendInternalMessageInput struct {
	ExternalRoomID   string
	ExternalSenderID string
	Text             string
}

type RoomChangeNameInput struct {
	ExternalRoomID   string
	ExternalSenderID string
	Name             string
	EventOrigin      EventOrigin
}
