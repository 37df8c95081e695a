package federation

// UserProfile is the remote profile data the bridge can look up for a user.
type UserProfile struct {
	DisplayName string
}

// Bridge is the federation transport as seen by the receiver.
type Bridge interface {
	GetUserProfileInformation(externalUserID string) (*UserProfile, error)
	IsUserIDFromTheSameHomeserver(externalUserID, domain string) bool
	JoinRoom(externalRoomID, externalUserID string) error
	InviteToRoom(externalRoomID, externalInviterID, externalInviteeID string) error
}

// RoomAdapter is the local room storage. GetFederatedRoomByExternalID returns
// nil without error when no room is mapped.
type RoomAdapter interface {
	GetFederatedRoomByExternalID(externalRoomID string) (*FederatedRoom, error)
	CreateFederatedRoom(room *FederatedRoom) error
	CreateFederatedRoomForDirectMessage(room *FederatedRoom, usernames []string) error
	RemoveDirectMessageRoom(room *FederatedRoom) error
	AddUserToRoom(room *FederatedRoom, user, actor *FederatedUser) error
	RemoveUserFromRoom(room *FederatedRoom, user, actor *FederatedUser) error
	UpdateRoomName(room *FederatedRoom, name string) error
}

// UserAdapter is the local user storage. GetFederatedUserByExternalID returns
// nil without error when no user is mapped.
type UserAdapter interface {
	GetFederatedUserByExternalID(externalUserID string) (*FederatedUser, error)
	CreateFederatedUser(user *FederatedUser) error
}

type SettingsAdapter interface {
	GetHomeServerDomain() string
}

type MessageAdapter interface {
	SendMessage(sender *FederatedUser, text string, room *FederatedRoom) error
}
