package federation

// RoomType is the local kind of a federated room.
type RoomType string

const (
	RoomTypeChannel       RoomType = "c"
	RoomTypePrivateGroup  RoomType = "p"
	RoomTypeDirectMessage RoomType = "d"
)

func (t RoomType) String() string {
	switch t {
	case RoomTypeChannel:
		return "channel"
	case RoomTypePrivateGroup:
		return "private_group"
	case RoomTypeDirectMessage:
		return "direct_message"
	}

	return "unknown"
}

// EventOrigin tells whether an inbound event was authored by this server and
// echoed back (Local) or authored by another homeserver (Remote).
type EventOrigin string

const (
	OriginLocal  EventOrigin = "local"
	OriginRemote EventOrigin = "remote"
)

// FederatedUser is the local record of an identity known on the federation.
type FederatedUser struct {
	ExternalID  string `json:"external_id"`
	LocalID     string `json:"local_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	// ProxyOnly is set for users whose home is the local homeserver; their
	// Username is authoritative.
	ProxyOnly bool `json:"proxy_only"`
}

// FederatedRoom is the local record of a room known on the federation.
type FederatedRoom struct {
	ExternalID  string         `json:"external_id"`
	LocalID     string         `json:"local_id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Type        RoomType       `json:"type"`
	Creator     *FederatedUser `json:"creator"`

	// Members is only used as the initial member snapshot at creation time.
	Members []*FederatedUser `json:"-"`

	// Usernames is the member handle snapshot loaded by storage.
	Usernames []string `json:"-"`
}

// CreateUserInstance builds a new shadow user. An empty display name falls back
// to the username.
func CreateUserInstance(externalID, username, displayName string, proxyOnly bool) *FederatedUser {
	if displayName == "" {
		displayName = username
	}

	return &FederatedUser{
		ExternalID:  externalID,
		Username:    username,
		DisplayName: displayName,
		ProxyOnly:   proxyOnly,
	}
}

// CreateRoomInstance builds a new room. An empty type defaults to a channel and
// an empty display name falls back to the normalized room id.
func CreateRoomInstance(externalID, normalizedRoomID string, creator *FederatedUser, roomType RoomType, displayName string, members ...*FederatedUser) *FederatedRoom {
	if roomType == "" {
		roomType = RoomTypeChannel
	}

	if displayName == "" {
		displayName = normalizedRoomID
	}

	return &FederatedRoom{
		ExternalID:  externalID,
		Name:        normalizedRoomID,
		DisplayName: displayName,
		Type:        roomType,
		Creator:     creator,
		Members:     members,
	}
}

func (r *FederatedRoom) IsDirectMessage() bool {
	return r.Type == RoomTypeDirectMessage
}

// HasMember reports whether username is in the loaded member handle snapshot.
func (r *FederatedRoom) HasMember(username string) bool {
	for _, u := range r.Usernames {
		if u == username {
			return true
		}
	}

	return false
}
