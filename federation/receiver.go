package federation

import (
	"fmt"
)

// Receiver applies inbound federation events to local state. It holds no
// state between calls; callers must serialize events that share an external
// room id.
type Receiver struct {
	rooms    *RoomDirectory
	users    *IdentityDirectory
	relay    *MessageRelay
	settings SettingsAdapter
	bridge   Bridge
}

func NewReceiver(rooms RoomAdapter, users UserAdapter, messages MessageAdapter, settings SettingsAdapter, bridge Bridge) *Receiver {
	roomDir := NewRoomDirectory(rooms)
	userDir := NewIdentityDirectory(users, bridge)

	return &Receiver{
		rooms:    roomDir,
		users:    userDir,
		relay:    NewMessageRelay(roomDir, userDir, messages),
		settings: settings,
		bridge:   bridge,
	}
}

func (r *Receiver) CreateRoom(in *RoomCreateInput) error {
	existing, err := r.rooms.Resolve(in.ExternalRoomID)
	if err != nil {
		return err
	}

	if existing != nil || in.InternallyCreated {
		logger.Debugf("createroom: skipping %s (exists: %t, internal: %t)", in.ExternalRoomID, existing != nil, in.InternallyCreated)
		return nil
	}

	creator, err := r.users.Ensure(in.ExternalInviterID, in.NormalizedInviterID, in.NormalizedInviterID, false)
	if err != nil {
		return err
	}

	room := CreateRoomInstance(in.ExternalRoomID, in.NormalizedRoomID, creator, in.RoomType, in.ExternalRoomName)

	return r.rooms.Create(room)
}

//nolint:funlen,cyclop
func (r *Receiver) ChangeRoomMembership(in *RoomChangeMembershipInput) error {
	logger.Debugf("changeroommembership: %s %s -> %s (origin %s, leave %t)",
		in.ExternalRoomID, in.ExternalInviterID, in.ExternalInviteeID, in.EventOrigin, in.Leave)

	affected, err := r.rooms.Resolve(in.ExternalRoomID)
	if err != nil {
		return err
	}

	if affected == nil && in.EventOrigin == OriginLocal {
		return fmt.Errorf("could not find room with external room id %s: %w", in.ExternalRoomID, ErrRoomNotFound)
	}

	domain := r.settings.GetHomeServerDomain()
	inviterIsLocal := r.bridge.IsUserIDFromTheSameHomeserver(in.ExternalInviterID, domain)
	inviteeIsLocal := r.bridge.IsUserIDFromTheSameHomeserver(in.ExternalInviteeID, domain)

	inviterUsername := in.NormalizedInviterID
	if inviterIsLocal {
		inviterUsername = in.InviterUsernameOnly
	}

	inviteeUsername := in.NormalizedInviteeID
	if inviteeIsLocal {
		inviteeUsername = in.InviteeUsernameOnly
	}

	inviter, err := r.users.Ensure(in.ExternalInviterID, in.NormalizedInviterID, inviterUsername, inviterIsLocal)
	if err != nil {
		return err
	}

	invitee, err := r.users.Ensure(in.ExternalInviteeID, in.NormalizedInviteeID, inviteeUsername, inviteeIsLocal)
	if err != nil {
		return err
	}

	room := affected
	if affected == nil {
		created := CreateRoomInstance(in.ExternalRoomID, in.NormalizedRoomID, inviter, in.RoomType, in.ExternalRoomName, inviter, invitee)
		if err := r.rooms.Create(created); err != nil {
			return err
		}

		if err := r.bridge.JoinRoom(in.ExternalRoomID, in.ExternalInviteeID); err != nil {
			return fmt.Errorf("joining %s to room %s: %w", in.ExternalInviteeID, in.ExternalRoomID, err)
		}

		room, err = r.rooms.Resolve(in.ExternalRoomID)
		if err != nil {
			return err
		}

		if room == nil {
			return fmt.Errorf("room %s missing after creation: %w", in.ExternalRoomID, ErrRoomNotFound)
		}
	}

	if in.Leave {
		return r.rooms.RemoveMember(room, invitee, inviter)
	}

	if affected != nil && affected.IsDirectMessage() && in.EventOrigin == OriginRemote {
		return r.promoteDirectMessage(affected, in, inviter, invitee)
	}

	return r.rooms.AddMember(room, invitee, inviter)
}

func (r *Receiver) promoteDirectMessage(affected *FederatedRoom, in *RoomChangeMembershipInput, inviter, invitee *FederatedUser) error {
	if affected.HasMember(invitee.Username) {
		logger.Debugf("changeroommembership: %s already in direct message room %s", invitee.Username, in.ExternalRoomID)
		return nil
	}

	usernames := make([]string, 0, len(affected.Usernames)+1)
	usernames = append(usernames, affected.Usernames...)
	usernames = append(usernames, invitee.Username)

	promoted := CreateRoomInstance(in.ExternalRoomID, in.NormalizedRoomID, inviter, RoomTypeDirectMessage, in.ExternalRoomName)
	if err := r.rooms.PromoteDirectMessage(affected, promoted, usernames); err != nil {
		return err
	}

	if err := r.bridge.InviteToRoom(in.ExternalRoomID, in.ExternalInviterID, in.ExternalInviteeID); err != nil {
		return fmt.Errorf("inviting %s to room %s: %w", in.ExternalInviteeID, in.ExternalRoomID, err)
	}

	return nil
}

// ReceiveExternalMessage delivers a message and reports whether it was
// delivered. Unknown rooms and senders are dropped without error.
func (r *Receiver) ReceiveExternalMessage(in *RoomSendInternalMessageInput) (bool, error) {
	return r.relay.ReceiveExternalMessage(in)
}

// ChangeRoomName applies a remote room rename. Local renames are echoes and
// unknown rooms are dropped.
func (r *Receiver) ChangeRoomName(in *RoomChangeNameInput) error {
	if in.EventOrigin == OriginLocal {
		return nil
	}

	room, err := r.rooms.Resolve(in.ExternalRoomID)
	if err != nil {
		return err
	}

	if room == nil {
		logger.Debugf("dropping rename of unknown room %s", in.ExternalRoomID)
		return nil
	}

	if room.DisplayName == in.Name {
		return nil
	}

	return r.rooms.Rename(room, in.Name)
}
