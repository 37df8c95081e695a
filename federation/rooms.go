package federation

import (
	"fmt"
)

// RoomDirectory maps external room ids to local rooms and manages membership.
type RoomDirectory struct {
	rooms RoomAdapter
}

func NewRoomDirectory(rooms RoomAdapter) *RoomDirectory {
	return &RoomDirectory{rooms: rooms}
}

// Resolve returns the room mapped to externalID, or nil.
func (d *RoomDirectory) Resolve(externalID string) (*FederatedRoom, error) {
	room, err := d.rooms.GetFederatedRoomByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("resolving room %s: %w", externalID, err)
	}

	return room, nil
}

func (d *RoomDirectory) Create(room *FederatedRoom) error {
	if err := d.rooms.CreateFederatedRoom(room); err != nil {
		return fmt.Errorf("creating room %s: %w", room.ExternalID, err)
	}

	logger.Debugf("created %s room %s (%s)", room.Type, room.ExternalID, room.DisplayName)

	return nil
}

// PromoteDirectMessage replaces old with a direct message room holding
// exactly usernames.
func (d *RoomDirectory) PromoteDirectMessage(old, promoted *FederatedRoom, usernames []string) error {
	if err := d.rooms.RemoveDirectMessageRoom(old); err != nil {
		return fmt.Errorf("removing direct message room %s: %w", old.ExternalID, err)
	}

	if err := d.rooms.CreateFederatedRoomForDirectMessage(promoted, usernames); err != nil {
		return fmt.Errorf("creating direct message room %s: %w", promoted.ExternalID, err)
	}

	logger.Debugf("promoted direct message room %s to members %v", promoted.ExternalID, usernames)

	return nil
}

func (d *RoomDirectory) AddMember(room *FederatedRoom, user, actor *FederatedUser) error {
	if err := d.rooms.AddUserToRoom(room, user, actor); err != nil {
		return fmt.Errorf("adding %s to room %s: %w", user.ExternalID, room.ExternalID, err)
	}

	return nil
}

func (d *RoomDirectory) RemoveMember(room *FederatedRoom, user, actor *FederatedUser) error {
	if err := d.rooms.RemoveUserFromRoom(room, user, actor); err != nil {
		return fmt.Errorf("removing %s from room %s: %w", user.ExternalID, room.ExternalID, err)
	}

	return nil
}

func (d *RoomDirectory) Rename(room *FederatedRoom, name string) error {
	if err := d.rooms.UpdateRoomName(room, name); err != nil {
		return fmt.Errorf("renaming room %s: %w", room.ExternalID, err)
	}

	return nil
}
