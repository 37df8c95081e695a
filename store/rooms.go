package store

import (
	"fmt"
	"time"

	"github.com/42wim/matterfed/federation"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

type roomRecord struct {
	LocalID     string              `json:"local_id"`
	ExternalID  string              `json:"external_id"`
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	Type        federation.RoomType `json:"type"`
	CreatorID   string              `json:"creator_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type memberRecord struct {
	UserID  string    `json:"user_id,omitempty"`
	AddedBy string    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

func (s *Store) GetFederatedRoomByExternalID(externalRoomID string) (*federation.FederatedRoom, error) {
	var room *federation.FederatedRoom

	err := s.db.View(func(tx *bolt.Tx) error {
		localID := tx.Bucket(bucketRoomsByExternal).Get([]byte(externalRoomID))
		if localID == nil {
			return nil
		}

		var err error
		room, err = loadRoom(tx, string(localID))
		return err
	})

	return room, err
}

// CreateFederatedRoom stores room with its creator and initial members. It is
// a no-op when the external id is already mapped.
func (s *Store) CreateFederatedRoom(room *federation.FederatedRoom) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		created, err := insertRoom(tx, room)
		if err != nil || !created {
			return err
		}

		var members []*federation.FederatedUser
		if room.Creator != nil {
			members = append(members, room.Creator)
		}
		members = append(members, room.Members...)

		for _, member := range members {
			if err := putMember(tx, room.LocalID, member.Username, room.Creator); err != nil {
				return err
			}
		}

		return nil
	})
}

// CreateFederatedRoomForDirectMessage stores a direct message room whose
// members are exactly usernames.
func (s *Store) CreateFederatedRoomForDirectMessage(room *federation.FederatedRoom, usernames []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		created, err := insertRoom(tx, room)
		if err != nil || !created {
			return err
		}

		for _, username := range usernames {
			if err := putMember(tx, room.LocalID, username, room.Creator); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Store) RemoveDirectMessageRoom(room *federation.FederatedRoom) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, room)
		if err != nil {
			return err
		}

		for _, name := range [][]byte{bucketMembers, bucketMessages} {
			b := tx.Bucket(name)
			if b.Bucket([]byte(localID)) == nil {
				continue
			}
			if err := b.DeleteBucket([]byte(localID)); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketRooms).Delete([]byte(localID)); err != nil {
			return err
		}

		logger.Debugf("removed direct message room %s (%s)", room.ExternalID, localID)

		return tx.Bucket(bucketRoomsByExternal).Delete([]byte(room.ExternalID))
	})
}

// AddUserToRoom adds user to room. Adding a present member is a no-op.
func (s *Store) AddUserToRoom(room *federation.FederatedRoom, user, actor *federation.FederatedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, room)
		if err != nil {
			return err
		}

		return putMember(tx, localID, user.Username, actor)
	})
}

func (s *Store) RemoveUserFromRoom(room *federation.FederatedRoom, user, actor *federation.FederatedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, room)
		if err != nil {
			return err
		}

		members := tx.Bucket(bucketMembers).Bucket([]byte(localID))
		if members == nil {
			return nil
		}

		if actor != nil {
			logger.Debugf("%s removed %s from room %s", actor.Username, user.Username, room.ExternalID)
		}

		return members.Delete([]byte(user.Username))
	})
}

func (s *Store) UpdateRoomName(room *federation.FederatedRoom, name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, room)
		if err != nil {
			return err
		}

		rooms := tx.Bucket(bucketRooms)

		record := &roomRecord{}
		if _, err := getJSON(rooms, localID, record); err != nil {
			return err
		}

		record.DisplayName = name

		return putJSON(rooms, localID, record)
	})
}

// RoomMembers returns the member handles of the room mapped to externalRoomID.
func (s *Store) RoomMembers(externalRoomID string) ([]string, error) {
	room, err := s.GetFederatedRoomByExternalID(externalRoomID)
	if err != nil {
		return nil, err
	}

	if room == nil {
		return nil, fmt.Errorf("%s: %w", externalRoomID, errUnknownRoom)
	}

	return room.Usernames, nil
}

func insertRoom(tx *bolt.Tx, room *federation.FederatedRoom) (bool, error) {
	byExternal := tx.Bucket(bucketRoomsByExternal)
	if localID := byExternal.Get([]byte(room.ExternalID)); localID != nil {
		logger.Debugf("room %s already stored as %s", room.ExternalID, localID)
		room.LocalID = string(localID)
		return false, nil
	}

	room.LocalID = uuid.NewString()

	record := &roomRecord{
		LocalID:     room.LocalID,
		ExternalID:  room.ExternalID,
		Name:        room.Name,
		DisplayName: room.DisplayName,
		Type:        room.Type,
		CreatedAt:   time.Now(),
	}

	if room.Creator != nil {
		creator, err := userByIndex(tx, bucketUsersByExternal, room.Creator.ExternalID)
		if err != nil {
			return false, err
		}
		if creator != nil {
			record.CreatorID = creator.LocalID
		}
	}

	if err := putJSON(tx.Bucket(bucketRooms), room.LocalID, record); err != nil {
		return false, err
	}

	logger.Debugf("stored %s room %s as %s", room.Type, room.ExternalID, room.LocalID)

	return true, byExternal.Put([]byte(room.ExternalID), []byte(room.LocalID))
}

func putMember(tx *bolt.Tx, roomID, username string, actor *federation.FederatedUser) error {
	members, err := tx.Bucket(bucketMembers).CreateBucketIfNotExists([]byte(roomID))
	if err != nil {
		return err
	}

	if members.Get([]byte(username)) != nil {
		return nil
	}

	record := &memberRecord{AddedAt: time.Now()}

	if user, err := userByIndex(tx, bucketUsersByUsername, username); err != nil {
		return err
	} else if user != nil {
		record.UserID = user.LocalID
	}

	if actor != nil {
		record.AddedBy = actor.LocalID
	}

	return putJSON(members, username, record)
}

func loadRoom(tx *bolt.Tx, localID string) (*federation.FederatedRoom, error) {
	record := &roomRecord{}

	ok, err := getJSON(tx.Bucket(bucketRooms), localID, record)
	if err != nil || !ok {
		return nil, err
	}

	room := &federation.FederatedRoom{
		ExternalID:  record.ExternalID,
		LocalID:     record.LocalID,
		Name:        record.Name,
		DisplayName: record.DisplayName,
		Type:        record.Type,
	}

	if record.CreatorID != "" {
		room.Creator, err = userByLocalID(tx, record.CreatorID)
		if err != nil {
			return nil, err
		}
	}

	if members := tx.Bucket(bucketMembers).Bucket([]byte(localID)); members != nil {
		err = members.ForEach(func(k, _ []byte) error {
			room.Usernames = append(room.Usernames, string(k))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return room, nil
}

func roomLocalID(tx *bolt.Tx, room *federation.FederatedRoom) (string, error) {
	localID := tx.Bucket(bucketRoomsByExternal).Get([]byte(room.ExternalID))
	if localID == nil {
		return "", fmt.Errorf("%s: %w", room.ExternalID, errUnknownRoom)
	}

	return string(localID), nil
}
