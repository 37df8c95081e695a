package store

import (
	"encoding/binary"
	"time"

	"github.com/42wim/matterfed/federation"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SendMessage appends text to the message log of room on behalf of sender.
func (s *Store) SendMessage(sender *federation.FederatedUser, text string, room *federation.FederatedRoom) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, room)
		if err != nil {
			return err
		}

		log, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(localID))
		if err != nil {
			return err
		}

		seq, err := log.NextSequence()
		if err != nil {
			return err
		}

		msg := &Message{
			ID:        uuid.NewString(),
			RoomID:    localID,
			SenderID:  sender.LocalID,
			Username:  sender.Username,
			Text:      text,
			Timestamp: time.Now(),
		}

		logger.Tracef("storing message %s from %s in %s", msg.ID, sender.Username, room.ExternalID)

		return putJSON(log, string(sequenceKey(seq)), msg)
	})
}

// Messages returns the messages of the room mapped to externalRoomID in
// delivery order.
func (s *Store) Messages(externalRoomID string) ([]*Message, error) {
	var msgs []*Message

	err := s.db.View(func(tx *bolt.Tx) error {
		localID, err := roomLocalID(tx, &federation.FederatedRoom{ExternalID: externalRoomID})
		if err != nil {
			return err
		}

		log := tx.Bucket(bucketMessages).Bucket([]byte(localID))
		if log == nil {
			return nil
		}

		return log.ForEach(func(k, _ []byte) error {
			msg := &Message{}
			if _, err := getJSON(log, string(k), msg); err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	})

	return msgs, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	return key
}
