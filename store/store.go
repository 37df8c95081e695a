package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/42wim/matterfed/federation"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRooms           = []byte("rooms")
	bucketRoomsByExternal = []byte("rooms_by_external")
	bucketUsers           = []byte("users")
	bucketUsersByExternal = []byte("users_by_external")
	bucketUsersByUsername = []byte("users_by_username")
	bucketMembers         = []byte("members")
	bucketMessages        = []byte("messages")
)

var errUnknownRoom = errors.New("room is not stored")

var logger = logrus.WithFields(logrus.Fields{"prefix": "store"})

func SetLogger(l *logrus.Entry) {
	logger = l
}

var (
	_ federation.RoomAdapter    = (*Store)(nil)
	_ federation.UserAdapter    = (*Store)(nil)
	_ federation.MessageAdapter = (*Store)(nil)
)

// Store keeps federated rooms, users, memberships and messages in a bbolt
// database. It implements the room, user and message adapters of the
// federation package.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an already opened database and creates the buckets it needs.
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketRooms, bucketRoomsByExternal,
			bucketUsers, bucketUsersByExternal, bucketUsersByUsername,
			bucketMembers, bucketMessages,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}

	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return b.Put([]byte(key), data)
}
