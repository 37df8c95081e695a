package store

import (
	"github.com/42wim/matterfed/federation"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

func (s *Store) GetFederatedUserByExternalID(externalUserID string) (*federation.FederatedUser, error) {
	var user *federation.FederatedUser

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = userByIndex(tx, bucketUsersByExternal, externalUserID)
		return err
	})

	return user, err
}

func (s *Store) GetFederatedUserByUsername(username string) (*federation.FederatedUser, error) {
	var user *federation.FederatedUser

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = userByIndex(tx, bucketUsersByUsername, username)
		return err
	})

	return user, err
}

// CreateFederatedUser stores user and assigns its LocalID. It is a no-op when
// the external id is already mapped.
func (s *Store) CreateFederatedUser(user *federation.FederatedUser) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		byExternal := tx.Bucket(bucketUsersByExternal)
		if localID := byExternal.Get([]byte(user.ExternalID)); localID != nil {
			logger.Debugf("user %s already stored as %s", user.ExternalID, localID)
			user.LocalID = string(localID)
			return nil
		}

		if user.LocalID == "" {
			user.LocalID = uuid.NewString()
		}

		if err := putJSON(tx.Bucket(bucketUsers), user.LocalID, user); err != nil {
			return err
		}

		if err := byExternal.Put([]byte(user.ExternalID), []byte(user.LocalID)); err != nil {
			return err
		}

		logger.Debugf("stored user %s (%s) as %s", user.ExternalID, user.Username, user.LocalID)

		return tx.Bucket(bucketUsersByUsername).Put([]byte(user.Username), []byte(user.LocalID))
	})
}

func userByIndex(tx *bolt.Tx, index []byte, key string) (*federation.FederatedUser, error) {
	localID := tx.Bucket(index).Get([]byte(key))
	if localID == nil {
		return nil, nil
	}

	return userByLocalID(tx, string(localID))
}

func userByLocalID(tx *bolt.Tx, localID string) (*federation.FederatedUser, error) {
	user := &federation.FederatedUser{}

	ok, err := getJSON(tx.Bucket(bucketUsers), localID, user)
	if err != nil || !ok {
		return nil, err
	}

	return user, nil
}
