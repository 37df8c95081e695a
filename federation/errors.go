package federation

import (
	"errors"
)

var (
	// ErrRoomNotFound means an event referenced a room that local storage must
	// already know about.
	ErrRoomNotFound = errors.New("federated room not found")
	// ErrUserNotFound means a user could not be read back after provisioning.
	ErrUserNotFound = errors.New("federated user not found")
)

// IsConsistencyViolation reports whether err signals that local state diverged
// from what the event requires. These errors must not be retried.
func IsConsistencyViolation(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrUserNotFound)
}
