package federation

import (
	"fmt"
)

// IdentityDirectory maps external user ids to local users and provisions
// shadow users on demand.
type IdentityDirectory struct {
	users  UserAdapter
	bridge Bridge
}

func NewIdentityDirectory(users UserAdapter, bridge Bridge) *IdentityDirectory {
	return &IdentityDirectory{
		users:  users,
		bridge: bridge,
	}
}

// Resolve returns the user mapped to externalID, or nil.
func (d *IdentityDirectory) Resolve(externalID string) (*FederatedUser, error) {
	user, err := d.users.GetFederatedUserByExternalID(externalID)
	if err != nil {
		return nil, fmt.Errorf("resolving user %s: %w", externalID, err)
	}

	return user, nil
}

// Provision fetches the remote profile of externalID and persists a new shadow
// user. The caller must have checked that Resolve returned nil.
func (d *IdentityDirectory) Provision(externalID, fallbackName, username string, proxyOnly bool) (*FederatedUser, error) {
	profile, err := d.bridge.GetUserProfileInformation(externalID)
	if err != nil {
		return nil, fmt.Errorf("fetching profile of %s: %w", externalID, err)
	}

	name := fallbackName
	if profile != nil && profile.DisplayName != "" {
		name = profile.DisplayName
	}

	user := CreateUserInstance(externalID, username, name, proxyOnly)
	if err := d.users.CreateFederatedUser(user); err != nil {
		return nil, fmt.Errorf("creating user %s: %w", externalID, err)
	}

	logger.Debugf("provisioned user %s as %s (proxy only: %t)", externalID, username, proxyOnly)

	created, err := d.Resolve(externalID)
	if err != nil {
		return nil, err
	}

	if created == nil {
		return nil, fmt.Errorf("user %s missing after creation: %w", externalID, ErrUserNotFound)
	}

	return created, nil
}

// Ensure resolves externalID and provisions it when unknown.
func (d *IdentityDirectory) Ensure(externalID, fallbackName, username string, proxyOnly bool) (*FederatedUser, error) {
	user, err := d.Resolve(externalID)
	if err != nil {
		return nil, err
	}

	if user != nil {
		return user, nil
	}

	return d.Provision(externalID, fallbackName, username, proxyOnly)
}
