// Package secure exposes profile password storage backed by the OS keychain.
// It wraps the centralized keychain manager from internal/keychain behind the
// narrow SecretSource shape consumed by the connection multiplexer, so that
// connection code never touches the keychain library directly.
package secure

import (
	"pgrun/cli/internal/keychain"
)

// Store resolves and saves profile passwords via the OS keychain.
// The zero value is ready to use.
type Store struct{}

// Password returns the password stored under the given credential reference.
func (Store) Password(credentialRef string) (string, error) {
	manager, err := keychain.GetManager()
	if err != nil {
		return "", err
	}
	return manager.LoadPassword(credentialRef)
}

// SavePassword stores a profile password under the given credential reference.
func (Store) SavePassword(credentialRef, password string) error {
	manager, err := keychain.GetManager()
	if err != nil {
		return err
	}
	return manager.SavePassword(credentialRef, password)
}

// DeletePassword removes the password stored under the given reference.
func (Store) DeletePassword(credentialRef string) error {
	manager, err := keychain.GetManager()
	if err != nil {
		return err
	}
	return manager.DeletePassword(credentialRef)
}
