//go:build !darwin

package vault

import (
	"context"
	"errors"
)

var errNoKeychain = errors.New("keychain backend not supported on this OS")

type KeychainVaultDAO struct{}

func newKeychainVaultDAO() (VaultDAO, error) { return nil, errNoKeychain }

func (d *KeychainVaultDAO) GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error) {
	return SecretMetadata{Name: name, Backend: "keychain"}, errNoKeychain
}

func (d *KeychainVaultDAO) SetSecret(ctx context.Context, name string, value []byte) error {
	return errNoKeychain
}

func (d *KeychainVaultDAO) UnsetSecret(ctx context.Context, name string) error {
	return errNoKeychain
}

func (d *KeychainVaultDAO) GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error) {
	return nil, errNoKeychain
}
