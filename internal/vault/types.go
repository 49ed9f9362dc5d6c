package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// VaultDAO stores secrets such as the database password outside config.yaml.
// Implementations must never log or print secret values.
type VaultDAO interface {
	// GetSecretMetadata reports IsSet=false without error for a missing secret.
	GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error)
	SetSecret(ctx context.Context, name string, value []byte) error
	UnsetSecret(ctx context.Context, name string) error
	// GetSecretForInternalUse fetches the raw value. CLI code must never print it.
	GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error)
}

// SecretMetadata contains non-sensitive information about a secret.
type SecretMetadata struct {
	Name      string
	IsSet     bool
	Backend   string
	UpdatedAt *time.Time
}

const (
	// ServiceName groups all datamove secrets in the Keychain.
	ServiceName = "dmv-vault"
	// EnvPrefix prefixes secrets read by the env backend.
	EnvPrefix = "DATAMOVE_SECRET_"
)

var ErrSecretNotFound = errors.New("secret not found")

// NewVaultDAO constructs a DAO for the selected backend.
func NewVaultDAO(backend string) (VaultDAO, error) {
	switch backend {
	case "", "keychain":
		return newKeychainVaultDAO()
	case "env":
		return envVaultDAO{}, nil
	default:
		return nil, fmt.Errorf("vault backend not implemented: %s", backend)
	}
}

var cached struct {
	sync.Mutex
	dao VaultDAO
	be  string
}

// GetSecret retrieves a secret from backend, caching the DAO for reuse.
func GetSecret(ctx context.Context, backend, name string) ([]byte, error) {
	cached.Lock()
	if cached.dao == nil || cached.be != backend {
		dao, err := NewVaultDAO(backend)
		if err != nil {
			cached.Unlock()
			return nil, err
		}
		cached.dao = dao
		cached.be = backend
	}
	dao := cached.dao
	cached.Unlock()
	return dao.GetSecretForInternalUse(ctx, name)
}
