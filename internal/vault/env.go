package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// envVaultDAO reads secrets from DATAMOVE_SECRET_<NAME> variables. It is
// read-only: containers inject secrets, nobody writes them back.
type envVaultDAO struct{}

func envKey(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(name))
}

func (envVaultDAO) GetSecretMetadata(ctx context.Context, name string) (SecretMetadata, error) {
	_, ok := os.LookupEnv(envKey(name))
	return SecretMetadata{Name: name, IsSet: ok, Backend: "env"}, nil
}

func (envVaultDAO) SetSecret(ctx context.Context, name string, value []byte) error {
	return errors.New("env backend is read-only; export " + envKey(name) + " instead")
}

func (envVaultDAO) UnsetSecret(ctx context.Context, name string) error {
	return errors.New("env backend is read-only; unset " + envKey(name) + " instead")
}

func (envVaultDAO) GetSecretForInternalUse(ctx context.Context, name string) ([]byte, error) {
	v, ok := os.LookupEnv(envKey(name))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return []byte(v), nil
}
