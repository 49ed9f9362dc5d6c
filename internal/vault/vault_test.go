package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvBackend(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATAMOVE_SECRET_PG_CITYFORGE", "hunter2")

	v, err := GetSecret(ctx, "env", "pg-cityforge")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(v))

	_, err = GetSecret(ctx, "env", "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	dao, err := NewVaultDAO("env")
	require.NoError(t, err)
	md, err := dao.GetSecretMetadata(ctx, "pg.cityforge")
	require.NoError(t, err)
	assert.True(t, md.IsSet)
	assert.Error(t, dao.SetSecret(ctx, "x", []byte("y")))
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewVaultDAO("s3")
	assert.ErrorContains(t, err, "not implemented")
}
