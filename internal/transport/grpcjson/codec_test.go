package grpcjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestRegister(t *testing.T) {
	Register()
	Register()
	c := encoding.GetCodec(Name)
	require.NotNil(t, c)
	assert.Equal(t, "json", c.Name())
}

func TestEmptyPayloadLeavesZeroValue(t *testing.T) {
	var v struct{ Models []string }
	require.NoError(t, Codec{}.Unmarshal(nil, &v))
	assert.Nil(t, v.Models)
}

func TestUnmarshalErrorNamesType(t *testing.T) {
	var v struct{ N int }
	err := Codec{}.Unmarshal([]byte(`{"N":"x"}`), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grpcjson unmarshal")
}

func TestMarshalRejectsChannels(t *testing.T) {
	_, err := Codec{}.Marshal(make(chan int))
	assert.Error(t, err)
}
