package pagestore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/pagestate/pkg/errors"
)

func TestSerializers(t *testing.T) {
	in := pageModel{Title: "orders", Items: []string{"x", "y", "z"}}

	tests := []struct {
		name       string
		serializer interface {
			Serialize(any) ([]byte, error)
			Deserialize([]byte, any) error
		}
	}{
		{"gob", GobSerializer{}},
		{"gzip", NewCompressingSerializer(GobSerializer{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.serializer.Serialize(in)
			require.NoError(t, err)

			var out pageModel
			require.NoError(t, tt.serializer.Deserialize(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestCompressingSerializer_Shrinks(t *testing.T) {
	in := pageModel{Title: string(bytes.Repeat([]byte("a"), 4096))}

	plain, err := GobSerializer{}.Serialize(in)
	require.NoError(t, err)
	packed, err := NewCompressingSerializer(GobSerializer{}).Serialize(in)
	require.NoError(t, err)

	assert.Less(t, len(packed), len(plain))
}

func TestSerializers_Errors(t *testing.T) {
	var out pageModel

	err := GobSerializer{}.Deserialize([]byte("not gob"), &out)
	assert.Equal(t, errors.ErrCodeDeserializationError, errors.CodeOf(err))

	err = NewCompressingSerializer(GobSerializer{}).Deserialize([]byte("not gzip"), &out)
	assert.Equal(t, errors.ErrCodeDeserializationError, errors.CodeOf(err))

	_, err = GobSerializer{}.Serialize(func() {})
	assert.ErrorIs(t, err, errors.ErrSerialization)
}
