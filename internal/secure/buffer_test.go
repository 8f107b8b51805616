package secure

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"password", []byte("my-secret-password")},
		{"binary key file", []byte{0x00, 0xFF, 0x10, 0x20}},
		{"empty value", []byte{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := bytes.Clone(tt.data)
			buf := NewBuffer(source)
			assert.Equal(t, tt.data, source, "the caller's slice is not wiped")

			got, err := buf.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestBuffer_String(t *testing.T) {
	buf := NewStringBuffer("hunter2")

	s, err := buf.String()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", s)
}

func TestBuffer_Destroy(t *testing.T) {
	buf := NewStringBuffer("secret")
	buf.Destroy()
	buf.Destroy()

	_, err := buf.Bytes()
	assert.ErrorIs(t, err, ErrDestroyed)
}
