package listener

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeToken(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr error
	}{
		{name: "plain", data: []byte("alice\x00"), want: "alice"},
		{name: "trailing bytes ignored", data: []byte("alice\x00bob\x00"), want: "alice"},
		{name: "empty token", data: []byte("\x00"), want: ""},
		{name: "longest accepted", data: []byte(strings.Repeat("a", 49) + "\x00"), want: strings.Repeat("a", 49)},
		{name: "at limit", data: []byte(strings.Repeat("a", 50) + "\x00"), wantErr: ErrTokenTooLong},
		{name: "missing terminator", data: []byte("alice"), wantErr: ErrMalformedToken},
		{name: "missing terminator and long", data: []byte(strings.Repeat("a", 80)), wantErr: ErrMalformedToken},
		{name: "windows-1252", data: []byte{'c', 'a', 'f', 0xe9, 0}, want: "café"},
		{name: "utf-8 kept", data: []byte("café\x00"), want: "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeToken(tt.data, DefaultMaxTokenLen)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultBufferSize, o.BufferSize)
	assert.Equal(t, DefaultMaxTokenLen, o.MaxTokenLen)
	assert.Equal(t, 2, o.Validator.Arity())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ListenerFailure{Err: &RecvError{Remote: "1.2.3.4:5", Err: cause}})

	var recvErr *RecvError
	require.True(t, errors.As(err, &recvErr))
	assert.Equal(t, "1.2.3.4:5", recvErr.Remote)
	assert.True(t, errors.Is(err, cause))

	bindErr := &BindError{Port: 27015, Err: cause}
	assert.Contains(t, bindErr.Error(), "27015")
	assert.True(t, errors.Is(bindErr, cause))
}
