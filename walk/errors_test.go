package walk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalErrorWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fatalf(ErrConfiguration, cause, "walk: allocate arena (%d bytes)", 128)

	var fe *FatalError
	require := assert.New(t)
	require.True(errors.As(err, &fe))
	require.Equal(ErrConfiguration, fe.Kind)
	require.Same(cause, errors.Unwrap(err))
	require.Contains(err.Error(), "128 bytes")
	require.Contains(err.Error(), "disk full")
}

func TestFatalWithoutCauseOmitsColonSuffix(t *testing.T) {
	err := fatal(ErrProtocol, "walk: pseudo-node encountered in GHOSTS mode")
	assert.Equal(t, "walk: pseudo-node encountered in GHOSTS mode", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestErrBufferFullIsDistinctFromFatalErrors(t *testing.T) {
	var fe *FatalError
	assert.False(t, errors.As(ErrBufferFull, &fe))
}
