package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorageWrapsAsRecoverableAndMatchesSentinel(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage(cause)

	require.ErrorIs(t, err, ErrStorageFailure)

	var rec Recoverable
	require.True(t, errors.As(err, &rec))
}

func TestInitWrapsAsFatalAndMatchesSentinel(t *testing.T) {
	cause := errors.New("address already in use")
	err := Init(cause)

	require.ErrorIs(t, err, ErrFatalInit)

	var fatal Fatal
	require.True(t, errors.As(err, &fatal))
}

func TestStorageWithNilCauseStillMatchesSentinel(t *testing.T) {
	err := Storage(nil)
	require.ErrorIs(t, err, ErrStorageFailure)
}
