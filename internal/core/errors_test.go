package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := newError(NodesBusy, "no placement for job %d", 42)
	require.Equal(t, "nodes busy: no placement for job 42", e.Error())

	bare := &Error{Code: Invalid}
	require.Equal(t, "invalid", bare.Error())
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, OK, codeOf(nil))
	require.Equal(t, NodesBusy, codeOf(newError(NodesBusy, "x")))
	require.Equal(t, Invalid, codeOf(errors.New("some foreign error")))
}

func TestCodeStringUnknown(t *testing.T) {
	require.Equal(t, "code(99)", Code(99).String())
}

func TestWrapErrorPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("short read")
	e := wrapError(PersistCorrupt, cause, "persist: node %d name", 3)

	require.Equal(t, PersistCorrupt, e.Code)
	require.Equal(t, "persisted state corrupt: persist: node 3 name", e.Error())
	require.True(t, errors.Is(e, cause))
}
