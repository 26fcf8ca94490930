package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
)

func TestRootEmptyAndSingleLeafMatch(t *testing.T) {
	leaf := crypto.Hash([]byte("one transaction"))
	require.Equal(t, Root(nil), Root([]crypto.Digest{leaf}))
}

func TestRootIsOrderSensitive(t *testing.T) {
	a := crypto.Hash([]byte("a"))
	b := crypto.Hash([]byte("b"))
	c := crypto.Hash([]byte("c"))
	require.NotEqual(t, Root([]crypto.Digest{a, b, c}), Root([]crypto.Digest{c, b, a}))
}

func TestRootDeterministic(t *testing.T) {
	a := crypto.Hash([]byte("a"))
	b := crypto.Hash([]byte("b"))
	c := crypto.Hash([]byte("c"))
	d := crypto.Hash([]byte("d"))
	leaves := []crypto.Digest{a, b, c, d}
	require.Equal(t, Root(leaves), Root(leaves))
}

func TestRootOddLeafCountDuplicatesLast(t *testing.T) {
	a := crypto.Hash([]byte("a"))
	b := crypto.Hash([]byte("b"))
	c := crypto.Hash([]byte("c"))
	withThree := Root([]crypto.Digest{a, b, c})
	withDuplicatedThird := Root([]crypto.Digest{a, b, c, c})
	require.Equal(t, withThree, withDuplicatedThird)
}
