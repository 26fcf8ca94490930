package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
)

func TestBalanceProjectionRoundTrip(t *testing.T) {
	b := BalanceProjection{PublicKey: []byte("a public key"), Balance: 10000, LastSequence: 2}
	buf := make([]byte, b.Size())
	n, err := b.Serialize(buf, 0)
	require.NoError(t, err)
	require.Equal(t, b.Size(), n)

	var got BalanceProjection
	n2, err := got.Deserialize(buf, 0)
	require.NoError(t, err)
	require.Equal(t, n, n2)
	require.Equal(t, b, got)
}

func TestAddressProjectionTruncatesOnSerialize(t *testing.T) {
	addrs := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		addrs = append(addrs, "10.0.0.1:8330")
	}
	a := AddressProjection{Addresses: addrs}
	buf := make([]byte, a.Size())
	_, err := a.Serialize(buf, 0)
	require.NoError(t, err)

	var got AddressProjection
	_, err = got.Deserialize(buf, 0)
	require.NoError(t, err)
	require.Len(t, got.Addresses, MaxAddresses)
}

func TestAddressProjectionRejectsOversizedClaimWithoutMutating(t *testing.T) {
	buf := make([]byte, 4)
	putUint32(buf, 0, MaxAddresses+1)

	got := AddressProjection{Addresses: []string{"unchanged"}}
	_, err := got.Deserialize(buf, 0)
	require.ErrorIs(t, err, ErrTooManyAddrs)
	require.Equal(t, []string{"unchanged"}, got.Addresses)
}

func TestAccountIDIsHashOfPublicKey(t *testing.T) {
	pk := []byte("a public key")
	require.Equal(t, crypto.Hash(pk), AccountID(pk))
}
