package ledger

import (
	"duskledger/internal/crypto"
)

// MaxAddresses is the endpoint cap on an AddressProjection. Per design
// note §9, exceeding it on input is silently truncated rather than
// rejected; a claimed count beyond the cap on the wire is rejected instead,
// since that signals either corruption or a hostile peer rather than an
// ordinary local truncation.
const MaxAddresses = 10

// AccountID is SHA-512 of the account's public key.
func AccountID(publicKey []byte) crypto.Digest {
	return crypto.AccountID(publicKey)
}

// BalanceProjection is the half of an account record consensus touches on
// every block execution: its spendable balance and the last sequence
// number it executed.
type BalanceProjection struct {
	PublicKey    []byte
	Balance      uint64
	LastSequence uint32
}

func (b *BalanceProjection) Size() int {
	return 4 + len(b.PublicKey) + 8 + 4
}

// Serialize allows an empty PublicKey: a balance credited to an account
// that has only ever been a receiver, never a sender, has no known
// public key yet, and still needs a persisted balance.
func (b *BalanceProjection) Serialize(buf []byte, offset int) (int, error) {
	if err := requireRoom(buf, offset, b.Size()); err != nil {
		return offset, err
	}
	o := putBytes(buf, offset, b.PublicKey)
	o = putUint64(buf, o, b.Balance)
	o = putUint32(buf, o, b.LastSequence)
	return o, nil
}

func (b *BalanceProjection) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if b.PublicKey, offset, err = getBytes(buf, offset); err != nil {
		return start, err
	}
	if b.Balance, offset, err = getUint64(buf, offset); err != nil {
		return start, err
	}
	if b.LastSequence, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	return offset, nil
}

// AddressProjection holds the endpoints the connection manager may dial
// to reach an account's owning node. It carries no signature of its own;
// it is only ever trusted to the extent its source (an ACCOUNT message
// accepted by the processor) is trusted.
type AddressProjection struct {
	Addresses []string
}

func (a *AddressProjection) Size() int {
	n := len(a.Addresses)
	if n > MaxAddresses {
		n = MaxAddresses
	}
	size := 4
	for i := 0; i < n; i++ {
		size += 4 + len(a.Addresses[i])
	}
	return size
}

// Serialize truncates silently to MaxAddresses entries, per the design
// note resolving the open question on truncation policy.
func (a *AddressProjection) Serialize(buf []byte, offset int) (int, error) {
	addrs := a.Addresses
	if len(addrs) > MaxAddresses {
		addrs = addrs[:MaxAddresses]
	}
	if err := requireRoom(buf, offset, a.Size()); err != nil {
		return offset, err
	}
	o := putUint32(buf, offset, uint32(len(addrs)))
	for _, addr := range addrs {
		o = putBytes(buf, o, []byte(addr))
	}
	return o, nil
}

// Deserialize rejects an input claiming more than MaxAddresses entries
// without mutating a. A malformed claim is either corruption or a
// hostile peer; silent truncation belongs to our own Serialize path, not
// to interpreting someone else's claim.
func (a *AddressProjection) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	count, offset, err := getUint32(buf, offset)
	if err != nil {
		return start, err
	}
	if count > MaxAddresses {
		return start, ErrTooManyAddrs
	}
	addrs := make([]string, count)
	for i := range addrs {
		var b []byte
		if b, offset, err = getBytes(buf, offset); err != nil {
			return start, err
		}
		addrs[i] = string(b)
	}
	a.Addresses = addrs
	return offset, nil
}
