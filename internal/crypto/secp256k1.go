package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secp256k1Signer is the classical alternative scheme: ECDSA over the
// secp256k1 curve, the curve this corpus's chains (btcd/decred lineage)
// standardize on.
type secp256k1Signer struct{}

func newSecp256k1Signer() Signer { return secp256k1Signer{} }

func (secp256k1Signer) Name() string { return "secp256k1" }

const (
	secp256k1PrivSize = 32
	secp256k1PubSize  = 33 // compressed
	secp256k1MaxSig   = 72 // DER upper bound
)

func (secp256k1Signer) GenerateKeys() (sk, pk []byte, err error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("secp256k1: generate keys: %w", err)
	}
	return priv.Serialize(), priv.PubKey().SerializeCompressed(), nil
}

func (secp256k1Signer) Sign(sk, msg []byte) ([]byte, error) {
	if len(sk) != secp256k1PrivSize {
		return nil, fmt.Errorf("secp256k1: invalid private key size %d", len(sk))
	}
	priv := secp256k1.PrivKeyFromBytes(sk)
	digest := Hash(msg)
	sig := ecdsa.Sign(priv, digest[:32])
	return sig.Serialize(), nil
}

func (secp256k1Signer) Verify(pk, sig, msg []byte) bool {
	pub, err := secp256k1.ParsePubKey(pk)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := Hash(msg)
	return parsed.Verify(digest[:32], pub)
}

func (secp256k1Signer) PrivateKeySize() int   { return secp256k1PrivSize }
func (secp256k1Signer) PublicKeySize() int    { return secp256k1PubSize }
func (secp256k1Signer) MaxSignatureSize() int { return secp256k1MaxSig }
