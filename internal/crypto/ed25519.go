package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// ed25519Signer is the classical default scheme.
type ed25519Signer struct{}

func newEd25519Signer() Signer { return ed25519Signer{} }

func (ed25519Signer) Name() string { return "ed25519" }

func (ed25519Signer) GenerateKeys() (sk, pk []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("ed25519: generate keys: %w", err)
	}
	return priv, pub, nil
}

func (ed25519Signer) Sign(sk, msg []byte) ([]byte, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519: invalid private key size %d", len(sk))
	}
	return ed25519.Sign(ed25519.PrivateKey(sk), msg), nil
}

func (ed25519Signer) Verify(pk, sig, msg []byte) bool {
	if len(pk) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), msg, sig)
}

func (ed25519Signer) PrivateKeySize() int  { return ed25519.PrivateKeySize }
func (ed25519Signer) PublicKeySize() int   { return ed25519.PublicKeySize }
func (ed25519Signer) MaxSignatureSize() int { return ed25519.SignatureSize }
