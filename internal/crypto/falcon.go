package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/falcon"
)

// falconPadded selects a Falcon parameter set. circl currently ships only
// the 512 parameter set (falconPadded512); falconPadded1024 is accepted by
// the registry so the scheme name resolves, but every operation fails
// until a circl release adds it. See DESIGN.md.
type falconPadded int

const (
	falconPadded512 falconPadded = iota
	falconPadded1024
)

// falconSigner is the second post-quantum scheme: Falcon, a NIST PQC
// alternate signature standard built on NTRU lattices, chosen alongside
// Dilithium for its much smaller signatures. Grounded on the same circl
// module Synnergy's security.go already pulls in for Dilithium.
type falconSigner struct {
	padded falconPadded
}

func newFalconSigner(padded falconPadded) Signer {
	return falconSigner{padded: padded}
}

func (s falconSigner) Name() string {
	if s.padded == falconPadded1024 {
		return "falcon1024"
	}
	return "falcon512"
}

var errFalcon1024Unsupported = fmt.Errorf("crypto: falcon1024 is not implemented by the available falcon library")

func (s falconSigner) GenerateKeys() (sk, pk []byte, err error) {
	if s.padded == falconPadded1024 {
		return nil, nil, errFalcon1024Unsupported
	}
	pub, priv, err := falcon.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("falcon512: generate keys: %w", err)
	}
	return priv, pub, nil
}

func (s falconSigner) Sign(sk, msg []byte) ([]byte, error) {
	if s.padded == falconPadded1024 {
		return nil, errFalcon1024Unsupported
	}
	if len(sk) != falcon.PrivateKeySize {
		return nil, fmt.Errorf("falcon512: invalid private key size %d", len(sk))
	}
	return falcon.SignDetached(falcon.PrivateKey(sk), msg)
}

func (s falconSigner) Verify(pk, sig, msg []byte) bool {
	if s.padded == falconPadded1024 {
		return false
	}
	if len(pk) != falcon.PublicKeySize {
		return false
	}
	return falcon.Verify(falcon.PublicKey(pk), msg, sig)
}

func (s falconSigner) PrivateKeySize() int {
	return falcon.PrivateKeySize
}

func (s falconSigner) PublicKeySize() int {
	return falcon.PublicKeySize
}

func (s falconSigner) MaxSignatureSize() int {
	if s.padded == falconPadded1024 {
		return 0
	}
	return falcon.CTSignatureSize
}
