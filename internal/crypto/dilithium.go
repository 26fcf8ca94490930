package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// dilithiumMode selects which CRYSTALS-Dilithium parameter set a
// dilithiumSigner wraps. Mirrors the mode3/mode2/mode5 split circl ships
// as separate packages rather than a single parameterized one.
type dilithiumMode int

const (
	dilithiumMode2 dilithiumMode = iota
	dilithiumMode3
	dilithiumMode5
)

// dilithiumSigner is the post-quantum default scheme: CRYSTALS-Dilithium,
// the NIST PQC signature standard. Grounded on Synnergy's core/security.go,
// which wraps the same circl mode packages for Sign/Verify.
type dilithiumSigner struct {
	mode dilithiumMode
}

func newDilithiumSigner(mode dilithiumMode) Signer {
	return dilithiumSigner{mode: mode}
}

func (s dilithiumSigner) Name() string {
	switch s.mode {
	case dilithiumMode2:
		return "dilithium2"
	case dilithiumMode5:
		return "dilithium5"
	default:
		return "dilithium3"
	}
}

func (s dilithiumSigner) GenerateKeys() (sk, pk []byte, err error) {
	switch s.mode {
	case dilithiumMode2:
		pub, priv, err := mode2.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("dilithium2: generate keys: %w", err)
		}
		var pb [mode2.PublicKeySize]byte
		var sb [mode2.PrivateKeySize]byte
		pub.Pack(&pb)
		priv.Pack(&sb)
		return sb[:], pb[:], nil
	case dilithiumMode5:
		pub, priv, err := mode5.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("dilithium5: generate keys: %w", err)
		}
		var pb [mode5.PublicKeySize]byte
		var sb [mode5.PrivateKeySize]byte
		pub.Pack(&pb)
		priv.Pack(&sb)
		return sb[:], pb[:], nil
	default:
		pub, priv, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("dilithium3: generate keys: %w", err)
		}
		var pb [mode3.PublicKeySize]byte
		var sb [mode3.PrivateKeySize]byte
		pub.Pack(&pb)
		priv.Pack(&sb)
		return sb[:], pb[:], nil
	}
}

func (s dilithiumSigner) Sign(sk, msg []byte) ([]byte, error) {
	switch s.mode {
	case dilithiumMode2:
		if len(sk) != mode2.PrivateKeySize {
			return nil, fmt.Errorf("dilithium2: invalid private key size %d", len(sk))
		}
		var priv mode2.PrivateKey
		var sb [mode2.PrivateKeySize]byte
		copy(sb[:], sk)
		priv.Unpack(&sb)
		sig := make([]byte, mode2.SignatureSize)
		mode2.SignTo(&priv, msg, sig)
		return sig, nil
	case dilithiumMode5:
		if len(sk) != mode5.PrivateKeySize {
			return nil, fmt.Errorf("dilithium5: invalid private key size %d", len(sk))
		}
		var priv mode5.PrivateKey
		var sb [mode5.PrivateKeySize]byte
		copy(sb[:], sk)
		priv.Unpack(&sb)
		sig := make([]byte, mode5.SignatureSize)
		mode5.SignTo(&priv, msg, sig)
		return sig, nil
	default:
		if len(sk) != mode3.PrivateKeySize {
			return nil, fmt.Errorf("dilithium3: invalid private key size %d", len(sk))
		}
		var priv mode3.PrivateKey
		var sb [mode3.PrivateKeySize]byte
		copy(sb[:], sk)
		priv.Unpack(&sb)
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(&priv, msg, sig)
		return sig, nil
	}
}

func (s dilithiumSigner) Verify(pk, sig, msg []byte) bool {
	switch s.mode {
	case dilithiumMode2:
		if len(pk) != mode2.PublicKeySize {
			return false
		}
		var pub mode2.PublicKey
		var pb [mode2.PublicKeySize]byte
		copy(pb[:], pk)
		pub.Unpack(&pb)
		return mode2.Verify(&pub, msg, sig)
	case dilithiumMode5:
		if len(pk) != mode5.PublicKeySize {
			return false
		}
		var pub mode5.PublicKey
		var pb [mode5.PublicKeySize]byte
		copy(pb[:], pk)
		pub.Unpack(&pb)
		return mode5.Verify(&pub, msg, sig)
	default:
		if len(pk) != mode3.PublicKeySize {
			return false
		}
		var pub mode3.PublicKey
		var pb [mode3.PublicKeySize]byte
		copy(pb[:], pk)
		pub.Unpack(&pb)
		return mode3.Verify(&pub, msg, sig)
	}
}

func (s dilithiumSigner) PrivateKeySize() int {
	switch s.mode {
	case dilithiumMode2:
		return mode2.PrivateKeySize
	case dilithiumMode5:
		return mode5.PrivateKeySize
	default:
		return mode3.PrivateKeySize
	}
}

func (s dilithiumSigner) PublicKeySize() int {
	switch s.mode {
	case dilithiumMode2:
		return mode2.PublicKeySize
	case dilithiumMode5:
		return mode5.PublicKeySize
	default:
		return mode3.PublicKeySize
	}
}

func (s dilithiumSigner) MaxSignatureSize() int {
	switch s.mode {
	case dilithiumMode2:
		return mode2.SignatureSize
	case dilithiumMode5:
		return mode5.SignatureSize
	default:
		return mode3.SignatureSize
	}
}
