package crypto

import (
	"fmt"
	"sync"
)

// Signer is the capability interface every signature scheme implements.
// Concrete byte layouts of keys and signatures are scheme-specific and
// opaque to every caller outside this package; callers depend only on
// this interface, per spec §4.A and the re-architecture note in §9.
type Signer interface {
	// Name identifies the scheme, e.g. "ed25519", "dilithium3".
	Name() string

	// GenerateKeys returns a fresh (private, public) key pair.
	GenerateKeys() (sk, pk []byte, err error)

	// Sign returns a signature over msg using sk.
	Sign(sk, msg []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature over msg under pk.
	Verify(pk, sig, msg []byte) bool

	// PrivateKeySize, PublicKeySize and MaxSignatureSize give the fixed
	// sizes callers need to size buffers and validate serialized
	// envelopes before attempting a parse.
	PrivateKeySize() int
	PublicKeySize() int
	MaxSignatureSize() int
}

var registry = map[string]func() Signer{
	"ed25519":    newEd25519Signer,
	"secp256k1":  newSecp256k1Signer,
	"dilithium2": func() Signer { return newDilithiumSigner(dilithiumMode2) },
	"dilithium3": func() Signer { return newDilithiumSigner(dilithiumMode3) },
	"dilithium5": func() Signer { return newDilithiumSigner(dilithiumMode5) },
	"falcon512":  func() Signer { return newFalconSigner(falconPadded512) },
	"falcon1024": func() Signer { return newFalconSigner(falconPadded1024) },
}

// Schemes lists the names accepted by Select.
func Schemes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

var (
	selectOnce sync.Once
	selected   Signer
)

// Select activates a signature scheme for the process. It should be called
// once at startup, before any other component reads the result. A later
// call with a different name fails rather than silently switching schemes
// mid-process, matching spec §4.A's "the scheme name is chosen at startup
// and never changes thereafter".
func Select(name string) (Signer, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("crypto: unknown signature scheme %q", name)
	}
	var err error
	selectOnce.Do(func() {
		selected = ctor()
	})
	if selected == nil || selected.Name() != name {
		return nil, fmt.Errorf("crypto: signature scheme already selected as %q, cannot select %q", selected.Name(), name)
	}
	return selected, err
}
