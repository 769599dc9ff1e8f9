package envelope

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"sync"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/header"
)

// VerifierSelector resolves the verifying key for a signature row from
// its own recovered header-set (leaf of x5c, keyed by alg), caching
// the result. Grounded on original_source's jws.rs decode(), which
// lazily builds its verifier in a OnceCell the first time the selector
// callback fires and reuses it afterward (spec.md §4.2 "the verifier
// cache is single-shot").
type VerifierSelector struct {
	mu    sync.Mutex
	cache map[string]crypto.PublicKey
}

// NewVerifierSelector returns an empty, ready-to-use selector.
func NewVerifierSelector() *VerifierSelector {
	return &VerifierSelector{cache: map[string]crypto.PublicKey{}}
}

// Select returns the public key to verify a signature whose recovered
// header is h, resolving and caching it on first use for this leaf
// certificate's raw DER bytes.
func (v *VerifierSelector) Select(h *header.Set) (crypto.PublicKey, header.Algorithm, error) {
	chain, ok := h.X5C()
	if !ok || len(chain) == 0 {
		return nil, "", berrors.New(berrors.Malformed, "envelope: missing x5c, cannot select a verifier")
	}
	algStr, ok := h.AlgString()
	if !ok {
		return nil, "", berrors.New(berrors.Malformed, "envelope: missing alg, cannot select a verifier")
	}
	alg := header.Algorithm(algStr)

	key := string(chain[0].Raw)
	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, found := v.cache[key]; found {
		return cached, alg, nil
	}
	pub := chain[0].PublicKey
	if err := checkAlgSupported(alg, pub); err != nil {
		return nil, "", err
	}
	v.cache[key] = pub
	return pub, alg, nil
}

// checkAlgSupported declines algorithms the platform cannot produce a
// verifier for. Only ES256 is required by this profile; the rest are
// recognized by name but may be declined (spec.md §4.2).
func checkAlgSupported(alg header.Algorithm, pub crypto.PublicKey) error {
	switch alg {
	case header.ES256, header.ES256K, header.ES384, header.ES512:
		if _, ok := pub.(*ecdsa.PublicKey); !ok {
			return berrors.New(berrors.Malformed, "envelope: alg %s requires an ECDSA public key", alg)
		}
		return nil
	case header.EdDSA:
		if _, ok := pub.(ed25519.PublicKey); !ok {
			return berrors.New(berrors.Malformed, "envelope: alg EdDSA requires an Ed25519 public key")
		}
		return nil
	case header.RS256, header.RS384, header.RS512:
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return berrors.New(berrors.Malformed, "envelope: alg %s requires an RSA public key", alg)
		}
		return nil
	default:
		return berrors.CryptoUnavailableError("envelope: algorithm %q is not provided by this platform", alg)
	}
}
