package envelope

import (
	"crypto"
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/header"
)

// hashAndSizeForAlg returns the digest algorithm and, for ECDSA algs,
// the fixed-width coordinate size (in bytes) used by the raw r||s
// signature encoding JOSE/COSE require (spec.md §4.2: ES256 only is
// mandatory, the rest are "recognized by name" and may be declined).
func hashAndSizeForAlg(alg header.Algorithm) (crypto.Hash, int, error) {
	switch alg {
	case header.ES256:
		return crypto.SHA256, 32, nil
	case header.ES256K:
		return crypto.SHA256, 32, nil
	case header.ES384:
		return crypto.SHA384, 48, nil
	case header.ES512:
		return crypto.SHA512, 66, nil
	case header.RS256:
		return crypto.SHA256, 0, nil
	case header.RS384:
		return crypto.SHA384, 0, nil
	case header.RS512:
		return crypto.SHA512, 0, nil
	case header.EdDSA:
		return crypto.Hash(0), 0, nil
	default:
		return 0, 0, berrors.CryptoUnavailableError("envelope: algorithm %q is not provided by this platform", alg)
	}
}

func isECDSAAlg(alg header.Algorithm) bool {
	switch alg {
	case header.ES256, header.ES256K, header.ES384, header.ES512:
		return true
	default:
		return false
	}
}

type asn1EcdsaSignature struct {
	R, S *big.Int
}

// asn1ToRaw converts the ASN.1 DER ECDSA signature crypto.Signer.Sign
// returns into the fixed-width r||s encoding JOSE/COSE require.
func asn1ToRaw(der []byte, size int) ([]byte, error) {
	var sig asn1EcdsaSignature
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, berrors.New(berrors.Internal, "envelope: could not parse ECDSA signature: %s", err)
	}
	out := make([]byte, 2*size)
	sig.R.FillBytes(out[:size])
	sig.S.FillBytes(out[size:])
	return out, nil
}

// rawToBigInts splits a fixed-width r||s ECDSA signature back into its
// two components for verification with crypto/ecdsa.
func rawToBigInts(raw []byte, size int) (r, s *big.Int, err error) {
	if len(raw) != 2*size {
		return nil, nil, berrors.SignatureInvalidError("envelope: ECDSA signature has unexpected length")
	}
	r = new(big.Int).SetBytes(raw[:size])
	s = new(big.Int).SetBytes(raw[size:])
	return r, s, nil
}

func verifyECDSA(pub *ecdsa.PublicKey, digest, rawSig []byte, size int) error {
	r, s, err := rawToBigInts(rawSig, size)
	if err != nil {
		return err
	}
	if !ecdsa.Verify(pub, digest, r, s) {
		return berrors.SignatureInvalidError("envelope: ECDSA signature verification failed")
	}
	return nil
}
