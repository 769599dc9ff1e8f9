package envelope

import (
	"crypto"
	"crypto/rand"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/brski-prm/brski-prm-go/header"
)

// opaqueSigner adapts any crypto.Signer (a software *ecdsa.PrivateKey
// or an HSM-backed key such as github.com/letsencrypt/pkcs11key) into
// go-jose's jose.OpaqueSigner, so the JWS envelope never needs to know
// whether it is holding key material directly or delegating to a
// PKCS#11 module.
type opaqueSigner struct {
	signer crypto.Signer
	alg    header.Algorithm
}

func newOpaqueSigner(signer crypto.Signer, alg header.Algorithm) jose.OpaqueSigner {
	return &opaqueSigner{signer: signer, alg: alg}
}

func (o *opaqueSigner) Public() *jose.JSONWebKey {
	return &jose.JSONWebKey{Key: o.signer.Public()}
}

func (o *opaqueSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{jose.SignatureAlgorithm(o.alg)}
}

func (o *opaqueSigner) SignPayload(payload []byte, _ jose.SignatureAlgorithm) ([]byte, error) {
	hash, size, err := hashAndSizeForAlg(o.alg)
	if err != nil {
		return nil, err
	}

	if o.alg == header.EdDSA {
		return o.signer.Sign(rand.Reader, payload, crypto.Hash(0))
	}

	h := hash.New()
	h.Write(payload)
	digest := h.Sum(nil)

	sig, err := o.signer.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, err
	}
	if isECDSAAlg(o.alg) {
		return asn1ToRaw(sig, size)
	}
	return sig, nil
}
