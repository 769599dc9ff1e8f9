package envelope

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/header"
)

// COSE implements Signer and Verifier for the COSE_Sign1 envelope
// (spec.md §4.2), hand-rolled on top of github.com/fxamacker/cbor/v2
// following the Sig_structure construction from the COSE_Sign1
// reference implementation in the example pack (no general-purpose
// COSE library was available to depend on instead; see DESIGN.md).
type COSE struct{}

var _ Signer = COSE{}
var _ Verifier = COSE{}

func (COSE) ContentType() ContentType { return COSESign1 }

// Standard COSE header labels this profile emits (RFC 9052 §3.1,
// RFC 9360 for x5chain). The remaining header-set claims this profile
// defines (nonce, x5u, x5t, x5t#S256, b64, typ) have no assigned
// integer label in the base registry, so they are carried as string
// keys in the same protected/unprotected maps.
const (
	labelAlg      = 1
	labelCrit     = 2
	labelCty      = 3
	labelKid      = 4
	labelX5Chain  = 33
)

var coseAlgCodes = map[header.Algorithm]int64{
	header.ES256: -7,
	header.ES384: -35,
	header.ES512: -36,
	header.EdDSA: -8,
	header.RS256: -257,
	header.RS384: -258,
	header.RS512: -259,
}

var coseAlgNames = func() map[int64]header.Algorithm {
	out := map[int64]header.Algorithm{}
	for name, code := range coseAlgCodes {
		out[code] = name
	}
	return out
}()

// coseSign1 mirrors the 4-element CBOR array [protected, unprotected,
// payload, signature] that is the wire form of COSE_Sign1.
type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected map[interface{}]interface{}
	Payload     []byte
	Signature   []byte
}

type sigStructure struct {
	_             struct{} `cbor:",toarray"`
	Context       string
	BodyProtected []byte
	External      []byte
	Payload       []byte
}

func buildCOSEHeaderMap(claims map[string]interface{}) (map[interface{}]interface{}, error) {
	out := map[interface{}]interface{}{}
	for name, value := range claims {
		switch name {
		case header.Alg:
			alg, ok := value.(string)
			if !ok {
				return nil, berrors.MalformedError("envelope/cose: alg must be a string")
			}
			code, ok := coseAlgCodes[header.Algorithm(alg)]
			if !ok {
				return nil, berrors.CryptoUnavailableError("envelope/cose: algorithm %q has no COSE code in this platform", alg)
			}
			out[int64(labelAlg)] = code
		case header.Crit:
			list, ok := value.([]string)
			if !ok {
				return nil, berrors.MalformedError("envelope/cose: crit must be a string list")
			}
			out[int64(labelCrit)] = list
		case header.Cty:
			out[int64(labelCty)] = value
		case header.Kid:
			kid, _ := value.(string)
			out[int64(labelKid)] = []byte(kid)
		case header.X5c:
			// handled explicitly by projectX5Chain via header.Set.X5C()
		default:
			out[name] = value
		}
	}
	return out, nil
}

func projectX5Chain(claims map[string]interface{}, h *header.Set) (map[interface{}]interface{}, error) {
	m, err := buildCOSEHeaderMap(claims)
	if err != nil {
		return nil, err
	}
	if chain, ok := h.X5C(); ok {
		raw := make([][]byte, len(chain))
		for i, c := range chain {
			raw[i] = c.Raw
		}
		m[int64(labelX5Chain)] = raw
	}
	for _, rawKey := range []string{header.X5tS1, header.X5tS256, header.Nonce} {
		if v, ok := claims[rawKey]; ok {
			b, _ := v.([]byte)
			m[rawKey] = b
		}
	}
	return m, nil
}

func claimsWithoutX5c(claims map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(claims))
	for k, v := range claims {
		if k == header.X5c {
			continue
		}
		out[k] = v
	}
	return out
}

// Sign implements Signer.
func (COSE) Sign(payload []byte, h *header.Set, key crypto.Signer) ([]byte, error) {
	algStr, ok := h.AlgString()
	if !ok {
		return nil, berrors.MalformedError("envelope/cose: header is missing alg")
	}
	alg := header.Algorithm(algStr)
	hash, size, err := hashAndSizeForAlg(alg)
	if err != nil {
		return nil, err
	}
	if !isECDSAAlg(alg) {
		return nil, berrors.CryptoUnavailableError("envelope/cose: only ECDSA algorithms are implemented for COSE_Sign1 in this profile")
	}

	protectedMap, err := projectX5Chain(claimsWithoutX5c(h.Protected()), h)
	if err != nil {
		return nil, err
	}
	unprotectedMap, err := buildCOSEHeaderMap(h.Unprotected())
	if err != nil {
		return nil, err
	}

	protectedBytes, err := cbor.Marshal(protectedMap)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/cose: %s", err)
	}

	toBeSigned, err := cbor.Marshal(sigStructure{
		Context:       "Signature1",
		BodyProtected: protectedBytes,
		External:      []byte{},
		Payload:       payload,
	})
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/cose: %s", err)
	}

	h2 := hash.New()
	h2.Write(toBeSigned)
	digest := h2.Sum(nil)

	der, err := key.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/cose: sign failed: %s", err)
	}
	rawSig, err := asn1ToRaw(der, size)
	if err != nil {
		return nil, err
	}

	out, err := cbor.Marshal(coseSign1{
		Protected:   protectedBytes,
		Unprotected: unprotectedMap,
		Payload:     payload,
		Signature:   rawSig,
	})
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/cose: %s", err)
	}
	return out, nil
}

// AddSignature is not supported for COSE_Sign1 (spec.md §9).
func (COSE) AddSignature(_ []byte, _ *header.Set, _ crypto.Signer) ([]byte, error) {
	return nil, ErrAddSignatureNotSupported
}

func headerSetFromCOSEMap(protectedMap, unprotectedMap map[interface{}]interface{}) (*header.Set, error) {
	hs := header.New()
	set := func(raw map[interface{}]interface{}, protected bool) error {
		for k, v := range raw {
			switch key := k.(type) {
			case int64:
				switch key {
				case labelAlg:
					code, ok := toInt64(v)
					if !ok {
						return berrors.MalformedError("envelope/cose: alg must be an integer")
					}
					alg, ok := coseAlgNames[code]
					if !ok {
						return berrors.CryptoUnavailableError("envelope/cose: unknown COSE algorithm code %d", code)
					}
					if err := hs.SetClaim(header.Alg, string(alg), protected); err != nil {
						return err
					}
				case labelCrit:
					list, err := toStringList(v)
					if err != nil {
						return err
					}
					if err := hs.SetClaim(header.Crit, list, protected); err != nil {
						return err
					}
				case labelCty:
					str, _ := v.(string)
					if err := hs.SetClaim(header.Cty, str, protected); err != nil {
						return err
					}
				case labelKid:
					b, _ := v.([]byte)
					if err := hs.SetClaim(header.Kid, string(b), protected); err != nil {
						return err
					}
				case labelX5Chain:
					chain, err := toCertChain(v)
					if err != nil {
						return err
					}
					if err := hs.SetClaim(header.X5c, chain, protected); err != nil {
						return err
					}
				}
			case string:
				switch key {
				case header.X5tS1, header.X5tS256, header.Nonce:
					b, _ := v.([]byte)
					if err := hs.SetClaim(key, b, protected); err != nil {
						return err
					}
				case header.Typ, header.X5u:
					str, _ := v.(string)
					if err := hs.SetClaim(key, str, protected); err != nil {
						return err
					}
				case header.B64:
					b, _ := v.(bool)
					if err := hs.SetClaim(header.B64, b, protected); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := set(protectedMap, true); err != nil {
		return nil, err
	}
	if err := set(unprotectedMap, false); err != nil {
		return nil, err
	}
	return hs, nil
}

func toCertChain(v interface{}) ([]*x509.Certificate, error) {
	raw, ok := v.([][]byte)
	if !ok {
		if generic, genOk := v.([]interface{}); genOk {
			raw = make([][]byte, len(generic))
			for i, item := range generic {
				b, bOk := item.([]byte)
				if !bOk {
					return nil, berrors.MalformedError("envelope/cose: x5chain entry is not a byte string")
				}
				raw[i] = b
			}
		} else {
			return nil, berrors.MalformedError("envelope/cose: x5chain must be an array of byte strings")
		}
	}
	chain := make([]*x509.Certificate, len(raw))
	for i, der := range raw {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, berrors.MalformedError("envelope/cose: invalid certificate in x5chain: %s", err)
		}
		chain[i] = cert
	}
	return chain, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Verify implements Verifier.
func (c COSE) Verify(signed []byte, acceptable *header.AcceptableCritica) (*Verified, error) {
	var msg coseSign1
	if err := cbor.Unmarshal(signed, &msg); err != nil {
		return nil, berrors.MalformedError("envelope/cose: not a COSE_Sign1 structure: %s", err)
	}

	var protectedMap map[interface{}]interface{}
	if err := cbor.Unmarshal(msg.Protected, &protectedMap); err != nil {
		return nil, berrors.MalformedError("envelope/cose: invalid protected header: %s", err)
	}

	hs, err := headerSetFromCOSEMap(protectedMap, msg.Unprotected)
	if err != nil {
		return nil, err
	}
	if err := hs.ValidateCrit(); err != nil {
		return nil, berrors.MalformedError("envelope/cose: %s", err)
	}
	if acceptable != nil {
		if err := acceptable.CheckCrit(hs); err != nil {
			return nil, berrors.MalformedError("envelope/cose: %s", err)
		}
	}

	selector := NewVerifierSelector()
	pub, alg, err := selector.Select(hs)
	if err != nil {
		return nil, err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, berrors.CryptoUnavailableError("envelope/cose: only ECDSA verification is implemented for COSE_Sign1 in this profile")
	}
	hash, size, err := hashAndSizeForAlg(alg)
	if err != nil {
		return nil, err
	}

	toBeSigned, err := cbor.Marshal(sigStructure{
		Context:       "Signature1",
		BodyProtected: msg.Protected,
		External:      []byte{},
		Payload:       msg.Payload,
	})
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/cose: %s", err)
	}
	h := hash.New()
	h.Write(toBeSigned)
	digest := h.Sum(nil)

	if err := verifyECDSA(ecPub, digest, msg.Signature, size); err != nil {
		return nil, err
	}

	return &Verified{Payload: msg.Payload, Header: hs}, nil
}

// VerifyAll implements Verifier. COSE_Sign1 carries exactly one
// signature by design, so this always returns a single-element slice.
func (c COSE) VerifyAll(signed []byte, acceptable *header.AcceptableCritica) ([]*Verified, error) {
	v, err := c.Verify(signed, acceptable)
	if err != nil {
		return nil, err
	}
	return []*Verified{v}, nil
}
