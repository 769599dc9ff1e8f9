package envelope

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/header"
)

// JWS implements Signer and Verifier for the JWS-General envelope
// (spec.md §4.2), built on gopkg.in/go-jose/go-jose.v2 the same way
// this repository's wfe package has always signed/verified ACME JWS.
type JWS struct{}

var _ Signer = JWS{}
var _ Verifier = JWS{}

func (JWS) ContentType() ContentType { return JWSGeneral }

// generalJWS is the wire shape Sign emits and AddSignature splices
// (spec.md §4.2): a JSON object with a payload and one
// signature row per signer, each row carrying only "protected" (this
// profile never emits an unprotected per-signature header).
type generalJWS struct {
	Payload    string         `json:"payload"`
	Signatures []rawSignature `json:"signatures"`
}

type rawSignature struct {
	Protected string `json:"protected"`
	Signature string `json:"signature"`
}

func joseAlgorithm(alg string) jose.SignatureAlgorithm {
	return jose.SignatureAlgorithm(alg)
}

// signerOptionsFor projects a header-set's protected claims into
// go-jose SignerOptions. alg is carried by the SigningKey itself; x5c
// is re-derived as base64-standard DER strings since go-jose's
// SignerOptions has no dedicated certificate-chain field.
func signerOptionsFor(h *header.Set) (*jose.SignerOptions, error) {
	opts := &jose.SignerOptions{}
	opts.ExtraHeaders = map[jose.HeaderKey]interface{}{}

	for name, value := range h.Protected() {
		switch name {
		case header.Alg:
			// carried by SigningKey.Algorithm
		case header.X5c:
			chain, ok := value.([]*x509.Certificate)
			if !ok {
				return nil, berrors.MalformedError("envelope/jws: x5c must be []*x509.Certificate")
			}
			encoded := make([]string, len(chain))
			for i, cert := range chain {
				encoded[i] = base64.StdEncoding.EncodeToString(cert.Raw)
			}
			opts.ExtraHeaders[jose.HeaderKey(header.X5c)] = encoded
		case header.X5tS1, header.X5tS256, header.Nonce:
			raw, ok := value.([]byte)
			if !ok {
				return nil, berrors.MalformedError("envelope/jws: %s must be raw bytes", name)
			}
			opts.ExtraHeaders[jose.HeaderKey(name)] = base64.RawURLEncoding.EncodeToString(raw)
		default:
			opts.ExtraHeaders[jose.HeaderKey(name)] = value
		}
	}
	return opts, nil
}

// Sign implements Signer.
func (JWS) Sign(payload []byte, h *header.Set, key crypto.Signer) ([]byte, error) {
	alg, ok := h.AlgString()
	if !ok {
		return nil, berrors.MalformedError("envelope/jws: header is missing alg")
	}
	opts, err := signerOptionsFor(h)
	if err != nil {
		return nil, err
	}
	opaque := newOpaqueSigner(key, header.Algorithm(alg))
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: joseAlgorithm(alg), Key: opaque}, opts)
	if err != nil {
		return nil, berrors.New(berrors.CryptoUnavailable, "envelope/jws: %s", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/jws: sign failed: %s", err)
	}
	// FullSerialize emits the flattened form for a single signer; re-wrap
	// it as the general form with a one-row signatures array.
	var flat struct {
		Payload   string `json:"payload"`
		Protected string `json:"protected"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(obj.FullSerialize()), &flat); err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/jws: re-parse failed: %s", err)
	}
	out, err := json.Marshal(generalJWS{Payload: flat.Payload, Signatures: []rawSignature{{Protected: flat.Protected, Signature: flat.Signature}}})
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/jws: serialize failed: %s", err)
	}
	return out, nil
}

// AddSignature implements the exact algorithm spec.md §4.2 and
// original_source's jws.rs describe: parse the existing envelope,
// extract its payload, build a fresh single-signer JWS over that same
// payload under the new header/key, then splice the fresh JWS's lone
// signature row into the original's signatures array.
func (j JWS) AddSignature(signed []byte, h *header.Set, key crypto.Signer) ([]byte, error) {
	var existing generalJWS
	if err := json.Unmarshal(signed, &existing); err != nil {
		return nil, berrors.MalformedError("envelope/jws: not a JWS-General object: %s", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(existing.Payload)
	if err != nil {
		return nil, berrors.MalformedError("envelope/jws: invalid payload encoding: %s", err)
	}

	freshBytes, err := j.Sign(payload, h, key)
	if err != nil {
		return nil, err
	}
	var fresh generalJWS
	if err := json.Unmarshal(freshBytes, &fresh); err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/jws: could not re-parse freshly signed JWS: %s", err)
	}
	if len(fresh.Signatures) != 1 {
		return nil, berrors.New(berrors.Internal, "envelope/jws: expected exactly one fresh signature row")
	}

	existing.Signatures = append(existing.Signatures, fresh.Signatures[0])
	out, err := json.Marshal(existing)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "envelope/jws: re-serialize failed: %s", err)
	}
	return out, nil
}

// Verify implements Verifier, checking only the first signature row.
func (j JWS) Verify(signed []byte, acceptable *header.AcceptableCritica) (*Verified, error) {
	all, err := j.verifyRows(signed, acceptable, []int{0})
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// VerifyAll implements Verifier, checking every signature row.
func (j JWS) VerifyAll(signed []byte, acceptable *header.AcceptableCritica) ([]*Verified, error) {
	obj, err := jose.ParseSigned(string(signed))
	if err != nil {
		return nil, berrors.MalformedError("envelope/jws: %s", err)
	}
	indices := make([]int, len(obj.Signatures))
	for i := range obj.Signatures {
		indices[i] = i
	}
	return j.verifyRows(signed, acceptable, indices)
}

func (JWS) verifyRows(signed []byte, acceptable *header.AcceptableCritica, indices []int) ([]*Verified, error) {
	obj, err := jose.ParseSigned(string(signed))
	if err != nil {
		return nil, berrors.MalformedError("envelope/jws: %s", err)
	}
	if len(obj.Signatures) == 0 {
		return nil, berrors.MalformedError("envelope/jws: no signatures present")
	}

	selector := NewVerifierSelector()
	results := make([]*Verified, 0, len(indices))
	for _, i := range indices {
		if i >= len(obj.Signatures) {
			return nil, berrors.MalformedError("envelope/jws: signature index %d out of range", i)
		}
		sig := obj.Signatures[i]
		hs, err := headerSetFromJose(sig.Protected)
		if err != nil {
			return nil, err
		}
		if err := hs.ValidateCrit(); err != nil {
			return nil, berrors.MalformedError("envelope/jws: %s", err)
		}
		if acceptable != nil {
			if err := acceptable.CheckCrit(hs); err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s", err)
			}
		}
		pub, _, err := selector.Select(hs)
		if err != nil {
			return nil, err
		}
		single := *obj
		single.Signatures = []jose.Signature{sig}
		payload, err := single.Verify(pub)
		if err != nil {
			return nil, berrors.SignatureInvalidError("envelope/jws: signature verification failed")
		}
		results = append(results, &Verified{Payload: payload, Header: hs})
	}
	return results, nil
}

func headerSetFromJose(h jose.Header) (*header.Set, error) {
	hs := header.New()
	if h.Algorithm != "" {
		if err := hs.SetClaim(header.Alg, h.Algorithm, true); err != nil {
			return nil, berrors.MalformedError("envelope/jws: %s", err)
		}
	}
	if len(h.Certificates) > 0 {
		if err := hs.SetClaim(header.X5c, h.Certificates, true); err != nil {
			return nil, berrors.MalformedError("envelope/jws: %s", err)
		}
	}
	if h.KeyID != "" {
		if err := hs.SetClaim(header.Kid, h.KeyID, true); err != nil {
			return nil, berrors.MalformedError("envelope/jws: %s", err)
		}
	}
	for k, v := range h.ExtraHeaders {
		name := string(k)
		switch name {
		case header.Crit:
			list, err := toStringList(v)
			if err != nil {
				return nil, berrors.MalformedError("envelope/jws: crit: %s", err)
			}
			if err := hs.SetClaim(header.Crit, list, true); err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s", err)
			}
		case header.Typ, header.Cty, header.X5u:
			str, _ := v.(string)
			if err := hs.SetClaim(name, str, true); err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s", err)
			}
		case header.B64:
			b, _ := v.(bool)
			if err := hs.SetClaim(header.B64, b, true); err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s", err)
			}
		case header.X5tS1, header.X5tS256, header.Nonce:
			str, _ := v.(string)
			raw, err := base64.RawURLEncoding.DecodeString(str)
			if err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s: %s", name, err)
			}
			if err := hs.SetClaim(name, raw, true); err != nil {
				return nil, berrors.MalformedError("envelope/jws: %s", err)
			}
		}
	}
	return hs, nil
}

func toStringList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, berrors.MalformedError("expected a string list")
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, berrors.MalformedError("expected a string list")
	}
}
