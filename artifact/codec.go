// Package artifact implements the BRSKI-PRM Artifact Model (C3): the
// typed voucher, voucher-request, agent-signed-data, enrollment, and
// status artifacts from spec.md §3, each with field-level invariants
// and kebab-case wire serialization chosen by the target envelope
// (JSON for JWS-General, CBOR for COSE_Sign1; spec.md §4.3).
package artifact

import (
	"encoding/base64"

	"github.com/fxamacker/cbor/v2"

	"encoding/json"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
)

// Marshal serializes v into payload bytes for the given content type.
func Marshal(ct envelope.ContentType, v interface{}) ([]byte, error) {
	if ct == envelope.COSESign1 {
		b, err := cbor.Marshal(v)
		if err != nil {
			return nil, berrors.MalformedError("artifact: cbor marshal failed: %s", err)
		}
		return b, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, berrors.MalformedError("artifact: json marshal failed: %s", err)
	}
	return b, nil
}

// Unmarshal parses payload bytes produced by Marshal back into v.
func Unmarshal(ct envelope.ContentType, data []byte, v interface{}) error {
	if ct == envelope.COSESign1 {
		if err := cbor.Unmarshal(data, v); err != nil {
			return berrors.MalformedError("artifact: cbor unmarshal failed: %s", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return berrors.MalformedError("artifact: json unmarshal failed: %s", err)
	}
	return nil
}

// RawCert is a single DER-encoded certificate. It marshals as
// base64-standard text in JSON (matching the x5c JOSE encoding rule
// this profile also uses for header claims, spec.md §4.1) and as a
// CBOR byte string under COSE, without needing per-envelope branching
// in artifact code.
type RawCert []byte

func (c RawCert) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(c))
}

func (c *RawCert) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// RawCertChain is an ordered sequence of certificates, leaf first.
type RawCertChain []RawCert
