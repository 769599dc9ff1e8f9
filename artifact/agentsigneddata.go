package artifact

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"time"

	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
)

// AgentSignedPayload is the {created-on, serial-number} tuple the
// registrar-agent signs with its EE key (spec.md §3).
type AgentSignedPayload struct {
	CreatedOn    time.Time `json:"created-on" cbor:"created-on"`
	SerialNumber string    `json:"serial-number" cbor:"serial-number"`
}

// EncodeAgentSignedData produces the signed-octets form of
// AgentSignedData: it signs payload under the registrar-agent's EE key
// with kid set to the base64url-encoded Subject-Key-Identifier, as
// original_source's pvr/trigger.rs does (spec.md §3, Supplemented
// feature 4 in SPEC_FULL.md).
func EncodeAgentSignedData(ct envelope.ContentType, payload AgentSignedPayload, agentEESKID []byte, agentEECertChain []*x509.Certificate, key crypto.Signer) ([]byte, error) {
	body, err := Marshal(ct, payload)
	if err != nil {
		return nil, err
	}

	h := header.New()
	if err := h.SetClaim(header.Alg, string(header.ES256), true); err != nil {
		return nil, err
	}
	kid := base64.URLEncoding.EncodeToString(agentEESKID)
	if err := h.SetClaim(header.Kid, kid, true); err != nil {
		return nil, err
	}
	if len(agentEECertChain) > 0 {
		if err := h.SetClaim(header.X5c, agentEECertChain, true); err != nil {
			return nil, err
		}
	}

	signer, _ := envelope.For(ct)
	return signer.Sign(body, h, key)
}

// DecodeAgentSignedData verifies and parses the signed-octets form
// back into its structured payload. The pledge does not verify this
// (spec.md §4.3 "the pledge does not verify it"). No handler in the
// orchestrator package calls this; the MASA's request handler does not
// verify agent-signed-data either.
func DecodeAgentSignedData(ct envelope.ContentType, raw []byte) (*AgentSignedPayload, *header.Set, error) {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(raw, header.NewAcceptableCritica())
	if err != nil {
		return nil, nil, err
	}
	var payload AgentSignedPayload
	if err := Unmarshal(ct, verified.Payload, &payload); err != nil {
		return nil, nil, err
	}
	return &payload, verified.Header, nil
}
