// Package envelope implements the BRSKI-PRM Signer/Verifier (C2):
// polymorphic signing and verification over the two interchangeable
// envelope variants named in spec.md §4.2, JWS-General (jws.go)
// and COSE_Sign1 (cose.go).
package envelope

import (
	"crypto"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/header"
)

// ContentType distinguishes the two wire envelope variants this
// profile supports.
type ContentType string

const (
	JWSGeneral ContentType = "jws-general"
	COSESign1  ContentType = "cose-sign1"
)

func (c ContentType) String() string {
	if c == COSESign1 {
		return "COSE_Sign1"
	}
	return "JWS-General"
}

// Verified is the result of a successful verify: the original payload
// bytes plus the header-set recovered from the signature that was
// checked.
type Verified struct {
	Payload []byte
	Header  *header.Set
}

// Signer signs a payload under a header-set and, for JWS-General only,
// can append an additional signature to an already-signed artifact.
type Signer interface {
	ContentType() ContentType
	// Sign produces signed wire bytes from payload and header-set.
	Sign(payload []byte, h *header.Set, key crypto.Signer) ([]byte, error)
	// AddSignature appends a new signature under header-set/key to an
	// already-signed artifact, preserving the original payload and
	// prior signatures (spec.md §4.2 "Add-signature algorithm"). COSE
	// implementations return ErrAddSignatureNotSupported, a
	// berrors.Internal error, since COSE_Sign1 is single-signature
	// by design (spec.md §9).
	AddSignature(signed []byte, h *header.Set, key crypto.Signer) ([]byte, error)
}

// Verifier verifies signed wire bytes back into payload + header,
// resolving the verifying key via a Selector (selector.go).
type Verifier interface {
	ContentType() ContentType
	// Verify checks the primary (first) signature and returns its
	// payload and header. For JWS-General artifacts carrying more than
	// one signature (post add-signature), use VerifyAll to check every
	// row independently.
	Verify(signed []byte, acceptable *header.AcceptableCritica) (*Verified, error)
	// VerifyAll checks every signature row independently, returning one
	// Verified per row in row order. All rows share the same payload;
	// a caller comparing payload bytes across rows is checking the
	// add-signature law (spec.md §8).
	VerifyAll(signed []byte, acceptable *header.AcceptableCritica) ([]*Verified, error)
}

// For selects the Signer+Verifier pair for a content type, implementing
// the "sum type with dispatch object selected at construction time"
// design from spec.md §9.
func For(ct ContentType) (Signer, Verifier) {
	if ct == COSESign1 {
		return COSE{}, COSE{}
	}
	return JWS{}, JWS{}
}

// ErrAddSignatureNotSupported is returned by COSE_Sign1's AddSignature.
var ErrAddSignatureNotSupported = berrors.New(berrors.Internal, "add_signature is not supported for COSE_Sign1: it is single-signature by design")
