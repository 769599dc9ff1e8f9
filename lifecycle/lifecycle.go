// Package lifecycle implements the Signing Lifecycle (C4):
// state-typed wrapper sequence Unsigned[T] -> Signeable[T] -> Signed[T]
// -> RawSigned[T] -> Verifyable[T] -> Verified[T] from spec.md §4.4.
// Go generics stand in for the source's type-state pattern (spec.md's
// REDESIGN FLAGS: "illegal states unrepresentable through Go's type
// system instead of Rust's"); each wrapper only exposes the operations
// valid for its state, so verifying an unsigned artifact or signing
// twice without going through AddSignature does not typecheck.
package lifecycle

import (
	"crypto"

	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
)

// MarshalFunc serializes a typed payload into envelope payload bytes.
type MarshalFunc[T any] func(ct envelope.ContentType, payload T) ([]byte, error)

// UnmarshalFunc parses envelope payload bytes into a typed payload.
type UnmarshalFunc[T any] func(ct envelope.ContentType, data []byte, out *T) error

// Unsigned carries a payload and header-set not yet bound to a signer.
type Unsigned[T any] struct {
	Payload T
	Header  *header.Set
}

// NewUnsigned constructs an Unsigned artifact.
func NewUnsigned[T any](payload T, h *header.Set) *Unsigned[T] {
	return &Unsigned[T]{Payload: payload, Header: h}
}

// IntoSigneable binds a signer (selected by content type) to the
// artifact, producing a Signeable.
func (u *Unsigned[T]) IntoSigneable(ct envelope.ContentType, marshal MarshalFunc[T]) *Signeable[T] {
	signer, _ := envelope.For(ct)
	return &Signeable[T]{
		payload: u.Payload,
		header:  u.Header,
		ct:      ct,
		signer:  signer,
		marshal: marshal,
	}
}

// Signeable is bound to a signer and content type but not yet signed.
type Signeable[T any] struct {
	payload T
	header  *header.Set
	ct      envelope.ContentType
	signer  envelope.Signer
	marshal MarshalFunc[T]
}

// Sign serializes the payload and signs it, producing a Signed.
func (s *Signeable[T]) Sign(key crypto.Signer) (*Signed[T], error) {
	body, err := s.marshal(s.ct, s.payload)
	if err != nil {
		return nil, err
	}
	bytes, err := s.signer.Sign(body, s.header, key)
	if err != nil {
		return nil, err
	}
	return &Signed[T]{Bytes: bytes, Header: s.header, ContentType: s.ct}, nil
}

// Signed captures the opaque encoded bytes plus the header-set that
// was signed. It is trivially convertible to RawSigned (the wire form)
// or may be handed directly to an HTTP response writer.
type Signed[T any] struct {
	Bytes       []byte
	Header      *header.Set
	ContentType envelope.ContentType
}

// IntoRaw discards the header-set, keeping only the wire bytes.
func (s *Signed[T]) IntoRaw() *RawSigned[T] {
	return &RawSigned[T]{Bytes: s.Bytes, ContentType: s.ContentType}
}

// RawSigned is the wire form: opaque signed bytes plus the content
// type needed to select a verifier.
type RawSigned[T any] struct {
	Bytes       []byte
	ContentType envelope.ContentType
}

// IntoVerifyable binds a verifier to the bytes, producing a Verifyable.
func (r *RawSigned[T]) IntoVerifyable(acceptable *header.AcceptableCritica) *Verifyable[T] {
	_, verifier := envelope.For(r.ContentType)
	return &Verifyable[T]{
		bytes:      r.Bytes,
		ct:         r.ContentType,
		verifier:   verifier,
		acceptable: acceptable,
	}
}

// AddSignature appends a new signature under header/key to these bytes
// without going through Unsigned/Signeable again, returning a new
// Signed. Only defined for JWS-General; COSE_Sign1 envelopes return
// envelope.ErrAddSignatureNotSupported (spec.md §4.4, §9).
func (r *RawSigned[T]) AddSignature(h *header.Set, key crypto.Signer) (*Signed[T], error) {
	signer, _ := envelope.For(r.ContentType)
	bytes, err := signer.AddSignature(r.Bytes, h, key)
	if err != nil {
		return nil, err
	}
	return &Signed[T]{Bytes: bytes, Header: h, ContentType: r.ContentType}, nil
}

// Verifyable is bound to a verifier but not yet checked.
type Verifyable[T any] struct {
	bytes      []byte
	ct         envelope.ContentType
	verifier   envelope.Verifier
	acceptable *header.AcceptableCritica
}

// Verify checks the signature and parses the payload, producing a
// terminal Verified.
func (v *Verifyable[T]) Verify(unmarshal UnmarshalFunc[T]) (*Verified[T], error) {
	result, err := v.verifier.Verify(v.bytes, v.acceptable)
	if err != nil {
		return nil, err
	}
	var payload T
	if err := unmarshal(v.ct, result.Payload, &payload); err != nil {
		return nil, err
	}
	return &Verified[T]{Payload: payload, Header: result.Header}, nil
}

// VerifyAll checks every signature row independently (used for the
// add-signature law: all rows share the same payload, spec.md §8).
func (v *Verifyable[T]) VerifyAll(unmarshal UnmarshalFunc[T]) ([]*Verified[T], error) {
	results, err := v.verifier.VerifyAll(v.bytes, v.acceptable)
	if err != nil {
		return nil, err
	}
	out := make([]*Verified[T], len(results))
	for i, r := range results {
		var payload T
		if err := unmarshal(v.ct, r.Payload, &payload); err != nil {
			return nil, err
		}
		out[i] = &Verified[T]{Payload: payload, Header: r.Header}
	}
	return out, nil
}

// Verified is the terminal state: payload and headers recovered from a
// successful verification.
type Verified[T any] struct {
	Payload T
	Header  *header.Set
}
