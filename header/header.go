// Package header implements the BRSKI-PRM Header Set (C1): an
// envelope-agnostic map of protected/unprotected claims shared by both
// signature envelopes (C2). Claim is carried as a structured Go value
// so artifact and envelope code never deals with base64 directly; each
// envelope's Signer/Verifier projects the Set into its own wire header
// at the last moment (spec.md §9 "Header-set design").
package header

import (
	"crypto/x509"
	"fmt"
)

// Claim names recognized by this profile (spec.md §3, §4.1).
const (
	Alg     = "alg"
	X5c     = "x5c"
	X5u     = "x5u"
	X5tS1   = "x5t"
	X5tS256 = "x5t#S256"
	Cty     = "cty"
	Typ     = "typ"
	Kid     = "kid"
	Crit    = "crit"
	B64     = "b64"
	Nonce   = "nonce"
)

// Algorithm is the set of JOSE/COSE algorithm names this profile
// recognizes by name (spec.md §4.2). Only ES256 is required; the rest
// may be declined with CryptoUnavailable.
type Algorithm string

const (
	ES256 Algorithm = "ES256"
	ES256K Algorithm = "ES256K"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	EdDSA Algorithm = "EdDSA"
)

var knownAlgorithms = map[Algorithm]bool{
	ES256: true, ES256K: true, ES384: true, ES512: true,
	RS256: true, RS384: true, RS512: true, EdDSA: true,
}

// Set is the header-set: a mapping claim-name -> value, with each
// claim tagged protected or unprotected. Setting a claim on one side
// evicts any existing copy on the other side (spec.md §3).
type Set struct {
	protected   map[string]interface{}
	unprotected map[string]interface{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		protected:   map[string]interface{}{},
		unprotected: map[string]interface{}{},
	}
}

// SetClaim validates value's shape against name's schema, then moves
// the claim to the requested side, evicting any prior copy in either
// side (spec.md §4.1).
func (s *Set) SetClaim(name string, value interface{}, protected bool) error {
	if err := validateClaimShape(name, value, protected); err != nil {
		return err
	}
	delete(s.protected, name)
	delete(s.unprotected, name)
	if protected {
		s.protected[name] = value
	} else {
		s.unprotected[name] = value
	}
	return nil
}

// Claim returns the value stored for name, with the protected side
// taking precedence when both are transiently present (spec.md §4.1).
func (s *Set) Claim(name string) (interface{}, bool) {
	if v, ok := s.protected[name]; ok {
		return v, true
	}
	v, ok := s.unprotected[name]
	return v, ok
}

// IsProtected reports whether name is currently held on the protected
// side.
func (s *Set) IsProtected(name string) bool {
	_, ok := s.protected[name]
	return ok
}

// ToMap flattens both sides into a single lookup map, used when
// computing claim sets for a signature input or for a crit check.
func (s *Set) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(s.protected)+len(s.unprotected))
	for k, v := range s.unprotected {
		out[k] = v
	}
	for k, v := range s.protected {
		out[k] = v
	}
	return out
}

// Protected returns the protected half only, e.g. for serializing the
// signature input.
func (s *Set) Protected() map[string]interface{} {
	out := make(map[string]interface{}, len(s.protected))
	for k, v := range s.protected {
		out[k] = v
	}
	return out
}

// Unprotected returns the unprotected half only.
func (s *Set) Unprotected() map[string]interface{} {
	out := make(map[string]interface{}, len(s.unprotected))
	for k, v := range s.unprotected {
		out[k] = v
	}
	return out
}

// Convenience typed accessors for the claims artifact and envelope
// code reach for most often.

func (s *Set) AlgString() (string, bool) {
	v, ok := s.Claim(Alg)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Set) X5C() ([]*x509.Certificate, bool) {
	v, ok := s.Claim(X5c)
	if !ok {
		return nil, false
	}
	chain, ok := v.([]*x509.Certificate)
	return chain, ok
}

func (s *Set) KidString() (string, bool) {
	v, ok := s.Claim(Kid)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Set) CritList() ([]string, bool) {
	v, ok := s.Claim(Crit)
	if !ok {
		return nil, false
	}
	list, ok := v.([]string)
	return list, ok
}

// ValidateCrit checks that the crit claim, if present, is on the
// protected side and that every claim name it lists resolves to a
// protected claim present in the set (spec.md §4.1).
func (s *Set) ValidateCrit() error {
	critVal, ok := s.protected[Crit]
	if !ok {
		if _, onOtherSide := s.unprotected[Crit]; onOtherSide {
			return fmt.Errorf("header: crit must be protected")
		}
		return nil
	}
	crit, ok := critVal.([]string)
	if !ok {
		return fmt.Errorf("header: crit must be a list of claim names")
	}
	for _, name := range crit {
		if _, present := s.protected[name]; !present {
			return fmt.Errorf("header: crit claim %q not present as a protected claim", name)
		}
	}
	return nil
}

func validateClaimShape(name string, value interface{}, protected bool) error {
	switch name {
	case Alg:
		str, ok := value.(string)
		if !ok || str == "" {
			return fmt.Errorf("header: alg must be a non-empty string")
		}
		if !knownAlgorithms[Algorithm(str)] {
			return fmt.Errorf("header: alg %q is not a recognized algorithm", str)
		}
	case X5c:
		chain, ok := value.([]*x509.Certificate)
		if !ok || len(chain) == 0 {
			return fmt.Errorf("header: x5c must be a non-empty certificate chain, leaf first")
		}
	case X5u:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("header: x5u must be a URL string")
		}
	case X5tS1, X5tS256:
		if _, ok := value.([]byte); !ok {
			return fmt.Errorf("header: %s must be raw thumbprint bytes", name)
		}
	case Cty, Typ, Kid:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("header: %s must be a string", name)
		}
	case Crit:
		if !protected {
			return fmt.Errorf("header: crit is protected-only")
		}
		if _, ok := value.([]string); !ok {
			return fmt.Errorf("header: crit must be a list of claim names")
		}
	case B64:
		if !protected {
			return fmt.Errorf("header: b64 is protected-only")
		}
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("header: b64 must be a boolean")
		}
	case Nonce:
		if _, ok := value.([]byte); !ok {
			return fmt.Errorf("header: nonce must be raw bytes")
		}
	default:
		// Free-form claims for JOSE-spec compatibility: no shape check.
	}
	return nil
}

// AcceptableCritica is the verifier's allow-list of critical claim
// names it understands, e.g. "created-on" is always acceptable
// (spec.md §4.1, grounded on jws.rs's add_acceptable_critical).
type AcceptableCritica struct {
	allowed map[string]bool
}

// NewAcceptableCritica builds an allow-list seeded with the profile's
// always-acceptable critical claims.
func NewAcceptableCritica(extra ...string) *AcceptableCritica {
	a := &AcceptableCritica{allowed: map[string]bool{"created-on": true}}
	for _, name := range extra {
		a.allowed[name] = true
	}
	return a
}

func (a *AcceptableCritica) Accepts(name string) bool {
	return a.allowed[name]
}

// CheckCrit verifies every name in the set's crit claim is understood
// by this allow-list, failing with CriticalUnknown semantics left to
// the caller (the envelope package maps this to berrors.Malformed).
func (a *AcceptableCritica) CheckCrit(s *Set) error {
	crit, ok := s.CritList()
	if !ok {
		return nil
	}
	for _, name := range crit {
		if !a.Accepts(name) {
			return fmt.Errorf("header: critical claim %q is not understood by this verifier", name)
		}
	}
	return nil
}
