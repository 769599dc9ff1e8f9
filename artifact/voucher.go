package artifact

import (
	"time"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
)

// Assertion is the voucher/voucher-request assertion field (spec.md §3).
type Assertion string

const (
	AssertionLogged         Assertion = "logged"
	AssertionVerified       Assertion = "verified"
	AssertionProximity      Assertion = "proximity"
	AssertionAgentProximity Assertion = "agent-proximity"
)

// Voucher is the RFC 8366 voucher artifact (spec.md §3).
type Voucher struct {
	Assertion                 Assertion  `json:"assertion" cbor:"assertion"`
	SerialNumber              string     `json:"serial-number" cbor:"serial-number"`
	IDevIDIssuer              []byte     `json:"idevid-issuer,omitempty" cbor:"idevid-issuer,omitempty"`
	PinnedDomainCert          RawCert    `json:"pinned-domain-cert,omitempty" cbor:"pinned-domain-cert,omitempty"`
	Nonce                     []byte     `json:"nonce,omitempty" cbor:"nonce,omitempty"`
	CreatedOn                 *time.Time `json:"created-on,omitempty" cbor:"created-on,omitempty"`
	ExpiresOn                 *time.Time `json:"expires-on,omitempty" cbor:"expires-on,omitempty"`
	DomainCertRevocationChecks bool      `json:"domain-cert-revocation-checks,omitempty" cbor:"domain-cert-revocation-checks,omitempty"`
	LastRenewalDate           *time.Time `json:"last-renewal-date,omitempty" cbor:"last-renewal-date,omitempty"`
	EstDomain                 string     `json:"est-domain,omitempty" cbor:"est-domain,omitempty"`
	AdditionalConfiguration   string     `json:"additional-configuration,omitempty" cbor:"additional-configuration,omitempty"`
}

// ValidateIssued checks the invariants spec.md §3 and §8 require of an
// *issued* voucher, grounded on original_source's
// issued_voucher/mod.rs TryFrom<IssuedVoucher> implementation.
func (v *Voucher) ValidateIssued(pinnedCertNotAfter time.Time) error {
	if v.CreatedOn == nil {
		return berrors.MalformedError("voucher: missing created-on")
	}
	if v.SerialNumber == "" {
		return berrors.MalformedError("voucher: missing serial-number")
	}
	if len(v.PinnedDomainCert) == 0 {
		return berrors.MalformedError("voucher: missing pinned-domain-cert")
	}
	if len(v.Nonce) == 0 && v.ExpiresOn == nil {
		return berrors.MalformedError("voucher: a voucher cannot be nonceless and without expires-on at the same time")
	}
	if v.ExpiresOn != nil {
		if v.ExpiresOn.Before(*v.CreatedOn) {
			return berrors.MalformedError("voucher: expires-on is before created-on")
		}
		if v.ExpiresOn.After(pinnedCertNotAfter) {
			return berrors.MalformedError("voucher: expires-on exceeds the pinned domain certificate's notAfter")
		}
	}
	return nil
}

// Marshal serializes the voucher for the given envelope's payload
// format (spec.md §4.3).
func (v *Voucher) Marshal(ct envelope.ContentType) ([]byte, error) {
	return Marshal(ct, v)
}

// ParseVoucher parses payload bytes back into a Voucher.
func ParseVoucher(ct envelope.ContentType, data []byte) (*Voucher, error) {
	var v Voucher
	if err := Unmarshal(ct, data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// VoucherRequest is a superset of Voucher (spec.md §3). pinned-domain-cert,
// domain-cert-revocation-checks, and last-renewal-date are
// non-transmissible on a request: they are dropped from the wire form
// even if the struct carries them, and ignored on deserialization.
type VoucherRequest struct {
	Assertion     Assertion  `json:"assertion" cbor:"assertion"`
	SerialNumber  string     `json:"serial-number" cbor:"serial-number"`
	IDevIDIssuer  []byte     `json:"idevid-issuer,omitempty" cbor:"idevid-issuer,omitempty"`
	Nonce         []byte     `json:"nonce,omitempty" cbor:"nonce,omitempty"`
	CreatedOn     *time.Time `json:"created-on,omitempty" cbor:"created-on,omitempty"`
	ExpiresOn     *time.Time `json:"expires-on,omitempty" cbor:"expires-on,omitempty"`
	EstDomain     string     `json:"est-domain,omitempty" cbor:"est-domain,omitempty"`

	// Request-only fields.
	PriorSignedVoucherRequest          []byte       `json:"prior-signed-voucher-request,omitempty" cbor:"prior-signed-voucher-request,omitempty"`
	ProximityRegistrarCert             RawCert      `json:"proximity-registrar-cert,omitempty" cbor:"proximity-registrar-cert,omitempty"`
	AgentProvidedProximityRegistrarCert RawCert     `json:"agent-provided-proximity-registrar-cert,omitempty" cbor:"agent-provided-proximity-registrar-cert,omitempty"`
	AgentSignedData                    []byte       `json:"agent-signed-data,omitempty" cbor:"agent-signed-data,omitempty"`
	AgentSignCert                      RawCertChain `json:"agent-sign-cert,omitempty" cbor:"agent-sign-cert,omitempty"`

	// Non-transmissible; never serialized (spec.md §4.3).
	PinnedDomainCert           RawCert    `json:"-" cbor:"-"`
	DomainCertRevocationChecks bool       `json:"-" cbor:"-"`
	LastRenewalDate            *time.Time `json:"-" cbor:"-"`
}

// ValidatePVR checks the invariants spec.md §3 requires of a PVR whose
// assertion is agent-proximity.
func (r *VoucherRequest) ValidatePVR() error {
	if r.Assertion == AssertionAgentProximity {
		if len(r.AgentSignedData) == 0 {
			return berrors.MalformedError("pvr: missing agent-signed-data for agent-proximity assertion")
		}
		if len(r.AgentProvidedProximityRegistrarCert) == 0 {
			return berrors.MalformedError("pvr: missing agent-provided-proximity-registrar-cert for agent-proximity assertion")
		}
	}
	if r.CreatedOn == nil {
		return berrors.MalformedError("pvr: missing created-on")
	}
	if r.SerialNumber == "" {
		return berrors.MalformedError("pvr: missing serial-number")
	}
	return nil
}

// ValidateRVR checks the invariants spec.md §3 and original_source's
// rvr/mod.rs require of an RVR.
func (r *VoucherRequest) ValidateRVR() error {
	if r.CreatedOn == nil {
		return berrors.MalformedError("rvr: missing created-on")
	}
	if len(r.AgentSignCert) == 0 {
		return berrors.MalformedError("rvr: missing agent-sign-cert")
	}
	if r.SerialNumber == "" {
		return berrors.MalformedError("rvr: missing serial-number")
	}
	if r.Assertion == AssertionAgentProximity && len(r.AgentSignCert) == 0 {
		return berrors.MalformedError("rvr: missing agent-sign-cert while assertion is agent-proximity")
	}
	return nil
}

// Marshal serializes the voucher request, stripping non-transmissible
// fields regardless of what the in-memory struct carries.
func (r *VoucherRequest) Marshal(ct envelope.ContentType) ([]byte, error) {
	clean := *r
	clean.PinnedDomainCert = nil
	clean.DomainCertRevocationChecks = false
	clean.LastRenewalDate = nil
	return Marshal(ct, &clean)
}

// ParseVoucherRequest parses payload bytes into a VoucherRequest,
// ignoring pinned-domain-cert/domain-cert-revocation-checks/
// last-renewal-date even if present on the wire (spec.md §4.3).
func ParseVoucherRequest(ct envelope.ContentType, data []byte) (*VoucherRequest, error) {
	var r VoucherRequest
	if err := Unmarshal(ct, data, &r); err != nil {
		return nil, err
	}
	r.PinnedDomainCert = nil
	r.DomainCertRevocationChecks = false
	r.LastRenewalDate = nil
	return &r, nil
}
