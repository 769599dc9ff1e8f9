package orchestrator

import (
	"context"
	"crypto"
	"crypto/x509"
	"time"

	"github.com/brski-prm/brski-prm-go/archive"
	"github.com/brski-prm/brski-prm-go/artifact"
	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/metrics"
)

// MASAIdentity bundles the MASA's voucher-signing key/chain.
type MASAIdentity struct {
	Key       crypto.Signer
	CertChain []*x509.Certificate
}

// MASA implements the manufacturer authorized signing authority's half
// of step 6: verify the registrar's RVR and mint a voucher pinning the
// registrar's configured certificate. Ownership checks against a
// manufacturer's device inventory are deliberately stubbed in this
// profile (spec.md §4.5 step 6).
type MASA struct {
	Self       MASAIdentity
	Acceptable *header.AcceptableCritica
	Validity   time.Duration

	// Archive, if set, durably records every issued voucher alongside
	// the protocol's own audit trail (SPEC_FULL.md "Supplemented
	// feature 6", original_source's Rust MASA voucher persistence). Nil
	// disables archival.
	Archive *archive.Store
	// Logger receives archival failures; may be nil if Archive is nil.
	Logger log.Logger
}

// HandleRequestVoucher implements MASA's POST /.well-known/brski/requestvoucher.
func (m *MASA) HandleRequestVoucher(ctx context.Context, ct envelope.ContentType, rvrBytes []byte) ([]byte, error) {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(rvrBytes, m.Acceptable)
	if err != nil {
		return nil, err
	}
	rvr, err := artifact.ParseVoucherRequest(ct, verified.Payload)
	if err != nil {
		return nil, berrors.MalformedError("masa: parsing rvr: %s", err)
	}
	if err := rvr.ValidateRVR(); err != nil {
		return nil, err
	}
	if rvr.Assertion == artifact.AssertionAgentProximity && len(rvr.AgentSignCert) == 0 {
		return nil, berrors.PolicyViolationError("masa: agent-proximity rvr missing agent-sign-cert")
	}

	// spec.md §9: pinned-domain-cert is the registrar's LDevID leaf,
	// carried in the RVR's proximity-registrar-cert, not the MASA's own
	// certificate.
	if len(rvr.ProximityRegistrarCert) == 0 {
		return nil, berrors.MalformedError("masa: rvr missing proximity-registrar-cert")
	}
	registrarCert, err := x509.ParseCertificate(rvr.ProximityRegistrarCert)
	if err != nil {
		return nil, berrors.MalformedError("masa: invalid proximity-registrar-cert: %s", err)
	}

	validity := m.Validity
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	now := time.Now().UTC()
	expires := now.Add(validity)
	voucher := &artifact.Voucher{
		Assertion:        rvr.Assertion,
		SerialNumber:     rvr.SerialNumber,
		Nonce:            rvr.Nonce,
		CreatedOn:        &now,
		ExpiresOn:        &expires,
		PinnedDomainCert: rvr.ProximityRegistrarCert,
	}
	if err := voucher.ValidateIssued(registrarCert.NotAfter); err != nil {
		metrics.VouchersIssued.WithLabelValues("masa", "invalid").Inc()
		return nil, err
	}

	signed, err := signBody(ct, mustMarshalVoucher(ct, voucher), m.Self.CertChain, m.Self.Key)
	if err != nil {
		return nil, err
	}
	metrics.VouchersIssued.WithLabelValues("masa", "success").Inc()
	if m.Archive != nil {
		if err := m.Archive.Put(ctx, voucher.SerialNumber, "voucher", signed); err != nil && m.Logger != nil {
			m.Logger.AuditErr(err.Error())
		}
	}
	return signed, nil
}

func mustMarshalVoucher(ct envelope.ContentType, v *artifact.Voucher) []byte {
	body, err := v.Marshal(ct)
	if err != nil {
		// v was built and validated by this package; marshal failure
		// here means a codec bug, not bad input.
		panic(err)
	}
	return body
}
