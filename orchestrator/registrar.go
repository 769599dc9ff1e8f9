package orchestrator

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"time"

	"github.com/brski-prm/brski-prm-go/archive"
	"github.com/brski-prm/brski-prm-go/artifact"
	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/ca"
	"github.com/brski-prm/brski-prm-go/client"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/metrics"
	"github.com/brski-prm/brski-prm-go/nonce"
)

// RegistrarIdentity bundles the registrar's LDevID signing key and the
// registrar-agent EE certificate it vouches for in outbound RVRs.
type RegistrarIdentity struct {
	Key       crypto.Signer
	CertChain []*x509.Certificate
	AgentEE   []*x509.Certificate
}

// Registrar implements the registrar's half of steps 5-9: verify the
// pledge's PVR, mint and forward an RVR to the MASA, countersign the
// returned voucher, issue certificates, and relay status reports.
type Registrar struct {
	Self       RegistrarIdentity
	MASAURL    string
	HTTP       *client.Client
	CA         *ca.CA
	Acceptable *header.AcceptableCritica
	Logger     log.Logger

	// Nonce, if set, rejects a PVR/RVR nonce the registrar has already
	// seen (spec.md §4.2 "replay-detected" edge case). Nil disables the
	// check.
	Nonce *nonce.Service
	// Archive, if set, durably records issued artifacts alongside the
	// protocol's own audit trail (SPEC_FULL.md "Supplemented feature
	// 6"). Nil disables archival.
	Archive *archive.Store
}

// HandleRequestVoucher implements POST /.well-known/brski/requestvoucher
// (spec.md §4.5 step 5): verify the PVR, check the signer's serial
// against the body's serial-number, build and forward an RVR to the
// MASA, then add the registrar's own signature to the returned
// voucher before handing it back to the registrar-agent.
func (r *Registrar) HandleRequestVoucher(ctx context.Context, ct envelope.ContentType, pvrBytes []byte) ([]byte, error) {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(pvrBytes, r.Acceptable)
	if err != nil {
		return nil, err
	}
	pvr, err := artifact.ParseVoucherRequest(ct, verified.Payload)
	if err != nil {
		return nil, berrors.MalformedError("registrar: parsing pvr: %s", err)
	}
	if err := pvr.ValidatePVR(); err != nil {
		return nil, err
	}

	chain, ok := verified.Header.X5C()
	if !ok || len(chain) == 0 {
		return nil, berrors.MalformedError("registrar: pvr signature carries no x5c")
	}
	leafSerial := chain[0].Subject.SerialNumber
	if leafSerial == "" || leafSerial != pvr.SerialNumber {
		return nil, berrors.PolicyViolationError("registrar: pvr signer serial %q does not match body serial-number %q", leafSerial, pvr.SerialNumber)
	}

	if r.Nonce != nil && len(pvr.Nonce) > 0 {
		if err := r.Nonce.Claim(ctx, base64.RawURLEncoding.EncodeToString(pvr.Nonce)); err != nil {
			if berrors.Is(err, berrors.SignatureInvalid) {
				metrics.NonceReplaysDetected.Inc()
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	rvr := &artifact.VoucherRequest{
		Assertion:                           pvr.Assertion,
		SerialNumber:                        pvr.SerialNumber,
		Nonce:                               pvr.Nonce,
		CreatedOn:                           &now,
		PriorSignedVoucherRequest:           pvrBytes,
		AgentSignCert:                       certChainToRaw(r.Self.AgentEE),
		ProximityRegistrarCert:              artifact.RawCert(r.Self.CertChain[0].Raw),
		AgentProvidedProximityRegistrarCert: pvr.AgentProvidedProximityRegistrarCert,
	}
	if err := rvr.ValidateRVR(); err != nil {
		return nil, err
	}
	rvrBody, err := rvr.Marshal(ct)
	if err != nil {
		return nil, err
	}
	rvrBytes, err := signBody(ct, rvrBody, r.Self.CertChain, r.Self.Key)
	if err != nil {
		return nil, err
	}

	_, voucherBytes, err := r.HTTP.Post(ctx, r.MASAURL+"/.well-known/brski/requestvoucher", ct, true, rvrBytes)
	if err != nil {
		return nil, err
	}

	countersigned, err := addRegistrarSignature(ct, voucherBytes, r.Self.CertChain, r.Self.Key)
	if err != nil {
		return nil, err
	}
	metrics.VouchersIssued.WithLabelValues("registrar", "success").Inc()
	if r.Archive != nil {
		if err := r.Archive.Put(ctx, pvr.SerialNumber, "voucher", countersigned); err != nil {
			r.Logger.AuditErr(err.Error())
		}
	}
	return countersigned, nil
}

// addRegistrarSignature implements step 7: add an in-flight signature
// to the MASA-signed voucher (JWS-General), or pass it through
// unchanged for COSE_Sign1, which does not admit a second signature
// (spec.md §4.5 step 7, §9).
func addRegistrarSignature(ct envelope.ContentType, voucherBytes []byte, chain []*x509.Certificate, key crypto.Signer) ([]byte, error) {
	if ct == envelope.COSESign1 {
		return voucherBytes, nil
	}
	h := header.New()
	if err := h.SetClaim(header.Alg, string(header.ES256), true); err != nil {
		return nil, err
	}
	if err := h.SetClaim(header.X5c, chain, true); err != nil {
		return nil, err
	}
	signer, _ := envelope.For(ct)
	return signer.AddSignature(voucherBytes, h, key)
}

// HandleWrappedCACerts implements GET /.well-known/brski/wrappedcacerts.
func (r *Registrar) HandleWrappedCACerts(ct envelope.ContentType) ([]byte, error) {
	cc := &artifact.CaCerts{X5Bag: artifact.RawCertChain{artifact.RawCert(r.CA.IssuerCert().Raw)}}
	body, err := artifact.Marshal(ct, cc)
	if err != nil {
		return nil, err
	}
	return signBody(ct, body, r.Self.CertChain, r.Self.Key)
}

// HandleRequestEnroll implements POST /.well-known/brski/requestenroll
// (spec.md §4.5 step 9): verify the PER, issue a certificate from its
// CSR, and wrap the result as a PKCS#7 certs-only response.
func (r *Registrar) HandleRequestEnroll(ct envelope.ContentType, perBytes []byte) ([]byte, error) {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(perBytes, r.Acceptable)
	if err != nil {
		return nil, err
	}
	var per artifact.PledgeEnrollRequest
	if err := artifact.Unmarshal(ct, verified.Payload, &per); err != nil {
		return nil, berrors.MalformedError("registrar: parsing per: %s", err)
	}
	csr, err := per.ValidateCSR()
	if err != nil {
		return nil, err
	}
	cert, err := r.CA.Issue(csr)
	if err != nil {
		return nil, err
	}
	return artifact.WrapEnrollmentCertificate(cert)
}

// HandleVoucherStatus and HandleEnrollStatus verify the forwarded
// status report, log it, and archive it against the reporting
// pledge's serial (read from the signature's x5c leaf, same as
// HandleRequestVoucher); the registrar has no further action to take
// beyond its audit trail (spec.md §4.5 step 9).
func (r *Registrar) HandleVoucherStatus(ctx context.Context, ct envelope.ContentType, body []byte) error {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(body, r.Acceptable)
	if err != nil {
		return err
	}
	var status artifact.VoucherStatus
	if err := artifact.Unmarshal(ct, verified.Payload, &status); err != nil {
		return berrors.MalformedError("registrar: parsing voucher-status: %s", err)
	}
	r.Logger.AuditObject("voucher-status", status)
	r.archiveStatusReport(ctx, verified.Header, "voucher-status", body)
	return nil
}

func (r *Registrar) HandleEnrollStatus(ctx context.Context, ct envelope.ContentType, body []byte) error {
	_, verifier := envelope.For(ct)
	verified, err := verifier.Verify(body, r.Acceptable)
	if err != nil {
		return err
	}
	var status artifact.PledgeEnrollStatus
	if err := artifact.Unmarshal(ct, verified.Payload, &status); err != nil {
		return berrors.MalformedError("registrar: parsing enroll-status: %s", err)
	}
	r.Logger.AuditObject("enroll-status", status)
	r.archiveStatusReport(ctx, verified.Header, "enroll-status", body)
	return nil
}

// archiveStatusReport best-effort archives a signed status report
// under the serial-number of its signer's x5c leaf. A report whose
// signer carries no serial, or whose archival fails, is logged and
// otherwise ignored: archival is record-keeping, not a protocol step.
func (r *Registrar) archiveStatusReport(ctx context.Context, h *header.Set, kind string, body []byte) {
	if r.Archive == nil {
		return
	}
	chain, ok := h.X5C()
	if !ok || len(chain) == 0 || chain[0].Subject.SerialNumber == "" {
		return
	}
	if err := r.Archive.Put(ctx, chain[0].Subject.SerialNumber, kind, body); err != nil {
		r.Logger.AuditErr(err.Error())
	}
}

// signBody signs already-serialized payload bytes under alg/x5c,
// shared by the registrar and MASA handlers.
func signBody(ct envelope.ContentType, body []byte, chain []*x509.Certificate, key crypto.Signer) ([]byte, error) {
	h := header.New()
	if err := h.SetClaim(header.Alg, string(header.ES256), true); err != nil {
		return nil, err
	}
	if err := h.SetClaim(header.X5c, chain, true); err != nil {
		return nil, err
	}
	signer, _ := envelope.For(ct)
	return signer.Sign(body, h, key)
}

func certChainToRaw(chain []*x509.Certificate) artifact.RawCertChain {
	out := make(artifact.RawCertChain, len(chain))
	for i, c := range chain {
		out[i] = artifact.RawCert(c.Raw)
	}
	return out
}
