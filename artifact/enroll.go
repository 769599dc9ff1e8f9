package artifact

import (
	"crypto/x509"

	"go.mozilla.org/pkcs7"

	"github.com/brski-prm/brski-prm-go/berrors"
)

// PledgeEnrollRequest wraps the PKCS#10 CSR the pledge generates from
// its long-term device identity private key (spec.md §3).
type PledgeEnrollRequest struct {
	P10CSR RawCert `json:"p10-csr" cbor:"p10-csr"`
}

// ValidateCSR parses and re-validates the embedded PKCS#10 request's
// self-signature, the minimal structural check this profile performs
// before handing the CSR to the registrar's CA ("CSR in, signed
// certificate out", spec.md §1 Non-goals).
func (p *PledgeEnrollRequest) ValidateCSR() (*x509.CertificateRequest, error) {
	if len(p.P10CSR) == 0 {
		return nil, berrors.MalformedError("per: missing p10-csr")
	}
	csr, err := x509.ParseCertificateRequest(p.P10CSR)
	if err != nil {
		return nil, berrors.MalformedError("per: invalid CSR: %s", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, berrors.MalformedError("per: CSR signature does not verify: %s", err)
	}
	return csr, nil
}

// WrapEnrollmentCertificate produces the application/pkcs7-mime
// "certs-only" response the registrar returns from requestenroll and
// the registrar-agent forwards to the pledge as "ser" (spec.md §6),
// grounded on go.mozilla.org/pkcs7's DegenerateCertificate helper
// (the same construction EST simple enrollment responses use).
func WrapEnrollmentCertificate(cert *x509.Certificate) ([]byte, error) {
	der, err := pkcs7.DegenerateCertificate(cert.Raw)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "artifact: pkcs7 wrap failed: %s", err)
	}
	return der, nil
}

// UnwrapEnrollmentCertificate parses a PKCS#7 certs-only response back
// into the enrolled certificate.
func UnwrapEnrollmentCertificate(der []byte) (*x509.Certificate, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, berrors.MalformedError("artifact: invalid pkcs7 response: %s", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, berrors.MalformedError("artifact: pkcs7 response carries no certificate")
	}
	return p7.Certificates[0], nil
}
