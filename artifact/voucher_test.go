package artifact

import (
	"testing"
	"time"

	"github.com/brski-prm/brski-prm-go/envelope"
)

func TestVoucherMarshalRoundTripJSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	v := &Voucher{
		Assertion:        AssertionProximity,
		SerialNumber:     "00-D0-E5-F2-00-02",
		PinnedDomainCert: RawCert{0x01, 0x02, 0x03},
		Nonce:            []byte("nonce"),
		CreatedOn:        &now,
	}
	data, err := v.Marshal(envelope.JWSGeneral)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseVoucher(envelope.JWSGeneral, data)
	if err != nil {
		t.Fatalf("ParseVoucher: %v", err)
	}
	if got.SerialNumber != v.SerialNumber {
		t.Fatalf("serial-number mismatch: got %q want %q", got.SerialNumber, v.SerialNumber)
	}
	if string(got.PinnedDomainCert) != string(v.PinnedDomainCert) {
		t.Fatalf("pinned-domain-cert mismatch after JSON round trip")
	}
}

func TestVoucherMarshalRoundTripCBOR(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	v := &Voucher{
		Assertion:        AssertionLogged,
		SerialNumber:     "00-D0-E5-F2-00-02",
		PinnedDomainCert: RawCert{0x0A, 0x0B},
		ExpiresOn:        &now,
	}
	data, err := v.Marshal(envelope.COSESign1)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseVoucher(envelope.COSESign1, data)
	if err != nil {
		t.Fatalf("ParseVoucher: %v", err)
	}
	if string(got.PinnedDomainCert) != string(v.PinnedDomainCert) {
		t.Fatalf("pinned-domain-cert mismatch after CBOR round trip")
	}
}

func TestVoucherValidateIssuedRequiresCreatedOn(t *testing.T) {
	v := &Voucher{SerialNumber: "x", PinnedDomainCert: RawCert{0x01}, Nonce: []byte("n")}
	if err := v.ValidateIssued(time.Now().Add(time.Hour)); err == nil {
		t.Fatalf("expected error: missing created-on")
	}
}

func TestVoucherValidateIssuedRequiresNonceOrExpiry(t *testing.T) {
	now := time.Now()
	v := &Voucher{
		SerialNumber:     "x",
		PinnedDomainCert: RawCert{0x01},
		CreatedOn:        &now,
	}
	if err := v.ValidateIssued(now.Add(time.Hour)); err == nil {
		t.Fatalf("expected error: nonceless voucher without expires-on")
	}
}

func TestVoucherValidateIssuedRejectsExpiryAfterPinnedCert(t *testing.T) {
	now := time.Now()
	expires := now.Add(48 * time.Hour)
	certNotAfter := now.Add(24 * time.Hour)
	v := &Voucher{
		SerialNumber:     "x",
		PinnedDomainCert: RawCert{0x01},
		CreatedOn:        &now,
		ExpiresOn:        &expires,
	}
	if err := v.ValidateIssued(certNotAfter); err == nil {
		t.Fatalf("expected error: expires-on exceeds pinned cert notAfter")
	}
}

func TestVoucherValidateIssuedRejectsExpiryBeforeCreation(t *testing.T) {
	now := time.Now()
	before := now.Add(-time.Hour)
	v := &Voucher{
		SerialNumber:     "x",
		PinnedDomainCert: RawCert{0x01},
		CreatedOn:        &now,
		ExpiresOn:        &before,
	}
	if err := v.ValidateIssued(now.Add(time.Hour)); err == nil {
		t.Fatalf("expected error: expires-on before created-on")
	}
}

func TestVoucherRequestMarshalStripsNonTransmissibleFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r := &VoucherRequest{
		Assertion:                  AssertionProximity,
		SerialNumber:               "00-D0-E5-F2-00-02",
		CreatedOn:                  &now,
		PinnedDomainCert:           RawCert{0x01},
		DomainCertRevocationChecks: true,
		LastRenewalDate:            &now,
	}
	data, err := r.Marshal(envelope.JWSGeneral)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseVoucherRequest(envelope.JWSGeneral, data)
	if err != nil {
		t.Fatalf("ParseVoucherRequest: %v", err)
	}
	if len(got.PinnedDomainCert) != 0 {
		t.Fatalf("expected pinned-domain-cert to be stripped, got %v", got.PinnedDomainCert)
	}
	if got.DomainCertRevocationChecks {
		t.Fatalf("expected domain-cert-revocation-checks to be stripped")
	}
	if got.LastRenewalDate != nil {
		t.Fatalf("expected last-renewal-date to be stripped")
	}
	// Original struct is untouched by Marshal.
	if len(r.PinnedDomainCert) == 0 {
		t.Fatalf("Marshal must not mutate the receiver")
	}
}

func TestVoucherRequestValidatePVRRequiresAgentFieldsForAgentProximity(t *testing.T) {
	now := time.Now()
	r := &VoucherRequest{
		Assertion:    AssertionAgentProximity,
		SerialNumber: "x",
		CreatedOn:    &now,
	}
	if err := r.ValidatePVR(); err == nil {
		t.Fatalf("expected error: agent-proximity PVR missing agent-signed-data")
	}
	r.AgentSignedData = []byte("sig")
	r.AgentProvidedProximityRegistrarCert = RawCert{0x01}
	if err := r.ValidatePVR(); err != nil {
		t.Fatalf("ValidatePVR: %v", err)
	}
}

func TestVoucherRequestValidateRVRRequiresAgentSignCert(t *testing.T) {
	now := time.Now()
	r := &VoucherRequest{
		SerialNumber: "x",
		CreatedOn:    &now,
	}
	if err := r.ValidateRVR(); err == nil {
		t.Fatalf("expected error: RVR missing agent-sign-cert")
	}
	r.AgentSignCert = RawCertChain{RawCert{0x01}}
	if err := r.ValidateRVR(); err != nil {
		t.Fatalf("ValidateRVR: %v", err)
	}
}
