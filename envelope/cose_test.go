package envelope

import (
	"crypto/x509"
	"testing"

	"github.com/brski-prm/brski-prm-go/header"
)

func TestCOSESignVerifyRoundTrip(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	payload := []byte(`{"serial-number":"00-D0-E5-F2-00-02"}`)

	signed, err := COSE{}.Sign(payload, headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verified, err := COSE{}.Verify(signed, header.NewAcceptableCritica())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(verified.Payload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", verified.Payload, payload)
	}
}

func TestCOSEVerifyRejectsTamperedSignature(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	signed, err := COSE{}.Sign([]byte("original"), headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := append([]byte{}, signed...)
	tampered[len(tampered)-3] ^= 0xFF

	if _, err := (COSE{}).Verify(tampered, header.NewAcceptableCritica()); err == nil {
		t.Fatalf("expected Verify to reject a tampered envelope")
	}
}

func TestCOSEVerifyAllReturnsSingleRow(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	signed, err := COSE{}.Sign([]byte("payload"), headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	all, err := COSE{}.VerifyAll(signed, header.NewAcceptableCritica())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 row for a COSE_Sign1 structure, got %d", len(all))
	}
}
