package envelope

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/brski-prm/brski-prm-go/header"
)

func selfSignedLeaf(t *testing.T) (*ecdsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	return key, cert
}

func headerWithChain(t *testing.T, chain []*x509.Certificate) *header.Set {
	t.Helper()
	h := header.New()
	if err := h.SetClaim(header.Alg, string(header.ES256), true); err != nil {
		t.Fatalf("SetClaim alg: %v", err)
	}
	if err := h.SetClaim(header.X5c, chain, true); err != nil {
		t.Fatalf("SetClaim x5c: %v", err)
	}
	return h
}

func TestJWSSignVerifyRoundTrip(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	payload := []byte(`{"serial-number":"00-D0-E5-F2-00-02"}`)

	signed, err := JWS{}.Sign(payload, headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verified, err := JWS{}.Verify(signed, header.NewAcceptableCritica())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(verified.Payload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", verified.Payload, payload)
	}
}

func TestJWSVerifyRejectsTamperedSignature(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	signed, err := JWS{}.Sign([]byte("original"), headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tampered := append([]byte{}, signed...)
	tampered[len(tampered)-5] ^= 0xFF

	if _, err := (JWS{}).Verify(tampered, header.NewAcceptableCritica()); err == nil {
		t.Fatalf("expected Verify to reject a tampered envelope")
	}
}

// TestJWSAddSignatureCountersigns verifies the splice law: the original
// signer's row survives, a second row is appended, and both verify
// independently over the same payload (spec.md §4.2/§9).
func TestJWSAddSignatureCountersigns(t *testing.T) {
	firstKey, firstCert := selfSignedLeaf(t)
	secondKey, secondCert := selfSignedLeaf(t)
	payload := []byte(`{"assertion":"agent-proximity"}`)

	signed, err := JWS{}.Sign(payload, headerWithChain(t, []*x509.Certificate{firstCert}), firstKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	countersigned, err := JWS{}.AddSignature(signed, headerWithChain(t, []*x509.Certificate{secondCert}), secondKey)
	if err != nil {
		t.Fatalf("AddSignature: %v", err)
	}

	all, err := JWS{}.VerifyAll(countersigned, header.NewAcceptableCritica())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 verified signatures, got %d", len(all))
	}
	for i, v := range all {
		if string(v.Payload) != string(payload) {
			t.Fatalf("signature %d: payload mismatch", i)
		}
	}
}

func TestCOSESign1DoesNotSupportAddSignature(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	signed, err := COSE{}.Sign([]byte("payload"), headerWithChain(t, []*x509.Certificate{cert}), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := (COSE{}).AddSignature(signed, headerWithChain(t, []*x509.Certificate{cert}), key); err != ErrAddSignatureNotSupported {
		t.Fatalf("expected ErrAddSignatureNotSupported, got %v", err)
	}
}
