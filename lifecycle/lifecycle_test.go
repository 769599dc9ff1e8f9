package lifecycle

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
)

type testPayload struct {
	SerialNumber string `json:"serial-number"`
}

func marshalTestPayload(ct envelope.ContentType, v testPayload) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalTestPayload(ct envelope.ContentType, data []byte, out *testPayload) error {
	return json.Unmarshal(data, out)
}

func selfSignedLeaf(t *testing.T) (*ecdsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "lifecycle-test"},
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

// TestLifecycleFullChain walks Unsigned -> Signeable -> Signed ->
// RawSigned -> Verifyable -> Verified and checks the payload survives
// intact (spec.md §4.4).
func TestLifecycleFullChain(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	payload := testPayload{SerialNumber: "00-D0-E5-F2-00-02"}

	unsigned := NewUnsigned(payload, headerWithChain(t, []*x509.Certificate{cert}))
	signed, err := unsigned.IntoSigneable(envelope.JWSGeneral, marshalTestPayload).Sign(key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verified, err := signed.IntoRaw().IntoVerifyable(header.NewAcceptableCritica()).Verify(unmarshalTestPayload)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Payload.SerialNumber != payload.SerialNumber {
		t.Fatalf("payload mismatch: got %q want %q", verified.Payload.SerialNumber, payload.SerialNumber)
	}
}

// TestLifecycleAddSignatureThenVerifyAll exercises the countersign
// path through the RawSigned.AddSignature shortcut, bypassing
// Unsigned/Signeable for the second row.
func TestLifecycleAddSignatureThenVerifyAll(t *testing.T) {
	firstKey, firstCert := selfSignedLeaf(t)
	secondKey, secondCert := selfSignedLeaf(t)
	payload := testPayload{SerialNumber: "00-D0-E5-F2-00-02"}

	unsigned := NewUnsigned(payload, headerWithChain(t, []*x509.Certificate{firstCert}))
	signed, err := unsigned.IntoSigneable(envelope.JWSGeneral, marshalTestPayload).Sign(firstKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	raw := signed.IntoRaw()
	countersigned, err := raw.AddSignature(headerWithChain(t, []*x509.Certificate{secondCert}), secondKey)
	if err != nil {
		t.Fatalf("AddSignature: %v", err)
	}

	all, err := countersigned.IntoRaw().IntoVerifyable(header.NewAcceptableCritica()).VerifyAll(unmarshalTestPayload)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 verified rows, got %d", len(all))
	}
	for i, v := range all {
		if v.Payload.SerialNumber != payload.SerialNumber {
			t.Fatalf("row %d: payload mismatch", i)
		}
	}
}

// TestLifecycleCOSEAddSignatureNotSupported confirms the type-state
// wrapper surfaces the same ErrAddSignatureNotSupported as the raw
// envelope layer for COSE_Sign1 (spec.md §4.4, §9).
func TestLifecycleCOSEAddSignatureNotSupported(t *testing.T) {
	key, cert := selfSignedLeaf(t)
	payload := testPayload{SerialNumber: "00-D0-E5-F2-00-02"}

	unsigned := NewUnsigned(payload, headerWithChain(t, []*x509.Certificate{cert}))
	signed, err := unsigned.IntoSigneable(envelope.COSESign1, marshalTestPayload).Sign(key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := signed.IntoRaw().AddSignature(headerWithChain(t, []*x509.Certificate{cert}), key); err != envelope.ErrAddSignatureNotSupported {
		t.Fatalf("expected ErrAddSignatureNotSupported, got %v", err)
	}
}
