package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brski-prm/brski-prm-go/config"
)

func writeIssuer(t *testing.T) (dir string, certFile string, keyFile string) {
	t.Helper()
	dir = t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating issuer key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-registrar-issuer"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating issuer cert: %v", err)
	}

	certFile = filepath.Join(dir, "issuer.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatalf("writing issuer cert: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling issuer key: %v", err)
	}
	keyFile = filepath.Join(dir, "issuer-key.pem")
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatalf("writing issuer key: %v", err)
	}
	return dir, certFile, keyFile
}

func newCA(t *testing.T) *CA {
	t.Helper()
	_, certFile, keyFile := writeIssuer(t)
	authority, err := New(config.CAConfig{
		IssuerCertFile: certFile,
		IssuerKey:      config.KeyConfig{File: keyFile},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return authority
}

func p256CSR(t *testing.T) *x509.CertificateRequest {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating pledge key: %v", err)
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{SerialNumber: "00-D0-E5-F2-00-02"},
	}, key)
	if err != nil {
		t.Fatalf("creating CSR: %v", err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		t.Fatalf("parsing CSR: %v", err)
	}
	return csr
}

func TestIssueSignsAP256LeafUnderTheConfiguredIssuer(t *testing.T) {
	authority := newCA(t)
	csr := p256CSR(t)

	cert, err := authority.Issue(csr)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if cert.Subject.SerialNumber != csr.Subject.SerialNumber {
		t.Fatalf("got subject serial %q, want %q", cert.Subject.SerialNumber, csr.Subject.SerialNumber)
	}
	if err := cert.CheckSignatureFrom(authority.IssuerCert()); err != nil {
		t.Fatalf("issued cert does not chain to the issuer: %v", err)
	}
}

func TestIssueRejectsNonP256Key(t *testing.T) {
	authority := newCA(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{SerialNumber: "00-D0-E5-F2-00-03"},
	}, key)
	if err != nil {
		t.Fatalf("creating CSR: %v", err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		t.Fatalf("parsing CSR: %v", err)
	}

	if _, err := authority.Issue(csr); err == nil {
		t.Fatalf("expected Issue to reject an RSA CSR")
	}
}

func TestIssueRejectsTamperedCSRSignature(t *testing.T) {
	authority := newCA(t)
	csr := p256CSR(t)
	csr.Signature[0] ^= 0xFF

	if _, err := authority.Issue(csr); err == nil {
		t.Fatalf("expected Issue to reject a CSR whose self-signature does not verify")
	}
}
