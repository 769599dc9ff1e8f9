// Package ca implements the registrar's local issuing authority:
// "CSR in, signed certificate out" with no policy-profile engine
// (spec.md §1 Non-goals explicitly excludes a CFSSL-style profile
// schema). Grounded on the teacher's ca/certificate-authority.go key
// loading (loadKey/loadIssuer: a PEM file or a PKCS#11 module), kept
// and adapted; the CFSSL profile/policy machinery and OCSP signing
// that file also carried are dropped, since this profile issues
// exactly one certificate shape (P256 LDevID leaf under the
// registrar's configured issuer) and never revokes.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"time"

	"github.com/letsencrypt/pkcs11key/v4"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/config"
)

// CA issues LDevID certificates from pledge CSRs.
type CA struct {
	issuerCert *x509.Certificate
	issuerKey  crypto.Signer
	validity   time.Duration
}

// New constructs a CA from its configuration, loading the issuer
// certificate and key (PEM file or PKCS#11-backed).
func New(cfg config.CAConfig) (*CA, error) {
	issuerCert, err := loadIssuerCert(cfg.IssuerCertFile)
	if err != nil {
		return nil, err
	}
	issuerKey, err := loadKey(cfg.IssuerKey)
	if err != nil {
		return nil, err
	}
	if _, ok := issuerKey.Public().(*ecdsa.PublicKey); !ok {
		return nil, berrors.New(berrors.Internal, "ca: issuer key is not ECDSA")
	}
	validity := cfg.ValidityPeriod.Duration
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}
	return &CA{issuerCert: issuerCert, issuerKey: issuerKey, validity: validity}, nil
}

func loadIssuerCert(filename string) (*x509.Certificate, error) {
	if filename == "" {
		return nil, berrors.New(berrors.Internal, "ca: issuer certificate not configured")
	}
	pemBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "ca: reading issuer cert: %s", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, berrors.New(berrors.Internal, "ca: issuer cert is not PEM")
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadKey(keyConfig config.KeyConfig) (crypto.Signer, error) {
	if keyConfig.File != "" {
		pemBytes, err := os.ReadFile(keyConfig.File)
		if err != nil {
			return nil, berrors.New(berrors.Internal, "ca: reading key file %s: %s", keyConfig.File, err)
		}
		block, _ := pem.Decode(pemBytes)
		if block == nil {
			return nil, berrors.New(berrors.Internal, "ca: key file is not PEM")
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, berrors.New(berrors.Internal, "ca: parsing EC key: %s", err)
		}
		return key, nil
	}
	if keyConfig.PKCS11 == nil {
		return nil, berrors.New(berrors.Internal, "ca: no key file or PKCS#11 config provided")
	}
	p := keyConfig.PKCS11
	return pkcs11key.New(p.Module, p.TokenLabel, string(p.PIN), p.KeyLabel)
}

// Issue validates the CSR's self-signature and requested key type,
// then signs a fresh leaf under the registrar's issuer — the entirety
// of this profile's CA policy (spec.md §1 Non-goals, §4.3).
func (ca *CA) Issue(csr *x509.CertificateRequest) (*x509.Certificate, error) {
	if err := csr.CheckSignature(); err != nil {
		return nil, berrors.MalformedError("ca: csr signature invalid: %s", err)
	}
	pub, ok := csr.PublicKey.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P256() {
		return nil, berrors.MalformedError("ca: csr public key is not P-256 ECDSA")
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, berrors.New(berrors.Internal, "ca: serial generation failed: %s", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      csr.Subject,
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(ca.validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca.issuerCert, pub, ca.issuerKey)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "ca: signing failed: %s", err)
	}
	return x509.ParseCertificate(der)
}

// IssuerCert returns the configured issuer certificate, used to build
// the /wrappedcacerts response.
func (ca *CA) IssuerCert() *x509.Certificate {
	return ca.issuerCert
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}
