// Package identity loads a role's signing key and certificate chain
// from disk, shared by every cmd/ binary. Grounded on ca.loadKey's
// PEM/PKCS#11 split (ca/ca.go), generalized to also parse a PEM file
// holding one or more certificates rather than just a CA's single
// issuer certificate.
package identity

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/letsencrypt/pkcs11key/v4"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/config"
)

// Load reads a signing key (PEM file or PKCS#11-backed per keyCfg) and
// a certificate chain from certFile, which may contain one or more
// concatenated PEM certificate blocks, leaf first.
func Load(keyCfg config.KeyConfig, certFile string) (crypto.Signer, []*x509.Certificate, error) {
	key, err := LoadKey(keyCfg)
	if err != nil {
		return nil, nil, err
	}
	chain, err := LoadCertChain(certFile)
	if err != nil {
		return nil, nil, err
	}
	return key, chain, nil
}

// LoadKey reads a signing key from a PEM file or a PKCS#11 module.
func LoadKey(keyCfg config.KeyConfig) (crypto.Signer, error) {
	if keyCfg.File != "" {
		pemBytes, err := os.ReadFile(keyCfg.File)
		if err != nil {
			return nil, berrors.New(berrors.Internal, "identity: reading key file %s: %s", keyCfg.File, err)
		}
		block, _ := pem.Decode(pemBytes)
		if block == nil {
			return nil, berrors.New(berrors.Internal, "identity: key file %s is not PEM", keyCfg.File)
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, berrors.New(berrors.Internal, "identity: parsing EC key %s: %s", keyCfg.File, err)
		}
		return key, nil
	}
	if keyCfg.PKCS11 == nil {
		return nil, berrors.New(berrors.Internal, "identity: no key file or PKCS#11 config provided")
	}
	p := keyCfg.PKCS11
	return pkcs11key.New(p.Module, p.TokenLabel, string(p.PIN), p.KeyLabel)
}

// LoadCertChain reads one or more concatenated PEM certificates from
// certFile, leaf first.
func LoadCertChain(certFile string) ([]*x509.Certificate, error) {
	if certFile == "" {
		return nil, berrors.New(berrors.Internal, "identity: no certificate file configured")
	}
	pemBytes, err := os.ReadFile(certFile)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "identity: reading cert file %s: %s", certFile, err)
	}
	var chain []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, berrors.New(berrors.Internal, "identity: parsing certificate in %s: %s", certFile, err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, berrors.New(berrors.Internal, "identity: no certificates found in %s", certFile)
	}
	return chain, nil
}
