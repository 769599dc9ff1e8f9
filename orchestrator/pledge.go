package orchestrator

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"sync"
	"time"

	"github.com/brski-prm/brski-prm-go/artifact"
	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
)

// PledgeIdentity bundles the pledge's IDevID signing key and its own
// certificate chain (spec.md §6 "Certificate profile").
type PledgeIdentity struct {
	Key         crypto.Signer
	CertChain   []*x509.Certificate
	Serial      string
	SubjectName pkix.Name
}

// Pledge implements a factory-default device's server side of the
// exchange: GET /dif, GET /pi, and the six POST endpoints it answers
// for the registrar-agent (spec.md §4.5, §6). It owns the pledge state
// machine: FactoryDefault -> VoucherSuccess|VoucherError ->
// EnrollSuccess|EnrollError -> ConnectSuccess|ConnectError.
type Pledge struct {
	Self       PledgeIdentity
	ContentType envelope.ContentType
	Acceptable *header.AcceptableCritica

	mu          sync.Mutex
	state       artifact.PledgeState
	trustAnchor *x509.Certificate
	caCerts     *artifact.CaCerts
}

// NewPledge constructs a factory-default pledge.
func NewPledge(self PledgeIdentity, ct envelope.ContentType) *Pledge {
	return &Pledge{Self: self, ContentType: ct, Acceptable: header.NewAcceptableCritica(), state: artifact.PledgeStateFactoryDefault}
}

// DIF answers GET /.well-known/brski/dif.
func (p *Pledge) DIF() string {
	if p.ContentType == envelope.COSESign1 {
		return artifact.DIFCBOR
	}
	return artifact.DIFJSON
}

// PI answers GET /.well-known/brski/pi.
func (p *Pledge) PI() *artifact.PledgeInfo {
	return &artifact.PledgeInfo{
		DataInterchangeFormat: p.DIF(),
		SupportedVoucherType:  []string{"voucher-jws+json", "voucher+cose"},
		SupportedTokenType:    []string{"jose+json", "cose+cbor"},
		SerialNumber:          p.Self.Serial,
	}
}

// HandleTPVR implements POST /.well-known/brski/tpvr (step 1-2): the
// pledge builds and signs a PVR from the trigger's proximity data.
func (p *Pledge) HandleTPVR(triggerBytes []byte) ([]byte, error) {
	var trigger artifact.VoucherRequestTrigger
	if err := artifact.Unmarshal(p.ContentType, triggerBytes, &trigger); err != nil {
		return nil, berrors.MalformedError("pledge: parsing trigger: %s", err)
	}
	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, berrors.New(berrors.Internal, "pledge: rng failure: %s", err)
	}
	now := time.Now().UTC()
	pvr := &artifact.VoucherRequest{
		Assertion:                           artifact.AssertionAgentProximity,
		SerialNumber:                        p.Self.Serial,
		Nonce:                               nonce,
		CreatedOn:                           &now,
		AgentProvidedProximityRegistrarCert: trigger.AgentSignedProximityCert,
		AgentSignedData:                     trigger.AgentSignedData,
	}
	if err := pvr.ValidatePVR(); err != nil {
		return nil, err
	}
	body, err := pvr.Marshal(p.ContentType)
	if err != nil {
		return nil, err
	}
	return signBody(p.ContentType, body, p.Self.CertChain, p.Self.Key)
}

// HandleTPER implements POST /.well-known/brski/tper (step 3-4): the
// pledge generates a CSR under its IDevID key and returns a signed PER.
func (p *Pledge) HandleTPER(triggerBytes []byte) ([]byte, error) {
	var trigger artifact.EnrollTrigger
	if err := artifact.Unmarshal(p.ContentType, triggerBytes, &trigger); err != nil {
		return nil, berrors.MalformedError("pledge: parsing enroll trigger: %s", err)
	}
	if trigger.EnrollType != artifact.EnrollTypeGenericCert {
		return nil, berrors.MalformedError("pledge: unsupported enroll-type %q", trigger.EnrollType)
	}

	csrTemplate := &x509.CertificateRequest{Subject: p.Self.SubjectName}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, csrTemplate, p.Self.Key)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "pledge: csr generation failed: %s", err)
	}
	per := &artifact.PledgeEnrollRequest{P10CSR: artifact.RawCert(csrDER)}
	body, err := artifact.Marshal(p.ContentType, per)
	if err != nil {
		return nil, err
	}
	return signBody(p.ContentType, body, p.Self.CertChain, p.Self.Key)
}

// HandleSVR implements POST /.well-known/brski/svr (step 8): verify
// the MASA's signature on the voucher, pin its trust anchor, and
// report success/failure.
func (p *Pledge) HandleSVR(voucherBytes []byte) ([]byte, error) {
	_, verifier := envelope.For(p.ContentType)
	verified, err := verifier.Verify(voucherBytes, p.Acceptable)
	status := artifact.NewVoucherStatus(true, "")
	newState := artifact.PledgeStateVoucherSuccess
	if err != nil {
		status = artifact.NewVoucherStatus(false, err.Error())
		newState = artifact.PledgeStateVoucherError
	} else {
		voucher, parseErr := artifact.ParseVoucher(p.ContentType, verified.Payload)
		if parseErr != nil || len(voucher.PinnedDomainCert) == 0 {
			status = artifact.NewVoucherStatus(false, "voucher missing pinned-domain-cert")
			newState = artifact.PledgeStateVoucherError
		} else {
			cert, certErr := x509.ParseCertificate(voucher.PinnedDomainCert)
			if certErr != nil {
				status = artifact.NewVoucherStatus(false, "pinned-domain-cert does not parse")
				newState = artifact.PledgeStateVoucherError
			} else if issuedErr := voucher.ValidateIssued(cert.NotAfter); issuedErr != nil {
				status = artifact.NewVoucherStatus(false, issuedErr.Error())
				newState = artifact.PledgeStateVoucherError
			} else {
				p.mu.Lock()
				p.trustAnchor = cert
				p.mu.Unlock()
			}
		}
	}
	p.setState(newState)

	body, merr := artifact.Marshal(p.ContentType, status)
	if merr != nil {
		return nil, merr
	}
	return signBody(p.ContentType, body, p.Self.CertChain, p.Self.Key)
}

// HandleSCAC implements POST /.well-known/brski/scac (step 9): accept
// and install the registrar's trusted CA bag. No body response.
func (p *Pledge) HandleSCAC(caCertsBytes []byte) error {
	_, verifier := envelope.For(p.ContentType)
	verified, err := verifier.Verify(caCertsBytes, p.Acceptable)
	if err != nil {
		return err
	}
	var cc artifact.CaCerts
	if err := artifact.Unmarshal(p.ContentType, verified.Payload, &cc); err != nil {
		return berrors.MalformedError("pledge: parsing cacerts: %s", err)
	}
	p.mu.Lock()
	p.caCerts = &cc
	p.mu.Unlock()
	return nil
}

// HandleSER implements POST /.well-known/brski/ser (step 9): accept
// the PKCS#7-wrapped certificate and report enrollment status.
func (p *Pledge) HandleSER(pkcs7DER []byte) ([]byte, error) {
	_, err := artifact.UnwrapEnrollmentCertificate(pkcs7DER)
	status := artifact.NewPledgeEnrollStatus(true, "")
	newState := artifact.PledgeStateEnrollSuccess
	if err != nil {
		status = artifact.NewPledgeEnrollStatus(false, err.Error())
		newState = artifact.PledgeStateEnrollError
	}
	p.setState(newState)

	body, merr := artifact.Marshal(p.ContentType, status)
	if merr != nil {
		return nil, merr
	}
	return signBody(p.ContentType, body, p.Self.CertChain, p.Self.Key)
}

// HandleQPS implements POST /.well-known/brski/qps: report current
// pledge state.
func (p *Pledge) HandleQPS() ([]byte, error) {
	status := artifact.NewPledgeStatus(true, "", p.State())
	body, err := artifact.Marshal(p.ContentType, status)
	if err != nil {
		return nil, err
	}
	return signBody(p.ContentType, body, p.Self.CertChain, p.Self.Key)
}

func (p *Pledge) setState(s artifact.PledgeState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the pledge's current observable state.
func (p *Pledge) State() artifact.PledgeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TrustAnchor returns the domain certificate pinned from the most
// recently accepted voucher, or nil before one has been installed.
func (p *Pledge) TrustAnchor() *x509.Certificate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trustAnchor
}

// CACerts returns the CA bag installed via scac, or nil if none has
// arrived yet.
func (p *Pledge) CACerts() *artifact.CaCerts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caCerts
}
