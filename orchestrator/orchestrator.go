// Package orchestrator drives the nine-message BRSKI-PRM exchange
// from the registrar-agent's side (spec.md §4.5, component C5): one
// Session per pledge, a linear sequence of awaited I/O calls, many
// sessions running concurrently under a bounded worker pool. It also
// carries the server-side handlers for the registrar's and MASA's
// halves of the exchange (steps 5-9), since those are simple
// verify-transform-sign pipelines with no session state of their own.
package orchestrator

import (
	"context"
	"crypto"
	"crypto/x509"
	"time"

	"github.com/brski-prm/brski-prm-go/artifact"
	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/client"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/header"
	"github.com/brski-prm/brski-prm-go/log"
	"github.com/brski-prm/brski-prm-go/sa"
	"github.com/brski-prm/brski-prm-go/web"
)

// Step mirrors sa.Step; re-exported here so callers driving a Session
// do not need to import sa directly.
type Step = sa.Step

// Identity bundles the registrar-agent's own EE key/cert, used to sign
// the in-band agent-signed-data (the triggers themselves are sent
// unsigned). Cert is the
// leaf the proximity-cert trigger claim carries; CertChain (leaf
// first) is what gets published as the agent-signed-data's x5c.
type Identity struct {
	Key       crypto.Signer
	Cert      []byte // DER leaf
	CertChain []*x509.Certificate
	SKID      []byte
}

// Deps are the registrar-agent's fixed, session-independent
// collaborators (spec.md §5: "immutable configuration" and "a
// long-lived HTTP client with its own internal pool").
type Deps struct {
	HTTP         *client.Client
	Self         Identity
	RegistrarURL string
	Sessions     *sa.Store
	Logger       log.Logger
	Acceptable   *header.AcceptableCritica
}

// Session drives one pledge through the full exchange.
type Session struct {
	deps       *Deps
	row        *sa.Session
	pledgeURL  string
	ct         envelope.ContentType
	pledgeInfo *artifact.PledgeInfo
}

// NewSession starts tracking a newly discovered pledge.
func NewSession(ctx context.Context, deps *Deps, pledgeURL string) (*Session, error) {
	row := &sa.Session{PledgeURL: pledgeURL}
	if deps.Sessions != nil {
		if err := deps.Sessions.Create(ctx, row); err != nil {
			return nil, err
		}
	}
	return &Session{deps: deps, row: row, pledgeURL: pledgeURL}, nil
}

func (s *Session) advance(ctx context.Context, step Step) {
	if s.deps.Sessions != nil {
		_ = s.deps.Sessions.UpdateStep(ctx, s.row.ID, step)
	}
	s.row.CurrentStep = step
}

func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled && !berrors.Is(err, berrors.Cancelled) {
		err = berrors.CancelledError("orchestrator: session cancelled: %s", err)
	}
	if s.deps.Sessions != nil {
		_ = s.deps.Sessions.RecordError(ctx, s.row.ID, err.Error())
	}
	s.row.LastError = err.Error()
	return err
}

// Run executes the full nine-message exchange for one pledge,
// returning the terminal PledgeStatus or an error. A context
// cancellation between steps surfaces as berrors.Cancelled with no
// compensating action, per spec.md §5.
func (s *Session) Run(ctx context.Context) (*artifact.PledgeStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, berrors.CancelledError("orchestrator: session cancelled"))
	}

	if err := s.negotiate(ctx); err != nil {
		return nil, s.fail(ctx, err)
	}

	pvrBytes, pvrCT, err := s.requestVoucherRequest(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	voucherBytes, err := s.forwardPVR(ctx, pvrCT, pvrBytes)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	status, err := s.deliverVoucher(ctx, pvrCT, voucherBytes)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.advance(ctx, sa.StepVoucherStatus)
	if !status.Status {
		final := artifact.NewPledgeStatus(false, status.Reason, artifact.PledgeStateVoucherError)
		return final, nil
	}

	if err := s.forwardVoucherStatus(ctx, pvrCT, status); err != nil {
		return nil, s.fail(ctx, err)
	}

	if err := s.installCACerts(ctx); err != nil {
		return nil, s.fail(ctx, err)
	}

	enrollStatus, err := s.enroll(ctx, pvrCT)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.advance(ctx, sa.StepComplete)

	if !enrollStatus.Status {
		return artifact.NewPledgeStatus(false, enrollStatus.Reason, artifact.PledgeStateEnrollError), nil
	}
	return artifact.NewPledgeStatus(true, "", artifact.PledgeStateEnrollSuccess), nil
}

// negotiate performs the GET /dif then GET /pi calls (spec.md §4.5
// "Content-type negotiation").
func (s *Session) negotiate(ctx context.Context) error {
	difCT, difBody, err := s.deps.HTTP.Get(ctx, s.pledgeURL+"/.well-known/brski/dif")
	if err != nil {
		return err
	}
	_ = difCT
	format := string(difBody)
	switch format {
	case artifact.DIFJSON:
		s.ct = envelope.JWSGeneral
	case artifact.DIFCBOR:
		s.ct = envelope.COSESign1
	default:
		return berrors.NotAcceptableError("orchestrator: pledge returned unknown data-interchange-format %q", format)
	}

	_, piBody, err := s.deps.HTTP.Get(ctx, s.pledgeURL+"/.well-known/brski/pi")
	if err != nil {
		return err
	}
	var pi artifact.PledgeInfo
	if err := artifact.Unmarshal(s.ct, piBody, &pi); err != nil {
		return berrors.MalformedError("orchestrator: parsing pledge-info: %s", err)
	}
	s.pledgeInfo = &pi
	s.row.PledgeSerial = pi.SerialNumber
	s.advance(ctx, sa.StepPledgeInfo)
	return nil
}

// requestVoucherRequest drives steps 1-2: RA sends tPVR, pledge
// returns a signed PVR.
func (s *Session) requestVoucherRequest(ctx context.Context) ([]byte, envelope.ContentType, error) {
	agentSignedData, err := artifact.EncodeAgentSignedData(s.ct, artifact.AgentSignedPayload{
		CreatedOn:    time.Now().UTC(),
		SerialNumber: s.row.PledgeSerial,
	}, s.deps.Self.SKID, s.deps.Self.CertChain, s.deps.Self.Key)
	if err != nil {
		return nil, "", err
	}

	trigger := &artifact.VoucherRequestTrigger{
		AgentSignedProximityCert: artifact.RawCert(s.deps.Self.Cert),
		AgentSignedData:          agentSignedData,
	}
	triggerBytes, err := artifact.Marshal(s.ct, trigger)
	if err != nil {
		return nil, "", err
	}

	_, respBytes, err := s.deps.HTTP.Post(ctx, s.pledgeURL+"/.well-known/brski/tpvr", s.ct, false, triggerBytes)
	if err != nil {
		return nil, "", err
	}
	s.advance(ctx, sa.StepPVR)
	return respBytes, s.ct, nil
}

// forwardPVR drives step 5: RA forwards the pledge's signed PVR to the
// registrar, which (steps 5-6, handled server-side by
// Registrar.HandleRequestVoucher) builds and forwards an RVR to the
// MASA and returns the MASA-signed, registrar-countersigned voucher.
func (s *Session) forwardPVR(ctx context.Context, ct envelope.ContentType, pvrBytes []byte) ([]byte, error) {
	_, voucherBytes, err := s.deps.HTTP.Post(ctx, s.deps.RegistrarURL+"/.well-known/brski/requestvoucher", ct, false, pvrBytes)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, sa.StepVoucher)
	return voucherBytes, nil
}

func (s *Session) deliverVoucher(ctx context.Context, ct envelope.ContentType, voucherBytes []byte) (*artifact.VoucherStatus, error) {
	_, respBytes, err := s.deps.HTTP.Post(ctx, s.pledgeURL+"/.well-known/brski/svr", ct, true, voucherBytes)
	if err != nil {
		return nil, err
	}
	var status artifact.VoucherStatus
	if err := artifact.Unmarshal(ct, respBytes, &status); err != nil {
		return nil, berrors.MalformedError("orchestrator: parsing voucher-status: %s", err)
	}
	return &status, nil
}

func (s *Session) forwardVoucherStatus(ctx context.Context, ct envelope.ContentType, status *artifact.VoucherStatus) error {
	body, err := artifact.Marshal(ct, status)
	if err != nil {
		return err
	}
	_, _, err = s.deps.HTTP.Post(ctx, s.deps.RegistrarURL+"/.well-known/brski/voucher_status", ct, false, body)
	return err
}

func (s *Session) installCACerts(ctx context.Context) error {
	_, caBody, err := s.deps.HTTP.Get(ctx, s.deps.RegistrarURL+"/.well-known/brski/wrappedcacerts")
	if err != nil {
		return err
	}
	_, _, err = s.deps.HTTP.Post(ctx, s.pledgeURL+"/.well-known/brski/scac", s.ct, false, caBody)
	return err
}

func (s *Session) enroll(ctx context.Context, ct envelope.ContentType) (*artifact.PledgeEnrollStatus, error) {
	enrollTrigger := &artifact.EnrollTrigger{EnrollType: artifact.EnrollTypeGenericCert}
	triggerBytes, err := artifact.Marshal(ct, enrollTrigger)
	if err != nil {
		return nil, err
	}
	_, perBytes, err := s.deps.HTTP.Post(ctx, s.pledgeURL+"/.well-known/brski/tper", ct, false, triggerBytes)
	if err != nil {
		return nil, err
	}
	cert, _, err := s.deps.HTTP.PostRaw(ctx, s.deps.RegistrarURL+"/.well-known/brski/requestenroll", web.ContentTypeFor(ct, false), perBytes)
	if err != nil {
		return nil, err
	}
	serResp, _, err := s.deps.HTTP.PostRaw(ctx, s.pledgeURL+"/.well-known/brski/ser", web.MediaTypePKCS7Mime, cert)
	if err != nil {
		return nil, err
	}
	var status artifact.PledgeEnrollStatus
	if err := artifact.Unmarshal(ct, serResp, &status); err != nil {
		return nil, berrors.MalformedError("orchestrator: parsing enroll-status: %s", err)
	}
	body, err := artifact.Marshal(ct, &status)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.deps.HTTP.Post(ctx, s.deps.RegistrarURL+"/.well-known/brski/enrollstatus", ct, false, body); err != nil {
		return nil, err
	}
	return &status, nil
}
