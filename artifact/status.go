package artifact

import "github.com/brski-prm/brski-prm-go/berrors"

// StatusVersion is the status-report schema version field.
const StatusVersion = "1"

// VoucherStatus, PledgeEnrollStatus and PledgeStatus share the same
// {version, status, reason, reason-context} shape (spec.md §3); they
// are kept as distinct types so the orchestrator's per-message
// handling stays type-safe even though the wire shape is identical.

type VoucherStatus struct {
	Version       string      `json:"version" cbor:"version"`
	Status        bool        `json:"status" cbor:"status"`
	Reason        string      `json:"reason,omitempty" cbor:"reason,omitempty"`
	ReasonContext interface{} `json:"reason-context,omitempty" cbor:"reason-context,omitempty"`
}

type PledgeEnrollStatus struct {
	Version       string      `json:"version" cbor:"version"`
	Status        bool        `json:"status" cbor:"status"`
	Reason        string      `json:"reason,omitempty" cbor:"reason,omitempty"`
	ReasonContext interface{} `json:"reason-context,omitempty" cbor:"reason-context,omitempty"`
}

// PledgeState is the observable pledge state machine (spec.md §4.5).
type PledgeState string

const (
	PledgeStateFactoryDefault  PledgeState = "factory-default"
	PledgeStateVoucherSuccess  PledgeState = "voucher-success"
	PledgeStateVoucherError    PledgeState = "voucher-error"
	PledgeStateEnrollSuccess   PledgeState = "enroll-success"
	PledgeStateEnrollError     PledgeState = "enroll-error"
	PledgeStateConnectSuccess  PledgeState = "connect-success"
	PledgeStateConnectError    PledgeState = "connect-error"
)

type PledgeStatus struct {
	Version       string      `json:"version" cbor:"version"`
	Status        bool        `json:"status" cbor:"status"`
	Reason        string      `json:"reason,omitempty" cbor:"reason,omitempty"`
	ReasonContext interface{} `json:"reason-context,omitempty" cbor:"reason-context,omitempty"`
	State         PledgeState `json:"state,omitempty" cbor:"state,omitempty"`
}

// PledgeStatusQuery is the "qps" request body; it carries only a
// version field, and is a distinct type so handlers can dispatch on it.
type PledgeStatusQuery struct {
	Version string `json:"version" cbor:"version"`
}

func newStatus(ok bool, reason string) (string, bool, string) {
	return StatusVersion, ok, reason
}

// NewVoucherStatus builds a VoucherStatus report.
func NewVoucherStatus(ok bool, reason string) *VoucherStatus {
	v, s, r := newStatus(ok, reason)
	return &VoucherStatus{Version: v, Status: s, Reason: r}
}

// NewPledgeEnrollStatus builds a PledgeEnrollStatus report.
func NewPledgeEnrollStatus(ok bool, reason string) *PledgeEnrollStatus {
	v, s, r := newStatus(ok, reason)
	return &PledgeEnrollStatus{Version: v, Status: s, Reason: r}
}

// NewPledgeStatus builds a PledgeStatus report carrying the pledge's
// current state.
func NewPledgeStatus(ok bool, reason string, state PledgeState) *PledgeStatus {
	v, s, r := newStatus(ok, reason)
	return &PledgeStatus{Version: v, Status: s, Reason: r, State: state}
}

func (s *VoucherStatus) Validate() error {
	if s.Version == "" {
		return berrors.MalformedError("voucher-status: missing version")
	}
	return nil
}

func (s *PledgeEnrollStatus) Validate() error {
	if s.Version == "" {
		return berrors.MalformedError("pledge-enroll-status: missing version")
	}
	return nil
}

func (s *PledgeStatus) Validate() error {
	if s.Version == "" {
		return berrors.MalformedError("pledge-status: missing version")
	}
	return nil
}
