package artifact

import "github.com/brski-prm/brski-prm-go/berrors"

// VoucherRequestTrigger ("tPVR") is step 1 of the nine-message
// exchange: the registrar-agent asks the pledge to produce a PVR,
// supplying its own proximity certificate and a detached
// agent-signed-data blob (spec.md §4.5 step 1, Supplemented feature 4).
type VoucherRequestTrigger struct {
	AgentSignedProximityCert RawCert `json:"agent-signed-proximity-cert" cbor:"agent-signed-proximity-cert"`
	AgentSignedData          []byte  `json:"agent-signed-data" cbor:"agent-signed-data"`
}

func (t *VoucherRequestTrigger) Validate() error {
	if len(t.AgentSignedProximityCert) == 0 {
		return berrors.MalformedError("trigger: missing agent-signed-proximity-cert")
	}
	if len(t.AgentSignedData) == 0 {
		return berrors.MalformedError("trigger: missing agent-signed-data")
	}
	return nil
}

// EnrollType enumerates the "tPER" trigger's requested enrollment kind.
type EnrollType string

const (
	EnrollTypeGenericCert EnrollType = "enroll-generic-cert"
)

// EnrollTrigger ("tPER") is step 3: the registrar-agent asks the
// pledge to produce a PER (spec.md §4.5 step 3).
type EnrollTrigger struct {
	EnrollType EnrollType `json:"enroll-type" cbor:"enroll-type"`
}
