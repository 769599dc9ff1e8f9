// Package web implements the HTTP server and client plumbing shared
// by all four roles: the problem+json error mapping and the
// signed-envelope request/response helpers that the pledge,
// registrar-agent, registrar and MASA servers build their handlers
// on top of (spec.md §6, §7). Grounded on the teacher's
// wfe/web-front-end.go sendError/statusCodeFromError pattern, adapted
// from ACME's urn:acme:error: problem types to berrors.ErrorType and
// from http.ResponseWriter spaghetti to a typed helper.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/log"
)

// problem is an RFC 7807-shaped error document.
type problem struct {
	Type   string `json:"type,omitempty"`
	Detail string `json:"detail,omitempty"`
}

const problemBaseURN = "urn:ietf:params:brski-prm:error:"

// statusCodeFromError maps a berrors.ErrorType to the HTTP status
// spec.md §7 prescribes. Errors that are not a *berrors.Error are
// treated as Internal.
func statusCodeFromError(err error) (int, berrors.ErrorType) {
	var bErr *berrors.Error
	if !berrors.As(err, &bErr) {
		return http.StatusInternalServerError, berrors.Internal
	}
	switch bErr.Type {
	case berrors.Malformed, berrors.PolicyViolation:
		return http.StatusBadRequest, bErr.Type
	case berrors.SignatureInvalid:
		return http.StatusBadRequest, bErr.Type
	case berrors.UnsupportedMediaType:
		return http.StatusUnsupportedMediaType, bErr.Type
	case berrors.NotAcceptable:
		return http.StatusNotAcceptable, bErr.Type
	default:
		return http.StatusInternalServerError, berrors.Internal
	}
}

// SendError writes a problem+json response for err, logging internal
// errors for audit but never leaking their detail to the caller
// (spec.md §7: "do not leak which signature failed").
func SendError(w http.ResponseWriter, logger log.Logger, err error) {
	code, kind := statusCodeFromError(err)

	detail := err.Error()
	if code == http.StatusInternalServerError {
		logger.AuditErr(err.Error())
		detail = "internal error"
	} else if kind == berrors.SignatureInvalid {
		detail = "signature verification failed"
	}

	doc, marshalErr := json.Marshal(problem{
		Type:   problemBaseURN + kind.String(),
		Detail: detail,
	})
	if marshalErr != nil {
		logger.AuditErr(marshalErr.Error())
		doc = []byte(`{"detail":"internal error"}`)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_, _ = w.Write(doc)
}
