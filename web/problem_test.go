package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/log"
)

func TestSendErrorMapsMalformedToBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, log.New(nil), berrors.MalformedError("missing nonce"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
	var doc struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if doc.Detail != "missing nonce" {
		t.Fatalf("got detail %q, want the original error text", doc.Detail)
	}
}

func TestSendErrorHidesSignatureInvalidDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, log.New(nil), berrors.SignatureInvalidError("registrar-agent cert chain did not verify"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
	var doc struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if doc.Detail == "registrar-agent cert chain did not verify" {
		t.Fatalf("SendError must not leak which signature failed")
	}
}

func TestSendErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, log.New(nil), berrors.InternalError("mysql: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
	var doc struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if doc.Detail != "internal error" {
		t.Fatalf("got detail %q, internal errors must not leak", doc.Detail)
	}
}

func TestSendErrorTreatsForeignErrorsAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, log.New(nil), context_deadline_exceeded{})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500 for a non-berrors error", rec.Code)
	}
}

type context_deadline_exceeded struct{}

func (context_deadline_exceeded) Error() string { return "deadline exceeded" }
