package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/web"
)

func TestPostRoundTripsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != web.MediaTypeJOSEJSON {
			t.Errorf("request Content-Type = %q, want %q", got, web.MediaTypeJOSEJSON)
		}
		w.Header().Set("Content-Type", web.MediaTypeJOSEJSON)
		_, _ = w.Write([]byte("response-bytes"))
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	ct, body, err := c.Post(context.Background(), srv.URL, envelope.JWSGeneral, false, []byte("request-bytes"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if ct != envelope.JWSGeneral {
		t.Fatalf("got content type %v, want JWSGeneral", ct)
	}
	if string(body) != "response-bytes" {
		t.Fatalf("got body %q, want %q", body, "response-bytes")
	}
}

func TestPostMapsNon2xxToTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	if _, _, err := c.Post(context.Background(), srv.URL, envelope.JWSGeneral, false, []byte("x")); err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}

func TestPostRejectsUnrecognizedResponseContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pkcs7-mime")
		_, _ = w.Write([]byte("certs"))
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	if _, _, err := c.Post(context.Background(), srv.URL, envelope.JWSGeneral, false, []byte("x")); err == nil {
		t.Fatalf("expected Post to reject a pkcs7-mime response as an unparseable envelope")
	}
}

func TestPostRawPassesContentTypeThroughUnparsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != web.MediaTypePKCS7Mime {
			t.Errorf("request Content-Type = %q, want %q", got, web.MediaTypePKCS7Mime)
		}
		w.Header().Set("Content-Type", web.MediaTypePKCS7Mime)
		_, _ = w.Write([]byte("certs-only-der"))
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	body, ct, err := c.PostRaw(context.Background(), srv.URL, web.MediaTypePKCS7Mime, []byte("per-bytes"))
	if err != nil {
		t.Fatalf("PostRaw: %v", err)
	}
	if ct != web.MediaTypePKCS7Mime {
		t.Fatalf("got Content-Type %q, want %q", ct, web.MediaTypePKCS7Mime)
	}
	if string(body) != "certs-only-der" {
		t.Fatalf("got body %q, want %q", body, "certs-only-der")
	}
}

func TestPostRawMapsNon2xxToTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	if _, _, err := c.PostRaw(context.Background(), srv.URL, web.MediaTypePKCS7Mime, []byte("x")); err == nil {
		t.Fatalf("expected an error for a 502 response")
	}
}

func TestGetReturnsContentTypeAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("application/voucher-jws+json"))
	}))
	defer srv.Close()

	c := New(5*time.Second, nil)
	ct, body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ct != "text/plain" {
		t.Fatalf("got Content-Type %q, want text/plain", ct)
	}
	if string(body) != "application/voucher-jws+json" {
		t.Fatalf("got body %q", body)
	}
}
