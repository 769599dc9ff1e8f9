package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brski-prm/brski-prm-go/envelope"
)

func TestContentTypeForVoucherVsToken(t *testing.T) {
	cases := []struct {
		ct        envelope.ContentType
		isVoucher bool
		want      string
	}{
		{envelope.JWSGeneral, false, MediaTypeJOSEJSON},
		{envelope.JWSGeneral, true, MediaTypeVoucherJWS},
		{envelope.COSESign1, false, MediaTypeCOSECBOR},
		{envelope.COSESign1, true, MediaTypeVoucherCOSE},
	}
	for _, c := range cases {
		if got := ContentTypeFor(c.ct, c.isVoucher); got != c.want {
			t.Fatalf("ContentTypeFor(%v, %v) = %q, want %q", c.ct, c.isVoucher, got, c.want)
		}
	}
}

func TestParseContentTypeAcceptsBothVoucherAndTokenMediaTypes(t *testing.T) {
	for _, mt := range []string{MediaTypeJOSEJSON, MediaTypeVoucherJWS} {
		ct, err := ParseContentType(mt)
		if err != nil {
			t.Fatalf("ParseContentType(%q): %v", mt, err)
		}
		if ct != envelope.JWSGeneral {
			t.Fatalf("ParseContentType(%q) = %v, want JWSGeneral", mt, ct)
		}
	}
	for _, mt := range []string{MediaTypeCOSECBOR, MediaTypeVoucherCOSE} {
		ct, err := ParseContentType(mt)
		if err != nil {
			t.Fatalf("ParseContentType(%q): %v", mt, err)
		}
		if ct != envelope.COSESign1 {
			t.Fatalf("ParseContentType(%q) = %v, want COSESign1", mt, ct)
		}
	}
}

func TestParseContentTypeRejectsUnknownMediaType(t *testing.T) {
	if _, err := ParseContentType(MediaTypePKCS7Mime); err == nil {
		t.Fatalf("expected an error for a non-envelope media type")
	}
}

func TestReadBodyRejectsEmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("Content-Type", MediaTypeJOSEJSON)
	req.ContentLength = 0
	if _, _, err := ReadBody(req); err == nil {
		t.Fatalf("expected an error for an empty body")
	}
}

func TestReadBodyRoundTripsContentTypeAndBytes(t *testing.T) {
	body := `{"payload":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", MediaTypeJOSEJSON)
	req.ContentLength = int64(len(body))

	ct, got, err := ReadBody(req)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	if ct != envelope.JWSGeneral {
		t.Fatalf("got content type %v, want JWSGeneral", ct)
	}
	if string(got) != body {
		t.Fatalf("got body %q, want %q", got, body)
	}
}

func TestWriteBodySetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBody(rec, envelope.COSESign1, true, []byte("bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != MediaTypeVoucherCOSE {
		t.Fatalf("got Content-Type %q, want %q", got, MediaTypeVoucherCOSE)
	}
	if rec.Body.String() != "bytes" {
		t.Fatalf("got body %q, want %q", rec.Body.String(), "bytes")
	}
}
