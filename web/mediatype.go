package web

import (
	"io"
	"net/http"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
)

// Media types named in spec.md §6.
const (
	MediaTypeJOSEJSON     = "application/jose+json"
	MediaTypeVoucherJWS   = "application/voucher-jws+json"
	MediaTypeCOSECBOR     = "application/cose+cbor"
	MediaTypeVoucherCOSE  = "application/voucher+cose"
	MediaTypePKCS7Mime    = "application/pkcs7-mime"
	MediaTypeJSON         = "application/json"
	MediaTypeCBOR         = "application/cbor"
)

// ContentTypeFor maps a negotiated envelope.ContentType to the media
// type used for a token artifact (PVR, RVR, status reports, triggers)
// versus a voucher artifact, per spec.md §6's distinct
// jose+json/voucher-jws+json and cose+cbor/voucher+cose pairs.
func ContentTypeFor(ct envelope.ContentType, isVoucher bool) string {
	switch ct {
	case envelope.COSESign1:
		if isVoucher {
			return MediaTypeVoucherCOSE
		}
		return MediaTypeCOSECBOR
	default:
		if isVoucher {
			return MediaTypeVoucherJWS
		}
		return MediaTypeJOSEJSON
	}
}

// ParseContentType maps an inbound request's Content-Type header back
// to an envelope.ContentType, rejecting anything else with
// UnsupportedMediaType (spec.md §7).
func ParseContentType(header string) (envelope.ContentType, error) {
	switch header {
	case MediaTypeJOSEJSON, MediaTypeVoucherJWS:
		return envelope.JWSGeneral, nil
	case MediaTypeCOSECBOR, MediaTypeVoucherCOSE:
		return envelope.COSESign1, nil
	default:
		return "", berrors.UnsupportedMediaTypeError("web: unsupported content-type %q", header)
	}
}

// ReadBody reads and content-type-checks a request body, returning the
// negotiated envelope.ContentType alongside the raw bytes.
func ReadBody(r *http.Request) (envelope.ContentType, []byte, error) {
	ct, err := ParseContentType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, err
	}
	if r.ContentLength <= 0 {
		return ct, nil, berrors.MalformedError("web: empty request body")
	}
	buf := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, buf); err != nil {
		return "", nil, berrors.MalformedError("web: reading body: %s", err)
	}
	return ct, buf, nil
}

// WriteBody writes a signed artifact's bytes with the media type
// appropriate to its content type and artifact kind.
func WriteBody(w http.ResponseWriter, ct envelope.ContentType, isVoucher bool, body []byte) {
	w.Header().Set("Content-Type", ContentTypeFor(ct, isVoucher))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
