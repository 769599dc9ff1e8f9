// Package client implements the outbound HTTP transport shared by the
// registrar-agent (calling pledges and the registrar), the registrar
// (calling the MASA), and any role issuing a status report: POST/GET
// with content negotiation and the non-2xx/timeout/transport-failure
// mapping to berrors.Transport that spec.md §4.5/§7 requires.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/brski-prm/brski-prm-go/berrors"
	"github.com/brski-prm/brski-prm-go/envelope"
	"github.com/brski-prm/brski-prm-go/web"
)

// Client wraps an *http.Client with the per-call timeout and
// content-type bookkeeping the orchestrator needs.
type Client struct {
	HTTP    *http.Client
	Timeout time.Duration
}

// New constructs a Client with the given per-call timeout
// (spec.md §5 default 30s), sharing one *http.Client (and its
// connection pool) across all sessions.
func New(timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{HTTP: httpClient, Timeout: timeout}
}

// Post sends a signed artifact and returns the negotiated content type
// and response bytes, translating transport failures and non-2xx
// statuses into berrors.Transport (spec.md §7).
func (c *Client) Post(ctx context.Context, url string, ct envelope.ContentType, isVoucher bool, body []byte) (envelope.ContentType, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, berrors.New(berrors.Internal, "client: building request: %s", err)
	}
	req.Header.Set("Content-Type", web.ContentTypeFor(ct, isVoucher))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", nil, berrors.TransportError("client: timeout calling %s", url)
		}
		return "", nil, berrors.TransportError("client: calling %s: %s", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, berrors.TransportError("client: reading response from %s: %s", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, berrors.TransportError("client: %s returned status %d", url, resp.StatusCode)
	}
	if len(respBody) == 0 {
		return ct, nil, nil
	}
	respCT, err := web.ParseContentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, err
	}
	return respCT, respBody, nil
}

// PostRaw sends body under an explicit Content-Type header and returns
// the response bytes and its Content-Type header verbatim, with no
// envelope parsing. Used for the PKCS#7-wrapped certificate exchange
// (requestenroll/ser), which carries no JWS/COSE envelope on one leg.
func (c *Client) PostRaw(ctx context.Context, url, contentType string, body []byte) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, "", berrors.New(berrors.Internal, "client: building request: %s", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, "", berrors.TransportError("client: timeout calling %s", url)
		}
		return nil, "", berrors.TransportError("client: calling %s: %s", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", berrors.TransportError("client: reading response from %s: %s", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", berrors.TransportError("client: %s returned status %d", url, resp.StatusCode)
	}
	return respBody, resp.Header.Get("Content-Type"), nil
}

// Get issues a GET request and returns the raw response body alongside
// its Content-Type header value (used for DIF negotiation, where the
// body is a bare media-type string, not a signed envelope).
func (c *Client) Get(ctx context.Context, url string) (string, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, berrors.New(berrors.Internal, "client: building request: %s", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", nil, berrors.TransportError("client: timeout calling %s", url)
		}
		return "", nil, berrors.TransportError("client: calling %s: %s", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, berrors.TransportError("client: reading response from %s: %s", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, berrors.TransportError("client: %s returned status %d", url, resp.StatusCode)
	}
	return resp.Header.Get("Content-Type"), body, nil
}
