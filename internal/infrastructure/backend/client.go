// Package backend is the HTTP client for the verification backend that owns
// the SMS/WhatsApp gateway, delivery-status webhooks and referral issuance.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/referral-onboarding/internal/domain"
)

// Client talks to the four onboarding endpoints of the backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client rooted at baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SendVerification calls POST /send-verification.
func (c *Client) SendVerification(ctx context.Context, phone string, ch domain.Channel) (*SendVerificationResponse, error) {
	var out SendVerificationResponse
	status, err := c.do(ctx, http.MethodPost, "/send-verification", SendVerificationRequest{Phone: phone, Method: string(ch)}, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = status
	return &out, nil
}

// DeliveryStatus calls GET /delivery-status/{messageSid}.
func (c *Client) DeliveryStatus(ctx context.Context, messageSid string) (*DeliveryStatusResponse, error) {
	var out DeliveryStatusResponse
	if _, err := c.do(ctx, http.MethodGet, "/delivery-status/"+url.PathEscape(messageSid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCode calls POST /verify-code.
func (c *Client) VerifyCode(ctx context.Context, phone, code string) (*VerifyCodeResponse, error) {
	var out VerifyCodeResponse
	status, err := c.do(ctx, http.MethodPost, "/verify-code", VerifyCodeRequest{Phone: phone, Code: code}, &out)
	if err != nil {
		return nil, err
	}
	out.HTTPStatus = status
	return &out, nil
}

// ResendLink calls POST /resend-link.
func (c *Client) ResendLink(ctx context.Context, phone string) (*ResendLinkResponse, error) {
	var out ResendLinkResponse
	if _, err := c.do(ctx, http.MethodPost, "/resend-link", ResendLinkRequest{Phone: phone}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends the request and decodes a JSON body regardless of status code;
// the backend reports refusals in the payload. A missing response wraps
// domain.ErrTransport, an undecodable 2xx/4xx body wraps
// domain.ErrContractViolation.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s body: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrTransport)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s response: %v: %w", path, err, domain.ErrTransport)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp.StatusCode, fmt.Errorf("%s returned status %d: %w", path, resp.StatusCode, domain.ErrTransport)
		}
		return resp.StatusCode, fmt.Errorf("decode %s response (status %d): %w", path, resp.StatusCode, domain.ErrContractViolation)
	}
	return resp.StatusCode, nil
}
