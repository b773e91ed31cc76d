/* Copyright 2025 Tillsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package client talks to the remote batch sync endpoint
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/op"
	"golang.org/x/time/rate"
)

// ErrContentTypeMismatch is returned when the server does not respond with JSON
var ErrContentTypeMismatch = errors.New("content type mismatch")

// ErrShortResults is returned when the server returns fewer results than operations sent
var ErrShortResults = errors.New("response has fewer results than operations")

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// Status is the outcome of a single operation on the server
type Status string

const (
	// StatusOK means the operation was applied
	StatusOK Status = "OK"
	// StatusSkip means the operation had already been applied
	StatusSkip Status = "SKIP"
	// StatusError means the server rejected the operation
	StatusError Status = "ERROR"
)

// Confirmed reports whether the server has applied the operation
func (s Status) Confirmed() bool {
	return s == StatusOK || s == StatusSkip
}

// ResultItem is the result of a single operation, aligned with the request by position
type ResultItem struct {
	Status   Status `json:"status"`
	ServerID string `json:"serverId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// BatchRequest is the body of a batch sync request
type BatchRequest struct {
	Ops []op.Operation `json:"ops"`
}

// BatchResponse is the body of a batch sync response
type BatchResponse struct {
	Results []ResultItem `json:"results"`
}

const (
	// BatchPath is the path of the batch sync endpoint
	BatchPath = "/sync/batch"

	// HeaderOrgID carries the organization of the terminal
	HeaderOrgID = "x-org-id"
	// HeaderIdempotencyKey carries the client operation id on single operation sends
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderClientVersion carries the version of the terminal software
	HeaderClientVersion = "Client-Version"

	contentTypeApplicationJSON = "application/json"
)

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 20
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 40
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting and the given timeout
func NewRateLimitedHTTPClient(timeout time.Duration) *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Options configures a Client
type Options struct {
	// Endpoint is the base URL of the API, without a trailing slash
	Endpoint string
	OrgID    string
	Version  string
	// HTTPClient defaults to a rate limited client with a 15 second timeout
	HTTPClient *http.Client
}

// Client sends operations to the batch sync endpoint
type Client struct {
	endpoint string
	orgID    string
	version  string
	hc       *http.Client
}

// New returns a new client
func New(o Options) *Client {
	hc := o.HTTPClient
	if hc == nil {
		hc = NewRateLimitedHTTPClient(15 * time.Second)
	}

	return &Client{
		endpoint: strings.TrimRight(o.Endpoint, "/"),
		orgID:    o.OrgID,
		version:  o.Version,
		hc:       hc,
	}
}

// checkRespErr returns an HTTPError if the response indicates an error
func checkRespErr(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

func checkContentType(res *http.Response) error {
	got := res.Header.Get("Content-Type")

	mediaType, _, err := mime.ParseMediaType(got)
	if err != nil || mediaType != contentTypeApplicationJSON {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Did you configure your endpoint correctly?", got, contentTypeApplicationJSON)
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, ops []op.Operation) (*http.Request, error) {
	body, err := json.Marshal(BatchRequest{Ops: ops})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+BatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("Content-Type", contentTypeApplicationJSON)
	req.Header.Set(HeaderOrgID, c.orgID)
	if c.version != "" {
		req.Header.Set(HeaderClientVersion, c.version)
	}

	return req, nil
}

func (c *Client) do(req *http.Request, n int) ([]ResultItem, error) {
	log.WithFields(log.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
		"ops":    n,
	}).Debug("sending batch")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	log.WithFields(log.Fields{
		"status": res.StatusCode,
	}).Debug("received batch response")

	if err := checkRespErr(res); err != nil {
		return nil, errors.Wrap(err, "server responded with an error")
	}
	if err := checkContentType(res); err != nil {
		return nil, errors.Wrap(err, "unexpected Content-Type")
	}

	var resp BatchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "decoding batch response")
	}
	if len(resp.Results) < n {
		return nil, errors.Wrapf(ErrShortResults, "sent %d, got %d", n, len(resp.Results))
	}

	return resp.Results[:n], nil
}

// SendBatch posts the operations and returns one result per operation, in order
func (c *Client) SendBatch(ctx context.Context, ops []op.Operation) ([]ResultItem, error) {
	req, err := c.newRequest(ctx, ops)
	if err != nil {
		return nil, err
	}

	return c.do(req, len(ops))
}

// SendOne posts a single operation using its client operation id as the idempotency key
func (c *Client) SendOne(ctx context.Context, o op.Operation) (ResultItem, error) {
	req, err := c.newRequest(ctx, []op.Operation{o})
	if err != nil {
		return ResultItem{}, err
	}
	req.Header.Set(HeaderIdempotencyKey, o.ClientOpID)

	results, err := c.do(req, 1)
	if err != nil {
		return ResultItem{}, err
	}

	return results[0], nil
}

// Reachable reports whether a TCP connection to the endpoint's host opens within
// timeout. It sends no request.
func (c *Client) Reachable(ctx context.Context, timeout time.Duration) bool {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Hostname() == "" {
		return false
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		log.WithFields(log.Fields{"endpoint": c.endpoint}).Debug("endpoint unreachable: " + err.Error())
		return false
	}
	conn.Close()

	return true
}

// IsTransient reports whether the error is worth retrying later. Network errors,
// timeouts, 5xx, 408 and 429 responses are transient; other 4xx responses and malformed
// responses are not. Callers keep operations queued either way.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 ||
			httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode == http.StatusRequestTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	cause := errors.Cause(err)
	return cause == context.DeadlineExceeded || cause == io.ErrUnexpectedEOF
}
