// Package httpx provides the shared HTTP plumbing for talking to UAA and
// CredHub: a client with explicit connect and total timeouts, an
// unauthenticated connectivity probe, and bounded transport-level retries
// for read-only calls.
package httpx

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/logging"
)

// MaxBodyBytes caps how much of a response body is read into errors and
// parsed payloads. UAA and CredHub responses of interest are small.
const MaxBodyBytes = 64 * 1024

// readRetries is the number of extra attempts for read-only calls after a
// transport-level failure. Mutating calls never retry.
const readRetries = 2

// NewClient builds an HTTP client with explicit dial and total timeouts.
// TLS verification is only disabled when the plan explicitly opts in.
func NewClient(skipTLSVerify bool, connectTimeout, requestTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
	}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in
	}
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	}
}

// Probe issues a lightweight unauthenticated GET against the service base
// URL. Any transport failure is a ConnectivityError; an HTTP response of any
// status counts as reachable.
func Probe(ctx context.Context, client *http.Client, service roterrors.Service, baseURL string, logger *logging.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return roterrors.ConnectivityError{Service: service, URL: baseURL, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.HTTP(http.MethodGet, baseURL, 0)
		return roterrors.ConnectivityError{Service: service, URL: baseURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	logger.HTTP(http.MethodGet, baseURL, resp.StatusCode)
	return nil
}

// Do executes a single request with no retries. Used for every mutating
// call: a blind retry after an ambiguous failure could rotate twice.
func Do(client *http.Client, req *http.Request, logger *logging.Logger) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		logger.HTTP(req.Method, req.URL.String(), 0)
		return nil, err
	}
	logger.HTTP(req.Method, req.URL.String(), resp.StatusCode)
	return resp, nil
}

// DoWithRetry executes a read-only request, retrying up to two extra times
// with linear backoff on transport-level failures only. Application responses
// (any HTTP status) are never retried. The build function must return a fresh
// request each attempt so bodies can be re-sent.
func DoWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error), logger *logging.Logger) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= readRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil {
			logger.HTTP(req.Method, req.URL.String(), resp.StatusCode)
			return resp, nil
		}
		logger.HTTP(req.Method, req.URL.String(), 0)
		lastErr = err

		// A cancelled or expired context is not a transient transport fault.
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ReadBody drains and returns at most MaxBodyBytes of a response body.
func ReadBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	return string(data)
}
