// Package uaa implements the subset of the UAA HTTP API the rotation
// workflow needs: client-credentials token grants and fetching/updating a
// client registration.
package uaa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/httpx"
	"github.com/systmms/uaa-rotate/internal/logging"
)

// Client talks to a single UAA server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
	cache   *tokenCache

	// redact holds every secret value that must never appear in an error
	// or log line built from a response body.
	redact []string
}

// New creates a UAA client. Every value in redact is scrubbed from response
// bodies before they are attached to errors.
func New(baseURL string, httpClient *http.Client, logger *logging.Logger, redact ...string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
		cache:   newTokenCache(),
		redact:  redact,
	}
}

// AddRedactValue registers another secret value for body scrubbing. Called
// by the orchestrator once the new secret has been generated.
func (c *Client) AddRedactValue(value string) {
	c.redact = append(c.redact, value)
}

// tokenResponse is the interesting subset of the UAA token endpoint payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token performs an OAuth2 client-credentials grant and returns the access
// token. Grants are cached per client identity for the process lifetime;
// pass fresh=true to force a new grant (used for verification, where the
// point is proving the credentials work right now).
func (c *Client) Token(ctx context.Context, service roterrors.Service, clientID, clientSecret string, fresh bool) (string, error) {
	if !fresh {
		if token, ok := c.cache.get(clientID, clientSecret); ok {
			c.logger.Debug("Reusing cached %s token for client %s", service, clientID)
			return token, nil
		}
	}

	build := func() (*http.Request, error) {
		form := url.Values{"grant_type": {"client_credentials"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token",
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(clientID, clientSecret)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, c.http, build, c.logger)
	if err != nil {
		return "", roterrors.ConnectivityError{Service: service, URL: c.baseURL + "/oauth/token", Err: err}
	}
	body := httpx.ReadBody(resp)

	if resp.StatusCode != http.StatusOK {
		return "", roterrors.AuthError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	}

	var tok tokenResponse
	if err := json.Unmarshal([]byte(body), &tok); err != nil || tok.AccessToken == "" {
		return "", roterrors.AuthError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       "response did not contain an access_token",
		}
	}

	if tok.ExpiresIn > 0 {
		c.cache.set(clientID, clientSecret, tok.AccessToken, time.Duration(tok.ExpiresIn)*time.Second)
	}
	return tok.AccessToken, nil
}

// GetClient fetches the full registration document for a client. The
// document is returned as a generic map so unknown fields round-trip
// unchanged through the secret update.
func (c *Client) GetClient(ctx context.Context, token, clientID string) (map[string]interface{}, error) {
	target := c.clientURL(clientID)
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := httpx.DoWithRetry(ctx, c.http, build, c.logger)
	if err != nil {
		return nil, roterrors.ConnectivityError{Service: roterrors.ServiceUAA, URL: target, Err: err}
	}
	body := httpx.ReadBody(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, roterrors.NotFoundError{ClientID: clientID}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, roterrors.AuthError{
			Service:    roterrors.ServiceUAA,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, roterrors.UpdateError{
			Stage:      roterrors.StageFetch,
			Service:    roterrors.ServiceUAA,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("cannot decode client document for %s: %w", clientID, err)
	}
	return doc, nil
}

// UpdateClient replaces a client registration with the given document. The
// caller merges the new client_secret into a previously fetched document so
// every other field is preserved. No retries: this is a mutation.
func (c *Client) UpdateClient(ctx context.Context, token, clientID string, doc map[string]interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot encode client document for %s: %w", clientID, err)
	}

	target := c.clientURL(clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpx.Do(c.http, req, c.logger)
	if err != nil {
		return roterrors.ConnectivityError{Service: roterrors.ServiceUAA, URL: target, Err: err}
	}
	body := httpx.ReadBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return roterrors.UpdateError{
			Stage:      roterrors.StageUpdateUAA,
			Service:    roterrors.ServiceUAA,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	}
	return nil
}

func (c *Client) clientURL(clientID string) string {
	return c.baseURL + "/oauth/clients/" + url.PathEscape(clientID)
}

func (c *Client) sanitize(body string) string {
	return logging.Redact(strings.TrimSpace(body), c.redact)
}
