// Package credhub implements the small slice of the CredHub API the
// rotation workflow needs: setting and reading a password-typed credential.
// Authentication uses UAA-issued bearer tokens obtained by the caller.
package credhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	roterrors "github.com/systmms/uaa-rotate/internal/errors"
	"github.com/systmms/uaa-rotate/internal/httpx"
	"github.com/systmms/uaa-rotate/internal/logging"
)

// Client talks to a single CredHub server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logging.Logger
	redact  []string
}

// New creates a CredHub client. Every value in redact is scrubbed from
// response bodies before they are attached to errors.
func New(baseURL string, httpClient *http.Client, logger *logging.Logger, redact ...string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
		redact:  redact,
	}
}

// AddRedactValue registers another secret value for body scrubbing.
func (c *Client) AddRedactValue(value string) {
	c.redact = append(c.redact, value)
}

// setRequest is the PUT /v1/data payload for a password credential.
type setRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SetPassword stores value as a password-typed credential at name. CredHub
// versions the credential internally. HTTP 200 and 201 are both success.
// No retries: this is a mutation.
func (c *Client) SetPassword(ctx context.Context, token, name, value string) error {
	payload, err := json.Marshal(setRequest{Name: name, Type: "password", Value: value})
	if err != nil {
		return fmt.Errorf("cannot encode credential %s: %w", name, err)
	}

	target := c.baseURL + "/v1/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpx.Do(c.http, req, c.logger)
	if err != nil {
		return roterrors.ConnectivityError{Service: roterrors.ServiceCredHub, URL: target, Err: err}
	}
	body := httpx.ReadBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return roterrors.UpdateError{
			Stage:      roterrors.StageUpdateCredHub,
			Service:    roterrors.ServiceCredHub,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	}
	return nil
}

// dataResponse is the interesting subset of GET /v1/data.
type dataResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// GetPassword returns the current value of the password credential at name.
// Read-only, so transport-level failures are retried.
func (c *Client) GetPassword(ctx context.Context, token, name string) (string, error) {
	target := c.baseURL + "/v1/data?current=true&name=" + url.QueryEscape(name)
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
		return "", roterrors.ConnectivityError{Service: roterrors.ServiceCredHub, URL: target, Err: err}
	}
	body := httpx.ReadBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return "", roterrors.NotFoundError{ClientID: name}
	}
	if resp.StatusCode != http.StatusOK {
		return "", roterrors.UpdateError{
			Stage:      roterrors.StageFetch,
			Service:    roterrors.ServiceCredHub,
			StatusCode: resp.StatusCode,
			Body:       c.sanitize(body),
		}
	}

	var data dataResponse
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return "", fmt.Errorf("cannot decode credential %s: %w", name, err)
	}
	if len(data.Data) == 0 || data.Data[0].Value == "" {
		return "", fmt.Errorf("credential %s has no current value", name)
	}
	return data.Data[0].Value, nil
}

func (c *Client) sanitize(body string) string {
	return logging.Redact(strings.TrimSpace(body), c.redact)
}
