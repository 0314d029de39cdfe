// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel initiates remote debug sessions against the external
// tunnel broker when a job fails. The engine's involvement ends once
// the broker accepts the request: the interactive transport, access
// control, and session lifetime are all the broker's business. The
// requested TTL is advisory — the broker may cap it.
package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTTL is the session lifetime requested when the job's hook
// does not specify one.
const DefaultTTL = 30 * time.Minute

// Client talks to the tunnel broker's session API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a broker client. The token authenticates the
// engine to the broker; it comes out of the sealed secrets file and
// must never be logged.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SessionRequest asks the broker for one debug session.
type SessionRequest struct {
	// Pipeline and Instance identify the failed job for the session
	// listing the operator sees.
	Pipeline string `json:"pipeline"`
	Instance string `json:"instance"`

	// FailedStep names the step whose failure triggered the session.
	FailedStep string `json:"failed_step,omitempty"`

	// TTLSeconds is the requested session lifetime.
	TTLSeconds int `json:"ttl_seconds"`
}

// Session is the broker's answer.
type Session struct {
	// ID is the broker's session identifier.
	ID string `json:"id"`

	// URL is where the operator connects.
	URL string `json:"url"`

	// ExpiresAt is the broker-decided expiry (RFC 3339).
	ExpiresAt string `json:"expires_at"`
}

// OpenSession requests a debug session for a failed instance. The
// call is synchronous but short: the broker allocates the session and
// returns immediately; nobody waits for an operator to connect.
func (c *Client) OpenSession(ctx context.Context, request SessionRequest) (*Session, error) {
	if request.TTLSeconds <= 0 {
		request.TTLSeconds = int(DefaultTTL.Seconds())
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding session request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+c.token)

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("tunnel broker: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, fmt.Errorf("tunnel broker: %s: %s", response.Status, bytes.TrimSpace(detail))
	}

	var session Session
	if err := json.NewDecoder(response.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding session response: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("tunnel broker returned a session without a URL")
	}
	return &session, nil
}
