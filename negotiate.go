package voicelink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NegotiationRequest is the payload sent to the negotiation service when a
// new session is started.
type NegotiationRequest struct {
	SubjectID   string `json:"subjectId"`
	Voice       string `json:"voice,omitempty"`
	ContextText string `json:"contextText,omitempty"`
}

// Negotiated is the negotiation service's answer: a short-lived, single-use
// credential plus the endpoint and model the session should connect to.
type Negotiated struct {
	SessionID  string `json:"sessionId"`
	Credential string `json:"credential"`
	ExpiresAt  int64  `json:"expiresAt,omitempty"`
	Model      string `json:"model,omitempty"`
	Voice      string `json:"voice,omitempty"`
	Endpoint   string `json:"endpoint"`
}

// Negotiator mints ephemeral session credentials. Implementations must not
// retry internally; a failed negotiation fails the session start.
type Negotiator interface {
	Negotiate(ctx context.Context, req NegotiationRequest) (*Negotiated, error)
}

// HTTPNegotiator negotiates against an HTTP credential issuer such as
// cmd/negotiator. It POSTs the NegotiationRequest as JSON and decodes the
// Negotiated response.
type HTTPNegotiator struct {
	// URL is the negotiation endpoint.
	URL string

	// Credential authenticates this process to the issuer (optional).
	Credential Credential

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client
}

// Negotiate implements Negotiator.
func (n *HTTPNegotiator) Negotiate(ctx context.Context, req NegotiationRequest) (*Negotiated, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewNegotiationError(req.SubjectID, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return nil, NewNegotiationError(req.SubjectID, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if n.Credential != nil {
		n.Credential.apply(httpReq.Header)
	}

	client := n.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, NewNegotiationError(req.SubjectID, "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, NewNegotiationError(req.SubjectID, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var neg Negotiated
	if err := json.NewDecoder(resp.Body).Decode(&neg); err != nil {
		return nil, NewNegotiationError(req.SubjectID, "decode response", err)
	}
	return &neg, nil
}

// validateNegotiated fails fast on responses that cannot open a session,
// before any transport connection is attempted.
func validateNegotiated(subjectID string, neg *Negotiated) error {
	if neg == nil {
		return NewNegotiationError(subjectID, "empty response", nil)
	}
	if neg.Credential == "" {
		return NewNegotiationError(subjectID, "missing credential in response", nil)
	}
	if neg.Endpoint == "" {
		return NewNegotiationError(subjectID, "missing endpoint in response", nil)
	}
	return nil
}
