// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

const decidePath = "/v1/decide"

// RemoteEngine asks an external decision service for each verdict.
type RemoteEngine struct {
	endpoint string
	key      string
	client   *http.Client
	limiter  *rate.Limiter
}

// RemoteOption configures a RemoteEngine.
type RemoteOption func(*RemoteEngine)

// WithHTTPClient sets the client used for decision calls.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(e *RemoteEngine) { e.client = c }
}

// WithCallRate caps outbound decision calls. Callers wait for a token
// within their own deadline.
func WithCallRate(perSecond float64, burst int) RemoteOption {
	return func(e *RemoteEngine) { e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewRemoteEngine creates a RemoteEngine posting to endpoint + "/v1/decide".
// The caller's context bounds each call.
func NewRemoteEngine(endpoint, key string, opts ...RemoteOption) (*RemoteEngine, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, oops.Code("GATE_ENGINE_INVALID").Errorf("decision endpoint is required")
	}
	e := &RemoteEngine{endpoint: endpoint, key: key, client: http.DefaultClient}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = http.DefaultClient
	}
	return e, nil
}

// Protect implements Engine.
func (e *RemoteEngine) Protect(ctx context.Context, r *http.Request) (Decision, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Decision{}, oops.Code("GATE_REMOTE_THROTTLED").Wrap(err)
		}
	}

	body, err := json.Marshal(DetailsFrom(r))
	if err != nil {
		return Decision{}, oops.Code("GATE_REMOTE_FAILED").With("operation", "encode request").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+decidePath, bytes.NewReader(body))
	if err != nil {
		return Decision{}, oops.Code("GATE_REMOTE_FAILED").With("operation", "build request").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.key != "" {
		req.Header.Set("Authorization", "Bearer "+e.key)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Decision{}, oops.Code("GATE_REMOTE_FAILED").With("operation", "call decision service").Wrap(err)
	}
	defer resp.Body.Close() //nolint:errcheck // response already consumed

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best-effort context
		return Decision{}, oops.Code("GATE_REMOTE_STATUS").
			With("status", resp.StatusCode).
			With("body", string(snippet)).
			Errorf("decision service returned %d", resp.StatusCode)
	}

	var d Decision
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&d); err != nil {
		return Decision{}, oops.Code("GATE_REMOTE_FAILED").With("operation", "decode decision").Wrap(err)
	}
	switch d.Conclusion {
	case Allow:
	case Deny:
		if d.Reason == ReasonNone {
			d.Reason = ReasonOther
		}
	default:
		return Decision{}, oops.Code("GATE_REMOTE_FAILED").
			With("conclusion", string(d.Conclusion)).
			Errorf("unknown conclusion %q", d.Conclusion)
	}
	return d, nil
}

var _ Engine = (*RemoteEngine)(nil)
