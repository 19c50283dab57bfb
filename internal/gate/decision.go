// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package gate screens inbound requests before they reach any route.
//
// An Engine classifies each request and returns a Decision. The built-in
// RuleEngine evaluates a shield rule, a bot rule and a sliding-window rate
// limit in that order; RemoteEngine delegates to an external decision
// service. Middleware turns the Decision into an HTTP response.
package gate

import "time"

// Conclusion is the verdict of a rule or of a whole decision.
type Conclusion string

// Conclusions.
const (
	Allow Conclusion = "ALLOW"
	Deny  Conclusion = "DENY"
)

// Reason classifies why a request was denied.
type Reason string

// Reasons.
const (
	ReasonNone      Reason = ""
	ReasonBot       Reason = "bot"
	ReasonShield    Reason = "shield"
	ReasonRateLimit Reason = "rate-limit"
	ReasonOther     Reason = "other"
)

// Mode controls whether a rule's denial is enforced.
type Mode string

// Modes.
const (
	Live   Mode = "LIVE"
	DryRun Mode = "DRY_RUN"
)

// RuleResult is the outcome of a single rule.
type RuleResult struct {
	Rule       string        `json:"rule"`
	Mode       Mode          `json:"mode"`
	Conclusion Conclusion    `json:"conclusion"`
	Reason     Reason        `json:"reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

// Enforced reports whether the result denies the request for real.
func (r RuleResult) Enforced() bool {
	return r.Conclusion == Deny && r.Mode == Live
}

// Decision is the verdict for one request.
type Decision struct {
	Conclusion Conclusion   `json:"conclusion"`
	Reason     Reason       `json:"reason,omitempty"`
	Results    []RuleResult `json:"results,omitempty"`
}

// IsDenied reports whether the request must be rejected.
func (d Decision) IsDenied() bool {
	return d.Conclusion == Deny
}

// RetryAfter returns how long a rate-limited client should wait, or zero.
func (d Decision) RetryAfter() time.Duration {
	for _, r := range d.Results {
		if r.Enforced() && r.Reason == ReasonRateLimit {
			return r.RetryAfter
		}
	}
	return 0
}
