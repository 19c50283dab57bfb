// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authgate/gate")

// Engine classifies requests.
type Engine interface {
	Protect(ctx context.Context, r *http.Request) (Decision, error)
}

// RequestDetails is the part of a request that rules inspect.
type RequestDetails struct {
	IP        string      `json:"ip"`
	Method    string      `json:"method"`
	Host      string      `json:"host"`
	Path      string      `json:"path"`
	Query     string      `json:"query,omitempty"`
	UserAgent string      `json:"userAgent,omitempty"`
	Headers   http.Header `json:"headers,omitempty"`
}

// DetailsFrom extracts RequestDetails from r. The client IP is taken from
// RemoteAddr, which the router rewrites only for requests arriving through a
// trusted proxy.
func DetailsFrom(r *http.Request) RequestDetails {
	return RequestDetails{
		IP:        clientIP(r.RemoteAddr),
		Method:    r.Method,
		Host:      r.Host,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		UserAgent: r.UserAgent(),
		Headers:   r.Header.Clone(),
	}
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Rule is one check in a RuleEngine.
type Rule interface {
	Name() string
	Mode() Mode
	Evaluate(ctx context.Context, req RequestDetails) (RuleResult, error)
}

// RuleEngine evaluates rules in order. The first enforced denial decides;
// dry-run denials are recorded and logged but never block.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// NewRuleEngine creates a RuleEngine.
func NewRuleEngine(logger *slog.Logger, rules ...Rule) (*RuleEngine, error) {
	if logger == nil {
		return nil, oops.Code("GATE_ENGINE_INVALID").Errorf("logger is required")
	}
	if len(rules) == 0 {
		return nil, oops.Code("GATE_ENGINE_INVALID").Errorf("at least one rule is required")
	}
	for i, r := range rules {
		if r == nil {
			return nil, oops.Code("GATE_ENGINE_INVALID").With("index", i).Errorf("rule %d is nil", i)
		}
	}
	return &RuleEngine{rules: rules, logger: logger}, nil
}

// Protect implements Engine.
func (e *RuleEngine) Protect(ctx context.Context, r *http.Request) (decision Decision, err error) {
	req := DetailsFrom(r)
	results := make([]RuleResult, 0, len(e.rules))

	ctx, span := tracer.Start(ctx, "gate.protect",
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.Path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.String("gate.conclusion", string(decision.Conclusion)),
				attribute.String("gate.reason", string(decision.Reason)),
			)
		}
		span.End()
	}()

	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Decision{}, oops.Code("GATE_CANCELLED").With("rule", rule.Name()).Wrap(err)
		}

		res, err := rule.Evaluate(ctx, req)
		if err != nil {
			return Decision{}, oops.Code("GATE_RULE_FAILED").With("rule", rule.Name()).Wrap(err)
		}
		res.Rule = rule.Name()
		res.Mode = rule.Mode()
		results = append(results, res)

		if res.Conclusion != Deny {
			continue
		}
		if res.Mode == DryRun {
			span.AddEvent("dry-run denial", trace.WithAttributes(attribute.String("gate.rule", res.Rule)))
			e.logger.InfoContext(ctx, "dry-run rule would deny request",
				"rule", res.Rule,
				"reason", string(res.Reason),
				"detail", res.Detail,
				"ip", req.IP,
				"path", req.Path)
			continue
		}
		return Decision{Conclusion: Deny, Reason: res.Reason, Results: results}, nil
	}

	return Decision{Conclusion: Allow, Results: results}, nil
}

var _ Engine = (*RuleEngine)(nil)
