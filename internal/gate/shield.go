// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Target selects the part of a request a signature is matched against.
type Target string

// Targets.
const (
	TargetPath      Target = "path"
	TargetQuery     Target = "query"
	TargetUserAgent Target = "user-agent"
)

// Signature is a named attack pattern. Patterns are gobwas/glob expressions
// without separators, matched against the lower-cased, URL-decoded target.
type Signature struct {
	Name    string
	Target  Target
	Pattern string
}

// DefaultSignatures covers common probing and injection attempts.
func DefaultSignatures() []Signature {
	return []Signature{
		{Name: "path-traversal", Target: TargetPath, Pattern: "*../*"},
		{Name: "path-traversal", Target: TargetQuery, Pattern: "*../*"},
		{Name: "dotfile-scan", Target: TargetPath, Pattern: "*/.{env,git,htaccess,aws,ssh}*"},
		{Name: "passwd-scan", Target: TargetPath, Pattern: "*/etc/passwd*"},
		{Name: "passwd-scan", Target: TargetQuery, Pattern: "*/etc/passwd*"},
		{Name: "cms-scan", Target: TargetPath, Pattern: "*/{wp-admin,wp-login.php,xmlrpc.php,phpmyadmin}*"},
		{Name: "sql-injection", Target: TargetQuery, Pattern: "*union*select*"},
		{Name: "sql-injection", Target: TargetQuery, Pattern: "*' or '1'='1*"},
		{Name: "sql-injection", Target: TargetQuery, Pattern: "*;*drop table*"},
		{Name: "sql-injection", Target: TargetQuery, Pattern: "*sleep(*)*"},
		{Name: "xss", Target: TargetQuery, Pattern: "*<script*"},
		{Name: "xss", Target: TargetQuery, Pattern: "*javascript:*"},
		{Name: "xss", Target: TargetQuery, Pattern: "*onerror=*"},
		{Name: "scanner", Target: TargetUserAgent, Pattern: "*{sqlmap,nikto,nmap,masscan,acunetix,nuclei,dirbuster,wpscan}*"},
	}
}

type compiledSignature struct {
	Signature
	glob glob.Glob
}

// ShieldRule denies requests matching an attack signature.
type ShieldRule struct {
	mode       Mode
	signatures []compiledSignature
}

// NewShieldRule compiles signatures. An invalid pattern is an error.
func NewShieldRule(mode Mode, signatures []Signature) (*ShieldRule, error) {
	compiled := make([]compiledSignature, 0, len(signatures))
	for _, sig := range signatures {
		g, err := glob.Compile(strings.ToLower(sig.Pattern))
		if err != nil {
			return nil, oops.Code("GATE_SIGNATURE_INVALID").
				With("signature", sig.Name).
				With("pattern", sig.Pattern).
				Wrap(err)
		}
		compiled = append(compiled, compiledSignature{Signature: sig, glob: g})
	}
	return &ShieldRule{mode: mode, signatures: compiled}, nil
}

// Name implements Rule.
func (s *ShieldRule) Name() string { return "shield" }

// Mode implements Rule.
func (s *ShieldRule) Mode() Mode { return s.mode }

// Evaluate implements Rule.
func (s *ShieldRule) Evaluate(_ context.Context, req RequestDetails) (RuleResult, error) {
	targets := map[Target]string{
		TargetPath:      normalize(req.Path),
		TargetQuery:     normalize(req.Query),
		TargetUserAgent: strings.ToLower(req.UserAgent),
	}

	for _, sig := range s.signatures {
		value := targets[sig.Target]
		if value != "" && sig.glob.Match(value) {
			return RuleResult{
				Conclusion: Deny,
				Reason:     ReasonShield,
				Detail:     sig.Name,
			}, nil
		}
	}
	return RuleResult{Conclusion: Allow}, nil
}

// normalize lower-cases s after up to two rounds of URL decoding, so that
// double-encoded payloads are caught.
func normalize(s string) string {
	for range 2 {
		decoded, err := url.QueryUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = decoded
	}
	return strings.ToLower(s)
}

var _ Rule = (*ShieldRule)(nil)
