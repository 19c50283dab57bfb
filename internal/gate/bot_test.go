// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/pkg/errutil"
)

func TestBotRule_Evaluate(t *testing.T) {
	rule, err := NewBotRule(Live, DefaultBotCatalog(), DefaultAllowedBots())
	require.NoError(t, err)
	assert.Equal(t, "bot", rule.Name())

	tests := []struct {
		name   string
		ua     string
		want   Conclusion
		detail string
	}{
		{name: "browser", ua: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15", want: Allow},
		{name: "googlebot allowed", ua: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", want: Allow, detail: "SEARCH_ENGINE:googlebot"},
		{name: "slack preview allowed", ua: "Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)", want: Allow, detail: "PREVIEW:slackbot"},
		{name: "curl denied", ua: "curl/8.4.0", want: Deny, detail: "TOOL:curl"},
		{name: "go client denied", ua: "Go-http-client/1.1", want: Deny, detail: "TOOL:http-library"},
		{name: "python denied", ua: "python-requests/2.31.0", want: Deny, detail: "TOOL:http-library"},
		{name: "headless denied", ua: "Mozilla/5.0 HeadlessChrome/120.0", want: Deny, detail: "HEADLESS:headless-chrome"},
		{name: "ai scraper denied", ua: "Mozilla/5.0 (compatible; GPTBot/1.0)", want: Deny, detail: "AI_SCRAPER:gptbot"},
		{name: "generic crawler denied", ua: "SomeCrawler/0.1", want: Deny, detail: "UNKNOWN:crawler"},
		{name: "missing user agent denied", ua: "", want: Deny, detail: "UNKNOWN:missing-user-agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := rule.Evaluate(context.Background(), RequestDetails{UserAgent: tt.ua})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Conclusion)
			assert.Equal(t, tt.detail, res.Detail)
			if tt.want == Deny {
				assert.Equal(t, ReasonBot, res.Reason)
			}
		})
	}
}

func TestBotRule_CustomAllowList(t *testing.T) {
	rule, err := NewBotRule(Live, DefaultBotCatalog(), []BotCategory{CategoryTool})
	require.NoError(t, err)

	res, err := rule.Evaluate(context.Background(), RequestDetails{UserAgent: "curl/8.4.0"})
	require.NoError(t, err)
	assert.Equal(t, Allow, res.Conclusion)

	res, err = rule.Evaluate(context.Background(), RequestDetails{UserAgent: "Googlebot/2.1"})
	require.NoError(t, err)
	assert.Equal(t, Deny, res.Conclusion)
}

func TestNewBotRule_InvalidPattern(t *testing.T) {
	_, err := NewBotRule(Live, []BotSignature{{Name: "broken", Pattern: "[unclosed"}}, nil)
	errutil.AssertErrorCode(t, err, "GATE_SIGNATURE_INVALID")
}
