// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package gate

import (
	"context"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// BotCategory groups known automated clients.
type BotCategory string

// Bot categories.
const (
	CategorySearchEngine BotCategory = "SEARCH_ENGINE"
	CategoryPreview      BotCategory = "PREVIEW"
	CategoryAIScraper    BotCategory = "AI_SCRAPER"
	CategoryHeadless     BotCategory = "HEADLESS"
	CategoryTool         BotCategory = "TOOL"
	CategoryUnknown      BotCategory = "UNKNOWN"
)

// DefaultAllowedBots are the categories let through by default.
func DefaultAllowedBots() []BotCategory {
	return []BotCategory{CategorySearchEngine, CategoryPreview}
}

// BotSignature identifies one automated client by user agent.
type BotSignature struct {
	Name     string
	Category BotCategory
	Pattern  string
}

// DefaultBotCatalog lists well-known automated clients. Entries are matched
// in order, so specific names precede the generic catch-alls.
func DefaultBotCatalog() []BotSignature {
	return []BotSignature{
		{Name: "googlebot", Category: CategorySearchEngine, Pattern: "*googlebot*"},
		{Name: "bingbot", Category: CategorySearchEngine, Pattern: "*bingbot*"},
		{Name: "duckduckbot", Category: CategorySearchEngine, Pattern: "*duckduckbot*"},
		{Name: "baiduspider", Category: CategorySearchEngine, Pattern: "*baiduspider*"},
		{Name: "yandexbot", Category: CategorySearchEngine, Pattern: "*yandexbot*"},
		{Name: "applebot", Category: CategorySearchEngine, Pattern: "*applebot*"},
		{Name: "facebook", Category: CategoryPreview, Pattern: "*facebookexternalhit*"},
		{Name: "twitterbot", Category: CategoryPreview, Pattern: "*twitterbot*"},
		{Name: "slackbot", Category: CategoryPreview, Pattern: "*slackbot*"},
		{Name: "discordbot", Category: CategoryPreview, Pattern: "*discordbot*"},
		{Name: "linkedinbot", Category: CategoryPreview, Pattern: "*linkedinbot*"},
		{Name: "telegrambot", Category: CategoryPreview, Pattern: "*telegrambot*"},
		{Name: "whatsapp", Category: CategoryPreview, Pattern: "whatsapp/*"},
		{Name: "gptbot", Category: CategoryAIScraper, Pattern: "*gptbot*"},
		{Name: "ccbot", Category: CategoryAIScraper, Pattern: "*ccbot*"},
		{Name: "bytespider", Category: CategoryAIScraper, Pattern: "*bytespider*"},
		{Name: "headless-chrome", Category: CategoryHeadless, Pattern: "*headlesschrome*"},
		{Name: "phantomjs", Category: CategoryHeadless, Pattern: "*phantomjs*"},
		{Name: "automation", Category: CategoryHeadless, Pattern: "*{puppeteer,playwright,selenium,webdriver}*"},
		{Name: "curl", Category: CategoryTool, Pattern: "curl/*"},
		{Name: "wget", Category: CategoryTool, Pattern: "wget/*"},
		{Name: "http-library", Category: CategoryTool, Pattern: "{python-requests,python-urllib,go-http-client,okhttp,axios,node-fetch,httpie,java/,libwww-perl,aiohttp}*"},
		{Name: "crawler", Category: CategoryUnknown, Pattern: "*{bot,crawler,spider,scraper}*"},
	}
}

type compiledBot struct {
	BotSignature
	glob glob.Glob
}

// BotRule denies automated clients outside the allowed categories.
// A request without a user agent is treated as an unknown bot.
type BotRule struct {
	mode    Mode
	catalog []compiledBot
	allowed []BotCategory
}

// NewBotRule compiles the catalog.
func NewBotRule(mode Mode, catalog []BotSignature, allowed []BotCategory) (*BotRule, error) {
	compiled := make([]compiledBot, 0, len(catalog))
	for _, sig := range catalog {
		g, err := glob.Compile(strings.ToLower(sig.Pattern))
		if err != nil {
			return nil, oops.Code("GATE_SIGNATURE_INVALID").
				With("bot", sig.Name).
				With("pattern", sig.Pattern).
				Wrap(err)
		}
		compiled = append(compiled, compiledBot{BotSignature: sig, glob: g})
	}
	return &BotRule{mode: mode, catalog: compiled, allowed: slices.Clone(allowed)}, nil
}

// Name implements Rule.
func (b *BotRule) Name() string { return "bot" }

// Mode implements Rule.
func (b *BotRule) Mode() Mode { return b.mode }

// Classify returns the catalog entry matching userAgent, if any.
func (b *BotRule) Classify(userAgent string) (BotSignature, bool) {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return BotSignature{Name: "missing-user-agent", Category: CategoryUnknown}, true
	}
	for _, sig := range b.catalog {
		if sig.glob.Match(ua) {
			return sig.BotSignature, true
		}
	}
	return BotSignature{}, false
}

// Evaluate implements Rule.
func (b *BotRule) Evaluate(_ context.Context, req RequestDetails) (RuleResult, error) {
	sig, isBot := b.Classify(req.UserAgent)
	if !isBot {
		return RuleResult{Conclusion: Allow}, nil
	}

	detail := string(sig.Category) + ":" + sig.Name
	if slices.Contains(b.allowed, sig.Category) {
		return RuleResult{Conclusion: Allow, Detail: detail}, nil
	}
	return RuleResult{Conclusion: Deny, Reason: ReasonBot, Detail: detail}, nil
}

var _ Rule = (*BotRule)(nil)
