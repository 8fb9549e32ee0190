// Package generate turns prompts into SMS-sized text. Generation never
// fails: any service error, empty output or exhausted spend limit yields the
// configured fallback string. Output is only trimmed and truncated; text
// within the budget is stored exactly as the service returned it.
package generate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/neoclaw-ai/repcoach/internal/costs"
	"github.com/neoclaw-ai/repcoach/internal/llm"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

// DefaultBudget is the SMS character budget used when none is configured.
const DefaultBudget = 140

const (
	ellipsis         = "..."
	defaultTimeout   = 20 * time.Second
	defaultMaxTokens = 150
)

// Result is the outcome of one Generate call.
type Result struct {
	Text string
	// FromFallback is set when Text is the fixed fallback string.
	FromFallback bool
	Usage        llm.TokenUsage
}

// Generator produces short text from one prompt with a fixed fallback.
type Generator struct {
	Provider     llm.Provider
	ProviderName string
	Model        string
	// Purpose labels usage records, e.g. "task" or "feedback".
	Purpose      string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
	Budget       int
	Fallback     string

	Tracker *costs.Tracker
	Limits  costs.Limits
	Now     func() time.Time
}

// Generate returns non-empty text no longer than the budget.
func (g *Generator) Generate(ctx context.Context, prompt string) Result {
	budget := g.budget()
	text, usage, err := g.call(ctx, prompt)
	if err != nil {
		logging.Logger().Warn("generation failed, using fallback", "purpose", g.Purpose, "err", err)
		return Result{Text: Truncate(strings.TrimSpace(g.Fallback), budget), FromFallback: true, Usage: usage}
	}
	return Result{Text: Truncate(text, budget), Usage: usage}
}

func (g *Generator) call(ctx context.Context, prompt string) (string, llm.TokenUsage, error) {
	if g.Provider == nil {
		return "", llm.TokenUsage{}, errors.New("no text generation provider configured")
	}
	if err := g.checkLimits(ctx); err != nil {
		return "", llm.TokenUsage{}, err
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	resp, err := g.Provider.Chat(callCtx, llm.UserPrompt(g.SystemPrompt, prompt, maxTokens))
	if err != nil {
		return "", llm.TokenUsage{}, err
	}
	if resp == nil {
		return "", llm.TokenUsage{}, errors.New("empty response")
	}
	g.recordUsage(ctx, resp.Usage)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", resp.Usage, errors.New("empty generated text")
	}
	return text, resp.Usage, nil
}

func (g *Generator) checkLimits(ctx context.Context) error {
	if g.Tracker == nil {
		return nil
	}
	allowed, spend, err := g.Tracker.Allow(ctx, g.now(), g.Limits)
	if err != nil {
		logging.Logger().Warn("read spend totals", "err", err)
		return nil
	}
	if !allowed {
		return errors.New("spend limit reached")
	}
	logging.Logger().Debug("spend within limits", "today_usd", spend.TodayUSD, "month_usd", spend.MonthUSD)
	return nil
}

func (g *Generator) recordUsage(ctx context.Context, usage llm.TokenUsage) {
	if g.Tracker == nil {
		return
	}
	err := g.Tracker.Append(ctx, costs.Record{
		Timestamp:    g.now(),
		Purpose:      g.Purpose,
		Provider:     g.ProviderName,
		Model:        g.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	})
	if err != nil {
		logging.Logger().Warn("record usage", "err", err)
	}
}

func (g *Generator) budget() int {
	if g.Budget <= 0 {
		return DefaultBudget
	}
	return g.Budget
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Truncate shortens s to at most budget runes. Over-budget text keeps the
// first budget-3 runes followed by "...".
func Truncate(s string, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	if budget <= len(ellipsis) {
		return string(runes[:budget])
	}
	return string(runes[:budget-len(ellipsis)]) + ellipsis
}
