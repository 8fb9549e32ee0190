package cli

import (
	"fmt"

	"github.com/neoclaw-ai/repcoach/internal/approval"
	"github.com/neoclaw-ai/repcoach/internal/channels"
	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/costs"
	"github.com/neoclaw-ai/repcoach/internal/generate"
	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/llm"
	"github.com/neoclaw-ai/repcoach/internal/prompt"
)

// Swapped in tests.
var (
	providerFactory = llm.NewProviderFromConfig
	senderFactory   = newSender
)

// app holds the wired dependencies shared by subcommands.
type app struct {
	cfg      *config.Config
	ledger   *ledger.Store
	coach    *coach.Coach
	sender   coach.Sender
	telegram *channels.Telegram
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfg.ConfigPath(), err)
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg.LedgerPath(), ledger.WithLocation(loc))
	if err != nil {
		return nil, err
	}

	llmCfg := cfg.DefaultLLM()
	provider, err := providerFactory(llmCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create llm provider: %w", err)
	}

	tracker := costs.New(cfg.CostsPath())
	limits := costs.Limits{DailyUSD: cfg.Costs.DailyLimit, MonthlyUSD: cfg.Costs.MonthlyLimit}
	newGenerator := func(purpose, fallback string) *generate.Generator {
		return &generate.Generator{
			Provider:     provider,
			ProviderName: llmCfg.Provider,
			Model:        llmCfg.Model,
			Purpose:      purpose,
			SystemPrompt: prompt.SystemPrompt(),
			MaxTokens:    llmCfg.MaxTokens,
			Timeout:      llmCfg.RequestTimeout,
			Budget:       cfg.Coach.SMSBudget,
			Fallback:     fallback,
			Tracker:      tracker,
			Limits:       limits,
		}
	}

	sender, err := senderFactory(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	c, err := coach.New(
		store,
		newGenerator("task", cfg.Coach.FallbackTask),
		newGenerator("feedback", cfg.Coach.FallbackFeedback),
		sender,
		approval.NewAllowlist(cfg.SenderIdentity()),
		coach.Settings{
			Goal:        cfg.Goal.Description,
			UserName:    cfg.Goal.UserName,
			Title:       cfg.Coach.Title,
			Budget:      cfg.Coach.SMSBudget,
			HistoryDays: cfg.Coach.HistoryDays,
		},
		coach.WithLocation(loc),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, ledger: store, coach: c, sender: sender}
	if tg, ok := sender.(*channels.Telegram); ok {
		a.telegram = tg
	}
	return a, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}

func newSender(cfg *config.Config) (coach.Sender, error) {
	switch cfg.Coach.Channel {
	case config.ChannelSMS:
		return channels.NewSMS(cfg.Channels.SMS, nil)
	case config.ChannelTelegram:
		return channels.NewTelegram(cfg.Channels.Telegram)
	default:
		return nil, fmt.Errorf("unsupported channel %q", cfg.Coach.Channel)
	}
}

// resolveDate returns the --date flag value or today's date.
func resolveDate(a *app, date string) (string, error) {
	if date == "" {
		return a.coach.Today(), nil
	}
	if _, err := ledger.ParseDate(date); err != nil {
		return "", err
	}
	return date, nil
}
