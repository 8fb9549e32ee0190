// Package config loads coach runtime configuration from a TOML file, .env files, and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const defaultLLMProfile = "default"

const (
	// ChannelSMS delivers tasks over Twilio SMS.
	ChannelSMS = "sms"
	// ChannelTelegram delivers tasks to one Telegram chat.
	ChannelTelegram = "telegram"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from COACH_HOME and not read from config.
	HomeDir   string                       `mapstructure:"-"`
	Goal      GoalConfig                   `mapstructure:"goal"`
	Coach     CoachConfig                  `mapstructure:"coach"`
	LLM       map[string]LLMProviderConfig `mapstructure:"llm"`
	Channels  ChannelsConfig               `mapstructure:"channels"`
	Server    ServerConfig                 `mapstructure:"server"`
	Schedule  ScheduleConfig               `mapstructure:"schedule"`
	Costs     CostsConfig                  `mapstructure:"costs"`
	Telemetry TelemetryConfig              `mapstructure:"telemetry"`
}

// GoalConfig is the static goal the coach works toward.
type GoalConfig struct {
	Description string `mapstructure:"description"`
	UserName    string `mapstructure:"user_name"`
}

// CoachConfig controls message composition and fallback text.
type CoachConfig struct {
	Title            string `mapstructure:"title"`
	Channel          string `mapstructure:"channel"`
	SMSBudget        int    `mapstructure:"sms_budget"`
	HistoryDays      int    `mapstructure:"history_days"`
	FallbackTask     string `mapstructure:"fallback_task"`
	FallbackFeedback string `mapstructure:"fallback_feedback"`
}

// LLMProviderConfig configures one LLM provider profile.
type LLMProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChannelsConfig holds transport credentials.
type ChannelsConfig struct {
	SMS      SMSConfig      `mapstructure:"sms"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// SMSConfig configures the Twilio SMS transport.
type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// ServerConfig configures the inbound webhook listener.
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	ReplyPath string `mapstructure:"reply_path"`
	// PublicURL is the reply URL exactly as configured in Twilio. Signatures
	// are computed over it; when empty the URL is rebuilt from each request.
	PublicURL string `mapstructure:"public_url"`
}

// ScheduleConfig configures the daily trigger.
type ScheduleConfig struct {
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`

	// CatchUp sends today's task at startup when the scheduled time already
	// passed without a record.
	CatchUp bool `mapstructure:"catch_up"`
}

// CostsConfig defines soft USD spending limits for generation calls.
type CostsConfig struct {
	DailyLimit   float64 `mapstructure:"daily_limit"`
	MonthlyLimit float64 `mapstructure:"monthly_limit"`
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

var defaultConfig = Config{
	Goal: GoalConfig{
		Description: "Do 100 push-ups in a row in 90 days",
		UserName:    "Alex",
	},
	Coach: CoachConfig{
		Title:            "Push-up Coach",
		Channel:          ChannelSMS,
		SMSBudget:        140,
		HistoryDays:      3,
		FallbackTask:     "3 sets of 5 push-ups. Rest 60s between sets. Reply 'Done 15'",
		FallbackFeedback: "Great job! Keep going.",
	},
	LLM: map[string]LLMProviderConfig{
		defaultLLMProfile: {
			APIKey:         "",
			Provider:       "xai",
			Model:          "grok-beta",
			BaseURL:        "",
			MaxTokens:      150,
			RequestTimeout: 20 * time.Second,
		},
	},
	Channels: ChannelsConfig{
		SMS: SMSConfig{
			APIBaseURL: "https://api.twilio.com",
		},
	},
	Server: ServerConfig{
		Listen:    ":5000",
		ReplyPath: "/sms",
	},
	Schedule: ScheduleConfig{
		Cron:     "0 8 * * *",
		Timezone: "Local",
		CatchUp:  true,
	},
	Telemetry: TelemetryConfig{
		ServiceName: "repcoach",
	},
}

// HomeDir returns the coach home directory.
// Uses COACH_HOME env var if set, otherwise defaults to ~/.repcoach.
func HomeDir() (string, error) {
	if dir := os.Getenv("COACH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// .env files in the working directory and the home directory are loaded into
// the process environment first so config values may reference them.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}
	loadDotEnv(homeDir)

	v, err := readViper(homeDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}

	v, err := readViper(homeDir)
	if err != nil {
		return err
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("llm.default.request_timeout", v.GetDuration("llm.default.request_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
// Secrets are written as $VAR references resolved at load time.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	llm := defaultConfig.LLM[defaultLLMProfile]
	v.Set("goal.description", defaultConfig.Goal.Description)
	v.Set("goal.user_name", defaultConfig.Goal.UserName)
	v.Set("coach.channel", defaultConfig.Coach.Channel)
	v.Set("llm.default.provider", llm.Provider)
	v.Set("llm.default.api_key", "$XAI_API_KEY")
	v.Set("llm.default.model", llm.Model)
	v.Set("llm.default.request_timeout", llm.RequestTimeout.String())
	v.Set("channels.sms.account_sid", "$TWILIO_SID")
	v.Set("channels.sms.auth_token", "$TWILIO_TOKEN")
	v.Set("channels.sms.from", "$TWILIO_NUMBER")
	v.Set("channels.sms.to", "$USER_PHONE")
	v.Set("schedule.cron", defaultConfig.Schedule.Cron)

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func readViper(homeDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func loadDotEnv(homeDir string) {
	// godotenv never overrides variables already present in the environment.
	for _, path := range []string{EnvFilePath, filepath.Join(homeDir, EnvFilePath)} {
		_ = godotenv.Load(path)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("goal.description", defaultConfig.Goal.Description)
	v.SetDefault("goal.user_name", defaultConfig.Goal.UserName)

	v.SetDefault("coach.title", defaultConfig.Coach.Title)
	v.SetDefault("coach.channel", defaultConfig.Coach.Channel)
	v.SetDefault("coach.sms_budget", defaultConfig.Coach.SMSBudget)
	v.SetDefault("coach.history_days", defaultConfig.Coach.HistoryDays)
	v.SetDefault("coach.fallback_task", defaultConfig.Coach.FallbackTask)
	v.SetDefault("coach.fallback_feedback", defaultConfig.Coach.FallbackFeedback)

	llm := defaultConfig.LLM[defaultLLMProfile]
	v.SetDefault("llm.default.api_key", llm.APIKey)
	v.SetDefault("llm.default.provider", llm.Provider)
	v.SetDefault("llm.default.model", llm.Model)
	v.SetDefault("llm.default.base_url", llm.BaseURL)
	v.SetDefault("llm.default.max_tokens", llm.MaxTokens)
	v.SetDefault("llm.default.request_timeout", llm.RequestTimeout)

	v.SetDefault("channels.sms.account_sid", defaultConfig.Channels.SMS.AccountSID)
	v.SetDefault("channels.sms.auth_token", defaultConfig.Channels.SMS.AuthToken)
	v.SetDefault("channels.sms.from", defaultConfig.Channels.SMS.From)
	v.SetDefault("channels.sms.to", defaultConfig.Channels.SMS.To)
	v.SetDefault("channels.sms.api_base_url", defaultConfig.Channels.SMS.APIBaseURL)
	v.SetDefault("channels.telegram.token", defaultConfig.Channels.Telegram.Token)
	v.SetDefault("channels.telegram.chat_id", defaultConfig.Channels.Telegram.ChatID)

	v.SetDefault("server.listen", defaultConfig.Server.Listen)
	v.SetDefault("server.reply_path", defaultConfig.Server.ReplyPath)
	v.SetDefault("server.public_url", defaultConfig.Server.PublicURL)

	v.SetDefault("schedule.cron", defaultConfig.Schedule.Cron)
	v.SetDefault("schedule.timezone", defaultConfig.Schedule.Timezone)
	v.SetDefault("schedule.catch_up", defaultConfig.Schedule.CatchUp)

	v.SetDefault("costs.daily_limit", defaultConfig.Costs.DailyLimit)
	v.SetDefault("costs.monthly_limit", defaultConfig.Costs.MonthlyLimit)

	v.SetDefault("telemetry.otlp_endpoint", defaultConfig.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.service_name", defaultConfig.Telemetry.ServiceName)
}

// DefaultLLM returns the default LLM profile with fallback defaults.
func (c *Config) DefaultLLM() LLMProviderConfig {
	if llm, ok := c.LLM[defaultLLMProfile]; ok {
		return llm
	}
	return defaultConfig.LLM[defaultLLMProfile]
}

// SenderIdentity returns the single allow-listed sender for the active channel.
func (c *Config) SenderIdentity() string {
	switch c.Coach.Channel {
	case ChannelTelegram:
		if c.Channels.Telegram.ChatID == 0 {
			return ""
		}
		return strconv.FormatInt(c.Channels.Telegram.ChatID, 10)
	default:
		return c.Channels.SMS.To
	}
}

// Location returns the timezone that defines "today" for the ledger.
func (c ScheduleConfig) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
		}
		return loc, nil
	}
}

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// Validate checks the goal is usable in prompts.
func (c GoalConfig) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return errors.New("description is required")
	}
	if strings.TrimSpace(c.UserName) == "" {
		return errors.New("user_name is required")
	}
	return nil
}

// Validate checks composition limits and the selected channel.
func (c CoachConfig) Validate() error {
	switch c.Channel {
	case ChannelSMS, ChannelTelegram:
	default:
		return fmt.Errorf("invalid channel %q (allowed: %q, %q)", c.Channel, ChannelSMS, ChannelTelegram)
	}
	if c.SMSBudget < 20 {
		return errors.New("sms_budget must be >= 20")
	}
	if c.HistoryDays < 0 || c.HistoryDays > 5 {
		return errors.New("history_days must be between 0 and 5")
	}
	if strings.TrimSpace(c.FallbackTask) == "" {
		return errors.New("fallback_task is required")
	}
	if strings.TrimSpace(c.FallbackFeedback) == "" {
		return errors.New("fallback_feedback is required")
	}
	return nil
}

// Validate checks required LLM provider fields and provider-specific rules.
func (c LLMProviderConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}

	switch c.Provider {
	case "anthropic", "openai", "xai", "openrouter":
		if c.APIKey == "" {
			return errors.New("api_key is required")
		}
	case "ollama":
		// Local provider, no API key required.
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

// Validate checks Twilio credentials.
func (c SMSConfig) Validate() error {
	var errs []error
	if c.AccountSID == "" {
		errs = append(errs, errors.New("account_sid is required"))
	}
	if c.AuthToken == "" {
		errs = append(errs, errors.New("auth_token is required"))
	}
	if c.From == "" {
		errs = append(errs, errors.New("from is required"))
	}
	if c.To == "" {
		errs = append(errs, errors.New("to is required"))
	}
	return errors.Join(errs...)
}

// Validate checks Telegram credentials.
func (c TelegramConfig) Validate() error {
	if c.Token == "" {
		return errors.New("token is required")
	}
	if c.ChatID == 0 {
		return errors.New("chat_id is required")
	}
	return nil
}

// Validate checks the cron expression and timezone.
func (c ScheduleConfig) Validate() error {
	if _, err := cron.ParseStandard(strings.TrimSpace(c.Cron)); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Validate validates cost limits.
func (c CostsConfig) Validate() error {
	if c.DailyLimit < 0 || c.MonthlyLimit < 0 {
		return errors.New("limits must be >= 0")
	}
	return nil
}

// Validate validates startup configuration and returns all fatal errors joined.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Goal.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("goal: %w", err))
	}
	if err := c.Coach.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("coach: %w", err))
	}
	if len(c.LLM) == 0 {
		errs = append(errs, errors.New("at least one llm.* profile is required"))
	}
	for name, llmCfg := range c.LLM {
		if err := llmCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
		}
	}

	switch c.Coach.Channel {
	case ChannelSMS:
		if err := c.Channels.SMS.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.sms: %w", err))
		}
	case ChannelTelegram:
		if err := c.Channels.Telegram.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.telegram: %w", err))
		}
	}

	if err := c.Schedule.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if err := c.Costs.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("costs: %w", err))
	}

	return errors.Join(errs...)
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
