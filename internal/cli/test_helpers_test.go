package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/llm"
)

func createTestHome(t *testing.T) string {
	t.Helper()
	homeDir := filepath.Join(t.TempDir(), ".repcoach")
	t.Setenv("COACH_HOME", homeDir)
	return homeDir
}

func writeValidConfig(t *testing.T, homeDir string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	configBody := `
[goal]
description = "Do 100 push-ups"
user_name = "Alex"

[llm.default]
api_key = "test-key"
provider = "xai"
model = "grok-beta"

[channels.sms]
account_sid = "AC123"
auth_token = "secret"
from = "+15550100000"
to = "+15550102000"

[schedule]
timezone = "UTC"
`
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

type fakeProvider struct {
	resp *llm.ChatResponse
	err  error
}

func (p fakeProvider) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *captureSender) Send(_ context.Context, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, body)
	return nil
}

// useFakes swaps the provider and sender factories for the test duration.
func useFakes(t *testing.T, content string) *captureSender {
	t.Helper()

	origProvider := providerFactory
	origSender := senderFactory
	t.Cleanup(func() {
		providerFactory = origProvider
		senderFactory = origSender
	})

	sender := &captureSender{}
	providerFactory = func(_ config.LLMProviderConfig) (llm.Provider, error) {
		return fakeProvider{resp: &llm.ChatResponse{Content: content}}, nil
	}
	senderFactory = func(_ *config.Config) (coach.Sender, error) {
		return sender, nil
	}
	return sender
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
