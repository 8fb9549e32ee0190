package cli

import (
	"strings"
	"testing"
)

func TestConfigPrintsMergedConfig(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)

	out, err := runCommand(t, "config")
	if err != nil {
		t.Fatalf("execute config: %v", err)
	}
	for _, want := range []string{"[llm.default]", "grok-beta", "[schedule]", "[coach]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in config output, got %q", want, out)
		}
	}
}
