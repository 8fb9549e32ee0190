// Package prompt builds the natural-language instructions sent to the text
// generation service. Builders are pure and never touch the network.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/neoclaw-ai/repcoach/internal/ledger"
)

// MaxHistory is the largest history window a task prompt accepts.
const MaxHistory = 5

const (
	// NoReplyPlaceholder stands in for a historical day without a reply.
	NoReplyPlaceholder = "No reply"
	// NoHistoryPlaceholder replaces the history block on day one.
	NoHistoryPlaceholder = "No history yet"

	// taskSystemPrompt frames the coach persona.
	taskSystemPrompt = "You are a concise, upbeat fitness coach texting one client. Plain text only, no markdown, no emoji lists."
	// taskInstruction asks for exactly one progressive task.
	taskInstruction = "Generate ONE short, motivating task for today that progresses toward the goal. 3 sets max. Include reps. Adapt difficulty to the recent replies."
	// feedbackInstruction asks for a short reaction to the user's reply.
	feedbackInstruction = "Write ONE short, encouraging reply to the client's report. Mention what they did and one tip for tomorrow."
)

// SystemPrompt returns the shared system prompt for task and feedback requests.
func SystemPrompt() string {
	return taskSystemPrompt
}

// TaskInput is everything BuildTask needs.
type TaskInput struct {
	Goal     string
	UserName string
	// Day is the 1-based index of the task being generated.
	Day int
	// History holds up to MaxHistory prior records, oldest first.
	History []ledger.TaskRecord
	// Budget is the SMS character budget the task must fit in.
	Budget int
}

// Validate checks the input before rendering.
func (in TaskInput) Validate() error {
	var errs []error
	if strings.TrimSpace(in.Goal) == "" {
		errs = append(errs, errors.New("goal is required"))
	}
	if strings.TrimSpace(in.UserName) == "" {
		errs = append(errs, errors.New("user name is required"))
	}
	if in.Day < 1 {
		errs = append(errs, fmt.Errorf("day must be >= 1, got %d", in.Day))
	}
	if len(in.History) > MaxHistory {
		errs = append(errs, fmt.Errorf("history has %d records, max %d", len(in.History), MaxHistory))
	}
	if in.Budget <= 0 {
		errs = append(errs, errors.New("budget must be > 0"))
	}
	return errors.Join(errs...)
}

// BuildTask renders the daily task instruction.
func BuildTask(in TaskInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("build task prompt: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", strings.TrimSpace(in.Goal))
	fmt.Fprintf(&b, "Today is Day %d. User name: %s.\n", in.Day, strings.TrimSpace(in.UserName))
	b.WriteString("Recent replies:\n")
	b.WriteString(RenderHistory(in.History))
	b.WriteString("\n\n")
	b.WriteString(taskInstruction)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Example: \"3 sets of 5 push-ups. Rest 60s. Reply 'Done 15'\"\n")
	fmt.Fprintf(&b, "Keep under %d characters for SMS.", in.Budget)
	return b.String(), nil
}

// RenderHistory renders records as "Day N: reply" lines.
func RenderHistory(history []ledger.TaskRecord) string {
	if len(history) == 0 {
		return NoHistoryPlaceholder
	}
	lines := make([]string, 0, len(history))
	for _, rec := range history {
		reply := strings.TrimSpace(rec.UserResponse)
		if reply == "" {
			reply = NoReplyPlaceholder
		}
		lines = append(lines, fmt.Sprintf("Day %d: %s", rec.Day, singleLine(reply)))
	}
	return strings.Join(lines, "\n")
}

// FeedbackInput is everything BuildFeedback needs.
type FeedbackInput struct {
	Goal     string
	UserName string
	Record   ledger.TaskRecord
	Reply    string
	Budget   int
}

// BuildFeedback renders the instruction for reacting to a user's reply.
func BuildFeedback(in FeedbackInput) (string, error) {
	var errs []error
	if strings.TrimSpace(in.Goal) == "" {
		errs = append(errs, errors.New("goal is required"))
	}
	if strings.TrimSpace(in.UserName) == "" {
		errs = append(errs, errors.New("user name is required"))
	}
	if in.Record.Day < 1 {
		errs = append(errs, errors.New("record day must be >= 1"))
	}
	if strings.TrimSpace(in.Reply) == "" {
		errs = append(errs, errors.New("reply is required"))
	}
	if in.Budget <= 0 {
		errs = append(errs, errors.New("budget must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return "", fmt.Errorf("build feedback prompt: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", strings.TrimSpace(in.Goal))
	fmt.Fprintf(&b, "Day %d task for %s: %s\n", in.Record.Day, strings.TrimSpace(in.UserName), singleLine(in.Record.TaskSent))
	fmt.Fprintf(&b, "Their reply: %s\n\n", singleLine(in.Reply))
	b.WriteString(feedbackInstruction)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Keep under %d characters for SMS.", in.Budget)
	return b.String(), nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
