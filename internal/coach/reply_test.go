package coach

import (
	"context"
	"errors"
	"testing"

	"github.com/neoclaw-ai/repcoach/internal/generate"
	"github.com/neoclaw-ai/repcoach/internal/ledger"
)

func TestHandleReplyUnauthorizedLeavesLedgerUnchanged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeGenerator{text: "Go."}, &fakeGenerator{text: "Nice."}, testIdentity)
	ctx := context.Background()
	if _, err := h.coach.RunFor(ctx, "2024-01-01"); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, err := h.coach.HandleReply(ctx, "+15550109999", "Done 15", "2024-01-01")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	rec, _, err := h.store.Find(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.Answered() || h.count(t) != 1 {
		t.Fatalf("expected untouched ledger, got %+v (count %d)", rec, h.count(t))
	}
}

func TestHandleReplyNothingPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeGenerator{text: "Go."}, &fakeGenerator{text: "Nice."}, testIdentity)
	res, err := h.coach.HandleReply(context.Background(), testIdentity, "Done 15", "2024-01-01")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Outcome != OutcomeNothingPending {
		t.Fatalf("expected nothing pending, got %q", res.Outcome)
	}
	if h.count(t) != 0 {
		t.Fatalf("expected empty ledger, got %d", h.count(t))
	}
}

func TestHandleReplyEmptyBody(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeGenerator{text: "Go."}, &fakeGenerator{text: "Nice."}, testIdentity)
	ctx := context.Background()
	if _, err := h.coach.RunFor(ctx, "2024-01-01"); err != nil {
		t.Fatalf("run: %v", err)
	}

	res, err := h.coach.HandleReply(ctx, testIdentity, "   ", "2024-01-01")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if res.Outcome != OutcomeEmptyReply {
		t.Fatalf("expected empty reply outcome, got %q", res.Outcome)
	}
	rec, _, _ := h.store.Find(ctx, "2024-01-01")
	if rec.Answered() {
		t.Fatalf("expected record to stay pending")
	}
}

func TestHandleReplyFirstReplyWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, &fakeGenerator{text: "Go."}, &fakeGenerator{text: "Nice work."}, testIdentity)
	ctx := context.Background()
	if _, err := h.coach.RunFor(ctx, "2024-01-01"); err != nil {
		t.Fatalf("run: %v", err)
	}

	first, err := h.coach.HandleReply(ctx, testIdentity, "Done 12", "2024-01-01")
	if err != nil {
		t.Fatalf("first reply: %v", err)
	}
	if first.Outcome != OutcomeAnswered || first.Ack != "Nice work." {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := h.coach.HandleReply(ctx, testIdentity, "Actually 20", "2024-01-01")
	if err != nil {
		t.Fatalf("second reply: %v", err)
	}
	if second.Outcome != OutcomeAlreadyAnswered {
		t.Fatalf("expected already answered, got %q", second.Outcome)
	}

	rec, _, _ := h.store.Find(ctx, "2024-01-01")
	if rec.UserResponse != "Done 12" || rec.RepsDone == nil || *rec.RepsDone != 12 {
		t.Fatalf("expected first reply kept, got %+v", rec)
	}
}

func TestHandleReplyFeedbackFailureStillRecords(t *testing.T) {
	t.Parallel()

	feedback := &generate.Generator{Provider: failingProvider{}, Fallback: testFallbackFeedback}
	h := newHarness(t, &fakeGenerator{text: "Go."}, feedback, testIdentity)
	ctx := context.Background()
	if _, err := h.coach.RunFor(ctx, "2024-01-01"); err != nil {
		t.Fatalf("run: %v", err)
	}

	res, err := h.coach.HandleReply(ctx, testIdentity, "skipped today", "2024-01-01")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if res.Ack != testFallbackFeedback {
		t.Fatalf("expected fallback feedback, got %q", res.Ack)
	}
	rec, _, _ := h.store.Find(ctx, "2024-01-01")
	if rec.AIFeedback != testFallbackFeedback || rec.Completed != ledger.CompletedNo || rec.RepsDone != nil {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestAlexScenario(t *testing.T) {
	t.Parallel()

	tasks := &generate.Generator{Provider: staticProvider{content: "3 sets of 6 push-ups. Rest 60s. Reply 'Done 18'"}, Fallback: testFallbackTask}
	feedback := &generate.Generator{Provider: staticProvider{content: "Solid work, Alex!"}, Fallback: testFallbackFeedback}
	h := newHarness(t, tasks, feedback, "Alex")
	ctx := context.Background()

	res, err := h.coach.RunFor(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Day != 1 || h.count(t) != 1 {
		t.Fatalf("expected day 1 and one record, got %+v count=%d", res, h.count(t))
	}
	rec, _, _ := h.store.Find(ctx, "2024-01-01")
	if len([]rune(rec.TaskSent)) > 140 {
		t.Fatalf("task too long: %q", rec.TaskSent)
	}

	again, err := h.coach.RunFor(ctx, "2024-01-01")
	if err != nil || again.Status != StatusAlreadySent || h.count(t) != 1 {
		t.Fatalf("expected no-op rerun, got %+v err=%v count=%d", again, err, h.count(t))
	}

	reply, err := h.coach.HandleReply(ctx, "Alex", "Done 15", "2024-01-01")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.Outcome != OutcomeAnswered {
		t.Fatalf("expected answered, got %q", reply.Outcome)
	}
	rec, _, _ = h.store.Find(ctx, "2024-01-01")
	if rec.UserResponse != "Done 15" || rec.Completed != ledger.CompletedYes {
		t.Fatalf("unexpected answered record %+v", rec)
	}
	if rec.RepsDone == nil || *rec.RepsDone != 15 {
		t.Fatalf("expected reps 15, got %v", rec.RepsDone)
	}
	if rec.AIFeedback != "Solid work, Alex!" {
		t.Fatalf("unexpected feedback %q", rec.AIFeedback)
	}
	if h.count(t) != 1 {
		t.Fatalf("expected count 1, got %d", h.count(t))
	}
}

func TestCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want ledger.Completion
	}{
		{body: "Done 15", want: ledger.CompletedYes},
		{body: "did 3 sets", want: ledger.CompletedYes},
		{body: "12", want: ledger.CompletedYes},
		{body: "yes!", want: ledger.CompletedYes},
		{body: "0", want: ledger.CompletedNo},
		{body: "skipped, sick", want: ledger.CompletedNo},
		{body: "didn’t do 10", want: ledger.CompletedNo},
		{body: "tired", want: ledger.CompletedNo},
	}
	for _, tt := range tests {
		got := Completion(tt.body, ExtractReps(tt.body))
		if got != tt.want {
			t.Fatalf("Completion(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestExtractReps(t *testing.T) {
	t.Parallel()

	if got := ExtractReps("no numbers"); got != nil {
		t.Fatalf("expected nil, got %d", *got)
	}
	got := ExtractReps("Done 15 then 20")
	if got == nil || *got != 15 {
		t.Fatalf("expected first integer 15, got %v", got)
	}
}
