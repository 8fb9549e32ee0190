package coach

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/logging"
	"github.com/neoclaw-ai/repcoach/internal/prompt"
)

// Outcome describes what HandleReply did with a reply.
type Outcome string

const (
	// OutcomeAnswered means the reply was stored on today's record.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNothingPending means no task exists for the date.
	OutcomeNothingPending Outcome = "nothing_pending"
	// OutcomeEmptyReply means the body was blank and nothing was stored.
	OutcomeEmptyReply Outcome = "empty_reply"
	// OutcomeAlreadyAnswered means an earlier reply was kept.
	OutcomeAlreadyAnswered Outcome = "already_answered"
)

const (
	nothingPendingAck  = "No task pending today. Your next task is on the way."
	emptyReplyAck      = "Reply with what you did, e.g. 'Done 15'."
	alreadyAnsweredAck = "Already logged today. See you tomorrow!"
)

// ReplyResult is returned by HandleReply.
type ReplyResult struct {
	Outcome Outcome
	// Record is the stored record after the reply. Zero for NothingPending.
	Record ledger.TaskRecord
	// Ack is the text to send back to the user.
	Ack string
}

var repsPattern = regexp.MustCompile(`\d+`)

var (
	negativeWords = map[string]struct{}{
		"no": {}, "not": {}, "nope": {}, "skip": {}, "skipped": {}, "missed": {},
		"didn't": {}, "didnt": {}, "couldn't": {}, "couldnt": {}, "can't": {}, "cant": {},
		"failed": {}, "fail": {}, "sick": {},
	}
	affirmativeWords = map[string]struct{}{
		"done": {}, "yes": {}, "yep": {}, "yeah": {}, "did": {}, "finished": {},
		"complete": {}, "completed": {}, "crushed": {}, "nailed": {}, "ok": {},
	}
)

// HandleReply records the allow-listed user's reply for date. The first reply
// wins; later replies report OutcomeAlreadyAnswered.
func (c *Coach) HandleReply(ctx context.Context, sender, body, date string) (ReplyResult, error) {
	if !c.allow.IsAllowed(sender) {
		logging.Logger().Warn("reply from unauthorized sender rejected", "sender", sender)
		return ReplyResult{}, ErrUnauthorized
	}
	if _, err := ledger.ParseDate(date); err != nil {
		return ReplyResult{}, err
	}

	c.replyMu.Lock()
	defer c.replyMu.Unlock()

	runID := uuid.NewString()
	log := logging.Logger().With("run_id", runID, "date", date)
	ctx, span := c.tracer.Start(ctx, "coach.reply")
	defer span.End()
	span.SetAttributes(attribute.String("coach.date", date), attribute.String("coach.run_id", runID))

	res, err := c.handleReply(ctx, body, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReplyResult{}, err
	}
	span.SetAttributes(attribute.String("coach.outcome", string(res.Outcome)))
	log.Info("reply handled", "outcome", res.Outcome, "day", res.Record.Day)
	return res, nil
}

func (c *Coach) handleReply(ctx context.Context, body, date string) (ReplyResult, error) {
	rec, found, err := c.ledger.Find(ctx, date)
	if err != nil {
		return ReplyResult{}, err
	}
	if !found {
		return ReplyResult{Outcome: OutcomeNothingPending, Ack: nothingPendingAck}, nil
	}

	text := strings.TrimSpace(body)
	if text == "" {
		return ReplyResult{Outcome: OutcomeEmptyReply, Record: rec, Ack: emptyReplyAck}, nil
	}
	if rec.Answered() {
		return ReplyResult{Outcome: OutcomeAlreadyAnswered, Record: rec, Ack: alreadyAnsweredAck}, nil
	}

	reps := ExtractReps(text)
	feedbackPrompt, err := prompt.BuildFeedback(prompt.FeedbackInput{
		Goal:     c.settings.Goal,
		UserName: c.settings.UserName,
		Record:   rec,
		Reply:    text,
		Budget:   c.settings.Budget,
	})
	if err != nil {
		return ReplyResult{}, err
	}
	feedback := c.feedback.Generate(ctx, feedbackPrompt)

	reply := ledger.Reply{
		UserResponse: text,
		AIFeedback:   feedback.Text,
		Completed:    Completion(text, reps),
		RepsDone:     reps,
		AnsweredAt:   c.now().UTC(),
	}
	switch err := c.ledger.Update(ctx, date, reply); {
	case errors.Is(err, ledger.ErrAlreadyAnswered):
		return ReplyResult{Outcome: OutcomeAlreadyAnswered, Record: rec, Ack: alreadyAnsweredAck}, nil
	case errors.Is(err, ledger.ErrNotFound):
		return ReplyResult{Outcome: OutcomeNothingPending, Ack: nothingPendingAck}, nil
	case err != nil:
		return ReplyResult{}, err
	}

	rec.UserResponse = reply.UserResponse
	rec.AIFeedback = reply.AIFeedback
	rec.Completed = reply.Completed
	rec.RepsDone = reply.RepsDone
	answeredAt := reply.AnsweredAt
	rec.AnsweredAt = &answeredAt
	return ReplyResult{Outcome: OutcomeAnswered, Record: rec, Ack: feedback.Text}, nil
}

// ExtractReps returns the first whole number in a reply, or nil.
func ExtractReps(body string) *int {
	match := repsPattern.FindString(body)
	if match == "" {
		return nil
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &n
}

// Completion derives the completed flag from a reply. A negative word wins
// over any count; otherwise a positive count or an affirmative word marks the
// task done.
func Completion(body string, reps *int) ledger.Completion {
	words := strings.FieldsFunc(strings.ToLower(strings.ReplaceAll(body, "’", "'")), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	affirmative := false
	for _, w := range words {
		if _, ok := negativeWords[w]; ok {
			return ledger.CompletedNo
		}
		if _, ok := affirmativeWords[w]; ok {
			affirmative = true
		}
	}
	if affirmative || (reps != nil && *reps > 0) {
		return ledger.CompletedYes
	}
	return ledger.CompletedNo
}
