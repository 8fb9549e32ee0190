package coach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/logging"
	"github.com/neoclaw-ai/repcoach/internal/prompt"
)

// SendStatus describes what RunFor did.
type SendStatus string

const (
	// StatusSent means a task was delivered and recorded.
	StatusSent SendStatus = "sent"
	// StatusAlreadySent means today already has a record; nothing was sent.
	StatusAlreadySent SendStatus = "already_sent"
)

// SendResult is the confirmation returned by RunFor.
type SendResult struct {
	Status SendStatus
	Date   string
	Day    int
	// Message is the composed outbound text. Empty when already sent.
	Message string
	// FromFallback is set when the task is the fixed fallback text.
	FromFallback bool
}

// RunFor sends and records the task for date. A second call for the same
// date is a no-op reporting StatusAlreadySent. Delivery failures return
// ErrDelivery and leave the ledger untouched.
func (c *Coach) RunFor(ctx context.Context, date string) (SendResult, error) {
	if _, err := ledger.ParseDate(date); err != nil {
		return SendResult{}, err
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	runID := uuid.NewString()
	log := logging.Logger().With("run_id", runID, "date", date)
	ctx, span := c.tracer.Start(ctx, "coach.run")
	defer span.End()
	span.SetAttributes(attribute.String("coach.date", date), attribute.String("coach.run_id", runID))

	res, err := c.runFor(ctx, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SendResult{}, err
	}
	span.SetAttributes(attribute.String("coach.status", string(res.Status)), attribute.Int("coach.day", res.Day))

	switch res.Status {
	case StatusAlreadySent:
		log.Info("task already sent today")
	default:
		log.Info("daily task sent", "day", res.Day, "fallback", res.FromFallback)
	}
	return res, nil
}

func (c *Coach) runFor(ctx context.Context, date string) (SendResult, error) {
	exists, err := c.ledger.ExistsFor(ctx, date)
	if err != nil {
		return SendResult{}, err
	}
	if exists {
		return SendResult{Status: StatusAlreadySent, Date: date}, nil
	}

	// A date behind the newest record can never be appended.
	latest, ok, err := c.ledger.Latest(ctx)
	if err != nil {
		return SendResult{}, err
	}
	if ok && date < latest {
		return SendResult{}, fmt.Errorf("%w: run %s: date precedes latest record %s", ledger.ErrPersistence, date, latest)
	}

	count, err := c.ledger.Count(ctx)
	if err != nil {
		return SendResult{}, err
	}
	day := count + 1

	var history []ledger.TaskRecord
	if c.settings.HistoryDays > 0 {
		history, err = c.ledger.Recent(ctx, c.settings.HistoryDays)
		if err != nil {
			return SendResult{}, err
		}
	}

	taskPrompt, err := prompt.BuildTask(prompt.TaskInput{
		Goal:     c.settings.Goal,
		UserName: c.settings.UserName,
		Day:      day,
		History:  history,
		Budget:   c.settings.Budget,
	})
	if err != nil {
		return SendResult{}, err
	}

	generated := c.tasks.Generate(ctx, taskPrompt)
	message := FormatMessage(c.settings.Title, day, generated.Text)

	if err := c.sender.Send(ctx, message); err != nil {
		return SendResult{}, fmt.Errorf("%w: day %d: %w", ErrDelivery, day, err)
	}

	if err := c.ledger.Append(ctx, ledger.TaskRecord{
		Date:      date,
		Day:       day,
		TaskSent:  generated.Text,
		Completed: ledger.CompletedNo,
	}); err != nil {
		return SendResult{}, fmt.Errorf("record day %d after delivery: %w", day, err)
	}

	return SendResult{
		Status:       StatusSent,
		Date:         date,
		Day:          day,
		Message:      message,
		FromFallback: generated.FromFallback,
	}, nil
}
