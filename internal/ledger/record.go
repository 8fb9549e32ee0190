// Package ledger is the durable, append-only store of one TaskRecord per
// calendar day.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date key format.
const DateLayout = "2006-01-02"

// Completion is the completed flag stored with each record.
type Completion string

const (
	CompletedYes Completion = "Yes"
	CompletedNo  Completion = "No"
)

var (
	// ErrPersistence marks any failure to read or durably write the ledger.
	ErrPersistence = errors.New("ledger persistence failure")
	// ErrDuplicateDate is returned by Append when the date already has a record.
	ErrDuplicateDate = fmt.Errorf("%w: date already recorded", ErrPersistence)
	// ErrNotFound is returned by Update when the date has no record.
	ErrNotFound = errors.New("no task recorded for date")
	// ErrAlreadyAnswered is returned by Update when a reply is already stored.
	ErrAlreadyAnswered = errors.New("task already answered")
)

// TaskRecord is one day's task and the user's reply to it.
type TaskRecord struct {
	Date         string
	Day          int
	TaskSent     string
	UserResponse string
	AIFeedback   string
	Completed    Completion
	RepsDone     *int
	CreatedAt    time.Time
	AnsweredAt   *time.Time
}

// Answered reports whether the record has moved from PENDING to ANSWERED.
func (r TaskRecord) Answered() bool {
	return r.UserResponse != ""
}

// Reply holds the fields ReplyHandler may set once per record.
type Reply struct {
	UserResponse string
	AIFeedback   string
	Completed    Completion
	RepsDone     *int
	AnsweredAt   time.Time
}

// DateKey formats t as a ledger date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// ParseDate validates a ledger date key.
func ParseDate(date string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return parsed, nil
}

func validateCompletion(c Completion) error {
	switch c {
	case CompletedYes, CompletedNo:
		return nil
	default:
		return fmt.Errorf("invalid completed value %q", c)
	}
}

func validateNew(rec TaskRecord) error {
	if _, err := ParseDate(rec.Date); err != nil {
		return err
	}
	if rec.Day < 1 {
		return fmt.Errorf("day must be >= 1, got %d", rec.Day)
	}
	if strings.TrimSpace(rec.TaskSent) == "" {
		return errors.New("task_sent is required")
	}
	if rec.UserResponse != "" || rec.AIFeedback != "" || rec.RepsDone != nil || rec.AnsweredAt != nil {
		return errors.New("new records must not carry reply fields")
	}
	if rec.Completed != CompletedNo {
		return fmt.Errorf("new records must start with completed=%q", CompletedNo)
	}
	return nil
}

func validateReply(date string, reply Reply) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if strings.TrimSpace(reply.UserResponse) == "" {
		return errors.New("reply text is required")
	}
	return validateCompletion(reply.Completed)
}
