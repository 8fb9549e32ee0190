// Package coach runs the daily task cycle and records replies. It is the only
// writer of the ledger: RunFor appends one task per calendar day and
// HandleReply answers it once.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/neoclaw-ai/repcoach/internal/approval"
	"github.com/neoclaw-ai/repcoach/internal/generate"
	"github.com/neoclaw-ai/repcoach/internal/ledger"
	"github.com/neoclaw-ai/repcoach/internal/prompt"
)

var (
	// ErrDelivery wraps outbound transport failures. No record is appended.
	ErrDelivery = errors.New("message delivery failed")
	// ErrUnauthorized is returned for replies from any sender other than the
	// allow-listed identity.
	ErrUnauthorized = errors.New("sender is not authorized")
)

// DefaultTitle labels outbound messages when no title is configured.
const DefaultTitle = "Push-up Coach"

const tracerName = "github.com/neoclaw-ai/repcoach/internal/coach"

// Sender delivers one plain-text message to the user.
type Sender interface {
	Send(ctx context.Context, body string) error
}

// TextGenerator produces SMS-sized text and never fails.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) generate.Result
}

// Ledger is the durable task log the coach reads and writes.
type Ledger interface {
	ExistsFor(ctx context.Context, date string) (bool, error)
	Count(ctx context.Context) (int, error)
	Latest(ctx context.Context) (string, bool, error)
	Recent(ctx context.Context, n int) ([]ledger.TaskRecord, error)
	Append(ctx context.Context, rec ledger.TaskRecord) error
	Find(ctx context.Context, date string) (ledger.TaskRecord, bool, error)
	Update(ctx context.Context, date string, reply ledger.Reply) error
}

// Settings are the user-facing coaching parameters.
type Settings struct {
	Goal     string
	UserName string
	Title    string
	// Budget is the SMS character budget for generated text.
	Budget int
	// HistoryDays is how many prior records feed the task prompt.
	HistoryDays int
}

// Validate checks settings before a coach is built.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Goal) == "" {
		errs = append(errs, errors.New("goal is required"))
	}
	if strings.TrimSpace(s.UserName) == "" {
		errs = append(errs, errors.New("user name is required"))
	}
	if s.Budget <= 0 {
		errs = append(errs, errors.New("budget must be > 0"))
	}
	if s.HistoryDays < 0 || s.HistoryDays > prompt.MaxHistory {
		errs = append(errs, fmt.Errorf("history days must be between 0 and %d", prompt.MaxHistory))
	}
	return errors.Join(errs...)
}

// Coach wires the ledger, generators and transport together.
type Coach struct {
	ledger   Ledger
	tasks    TextGenerator
	feedback TextGenerator
	sender   Sender
	allow    approval.Allowlist
	settings Settings

	tracer trace.Tracer
	now    func() time.Time
	loc    *time.Location

	runMu   sync.Mutex
	replyMu sync.Mutex
}

// Option configures a Coach.
type Option func(*Coach)

// WithTracer sets the tracer used for run and reply spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coach) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClock overrides the clock used by Today.
func WithClock(now func() time.Time) Option {
	return func(c *Coach) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the timezone that defines the calendar date.
func WithLocation(loc *time.Location) Option {
	return func(c *Coach) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New builds a Coach. The same generator may serve tasks and feedback.
func New(
	l Ledger,
	tasks TextGenerator,
	feedback TextGenerator,
	sender Sender,
	allow approval.Allowlist,
	settings Settings,
	opts ...Option,
) (*Coach, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if tasks == nil || feedback == nil {
		return nil, errors.New("task and feedback generators are required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coach settings: %w", err)
	}
	if strings.TrimSpace(settings.Title) == "" {
		settings.Title = DefaultTitle
	}

	c := &Coach{
		ledger:   l,
		tasks:    tasks,
		feedback: feedback,
		sender:   sender,
		allow:    allow,
		settings: settings,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Today returns the current calendar date key in the coach timezone.
func (c *Coach) Today() string {
	return ledger.DateKey(c.now(), c.loc)
}

// FormatMessage composes the outbound SMS for one task.
func FormatMessage(title string, day int, task string) string {
	return fmt.Sprintf("%s Day %d\n%s\nReply to log.", title, day, task)
}
