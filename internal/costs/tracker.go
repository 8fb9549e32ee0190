// Package costs tracks generation usage and spend in a JSONL log and
// answers whether the configured soft limits still allow a paid call.
package costs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/neoclaw-ai/repcoach/internal/logging"
	"github.com/neoclaw-ai/repcoach/internal/store"
)

// Record is one persisted usage entry.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Purpose      string    `json:"purpose"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// Spend holds aggregated spend totals in USD.
type Spend struct {
	TodayUSD float64
	MonthUSD float64
}

// Limits are soft USD ceilings. Zero disables a limit.
type Limits struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// Exceeded reports whether spend has reached either enabled limit.
func (l Limits) Exceeded(s Spend) bool {
	if l.DailyUSD > 0 && s.TodayUSD >= l.DailyUSD {
		return true
	}
	if l.MonthlyUSD > 0 && s.MonthUSD >= l.MonthlyUSD {
		return true
	}
	return false
}

// Tracker appends usage records and computes period spend totals.
type Tracker struct {
	path string
	mu   sync.Mutex
}

// New returns a Tracker for the configured costs JSONL path.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Append writes one usage record to the JSONL file.
func (t *Tracker) Append(ctx context.Context, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if t.path == "" {
		return errors.New("costs path is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.CostUSD == 0 {
		if usd, ok := EstimateUSD(rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens); ok {
			rec.CostUSD = usd
		}
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal costs record: %w", err)
	}
	if err := store.AppendFile(t.path, append(encoded, '\n')); err != nil {
		return fmt.Errorf("append costs record: %w", err)
	}
	return nil
}

// Spend returns today's and this month's spend totals in USD, using now's
// location to define the periods.
func (t *Tracker) Spend(ctx context.Context, now time.Time) (Spend, error) {
	totals := Spend{}

	if err := ctx.Err(); err != nil {
		return Spend{}, err
	}
	if t.path == "" {
		return Spend{}, errors.New("costs path is required")
	}
	if now.IsZero() {
		now = time.Now()
	}

	raw, err := store.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return totals, nil
	}
	if err != nil {
		return Spend{}, fmt.Errorf("read costs file: %w", err)
	}

	loc := now.Location()
	todayYear, todayMonth, todayDay := now.Date()

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Spend{}, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logging.Logger().Debug("skip malformed costs line", "err", err)
			continue
		}
		y, m, d := rec.Timestamp.In(loc).Date()
		if y == todayYear && m == todayMonth {
			totals.MonthUSD += rec.CostUSD
			if d == todayDay {
				totals.TodayUSD += rec.CostUSD
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Spend{}, fmt.Errorf("scan costs file: %w", err)
	}

	return totals, nil
}

// Allow reports whether another paid call fits within limits.
func (t *Tracker) Allow(ctx context.Context, now time.Time, limits Limits) (bool, Spend, error) {
	if limits.DailyUSD <= 0 && limits.MonthlyUSD <= 0 {
		return true, Spend{}, nil
	}
	spend, err := t.Spend(ctx, now)
	if err != nil {
		return false, Spend{}, err
	}
	return !limits.Exceeded(spend), spend, nil
}
