package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neoclaw-ai/repcoach/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// CSVHeader is the legacy tasks.csv column order used by ExportCSV.
var CSVHeader = []string{"date", "day", "task_sent", "user_response", "ai_feedback", "completed", "reps_done"}

const selectColumns = `date, day, task_sent, user_response, ai_feedback, completed, reps_done, created_at, answered_at`

// Store is a SQLite-backed ledger. All writes are serialized by one mutex and
// a single database connection, and each write commits before returning.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
	loc *time.Location
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for FindToday, UpdateToday, and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone that defines the current calendar date.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Open opens or creates the ledger database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: ledger path is required", ErrPersistence)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistenceErr("open database", err)
	}
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, persistenceErr("apply "+pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, persistenceErr("run migrations", err)
	}

	s := &Store{db: conn, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Today returns the current calendar date in the store's timezone.
func (s *Store) Today() string {
	return DateKey(s.now(), s.loc)
}

// ExistsFor reports whether a record is stored for date.
func (s *Store) ExistsFor(ctx context.Context, date string) (bool, error) {
	if _, err := ParseDate(date); err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE date = ?`, date).Scan(&n); err != nil {
		return false, persistenceErr("check date", err)
	}
	return n > 0, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, persistenceErr("count records", err)
	}
	return n, nil
}

// Recent returns the last n records, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]TaskRecord, error) {
	if n <= 0 {
		return []TaskRecord{}, nil
	}
	records, err := s.query(ctx, `SELECT `+selectColumns+` FROM tasks ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Latest returns the newest stored date, if any.
func (s *Store) Latest(ctx context.Context) (string, bool, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM tasks`).Scan(&latest); err != nil {
		return "", false, persistenceErr("read latest date", err)
	}
	return latest.String, latest.Valid, nil
}

// List returns every record, oldest first.
func (s *Store) List(ctx context.Context) ([]TaskRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM tasks ORDER BY date ASC`)
}

// Find returns the record for date, if any.
func (s *Store) Find(ctx context.Context, date string) (TaskRecord, bool, error) {
	if _, err := ParseDate(date); err != nil {
		return TaskRecord{}, false, err
	}
	records, err := s.query(ctx, `SELECT `+selectColumns+` FROM tasks WHERE date = ?`, date)
	if err != nil {
		return TaskRecord{}, false, err
	}
	if len(records) == 0 {
		return TaskRecord{}, false, nil
	}
	return records[0], true, nil
}

// FindToday returns the record for the current date, if any.
func (s *Store) FindToday(ctx context.Context) (TaskRecord, bool, error) {
	return s.Find(ctx, s.Today())
}

// Append durably stores a new PENDING record. The record's date must be
// later than every stored date and its day must equal Count()+1.
func (s *Store) Append(ctx context.Context, rec TaskRecord) error {
	if rec.Completed == "" {
		rec.Completed = CompletedNo
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if err := validateNew(rec); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin append", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE date = ?`, rec.Date).Scan(&exists); err != nil {
		return persistenceErr("check date", err)
	}
	if exists > 0 {
		return fmt.Errorf("append %s: %w", rec.Date, ErrDuplicateDate)
	}

	var count int
	var latest sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*), MAX(date) FROM tasks`).Scan(&count, &latest); err != nil {
		return persistenceErr("read ledger tail", err)
	}
	if latest.Valid && rec.Date < latest.String {
		return fmt.Errorf("%w: append %s: date precedes latest record %s", ErrPersistence, rec.Date, latest.String)
	}
	if rec.Day != count+1 {
		return fmt.Errorf("%w: append %s: day %d does not follow %d stored records", ErrPersistence, rec.Date, rec.Day, count)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (date, day, task_sent, completed, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Date, rec.Day, rec.TaskSent, string(rec.Completed), rec.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return persistenceErr("insert record", err)
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit append", err)
	}

	logging.Logger().Info("ledger record appended", "date", rec.Date, "day", rec.Day)
	return nil
}

// Update stores the reply for date. The first reply wins: a record that is
// already answered returns ErrAlreadyAnswered and is left unchanged.
func (s *Store) Update(ctx context.Context, date string, reply Reply) error {
	if reply.Completed == "" {
		reply.Completed = CompletedNo
	}
	if err := validateReply(date, reply); err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrPersistence, date, err)
	}
	if reply.AnsweredAt.IsZero() {
		reply.AnsweredAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin update", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT user_response FROM tasks WHERE date = ?`, date).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("update %s: %w", date, ErrNotFound)
	case err != nil:
		return persistenceErr("read record", err)
	}
	if current != "" {
		return fmt.Errorf("update %s: %w", date, ErrAlreadyAnswered)
	}

	var reps sql.NullInt64
	if reply.RepsDone != nil {
		reps = sql.NullInt64{Int64: int64(*reply.RepsDone), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET user_response = ?, ai_feedback = ?, completed = ?, reps_done = ?, answered_at = ? WHERE date = ?`,
		reply.UserResponse, reply.AIFeedback, string(reply.Completed), reps, reply.AnsweredAt.Format(time.RFC3339Nano), date,
	); err != nil {
		return persistenceErr("update record", err)
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit update", err)
	}

	logging.Logger().Info("ledger record answered", "date", date, "completed", reply.Completed)
	return nil
}

// UpdateToday stores the reply for the current date.
func (s *Store) UpdateToday(ctx context.Context, reply Reply) error {
	return s.Update(ctx, s.Today(), reply)
}

// ExportCSV writes every record to w in the legacy tasks.csv layout.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.List(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		reps := ""
		if rec.RepsDone != nil {
			reps = strconv.Itoa(*rec.RepsDone)
		}
		row := []string{
			rec.Date,
			strconv.Itoa(rec.Day),
			rec.TaskSent,
			rec.UserResponse,
			rec.AIFeedback,
			string(rec.Completed),
			reps,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.Date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceErr("query records", err)
	}
	defer rows.Close()

	records := []TaskRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate records", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (TaskRecord, error) {
	var (
		rec        TaskRecord
		completed  string
		reps       sql.NullInt64
		createdAt  string
		answeredAt sql.NullString
	)
	if err := rows.Scan(
		&rec.Date, &rec.Day, &rec.TaskSent, &rec.UserResponse, &rec.AIFeedback,
		&completed, &reps, &createdAt, &answeredAt,
	); err != nil {
		return TaskRecord{}, persistenceErr("scan record", err)
	}
	rec.Completed = Completion(completed)
	if reps.Valid {
		n := int(reps.Int64)
		rec.RepsDone = &n
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return TaskRecord{}, persistenceErr("parse created_at for "+rec.Date, err)
	}
	rec.CreatedAt = created
	if answeredAt.Valid {
		answered, err := time.Parse(time.RFC3339Nano, answeredAt.String)
		if err != nil {
			return TaskRecord{}, persistenceErr("parse answered_at for "+rec.Date, err)
		}
		rec.AnsweredAt = &answered
	}
	return rec, nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
