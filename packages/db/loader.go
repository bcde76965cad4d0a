package db

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gradcafe/packages/domain"
	"gradcafe/packages/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var insertColumns = []string{
	"program", "comments", "date_added", "url", "status", "term",
	"us_or_international", "gpa", "gre", "gre_v", "gre_aw", "degree",
	"llm_generated_program", "llm_generated_university",
}

// Postgres accepts at most 65535 bind parameters per statement.
var maxRowsPerStatement = 65535 / len(insertColumns)

var dateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// ReadCleanedFile reads newline-delimited cleaned records. Blank lines are
// skipped; a line that is not valid JSON is logged and skipped.
func ReadCleanedFile(path string) ([]domain.CleanedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []domain.CleanedRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec domain.CleanedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("Skipping malformed cleaned record", "path", path, "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// LoadFile reads path and loads its records.
func (s *Storage) LoadFile(ctx context.Context, path string) (*domain.LoadReport, error) {
	records, err := ReadCleanedFile(path)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded cleaned records from file", "path", path, "count", len(records))
	return s.Load(ctx, records)
}

type row struct {
	url    string
	values []any
}

// Load inserts records, silently skipping any whose url is already present.
// All rows go in one batched statement first; if the store rejects the batch
// for a data reason, rows are retried one at a time and the offenders are
// reported in LoadReport.BadRows. Errors wrapping ErrFatal abandon the run.
func (s *Storage) Load(ctx context.Context, records []domain.CleanedRecord) (*domain.LoadReport, error) {
	report := &domain.LoadReport{Read: len(records)}

	if err := s.EnsureTable(ctx); err != nil {
		return report, err
	}

	rows := make([]row, 0, len(records))
	for _, rec := range records {
		if rec.URL == nil || strings.TrimSpace(*rec.URL) == "" {
			report.BadRows = append(report.BadRows, domain.BadRow{Field: "url", Error: "missing url"})
			continue
		}
		rows = append(rows, project(rec))
	}
	if len(rows) == 0 {
		s.record(report)
		return report, nil
	}

	inserted, err := s.insertBatch(ctx, rows)
	if err == nil {
		report.Inserted = inserted
		report.Skipped = len(rows) - inserted
		s.record(report)
		slog.Info("Bulk insert committed", "rows", len(rows), "inserted", inserted, "skipped", report.Skipped)
		return report, nil
	}
	if isFatal(err) {
		return report, fmt.Errorf("%w: bulk insert: %w", ErrFatal, err)
	}

	slog.Warn("Bulk insert rejected, retrying row by row", "rows", len(rows), "error", err)
	if err := s.insertEach(ctx, rows, report); err != nil {
		return report, err
	}
	s.record(report)
	return report, nil
}

func (s *Storage) record(report *domain.LoadReport) {
	metrics.LoadRows.WithLabelValues("inserted").Add(float64(report.Inserted))
	metrics.LoadRows.WithLabelValues("skipped").Add(float64(report.Skipped))
	metrics.LoadRows.WithLabelValues("bad").Add(float64(len(report.BadRows)))
}

func (s *Storage) insertBatch(ctx context.Context, rows []row) (int, error) {
	defer metrics.ObserveQuery("bulk_insert", time.Now())
	inserted := 0
	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		for start := 0; start < len(rows); start += maxRowsPerStatement {
			end := min(start+maxRowsPerStatement, len(rows))
			sql, args := s.insertStatement(rows[start:end])
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// insertEach inserts every row under its own savepoint so one bad row does not
// abort the others.
func (s *Storage) insertEach(ctx context.Context, rows []row, report *domain.LoadReport) error {
	defer metrics.ObserveQuery("row_insert", time.Now())
	inserted := 0
	var bad []domain.BadRow

	err := s.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, r := range rows {
			sp, err := tx.Begin(ctx)
			if err != nil {
				return fmt.Errorf("%w: savepoint: %w", ErrFatal, err)
			}
			sql, args := s.insertStatement([]row{r})
			tag, err := sp.Exec(ctx, sql, args...)
			if err != nil {
				_ = sp.Rollback(ctx)
				if isFatal(err) {
					return fmt.Errorf("%w: row insert: %w", ErrFatal, err)
				}
				field := nulField(r)
				slog.Error("Row rejected by database", "url", r.url, "field", field, "error", err)
				bad = append(bad, domain.BadRow{URL: r.url, Field: field, Error: err.Error()})
				continue
			}
			if err := sp.Commit(ctx); err != nil {
				return fmt.Errorf("%w: release savepoint: %w", ErrFatal, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrFatal) {
			err = fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return err
	}

	report.Inserted = inserted
	report.BadRows = append(report.BadRows, bad...)
	report.Skipped = len(rows) - inserted - len(bad)
	slog.Info("Row-by-row insert committed", "rows", len(rows), "inserted", inserted, "bad", len(bad), "skipped", report.Skipped)
	return nil
}

func (s *Storage) insertStatement(rows []row) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", s.table, strings.Join(insertColumns, ", "))
	args := make([]any, 0, len(rows)*len(insertColumns))
	paramIdx := 1
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range insertColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", paramIdx)
			paramIdx++
		}
		sb.WriteByte(')')
		args = append(args, r.values...)
	}
	sb.WriteString(" ON CONFLICT (url) DO NOTHING")
	return sb.String(), args
}

// project maps a cleaned record onto insertColumns, in order.
func project(rec domain.CleanedRecord) row {
	url := strings.TrimSpace(*rec.URL)
	return row{
		url: url,
		values: []any{
			rec.Program,
			rec.Comments,
			parseDate(rec.DateAdded),
			url,
			rec.Status,
			rec.Term,
			rec.Citizenship,
			rec.GPA.Value,
			rec.GRE.Value,
			rec.GREV.Value,
			rec.GREAW.Value,
			rec.Degree,
			rec.LLMGeneratedProgram,
			rec.LLMGeneratedUniversity,
		},
	}
}

func parseDate(raw *string) pgtype.Date {
	if raw == nil {
		return pgtype.Date{}
	}
	s := strings.TrimSpace(*raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}
	return pgtype.Date{}
}

// nulField names the columns of r whose text contains a NUL byte, which
// Postgres refuses in text values.
func nulField(r row) string {
	var fields []string
	for i, v := range r.values {
		var s string
		switch val := v.(type) {
		case *string:
			if val == nil {
				continue
			}
			s = *val
		case string:
			s = val
		default:
			continue
		}
		if strings.ContainsRune(s, 0) {
			fields = append(fields, insertColumns[i])
		}
	}
	return strings.Join(fields, ",")
}
