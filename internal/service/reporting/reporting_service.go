package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
	"github.com/mamadbah2/farmsync/internal/repository/sheets"
)

const (
	dateLayout = "2006-01-02"

	// FinanceRange is where the daily export appends its rows:
	// date, income, expenses, net, entries, generated at.
	FinanceRange = "Finance!A:F"
)

// Totals aggregates money movements.
type Totals struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
	Entries  int     `json:"entries"`
}

func (t *Totals) add(amount float64, flow models.Flow) {
	if flow == models.FlowIncome {
		t.Income += amount
	} else {
		t.Expenses += amount
	}
	t.Entries++
}

func (t *Totals) round() {
	t.Income = round2(t.Income)
	t.Expenses = round2(t.Expenses)
	t.Net = round2(t.Income - t.Expenses)
}

// FinanceSummary is the income and expense report for a period.
type FinanceSummary struct {
	From string `json:"from"`
	To   string `json:"to"`
	Totals
	ByCollection map[string]Totals `json:"by_collection"`
}

// Service computes finance summaries from the remote store.
type Service struct {
	store  repository.Store
	sheets sheets.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewService wires a new reporting service instance. sheetsRepo may be nil
// when no spreadsheet is configured; ExportDaily then fails.
func NewService(store repository.Store, sheetsRepo sheets.Repository, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, sheets: sheetsRepo, loc: loc, logger: logger}
}

// Summarize aggregates every money moving record dated within [start, end].
func (s *Service) Summarize(ctx context.Context, start, end time.Time) (FinanceSummary, error) {
	summary := FinanceSummary{
		From:         start.Format(dateLayout),
		To:           end.Format(dateLayout),
		ByCollection: make(map[string]Totals),
	}

	for _, coll := range models.Collections() {
		if _, ok := coll.New().(models.LedgerEntry); !ok {
			continue
		}

		docs, err := s.store.List(ctx, coll.Name)
		if err != nil {
			return FinanceSummary{}, fmt.Errorf("load %s: %w", coll.Name, err)
		}

		var totals Totals
		for _, doc := range docs {
			entity, err := coll.Decode(doc.Body)
			if err != nil {
				s.logger.Debug("skip undecodable record", zap.String("collection", coll.Name), zap.String("id", doc.ID), zap.Error(err))
				continue
			}

			date, amount, flow := entity.(models.LedgerEntry).Ledger()
			if date.IsZero() {
				s.logger.Debug("skip record without date", zap.String("collection", coll.Name), zap.String("id", doc.ID))
				continue
			}
			if date.Before(start) || date.After(end) {
				continue
			}

			totals.add(amount, flow)
			summary.Totals.add(amount, flow)
		}

		if totals.Entries > 0 {
			totals.round()
			summary.ByCollection[coll.Name] = totals
		}
	}

	summary.Totals.round()
	return summary, nil
}

// DayBounds returns the first and last instant of day in the service location.
func (s *Service) DayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ExportDaily appends the summary of day to the finance sheet.
func (s *Service) ExportDaily(ctx context.Context, day time.Time) error {
	if s.sheets == nil {
		return fmt.Errorf("finance export: no spreadsheet configured")
	}

	start, end := s.DayBounds(day)
	summary, err := s.Summarize(ctx, start, end)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", start.Format(dateLayout), err)
	}

	row := []interface{}{
		summary.From,
		summary.Income,
		summary.Expenses,
		summary.Net,
		summary.Entries,
		time.Now().In(s.loc).Format(time.RFC3339),
	}
	if err := s.sheets.AppendRows(ctx, FinanceRange, [][]interface{}{row}); err != nil {
		return fmt.Errorf("export finance summary: %w", err)
	}

	s.logger.Info("finance summary exported",
		zap.String("day", summary.From),
		zap.Float64("net", summary.Net),
		zap.Int("entries", summary.Entries))
	return nil
}

// ParsePeriod reads optional from/to query values (YYYY-MM-DD). Missing
// bounds default to the current month.
func (s *Service) ParsePeriod(from, to string, now time.Time) (time.Time, time.Time, error) {
	now = now.In(s.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)

	if from != "" {
		parsed, err := time.ParseInLocation(dateLayout, from, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		start = parsed
	}
	if to != "" {
		parsed, err := time.ParseInLocation(dateLayout, to, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		end = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("period ends before it starts")
	}
	return start, end, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
