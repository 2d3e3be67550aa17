/*
earnings.go - Consultant earnings report

PURPOSE:
  Aggregates a consultant's ledger entries over a date range into payable
  hours and amounts. Consultants are paid for delivered sessions (consumida)
  and for penalized cancellations whose clause grants payment - penalizada
  hours are forfeited from the school's budget but can still be payable.

CURRENCY:
  Rates are contracted in EUR; the CLP column is a display conversion via
  the FX cache. A degraded FX state (stale or missing rate) degrades the
  CLP figures, never the report: total_clp is zero when no rate exists and
  the response carries the FX state for the caller to surface.
*/
package hours

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nueva-educacion/hours-engine/fx"
)

// EarningsRow is the per-hour-type breakdown of a consultant's earnings.
type EarningsRow struct {
	HourTypeKey    string          `json:"hour_type_key"`
	DisplayName    string          `json:"display_name"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	ExecutedHours  decimal.Decimal `json:"executed_hours"`
	PenalizedHours decimal.Decimal `json:"penalized_hours"`
	RateEUR        decimal.Decimal `json:"rate_eur"`
	TotalEUR       decimal.Decimal `json:"total_eur"`
	TotalCLP       decimal.Decimal `json:"total_clp"`
}

// EarningsTotals are the grand totals across all hour types.
type EarningsTotals struct {
	TotalHours decimal.Decimal `json:"total_hours"`
	TotalEUR   decimal.Decimal `json:"total_eur"`
	TotalCLP   decimal.Decimal `json:"total_clp"`
}

// EarningsReport is the full report for one consultant and period.
type EarningsReport struct {
	ConsultantID string         `json:"consultant_id"`
	From         string         `json:"from"`
	To           string         `json:"to"`
	Rows         []EarningsRow  `json:"rows"`
	Totals       EarningsTotals `json:"totals"`
	FxRate       fx.Response    `json:"fx_rate"`
}

// EarningsService computes consultant earnings reports.
type EarningsService struct {
	store Store
	fx    *fx.Service
	log   *slog.Logger
}

// NewEarningsService creates an earnings service.
func NewEarningsService(store Store, fxService *fx.Service, log *slog.Logger) *EarningsService {
	return &EarningsService{store: store, fx: fxService, log: log}
}

// Report builds the earnings report for consultantID over [from, to]
// (YYYY-MM-DD, inclusive).
func (s *EarningsService) Report(ctx context.Context, consultantID, from, to string) (*EarningsReport, error) {
	entries, err := s.store.ConsultantEntries(ctx, consultantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load consultant entries: %w", err)
	}
	rates, err := s.store.ListRates(ctx, consultantID)
	if err != nil {
		return nil, fmt.Errorf("load consultant rates: %w", err)
	}

	rows := make(map[string]*EarningsRow)
	for i := range entries {
		ce := &entries[i]
		entry := &ce.Entry

		payable := false
		switch entry.Status {
		case StatusConsumida:
			payable = true
		case StatusPenalizada:
			payable = entry.ConsultantPaid
		default:
			// reservada and devuelta entries never earn.
			continue
		}

		row, ok := rows[ce.HourTypeKey]
		if !ok {
			row = &EarningsRow{HourTypeKey: ce.HourTypeKey, DisplayName: ce.DisplayName}
			rows[ce.HourTypeKey] = row
		}

		switch entry.Status {
		case StatusConsumida:
			row.ExecutedHours = row.ExecutedHours.Add(entry.Hours)
		case StatusPenalizada:
			row.PenalizedHours = row.PenalizedHours.Add(entry.Hours)
		}
		row.TotalHours = row.TotalHours.Add(entry.Hours)

		if payable {
			rate := rateFor(rates, ce.HourTypeKey, entry.SessionDate)
			if rate == nil {
				s.log.Warn("no rate for payable entry",
					"consultant_id", consultantID,
					"hour_type", ce.HourTypeKey,
					"session_date", entry.SessionDate)
				continue
			}
			row.RateEUR = rate.RateEUR
			row.TotalEUR = row.TotalEUR.Add(entry.Hours.Mul(rate.RateEUR)).Round(2)
		}
	}

	fxRate := s.fx.Latest(ctx)

	report := &EarningsReport{
		ConsultantID: consultantID,
		From:         from,
		To:           to,
		Rows:         make([]EarningsRow, 0, len(rows)),
		FxRate:       fxRate,
	}
	for _, row := range rows {
		row.TotalCLP = row.TotalEUR.Mul(fxRate.RateCLPPerEUR).Round(2)
		report.Rows = append(report.Rows, *row)
		report.Totals.TotalHours = report.Totals.TotalHours.Add(row.TotalHours)
		report.Totals.TotalEUR = report.Totals.TotalEUR.Add(row.TotalEUR)
		report.Totals.TotalCLP = report.Totals.TotalCLP.Add(row.TotalCLP)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].HourTypeKey < report.Rows[j].HourTypeKey
	})
	return report, nil
}

// rateFor finds the rate effective for (hourTypeKey, date), or nil.
func rateFor(rates []ConsultantRate, hourTypeKey, date string) *ConsultantRate {
	for i := range rates {
		if rates[i].HourTypeKey == hourTypeKey && rates[i].CoversDate(date) {
			return &rates[i]
		}
	}
	return nil
}
