/*
rates.go - Consultant rate administration

PURPOSE:
  Manages the EUR hourly rates earnings are computed from. Rates are
  range-effective and never hard-deleted: closing a rate sets its
  effective_to so historical earnings stay reproducible.

GUARDS:
  - No overlapping effective ranges for the same (consultant, hour type).
  - A rate cannot be repriced once ledger entries exist for that consultant
    and hour type; issue a new rate with a later effective_from instead.
*/
package hours

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRateOverlap is returned when a new rate's effective range
	// intersects an existing one for the same consultant and hour type.
	ErrRateOverlap = errors.New("overlapping rate range")

	// ErrRateInUse is returned when repricing a rate that ledger entries
	// already depend on.
	ErrRateInUse = errors.New("ledger entries exist for this consultant and hour type")

	// ErrRateInvalid is returned for malformed rate input.
	ErrRateInvalid = errors.New("invalid rate")
)

// IsRateRejection reports whether the error is a rate business rejection.
func IsRateRejection(err error) bool {
	return errors.Is(err, ErrRateOverlap) ||
		errors.Is(err, ErrRateInUse) ||
		errors.Is(err, ErrRateInvalid)
}

// RateService administers consultant rates.
type RateService struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRateService creates a rate administration service.
func NewRateService(store Store, log *slog.Logger) *RateService {
	return &RateService{store: store, log: log, now: time.Now}
}

// List returns rates, optionally filtered by consultant.
func (s *RateService) List(ctx context.Context, consultantID string) ([]ConsultantRate, error) {
	return s.store.ListRates(ctx, consultantID)
}

// Get returns one rate by id.
func (s *RateService) Get(ctx context.Context, id string) (*ConsultantRate, error) {
	return s.store.GetRate(ctx, id)
}

// Create validates and inserts a new rate.
func (s *RateService) Create(ctx context.Context, r ConsultantRate, actorID string) (*ConsultantRate, error) {
	if r.ConsultantID == "" || r.EffectiveFrom == "" {
		return nil, fmt.Errorf("%w: consultant and effective_from are required", ErrRateInvalid)
	}
	if !r.RateEUR.IsPositive() {
		return nil, fmt.Errorf("%w: rate must be positive", ErrRateInvalid)
	}
	if _, err := s.store.GetHourTypeByKey(ctx, r.HourTypeKey); err != nil {
		return nil, fmt.Errorf("resolve hour type %q: %w", r.HourTypeKey, err)
	}

	existing, err := s.store.ListRates(ctx, r.ConsultantID)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	for i := range existing {
		if existing[i].HourTypeKey == r.HourTypeKey && existing[i].Overlaps(r.EffectiveFrom, r.EffectiveTo) {
			return nil, fmt.Errorf("%w: conflicts with rate %s", ErrRateOverlap, existing[i].ID)
		}
	}

	r.ID = uuid.NewString()
	r.CreatedBy = actorID
	r.CreatedAt = s.now()
	if err := s.store.CreateRate(ctx, &r); err != nil {
		return nil, fmt.Errorf("insert rate: %w", err)
	}
	s.log.Info("consultant rate created",
		"rate_id", r.ID,
		"consultant_id", r.ConsultantID,
		"hour_type", r.HourTypeKey,
		"rate_eur", r.RateEUR.String())
	return &r, nil
}

// Reprice changes the EUR amount of an existing rate. Blocked once ledger
// entries exist for the consultant and hour type: historical earnings must
// stay reproducible, so a price change becomes a new rate instead.
func (s *RateService) Reprice(ctx context.Context, id string, r ConsultantRate) (*ConsultantRate, error) {
	current, err := s.store.GetRate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.RateEUR.IsPositive() {
		return nil, fmt.Errorf("%w: rate must be positive", ErrRateInvalid)
	}

	n, err := s.store.CountConsultantEntries(ctx, current.ConsultantID, current.HourTypeKey)
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w (%d entries)", ErrRateInUse, n)
	}

	current.RateEUR = r.RateEUR
	if r.EffectiveFrom != "" {
		current.EffectiveFrom = r.EffectiveFrom
	}
	if r.EffectiveTo != "" {
		current.EffectiveTo = r.EffectiveTo
	}
	if err := s.store.UpdateRate(ctx, current); err != nil {
		return nil, fmt.Errorf("update rate: %w", err)
	}
	return current, nil
}

// Close soft-deletes a rate by ending its effective range today.
func (s *RateService) Close(ctx context.Context, id, actorID string) (*ConsultantRate, error) {
	current, err := s.store.GetRate(ctx, id)
	if err != nil {
		return nil, err
	}
	today := s.now().Format("2006-01-02")
	if err := s.store.CloseRate(ctx, id, today); err != nil {
		return nil, fmt.Errorf("close rate: %w", err)
	}
	current.EffectiveTo = today
	s.log.Info("consultant rate closed", "rate_id", id, "effective_to", today, "actor", actorID)
	return current, nil
}
