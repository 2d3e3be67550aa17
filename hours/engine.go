/*
engine.go - Reservation engine

PURPOSE:
  Reacts to session lifecycle events against the ledger:

    schedule -> CreateReservation   (none) -> reservada
    finalize -> CompleteReservation reservada -> consumida

  Cancellation is the orchestrator's job (cancellation.go) because it also
  consults the clause evaluator and writes session state.

BACKWARD COMPATIBILITY:
  Sessions predating hour tracking carry no hour_type_key/contrato_id. Every
  entry point guards for them and skips silently - never an error.

OVER-BUDGET:
  A reservation exceeding the available budget is still created, flagged
  is_over_budget. The race between reading the budget and inserting the
  entry is tolerated on purpose: over-booking is detected and surfaced, not
  prevented with a lock. Enforcement is a downstream business process.
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

// Engine creates and completes hour reservations.
type Engine struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewEngine creates a reservation engine backed by store.
func NewEngine(store Store, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log, now: time.Now}
}

// CreateReservation reserves hours for a scheduled session.
//
// Business rejections (no schedule, no allocation) are returned inside the
// result; a Go error means an infrastructure or data-integrity failure.
// Nothing is mutated before the single ledger insert, so a failure anywhere
// needs no compensation.
func (e *Engine) CreateReservation(ctx context.Context, session *Session, actorID string) (ReservationResult, error) {
	if !session.HasHourTracking() {
		return ReservationResult{Skipped: true}, nil
	}

	mins, ok := DurationMinutes(session)
	if !ok {
		return ReservationResult{Error: MsgNoSchedule}, nil
	}
	hrs := HoursFromMinutes(mins)

	hourType, err := e.store.GetHourTypeByKey(ctx, session.HourTypeKey)
	if err != nil {
		return ReservationResult{}, fmt.Errorf("resolve hour type %q: %w", session.HourTypeKey, err)
	}

	alloc, err := e.store.GetAllocation(ctx, session.ContratoID, hourType.ID)
	if errors.Is(err, ErrAllocationNotFound) {
		// Normal business rejection, not a system fault.
		return ReservationResult{Error: MsgNoAllocatedHours}, nil
	}
	if err != nil {
		return ReservationResult{}, fmt.Errorf("resolve allocation: %w", err)
	}

	isOverBudget := false
	buckets, err := e.store.BucketSummaries(ctx, session.ContratoID)
	if err != nil {
		return ReservationResult{}, fmt.Errorf("bucket summary: %w", err)
	}
	for i := range buckets {
		if buckets[i].HourTypeKey == session.HourTypeKey {
			isOverBudget = buckets[i].AvailableHours.LessThan(hrs)
			break
		}
	}

	entry := &LedgerEntry{
		ID:           uuid.NewString(),
		AllocationID: alloc.ID,
		SessionID:    session.ID,
		ConsultantID: session.ConsultantID,
		Hours:        hrs,
		Status:       StatusReservada,
		SessionDate:  session.SessionDate,
		IsOverBudget: isOverBudget,
		RecordedBy:   actorID,
		CreatedAt:    e.now(),
		UpdatedAt:    e.now(),
	}
	if err := e.store.InsertLedgerEntry(ctx, entry); err != nil {
		return ReservationResult{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	if isOverBudget {
		e.log.Warn("over-budget reservation recorded",
			"session_id", session.ID,
			"contrato_id", session.ContratoID,
			"hour_type", session.HourTypeKey,
			"hours", hrs.String())
	}

	return ReservationResult{
		LedgerEntryID: entry.ID,
		Hours:         hrs,
		IsOverBudget:  isOverBudget,
		AllocationID:  alloc.ID,
	}, nil
}

// CompleteReservation transitions a session's reservation to consumida when
// the session is finalized. Best-effort and advisory: sessions with no
// reservation (legacy, or already transitioned) are a skip, not an error,
// and callers must not fail their finalization workflow on an error here.
//
// Idempotent: on a retry the compare-and-swap finds the entry already
// terminal and the call reports success without a second transition.
func (e *Engine) CompleteReservation(ctx context.Context, sessionID, actorID string) (CompletionResult, error) {
	entry, err := e.store.FindReservedEntry(ctx, sessionID)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("find reservation: %w", err)
	}
	if entry == nil {
		return CompletionResult{Skipped: true}, nil
	}

	moved, err := e.store.TransitionEntry(ctx, entry.ID, StatusReservada, StatusConsumida, LedgerUpdate{UpdatedBy: actorID})
	if err != nil {
		return CompletionResult{}, fmt.Errorf("transition ledger entry: %w", err)
	}
	if !moved {
		// A concurrent caller completed it first; terminal either way.
		e.log.Debug("reservation already terminal", "session_id", sessionID, "ledger_entry_id", entry.ID)
	}
	return CompletionResult{}, nil
}

// BucketSummaries returns the contract's per-hour-type budget aggregates.
func (e *Engine) BucketSummaries(ctx context.Context, contratoID string) ([]BucketSummary, error) {
	if _, err := e.store.GetContract(ctx, contratoID); err != nil {
		return nil, err
	}
	return e.store.BucketSummaries(ctx, contratoID)
}
