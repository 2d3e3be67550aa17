/*
cancellation.go - Cancellation orchestrator

PURPOSE:
  Executes a full session cancellation: computes the notice period,
  evaluates the applicable contract clause, transitions the ledger entry to
  its terminal status, and writes the session's cancellation state.

ORDERING UNDER PARTIAL FAILURE:
  There is no transaction wrapper, so the two writes are ordered by
  recoverability: the ledger (financial truth) first, the denormalized
  session state second. If the session write then fails, a compensating
  revert puts the ledger entry back to reservada; if even that fails, the
  ledger is still the correct source of truth and the stale session status
  is recoverable by a reconciliation read. The reverse ordering would not
  be.

IDEMPOTENCE:
  Re-running a cancellation finds no reservada entry; if the existing entry
  is already terminal the ledger step is treated as done and only the
  (idempotent) session write repeats. No double transition, no error.
*/
package hours

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Orchestrator composes the clause evaluator and the reservation ledger to
// execute cancellations.
type Orchestrator struct {
	store  Store
	policy *ClausePolicy
	log    *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates a cancellation orchestrator. A nil policy selects
// the default contract clause table.
func NewOrchestrator(store Store, policy *ClausePolicy, log *slog.Logger) *Orchestrator {
	if policy == nil {
		policy = DefaultClausePolicy()
	}
	return &Orchestrator{store: store, policy: policy, log: log, now: time.Now}
}

// ExecuteCancellation cancels a session, applying the contract's
// cancellation clauses to its reserved hours.
//
// Validation happens before any mutation: an invalid party or an admin
// override without reason never touches the store.
func (o *Orchestrator) ExecuteCancellation(ctx context.Context, session *Session, params CancellationParams, actorID string) (CancellationResult, error) {
	if !params.CancelledByParty.Valid() {
		return CancellationResult{}, fmt.Errorf("%w: %q", ErrInvalidParty, params.CancelledByParty)
	}
	if params.AdminOverrideStatus != "" {
		if params.AdminOverrideStatus != StatusDevuelta && params.AdminOverrideStatus != StatusPenalizada {
			return CancellationResult{}, fmt.Errorf("%w: %q", ErrInvalidOverrideStatus, params.AdminOverrideStatus)
		}
		if params.AdminOverrideReason == "" {
			return CancellationResult{}, ErrOverrideReasonRequired
		}
	}

	now := o.now()
	noticeHours := NoticeHours(session.SessionDate, session.StartTime, now)

	modality, err := o.resolveModality(ctx, session)
	if err != nil {
		return CancellationResult{}, err
	}

	clauseResult, ok := o.policy.Evaluate(modality, params.CancelledByParty, noticeHours)
	if !ok {
		// Unreachable with a validated policy table.
		return CancellationResult{}, fmt.Errorf("no cancellation clause for modality=%s party=%s", modality, params.CancelledByParty)
	}

	finalStatus := clauseResult.LedgerStatus
	isOverride := params.AdminOverrideStatus != ""
	if isOverride {
		finalStatus = params.AdminOverrideStatus
	}

	// Step 1: ledger transition (financial truth first).
	var revertEntryID string
	if session.HasHourTracking() {
		entry, err := o.store.FindReservedEntry(ctx, session.ID)
		if err != nil {
			return CancellationResult{}, fmt.Errorf("find reservation: %w", err)
		}
		if entry != nil {
			moved, err := o.store.TransitionEntry(ctx, entry.ID, StatusReservada, finalStatus, LedgerUpdate{
				UpdatedBy:           actorID,
				CancelledByParty:    params.CancelledByParty,
				CancellationClause:  clauseResult.Clause,
				CancellationReason:  params.Reason,
				AdminOverride:       isOverride,
				AdminOverrideReason: params.AdminOverrideReason,
				ConsultantPaid:      clauseResult.ConsultantPaid,
			})
			if err != nil {
				return CancellationResult{}, fmt.Errorf("transition ledger entry: %w", err)
			}
			if moved {
				revertEntryID = entry.ID
			}
			// !moved: a concurrent call already ended the entry; treat as done.
		}
	}

	// Step 2: denormalized session state.
	err = o.store.CancelSession(ctx, session.ID, SessionCancellation{
		CancelledBy:        actorID,
		CancelledAtUnix:    now.Unix(),
		CancellationReason: params.Reason,
		NoticeHours:        noticeHours.StringFixed(2),
	})
	if err != nil {
		// Compensating action: put the hours back in reserve so the ledger
		// and the still-live session agree again.
		if revertEntryID != "" {
			if _, revertErr := o.store.TransitionEntry(ctx, revertEntryID, finalStatus, StatusReservada, LedgerUpdate{UpdatedBy: actorID}); revertErr != nil {
				o.log.Error("compensating ledger revert failed; ledger holds the truth",
					"session_id", session.ID,
					"ledger_entry_id", revertEntryID,
					"err", revertErr)
			}
		}
		return CancellationResult{}, fmt.Errorf("cancel session: %w", err)
	}

	return CancellationResult{
		Success:              true,
		ClauseResult:         &clauseResult,
		CancelledNoticeHours: noticeHours,
	}, nil
}

// resolveModality picks the modality the clause table sees: the hour type's
// modality when it has a fixed one, the session's own otherwise.
func (o *Orchestrator) resolveModality(ctx context.Context, session *Session) (Modality, error) {
	if session.HourTypeKey == "" {
		return session.Modality, nil
	}
	hourType, err := o.store.GetHourTypeByKey(ctx, session.HourTypeKey)
	if err != nil {
		return "", fmt.Errorf("resolve hour type %q: %w", session.HourTypeKey, err)
	}
	if hourType.Modality == ModalityBoth {
		return session.Modality, nil
	}
	return hourType.Modality, nil
}
