/*
errors.go - Centralized error types for the hours engine

PURPOSE:
  All error values in one place. The taxonomy mirrors how callers must react:

  1. Skip conditions    - not errors at all; signalled via result.Skipped
  2. Business rejections - not errors; signalled via result.Error messages
  3. Validation errors  - sentinel errors below, surfaced before any mutation
  4. Store failures     - wrapped and propagated; the engine never retries

USAGE:
  The HTTP layer maps these with the helpers at the bottom:

    if hours.IsNotFound(err) { -> 404 }
    if hours.IsValidation(err) { -> 400 }
    anything else -> 500, detail to logs only

SEE ALSO:
  - engine.go, cancellation.go: producers
  - api/handlers.go: consumer
*/
package hours

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHourTypeNotFound is returned when a session names an hour type key
	// that does not exist or is inactive.
	ErrHourTypeNotFound = errors.New("hour type not found")

	// ErrSessionNotFound is returned when a referenced session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrAllocationNotFound is returned by store lookups when no allocation
	// row exists for (contract, hour type). The engine converts this into the
	// business rejection MsgNoAllocatedHours rather than surfacing it.
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrLedgerEntryNotFound is returned when a ledger entry id is unknown.
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrRateNotFound is returned when a consultant rate id is unknown.
	ErrRateNotFound = errors.New("consultant rate not found")

	// ErrInvalidParty is returned for a cancelled_by_party outside
	// {school, fne, force_majeure}. Checked before any mutation.
	ErrInvalidParty = errors.New("invalid cancelling party")

	// ErrInvalidOverrideStatus is returned when an admin override names a
	// status other than devuelta or penalizada.
	ErrInvalidOverrideStatus = errors.New("invalid override status")

	// ErrOverrideReasonRequired is returned when an admin override is
	// requested without a reason. Checked before any mutation.
	ErrOverrideReasonRequired = errors.New("admin override requires a reason")
)

// =============================================================================
// BUSINESS MESSAGES - returned as result data, never thrown
// =============================================================================

// Spanish-language messages shown verbatim to end users; part of the
// platform contract, do not translate.
const (
	MsgNoAllocatedHours = "El contrato no tiene horas asignadas para este tipo de servicio."
	MsgNoSchedule       = "No se puede programar la sesion sin horario definido."
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error names a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHourTypeNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrAllocationNotFound) ||
		errors.Is(err, ErrLedgerEntryNotFound) ||
		errors.Is(err, ErrRateNotFound)
}

// IsValidation reports whether the error is caused by invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidParty) ||
		errors.Is(err, ErrInvalidOverrideStatus) ||
		errors.Is(err, ErrOverrideReasonRequired)
}
