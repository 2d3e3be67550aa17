/*
Package hours implements the hour tracking and cancellation ledger for the
school-network platform.

PURPOSE:
  Tracks consultant-hour budgets per contract. Hours are reserved when a
  session is scheduled, consumed when the session is delivered, and returned
  or forfeited when it is cancelled, according to the contract's cancellation
  clauses.

KEY CONCEPTS IN THIS FILE (types.go):
  - HourType: Category of consulting work, immutable reference data
  - ContractHourAllocation: Budget ceiling per (contract, hour type)
  - LedgerEntry: One transaction against an allocation's budget
  - Session: The external session record the engine reacts to
  - Result types: Structured outcomes returned instead of exceptions

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float arithmetic
  2. One-way state machine: reservada transitions at most once, to exactly
     one of consumida, devuelta or penalizada
  3. Results over errors: expected business outcomes (skips, rejections)
     travel as data; errors are reserved for infrastructure failures
  4. All result fields always present - no shape ambiguity between paths

SEE ALSO:
  - arithmetic.go: Minute/hour conversion and notice-period computation
  - clause.go: Cancellation clause policy table
  - engine.go: Reservation engine
  - cancellation.go: Cancellation orchestrator
*/
package hours

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Modality is the delivery mode of a session or hour type.
type Modality string

const (
	ModalityOnline     Modality = "online"
	ModalityPresencial Modality = "presencial"
	ModalityHibrida    Modality = "hibrida"

	// ModalityBoth appears only on hour types whose sessions can be delivered
	// either way; the session's own modality decides the clause then.
	ModalityBoth Modality = "both"
)

// HourType identifies a category of consulting work, e.g. individual
// coaching or an in-person workshop. Immutable reference data.
type HourType struct {
	ID          string
	Key         string
	DisplayName string
	Modality    Modality
	IsActive    bool
}

// HourTypeKeys enumerates the nine budget buckets a contract is split into.
var HourTypeKeys = []string{
	"coaching_individual",
	"coaching_grupal",
	"talleres_presenciales",
	"talleres_online",
	"visitas_aula",
	"reunion_equipo",
	"seguimiento_directivo",
	"planificacion",
	"online_learning",
}

// FixedAllocationKey is the only hour type whose allocation may be flagged
// is_fixed (a lump bucket not tied to scheduled sessions).
const FixedAllocationKey = "online_learning"

// Contract is the signed service contract an allocation belongs to.
// Owned by the contracts collaborator; only the fields the engine needs.
type Contract struct {
	ID               string
	SchoolID         int64
	Estado           string // "activo" | "borrador" | "finalizado" | ...
	HorasContratadas decimal.Decimal
}

const ContractActive = "activo"

// =============================================================================
// ALLOCATIONS AND LEDGER
// =============================================================================

// ContractHourAllocation is the budget of hours a contract grants for one
// hour type. Created when the contract is signed; mutated only by
// administrative reallocation.
type ContractHourAllocation struct {
	ID                string
	ContratoID        string
	HourTypeID        string
	AllocatedHours    decimal.Decimal
	IsFixedAllocation bool
	CreatedBy         string
	CreatedAt         time.Time
}

// LedgerStatus is the state of a ledger entry.
//
// State machine: (none) -> reservada -> {consumida | devuelta | penalizada}.
// Terminal statuses are final; an entry transitions at most once out of
// reservada.
type LedgerStatus string

const (
	StatusReservada  LedgerStatus = "reservada"
	StatusConsumida  LedgerStatus = "consumida"
	StatusDevuelta   LedgerStatus = "devuelta"
	StatusPenalizada LedgerStatus = "penalizada"
)

// Terminal reports whether the status ends the entry's state machine.
func (s LedgerStatus) Terminal() bool {
	return s == StatusConsumida || s == StatusDevuelta || s == StatusPenalizada
}

// Valid reports whether s is one of the four ledger statuses.
func (s LedgerStatus) Valid() bool {
	return s == StatusReservada || s.Terminal()
}

// LedgerEntry is one transaction against an allocation's budget.
// Append-mostly: created in reservada, transitioned once, never deleted.
type LedgerEntry struct {
	ID           string
	AllocationID string
	SessionID    string
	ConsultantID string
	Hours        decimal.Decimal // 2dp
	Status       LedgerStatus
	SessionDate  string // YYYY-MM-DD
	IsOverBudget bool
	IsManual     bool

	// Cancellation metadata, set only when the entry leaves reservada
	// through a cancellation.
	CancelledByParty    Party
	CancellationClause  string
	CancellationReason  string
	AdminOverride       bool
	AdminOverrideReason string
	ConsultantPaid      bool

	RecordedBy string
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BucketSummary is the derived per-hour-type budget aggregate. Never stored;
// computed from the ledger at read time so it is always consistent.
//
// The two terminal cancellation statuses are asymmetric: devuelta hours
// return to the available budget (they simply stop counting as reserved),
// while penalizada hours stay deducted - forfeited from the school's budget
// without ever reaching the consultant's delivered-hours count.
type BucketSummary struct {
	HourTypeID     string          `json:"hour_type_id"`
	HourTypeKey    string          `json:"hour_type_key"`
	DisplayName    string          `json:"display_name"`
	AllocatedHours decimal.Decimal `json:"allocated_hours"`
	ReservedHours  decimal.Decimal `json:"reserved_hours"`
	ConsumedHours  decimal.Decimal `json:"consumed_hours"`
	PenalizedHours decimal.Decimal `json:"penalized_hours"`
	AvailableHours decimal.Decimal `json:"available_hours"` // allocated - reserved - consumed - penalized
}

// =============================================================================
// SESSIONS (external collaborator)
// =============================================================================

// SessionStatus mirrors the session collaborator's lifecycle states.
type SessionStatus string

const (
	SessionProgramada SessionStatus = "programada"
	SessionCompletada SessionStatus = "completada"
	SessionCancelada  SessionStatus = "cancelada"
)

// Session is the session record as the engine sees it. Owned by the external
// session-management collaborator and referenced here by id; the engine
// writes only its status and cancellation fields.
//
// HourTypeKey and ContratoID are empty on sessions predating hour tracking;
// those sessions are silently skipped by every ledger operation.
type Session struct {
	ID                       string
	SchoolID                 int64
	Title                    string
	SessionDate              string // YYYY-MM-DD, business timezone
	StartTime                string // HH:MM, business timezone
	EndTime                  string // HH:MM
	ScheduledDurationMinutes int
	Modality                 Modality
	Status                   SessionStatus
	HourTypeKey              string
	ContratoID               string
	ConsultantID             string

	CancelledBy          string
	CancelledAt          time.Time
	CancellationReason   string
	CancelledNoticeHours decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasHourTracking reports whether the session participates in the ledger.
func (s *Session) HasHourTracking() bool {
	return s.HourTypeKey != "" && s.ContratoID != ""
}

// Party identifies who cancelled a session.
type Party string

const (
	PartySchool       Party = "school"
	PartyFNE          Party = "fne" // the service-providing organization
	PartyForceMajeure Party = "force_majeure"
)

// Valid reports whether p is a known cancelling party.
func (p Party) Valid() bool {
	return p == PartySchool || p == PartyFNE || p == PartyForceMajeure
}

// =============================================================================
// RESULT TYPES - every field present on every path
// =============================================================================

// ReservationResult is the outcome of CreateReservation.
// Skipped means the session predates hour tracking and nothing was done.
// Error carries a business rejection; infrastructure failures are returned
// as Go errors instead.
type ReservationResult struct {
	Skipped       bool            `json:"skipped"`
	Error         string          `json:"error,omitempty"`
	LedgerEntryID string          `json:"ledger_entry_id,omitempty"`
	Hours         decimal.Decimal `json:"hours"`
	IsOverBudget  bool            `json:"is_over_budget"`
	AllocationID  string          `json:"allocation_id,omitempty"`
}

// CompletionResult is the outcome of CompleteReservation.
type CompletionResult struct {
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// ClauseResult is the evaluated cancellation clause. Derived, never stored,
// but its clause id and pay flag are copied into the ledger entry for audit.
//
// LedgerStatus and ConsultantPaid are independent axes: a penalizada entry
// can still pay the consultant.
type ClauseResult struct {
	Clause                   string          `json:"clause"`
	LedgerStatus             LedgerStatus    `json:"ledger_status"`
	ConsultantPaid           bool            `json:"consultant_paid"`
	ReschedulingDeadlineDays *int            `json:"rescheduling_deadline_days"`
	Description              string          `json:"description_es"`
	NoticeHours              decimal.Decimal `json:"notice_hours"`
}

// CancellationParams are the caller-supplied inputs to ExecuteCancellation.
type CancellationParams struct {
	CancelledByParty    Party
	Reason              string
	AdminOverrideStatus LedgerStatus // "" = no override; else devuelta|penalizada
	AdminOverrideReason string
}

// CancellationResult is the outcome of ExecuteCancellation.
type CancellationResult struct {
	Success              bool            `json:"success"`
	Error                string          `json:"error,omitempty"`
	ClauseResult         *ClauseResult   `json:"clause_result,omitempty"`
	CancelledNoticeHours decimal.Decimal `json:"cancelled_notice_hours"`
}

// =============================================================================
// CONSULTANT RATES
// =============================================================================

// ConsultantRate is the EUR hourly rate for one consultant and hour type,
// valid within [EffectiveFrom, EffectiveTo]. EffectiveTo empty = open-ended.
// Deletion is a soft close: EffectiveTo is set, the row stays for audit.
type ConsultantRate struct {
	ID            string
	ConsultantID  string
	HourTypeKey   string
	RateEUR       decimal.Decimal
	EffectiveFrom string // YYYY-MM-DD
	EffectiveTo   string // YYYY-MM-DD, "" = open
	CreatedBy     string
	CreatedAt     time.Time
}

// CoversDate reports whether the rate is effective on the given date
// (YYYY-MM-DD, lexicographic comparison is date order).
func (r *ConsultantRate) CoversDate(date string) bool {
	if date < r.EffectiveFrom {
		return false
	}
	return r.EffectiveTo == "" || date <= r.EffectiveTo
}

// Overlaps reports whether two effective ranges intersect.
func (r *ConsultantRate) Overlaps(from, to string) bool {
	if r.EffectiveTo != "" && r.EffectiveTo < from {
		return false
	}
	if to != "" && to < r.EffectiveFrom {
		return false
	}
	return true
}
