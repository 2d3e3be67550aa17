/*
store.go - Persistence interfaces for the hours engine

PURPOSE:
  Defines the contract between the business logic and the relational
  backend. Every method is a discrete, independently-committed statement:
  the backend offers NO multi-statement transaction to this layer. That
  absence is the central design constraint - multi-step operations are
  ordered so the ledger (source of financial truth) is written before any
  denormalized state, and cancellation carries an explicit compensating
  revert (see cancellation.go).

STATE MACHINE ENFORCEMENT:
  TransitionEntry is a compare-and-swap: the UPDATE is conditioned on
  the current status, and reports whether a row actually moved. Retried
  completions and cancellations therefore can never double-transition an
  entry, whichever implementation backs the interface.

IMPLEMENTATIONS:
  - store/sqlite: production store, goose-migrated schema
  - store/memory: in-memory store for tests and demos
*/
package hours

import "context"

// SessionStore reads and writes the session collaborator's records.
// The engine writes only status and cancellation fields.
type SessionStore interface {
	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, s *Session) error

	// SetSessionStatus updates only the lifecycle status.
	SetSessionStatus(ctx context.Context, id string, status SessionStatus, actorID string) error

	// CancelSession writes the session's cancellation fields in one statement.
	CancelSession(ctx context.Context, id string, c SessionCancellation) error
}

// SessionCancellation is the denormalized cancellation state written onto a
// session as the second step of a cancellation.
type SessionCancellation struct {
	CancelledBy        string
	CancelledAtUnix    int64
	CancellationReason string
	NoticeHours        string // 2dp decimal string
}

// CatalogStore serves immutable-ish reference data.
type CatalogStore interface {
	// GetHourTypeByKey returns the active hour type for key, or
	// ErrHourTypeNotFound.
	GetHourTypeByKey(ctx context.Context, key string) (*HourType, error)

	// ListHourTypes returns all active hour types.
	ListHourTypes(ctx context.Context) ([]HourType, error)

	// GetContract returns the contract or ErrContractNotFound.
	GetContract(ctx context.Context, id string) (*Contract, error)
}

// LedgerStore persists allocations and ledger entries.
type LedgerStore interface {
	// GetAllocation returns the allocation for (contract, hour type), or
	// ErrAllocationNotFound.
	GetAllocation(ctx context.Context, contratoID, hourTypeID string) (*ContractHourAllocation, error)

	// ListAllocations returns all allocations of a contract.
	ListAllocations(ctx context.Context, contratoID string) ([]ContractHourAllocation, error)

	// CreateAllocation inserts one allocation row. Callers validate the full
	// set first (validate-then-act); inserts are sequential, not atomic.
	CreateAllocation(ctx context.Context, a *ContractHourAllocation) error

	// DeleteAllocations removes all allocations of a contract.
	// Callers must first verify no ledger entry references them.
	DeleteAllocations(ctx context.Context, contratoID string) error

	// InsertLedgerEntry appends a new entry (status reservada).
	InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error

	// FindReservedEntry returns the session's reservada entry, or nil when
	// the session has none (legacy sessions, or already transitioned).
	FindReservedEntry(ctx context.Context, sessionID string) (*LedgerEntry, error)

	// FindEntryBySession returns the session's most recent entry in any
	// status, or nil when the session never had one.
	FindEntryBySession(ctx context.Context, sessionID string) (*LedgerEntry, error)

	// TransitionEntry moves an entry from one status to another iff it is
	// currently in from status (compare-and-swap). Returns false when no row
	// moved. upd fields are written alongside the status.
	TransitionEntry(ctx context.Context, id string, from, to LedgerStatus, upd LedgerUpdate) (bool, error)

	// BucketSummaries aggregates the ledger per hour type for one contract:
	// reserved = sum of reservada, consumed = sum of consumida, available =
	// allocated - reserved - consumed. devuelta and penalizada entries are
	// excluded from both sums.
	BucketSummaries(ctx context.Context, contratoID string) ([]BucketSummary, error)

	// CountContractEntries returns how many ledger entries reference any
	// allocation of the contract. Guards allocation deletion.
	CountContractEntries(ctx context.Context, contratoID string) (int, error)

	// ConsultantEntries returns a consultant's ledger entries with session
	// dates in [from, to], joined with their hour type.
	ConsultantEntries(ctx context.Context, consultantID, from, to string) ([]ConsultantEntry, error)

	// CountConsultantEntries returns how many ledger entries exist for a
	// consultant and hour type. Guards rate mutation.
	CountConsultantEntries(ctx context.Context, consultantID, hourTypeKey string) (int, error)
}

// LedgerUpdate carries the fields written during a status transition.
// Zero values clear the corresponding columns (compensation path).
type LedgerUpdate struct {
	UpdatedBy           string
	CancelledByParty    Party
	CancellationClause  string
	CancellationReason  string
	AdminOverride       bool
	AdminOverrideReason string
	ConsultantPaid      bool
}

// ConsultantEntry is a ledger entry joined with its hour type, as consumed
// by the earnings report.
type ConsultantEntry struct {
	Entry       LedgerEntry
	HourTypeKey string
	DisplayName string
}

// RateStore persists consultant rates.
type RateStore interface {
	// ListRates returns rates, optionally filtered by consultant
	// (consultantID == "" lists all).
	ListRates(ctx context.Context, consultantID string) ([]ConsultantRate, error)

	// GetRate returns the rate or ErrRateNotFound.
	GetRate(ctx context.Context, id string) (*ConsultantRate, error)

	// CreateRate inserts a rate row.
	CreateRate(ctx context.Context, r *ConsultantRate) error

	// UpdateRate rewrites an existing rate row.
	UpdateRate(ctx context.Context, r *ConsultantRate) error

	// CloseRate soft-deletes a rate by setting its effective_to date.
	CloseRate(ctx context.Context, id, effectiveTo string) error
}

// Store is the full persistence surface an implementation provides.
type Store interface {
	SessionStore
	CatalogStore
	LedgerStore
	RateStore
}
