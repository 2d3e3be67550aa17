/*
allocations.go - Contract hour allocation administration

PURPOSE:
  Creates and removes the budget buckets of a contract. A contract's hours
  are split across the nine hour types in a single administrative action;
  the split must account for every contracted hour exactly.

VALIDATE-THEN-ACT:
  All validations run before the first insert. Inserts are sequential
  single statements (no transaction available); a mid-set insert failure
  leaves a partial set that Remove can clear, and the ledger stays
  untouched either way because allocations carry no entries yet.
*/
package hours

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation administration rejections. Business outcomes, mapped to 4xx by
// the HTTP layer.
var (
	ErrContractNotActive     = errors.New("el contrato no está activo")
	ErrAllocationsExist      = errors.New("el contrato ya tiene horas asignadas")
	ErrAllocationSumMismatch = errors.New("la suma de horas no coincide con las horas contratadas")
	ErrDuplicateHourTypeKey  = errors.New("tipo de hora duplicado")
	ErrFixedNotAllowed       = errors.New("is_fixed solo es válido para online_learning")
	ErrLedgerEntriesExist    = errors.New("existen entradas en el libro de horas")
)

// IsAllocationRejection reports whether the error is an allocation business
// rejection (as opposed to a store failure).
func IsAllocationRejection(err error) bool {
	return errors.Is(err, ErrContractNotActive) ||
		errors.Is(err, ErrAllocationsExist) ||
		errors.Is(err, ErrAllocationSumMismatch) ||
		errors.Is(err, ErrDuplicateHourTypeKey) ||
		errors.Is(err, ErrFixedNotAllowed) ||
		errors.Is(err, ErrLedgerEntriesExist)
}

// AllocationInput is one requested budget bucket.
type AllocationInput struct {
	HourTypeKey string
	Hours       decimal.Decimal
	IsFixed     bool
}

// AllocationService administers contract hour allocations.
type AllocationService struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewAllocationService creates an allocation administration service.
func NewAllocationService(store Store, log *slog.Logger) *AllocationService {
	return &AllocationService{store: store, log: log, now: time.Now}
}

// Allocate creates the full allocation set for a contract.
//
// Rejections: contract missing or not activo, allocations already present,
// duplicate keys, unknown hour types, is_fixed outside online_learning, or
// a sum that doesn't match the contracted hours.
func (s *AllocationService) Allocate(ctx context.Context, contratoID string, inputs []AllocationInput, actorID string) ([]ContractHourAllocation, error) {
	contract, err := s.store.GetContract(ctx, contratoID)
	if err != nil {
		return nil, err
	}
	if contract.Estado != ContractActive {
		return nil, fmt.Errorf("%w: %s", ErrContractNotActive, contract.Estado)
	}

	existing, err := s.store.ListAllocations(ctx, contratoID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrAllocationsExist
	}

	seen := make(map[string]bool, len(inputs))
	sum := decimal.Zero
	for _, in := range inputs {
		if seen[in.HourTypeKey] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHourTypeKey, in.HourTypeKey)
		}
		seen[in.HourTypeKey] = true
		if in.IsFixed && in.HourTypeKey != FixedAllocationKey {
			return nil, fmt.Errorf("%w (got %s)", ErrFixedNotAllowed, in.HourTypeKey)
		}
		sum = sum.Add(in.Hours)
	}
	if !sum.Equal(contract.HorasContratadas) {
		return nil, fmt.Errorf("%w: %s != %s", ErrAllocationSumMismatch, sum, contract.HorasContratadas)
	}

	// Resolve every hour type before the first insert.
	hourTypes := make([]*HourType, len(inputs))
	for i, in := range inputs {
		ht, err := s.store.GetHourTypeByKey(ctx, in.HourTypeKey)
		if err != nil {
			return nil, fmt.Errorf("resolve hour type %q: %w", in.HourTypeKey, err)
		}
		hourTypes[i] = ht
	}

	created := make([]ContractHourAllocation, 0, len(inputs))
	for i, in := range inputs {
		alloc := ContractHourAllocation{
			ID:                uuid.NewString(),
			ContratoID:        contratoID,
			HourTypeID:        hourTypes[i].ID,
			AllocatedHours:    in.Hours,
			IsFixedAllocation: in.IsFixed,
			CreatedBy:         actorID,
			CreatedAt:         s.now(),
		}
		if err := s.store.CreateAllocation(ctx, &alloc); err != nil {
			return nil, fmt.Errorf("insert allocation %s: %w", in.HourTypeKey, err)
		}
		created = append(created, alloc)
	}

	s.log.Info("contract allocated",
		"contrato_id", contratoID,
		"buckets", len(created),
		"hours", sum.String(),
		"actor", actorID)
	return created, nil
}

// Remove deletes a contract's allocations. Blocked while any ledger entry
// references them - the ledger is never orphaned.
func (s *AllocationService) Remove(ctx context.Context, contratoID, actorID string) error {
	if _, err := s.store.GetContract(ctx, contratoID); err != nil {
		return err
	}
	n, err := s.store.CountContractEntries(ctx, contratoID)
	if err != nil {
		return fmt.Errorf("count ledger entries: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d", ErrLedgerEntriesExist, n)
	}
	if err := s.store.DeleteAllocations(ctx, contratoID); err != nil {
		return fmt.Errorf("delete allocations: %w", err)
	}
	s.log.Info("contract allocations removed", "contrato_id", contratoID, "actor", actorID)
	return nil
}
