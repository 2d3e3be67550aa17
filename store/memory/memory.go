// Package memory provides in-memory Store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/hours"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store implements hours.Store and fx.Store with mutex-guarded maps.
// Every method is a discrete operation, mirroring the production backend's
// no-transaction contract.
type Store struct {
	mu sync.RWMutex

	sessions    map[string]*hours.Session
	hourTypes   map[string]*hours.HourType // by id
	contracts   map[string]*hours.Contract
	allocations map[string]*hours.ContractHourAllocation
	entries     map[string]*hours.LedgerEntry
	rates       map[string]*hours.ConsultantRate
	fxSnapshots []fx.Snapshot
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*hours.Session),
		hourTypes:   make(map[string]*hours.HourType),
		contracts:   make(map[string]*hours.Contract),
		allocations: make(map[string]*hours.ContractHourAllocation),
		entries:     make(map[string]*hours.LedgerEntry),
		rates:       make(map[string]*hours.ConsultantRate),
	}
}

// =============================================================================
// SEED HELPERS (reference data has no write path in the service itself)
// =============================================================================

// SeedHourType registers an hour type.
func (m *Store) SeedHourType(ht hours.HourType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hourTypes[ht.ID] = &ht
}

// SeedContract registers a contract.
func (m *Store) SeedContract(c hours.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.ID] = &c
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Store) GetSession(_ context.Context, id string) (*hours.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, hours.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) CreateSession(_ context.Context, s *hours.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.sessions[cp.ID] = &cp
	return nil
}

func (m *Store) SetSessionStatus(_ context.Context, id string, status hours.SessionStatus, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return hours.ErrSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (m *Store) CancelSession(_ context.Context, id string, c hours.SessionCancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return hours.ErrSessionNotFound
	}
	s.Status = hours.SessionCancelada
	s.CancelledBy = c.CancelledBy
	s.CancelledAt = time.Unix(c.CancelledAtUnix, 0)
	s.CancellationReason = c.CancellationReason
	if notice, err := decimal.NewFromString(c.NoticeHours); err == nil {
		s.CancelledNoticeHours = notice
	}
	s.UpdatedAt = time.Now()
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Store) GetHourTypeByKey(_ context.Context, key string) (*hours.HourType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ht := range m.hourTypes {
		if ht.Key == key && ht.IsActive {
			cp := *ht
			return &cp, nil
		}
	}
	return nil, hours.ErrHourTypeNotFound
}

func (m *Store) ListHourTypes(_ context.Context) ([]hours.HourType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hours.HourType
	for _, ht := range m.hourTypes {
		if ht.IsActive {
			out = append(out, *ht)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Store) GetContract(_ context.Context, id string) (*hours.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[id]
	if !ok {
		return nil, hours.ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

// =============================================================================
// ALLOCATIONS AND LEDGER
// =============================================================================

func (m *Store) GetAllocation(_ context.Context, contratoID, hourTypeID string) (*hours.ContractHourAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.allocations {
		if a.ContratoID == contratoID && a.HourTypeID == hourTypeID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, hours.ErrAllocationNotFound
}

func (m *Store) ListAllocations(_ context.Context, contratoID string) ([]hours.ContractHourAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hours.ContractHourAllocation
	for _, a := range m.allocations {
		if a.ContratoID == contratoID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) CreateAllocation(_ context.Context, a *hours.ContractHourAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.allocations[cp.ID] = &cp
	return nil
}

func (m *Store) DeleteAllocations(_ context.Context, contratoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.allocations {
		if a.ContratoID == contratoID {
			delete(m.allocations, id)
		}
	}
	return nil
}

func (m *Store) InsertLedgerEntry(_ context.Context, e *hours.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.entries[cp.ID] = &cp
	return nil
}

func (m *Store) FindReservedEntry(_ context.Context, sessionID string) (*hours.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.SessionID == sessionID && e.Status == hours.StatusReservada {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) FindEntryBySession(_ context.Context, sessionID string) (*hours.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *hours.LedgerEntry
	for _, e := range m.entries {
		if e.SessionID != sessionID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// TransitionEntry is the compare-and-swap at the heart of the state machine:
// the write happens only if the entry is still in the expected from status.
func (m *Store) TransitionEntry(_ context.Context, id string, from, to hours.LedgerStatus, upd hours.LedgerUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedBy = upd.UpdatedBy
	e.CancelledByParty = upd.CancelledByParty
	e.CancellationClause = upd.CancellationClause
	e.CancellationReason = upd.CancellationReason
	e.AdminOverride = upd.AdminOverride
	e.AdminOverrideReason = upd.AdminOverrideReason
	e.ConsultantPaid = upd.ConsultantPaid
	e.UpdatedAt = time.Now()
	return true, nil
}

func (m *Store) BucketSummaries(_ context.Context, contratoID string) ([]hours.BucketSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []hours.BucketSummary
	for _, a := range m.allocations {
		if a.ContratoID != contratoID {
			continue
		}
		summary := hours.BucketSummary{
			HourTypeID:     a.HourTypeID,
			AllocatedHours: a.AllocatedHours,
			ReservedHours:  decimal.Zero,
			ConsumedHours:  decimal.Zero,
			PenalizedHours: decimal.Zero,
		}
		if ht, ok := m.hourTypes[a.HourTypeID]; ok {
			summary.HourTypeKey = ht.Key
			summary.DisplayName = ht.DisplayName
		}
		for _, e := range m.entries {
			if e.AllocationID != a.ID {
				continue
			}
			switch e.Status {
			case hours.StatusReservada:
				summary.ReservedHours = summary.ReservedHours.Add(e.Hours)
			case hours.StatusConsumida:
				summary.ConsumedHours = summary.ConsumedHours.Add(e.Hours)
			case hours.StatusPenalizada:
				// Forfeited: stays deducted from the budget. devuelta is the
				// only status that frees the hours again.
				summary.PenalizedHours = summary.PenalizedHours.Add(e.Hours)
			}
		}
		summary.AvailableHours = summary.AllocatedHours.
			Sub(summary.ReservedHours).
			Sub(summary.ConsumedHours).
			Sub(summary.PenalizedHours)
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourTypeKey < out[j].HourTypeKey })
	return out, nil
}

func (m *Store) CountContractEntries(_ context.Context, contratoID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		a, ok := m.allocations[e.AllocationID]
		if ok && a.ContratoID == contratoID {
			n++
		}
	}
	return n, nil
}

func (m *Store) ConsultantEntries(_ context.Context, consultantID, from, to string) ([]hours.ConsultantEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hours.ConsultantEntry
	for _, e := range m.entries {
		if e.ConsultantID != consultantID {
			continue
		}
		if from != "" && e.SessionDate < from {
			continue
		}
		if to != "" && e.SessionDate > to {
			continue
		}
		ce := hours.ConsultantEntry{Entry: *e}
		if a, ok := m.allocations[e.AllocationID]; ok {
			if ht, ok := m.hourTypes[a.HourTypeID]; ok {
				ce.HourTypeKey = ht.Key
				ce.DisplayName = ht.DisplayName
			}
		}
		out = append(out, ce)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Entry.SessionDate < out[j].Entry.SessionDate
	})
	return out, nil
}

func (m *Store) CountConsultantEntries(_ context.Context, consultantID, hourTypeKey string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.ConsultantID != consultantID {
			continue
		}
		a, ok := m.allocations[e.AllocationID]
		if !ok {
			continue
		}
		ht, ok := m.hourTypes[a.HourTypeID]
		if ok && ht.Key == hourTypeKey {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// CONSULTANT RATES
// =============================================================================

func (m *Store) ListRates(_ context.Context, consultantID string) ([]hours.ConsultantRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hours.ConsultantRate
	for _, r := range m.rates {
		if consultantID == "" || r.ConsultantID == consultantID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConsultantID != out[j].ConsultantID {
			return out[i].ConsultantID < out[j].ConsultantID
		}
		return out[i].EffectiveFrom < out[j].EffectiveFrom
	})
	return out, nil
}

func (m *Store) GetRate(_ context.Context, id string) (*hours.ConsultantRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rates[id]
	if !ok {
		return nil, hours.ErrRateNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Store) CreateRate(_ context.Context, r *hours.ConsultantRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.rates[cp.ID] = &cp
	return nil
}

func (m *Store) UpdateRate(_ context.Context, r *hours.ConsultantRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rates[r.ID]; !ok {
		return hours.ErrRateNotFound
	}
	cp := *r
	m.rates[cp.ID] = &cp
	return nil
}

func (m *Store) CloseRate(_ context.Context, id, effectiveTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rates[id]
	if !ok {
		return hours.ErrRateNotFound
	}
	r.EffectiveTo = effectiveTo
	return nil
}

// =============================================================================
// FX SNAPSHOTS
// =============================================================================

func (m *Store) LatestSnapshot(_ context.Context) (*fx.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.fxSnapshots) == 0 {
		return nil, nil
	}
	cp := m.fxSnapshots[len(m.fxSnapshots)-1]
	return &cp, nil
}

func (m *Store) InsertSnapshot(_ context.Context, s fx.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fxSnapshots = append(m.fxSnapshots, s)
	return nil
}
