/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements hours.Store and fx.Store using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

NO MULTI-STATEMENT TRANSACTIONS:
  Every exported method is exactly one SQL statement. The business layer is
  written for a backend without transactions, so this store deliberately does
  not offer them: multi-step operations rely on write ordering and the
  conditional status transition instead.

STATE MACHINE ENFORCEMENT:
  TransitionEntry runs UPDATE ... WHERE id = ? AND status = ? and reports
  RowsAffected. A retried completion or cancellation matches zero rows and
  reports no movement instead of double-transitioning.

DECIMAL STORAGE:
  Hour and rate amounts are stored as TEXT and parsed with
  decimal.NewFromString, so quantities round-trip exactly. The one exception
  is the bucket-summary aggregation, where SQLite sums REAL casts; sums of
  2dp quantities stay exact well past any realistic contract size, and the
  result is re-rounded to 2dp.

MIGRATIONS:
  Schema is versioned with goose and embedded in the binary. New() runs
  pending migrations on open, including the hour-type seed data.

USAGE:
  store, err := sqlite.New("./data/hours.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - hours/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/hours"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements hours.Store and fx.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given database path and runs pending
// migrations. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, school_id, title, session_date, start_time, end_time,
	scheduled_duration_minutes, modality, status, hour_type_key, contrato_id,
	consultant_id, cancelled_by, cancelled_at, cancellation_reason,
	cancelled_notice_hours, created_at, updated_at`

func (s *Store) GetSession(ctx context.Context, id string) (*hours.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM consultor_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, hours.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *hours.Session) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consultor_sessions
		(id, school_id, title, session_date, start_time, end_time,
		 scheduled_duration_minutes, modality, status, hour_type_key,
		 contrato_id, consultant_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.SchoolID,
		sess.Title,
		sess.SessionDate,
		sess.StartTime,
		sess.EndTime,
		sess.ScheduledDurationMinutes,
		string(sess.Modality),
		string(sess.Status),
		sess.HourTypeKey,
		sess.ContratoID,
		sess.ConsultantID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id string, status hours.SessionStatus, _ string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultor_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return hours.ErrSessionNotFound
	}
	return nil
}

func (s *Store) CancelSession(ctx context.Context, id string, c hours.SessionCancellation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultor_sessions
		SET status = ?, cancelled_by = ?, cancelled_at = ?,
		    cancellation_reason = ?, cancelled_notice_hours = ?, updated_at = ?
		WHERE id = ?`,
		string(hours.SessionCancelada),
		c.CancelledBy,
		c.CancelledAtUnix,
		c.CancellationReason,
		c.NoticeHours,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return hours.ErrSessionNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (*hours.Session, error) {
	var sess hours.Session
	var modality, status string
	var title, startTime, endTime, hourTypeKey, contratoID, consultantID sql.NullString
	var cancelledBy, cancellationReason, noticeHours sql.NullString
	var cancelledAt sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(
		&sess.ID, &sess.SchoolID, &title, &sess.SessionDate, &startTime, &endTime,
		&sess.ScheduledDurationMinutes, &modality, &status, &hourTypeKey, &contratoID,
		&consultantID, &cancelledBy, &cancelledAt, &cancellationReason,
		&noticeHours, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Title = title.String
	sess.StartTime = startTime.String
	sess.EndTime = endTime.String
	sess.Modality = hours.Modality(modality)
	sess.Status = hours.SessionStatus(status)
	sess.HourTypeKey = hourTypeKey.String
	sess.ContratoID = contratoID.String
	sess.ConsultantID = consultantID.String
	sess.CancelledBy = cancelledBy.String
	if cancelledAt.Valid {
		sess.CancelledAt = time.Unix(cancelledAt.Int64, 0)
	}
	sess.CancellationReason = cancellationReason.String
	if noticeHours.Valid && noticeHours.String != "" {
		if d, err := decimal.NewFromString(noticeHours.String); err == nil {
			sess.CancelledNoticeHours = d
		}
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) GetHourTypeByKey(ctx context.Context, key string) (*hours.HourType, error) {
	var ht hours.HourType
	var modality string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, key, display_name, modality, is_active
		FROM hour_types WHERE key = ? AND is_active = 1`, key).
		Scan(&ht.ID, &ht.Key, &ht.DisplayName, &modality, &ht.IsActive)
	if err == sql.ErrNoRows {
		return nil, hours.ErrHourTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hour type: %w", err)
	}
	ht.Modality = hours.Modality(modality)
	return &ht, nil
}

func (s *Store) ListHourTypes(ctx context.Context) ([]hours.HourType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key, display_name, modality, is_active
		FROM hour_types WHERE is_active = 1 ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hour types: %w", err)
	}
	defer rows.Close()

	var out []hours.HourType
	for rows.Next() {
		var ht hours.HourType
		var modality string
		if err := rows.Scan(&ht.ID, &ht.Key, &ht.DisplayName, &modality, &ht.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan hour type: %w", err)
		}
		ht.Modality = hours.Modality(modality)
		out = append(out, ht)
	}
	return out, rows.Err()
}

func (s *Store) GetContract(ctx context.Context, id string) (*hours.Contract, error) {
	var c hours.Contract
	var horas string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, school_id, estado, horas_contratadas
		FROM contratos WHERE id = ?`, id).
		Scan(&c.ID, &c.SchoolID, &c.Estado, &horas)
	if err == sql.ErrNoRows {
		return nil, hours.ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	c.HorasContratadas, err = decimal.NewFromString(horas)
	if err != nil {
		return nil, fmt.Errorf("corrupt horas_contratadas for contract %s: %w", id, err)
	}
	return &c, nil
}

// SaveContract upserts a contract mirror row (sync path and test seeding).
func (s *Store) SaveContract(ctx context.Context, c hours.Contract) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contratos (id, school_id, estado, horas_contratadas)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			school_id = excluded.school_id,
			estado = excluded.estado,
			horas_contratadas = excluded.horas_contratadas`,
		c.ID, c.SchoolID, c.Estado, c.HorasContratadas.String())
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (s *Store) GetAllocation(ctx context.Context, contratoID, hourTypeID string) (*hours.ContractHourAllocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, contrato_id, hour_type_id, allocated_hours, is_fixed_allocation, created_by, created_at
		FROM contract_hour_allocations WHERE contrato_id = ? AND hour_type_id = ?`,
		contratoID, hourTypeID)
	a, err := scanAllocation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, hours.ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return a, nil
}

func (s *Store) ListAllocations(ctx context.Context, contratoID string) ([]hours.ContractHourAllocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contrato_id, hour_type_id, allocated_hours, is_fixed_allocation, created_by, created_at
		FROM contract_hour_allocations WHERE contrato_id = ? ORDER BY id`, contratoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []hours.ContractHourAllocation
	for rows.Next() {
		a, err := scanAllocation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAllocation(ctx context.Context, a *hours.ContractHourAllocation) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_hour_allocations
		(id, contrato_id, hour_type_id, allocated_hours, is_fixed_allocation, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ContratoID, a.HourTypeID, a.AllocatedHours.String(),
		a.IsFixedAllocation, a.CreatedBy, createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllocations(ctx context.Context, contratoID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM contract_hour_allocations WHERE contrato_id = ?`, contratoID)
	if err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	return nil
}

func scanAllocation(scan func(dest ...any) error) (*hours.ContractHourAllocation, error) {
	var a hours.ContractHourAllocation
	var allocated, createdAt string
	var createdBy sql.NullString
	err := scan(&a.ID, &a.ContratoID, &a.HourTypeID, &allocated, &a.IsFixedAllocation, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}
	a.AllocatedHours, err = decimal.NewFromString(allocated)
	if err != nil {
		return nil, fmt.Errorf("corrupt allocated_hours for allocation %s: %w", a.ID, err)
	}
	a.CreatedBy = createdBy.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// =============================================================================
// LEDGER
// =============================================================================

const ledgerColumns = `id, allocation_id, session_id, consultant_id, hours, status,
	session_date, is_over_budget, is_manual, cancelled_by_party, cancellation_clause,
	cancellation_reason, admin_override, admin_override_reason, consultant_paid,
	recorded_by, updated_by, created_at, updated_at`

func (s *Store) InsertLedgerEntry(ctx context.Context, e *hours.LedgerEntry) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contract_hours_ledger
		(id, allocation_id, session_id, consultant_id, hours, status, session_date,
		 is_over_budget, is_manual, consultant_paid, recorded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AllocationID, e.SessionID, e.ConsultantID,
		e.Hours.String(), string(e.Status), e.SessionDate,
		e.IsOverBudget, e.IsManual, e.ConsultantPaid, e.RecordedBy, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) FindReservedEntry(ctx context.Context, sessionID string) (*hours.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM contract_hours_ledger
		WHERE session_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		sessionID, string(hours.StatusReservada))
	e, err := scanLedgerEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reserved entry: %w", err)
	}
	return e, nil
}

func (s *Store) FindEntryBySession(ctx context.Context, sessionID string) (*hours.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM contract_hours_ledger
		WHERE session_id = ?
		ORDER BY created_at DESC LIMIT 1`, sessionID)
	e, err := scanLedgerEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return e, nil
}

// TransitionEntry moves the entry out of from only if it is still there.
// RowsAffected is the entire concurrency story: two racing transitions
// cannot both match the WHERE clause.
func (s *Store) TransitionEntry(ctx context.Context, id string, from, to hours.LedgerStatus, upd hours.LedgerUpdate) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contract_hours_ledger
		SET status = ?, updated_by = ?, cancelled_by_party = ?, cancellation_clause = ?,
		    cancellation_reason = ?, admin_override = ?, admin_override_reason = ?,
		    consultant_paid = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), upd.UpdatedBy, string(upd.CancelledByParty), upd.CancellationClause,
		upd.CancellationReason, upd.AdminOverride, upd.AdminOverrideReason,
		upd.ConsultantPaid, time.Now().UTC().Format(time.RFC3339),
		id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// BucketSummaries aggregates in SQL so the result reflects exactly one read
// of the ledger. devuelta is the only status omitted from every column:
// returned hours free the budget again, penalizada hours stay deducted.
func (s *Store) BucketSummaries(ctx context.Context, contratoID string) ([]hours.BucketSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.hour_type_id, ht.key, ht.display_name, a.allocated_hours,
		       COALESCE(SUM(CASE WHEN l.status = 'reservada' THEN CAST(l.hours AS REAL) ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN l.status = 'consumida' THEN CAST(l.hours AS REAL) ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN l.status = 'penalizada' THEN CAST(l.hours AS REAL) ELSE 0 END), 0)
		FROM contract_hour_allocations a
		JOIN hour_types ht ON ht.id = a.hour_type_id
		LEFT JOIN contract_hours_ledger l ON l.allocation_id = a.id
		WHERE a.contrato_id = ?
		GROUP BY a.id, a.hour_type_id, ht.key, ht.display_name, a.allocated_hours
		ORDER BY ht.key`, contratoID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate buckets: %w", err)
	}
	defer rows.Close()

	var out []hours.BucketSummary
	for rows.Next() {
		var b hours.BucketSummary
		var allocated string
		var reserved, consumed, penalized float64
		if err := rows.Scan(&b.HourTypeID, &b.HourTypeKey, &b.DisplayName, &allocated, &reserved, &consumed, &penalized); err != nil {
			return nil, fmt.Errorf("failed to scan bucket summary: %w", err)
		}
		b.AllocatedHours, err = decimal.NewFromString(allocated)
		if err != nil {
			return nil, fmt.Errorf("corrupt allocated_hours for hour type %s: %w", b.HourTypeKey, err)
		}
		b.ReservedHours = decimal.NewFromFloat(reserved).Round(2)
		b.ConsumedHours = decimal.NewFromFloat(consumed).Round(2)
		b.PenalizedHours = decimal.NewFromFloat(penalized).Round(2)
		b.AvailableHours = b.AllocatedHours.
			Sub(b.ReservedHours).
			Sub(b.ConsumedHours).
			Sub(b.PenalizedHours)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CountContractEntries(ctx context.Context, contratoID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM contract_hours_ledger l
		JOIN contract_hour_allocations a ON a.id = l.allocation_id
		WHERE a.contrato_id = ?`, contratoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contract entries: %w", err)
	}
	return n, nil
}

func (s *Store) ConsultantEntries(ctx context.Context, consultantID, from, to string) ([]hours.ConsultantEntry, error) {
	query := `
		SELECT ` + prefixedLedgerColumns("l") + `, ht.key, ht.display_name
		FROM contract_hours_ledger l
		JOIN contract_hour_allocations a ON a.id = l.allocation_id
		JOIN hour_types ht ON ht.id = a.hour_type_id
		WHERE l.consultant_id = ?`
	args := []any{consultantID}
	if from != "" {
		query += ` AND l.session_date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND l.session_date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY l.session_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultant entries: %w", err)
	}
	defer rows.Close()

	var out []hours.ConsultantEntry
	for rows.Next() {
		var ce hours.ConsultantEntry
		e, err := scanLedgerEntryExtra(rows.Scan, &ce.HourTypeKey, &ce.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consultant entry: %w", err)
		}
		ce.Entry = *e
		out = append(out, ce)
	}
	return out, rows.Err()
}

func (s *Store) CountConsultantEntries(ctx context.Context, consultantID, hourTypeKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM contract_hours_ledger l
		JOIN contract_hour_allocations a ON a.id = l.allocation_id
		JOIN hour_types ht ON ht.id = a.hour_type_id
		WHERE l.consultant_id = ? AND ht.key = ?`, consultantID, hourTypeKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count consultant entries: %w", err)
	}
	return n, nil
}

func scanLedgerEntry(scan func(dest ...any) error) (*hours.LedgerEntry, error) {
	return scanLedgerEntryExtra(scan)
}

func scanLedgerEntryExtra(scan func(dest ...any) error, extra ...any) (*hours.LedgerEntry, error) {
	var e hours.LedgerEntry
	var hoursStr, status string
	var sessionID, consultantID, sessionDate sql.NullString
	var party, clause, reason, overrideReason, recordedBy, updatedBy sql.NullString
	var createdAt, updatedAt string

	dest := []any{
		&e.ID, &e.AllocationID, &sessionID, &consultantID, &hoursStr, &status,
		&sessionDate, &e.IsOverBudget, &e.IsManual, &party, &clause,
		&reason, &e.AdminOverride, &overrideReason, &e.ConsultantPaid,
		&recordedBy, &updatedBy, &createdAt, &updatedAt,
	}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return nil, err
	}

	var err error
	e.Hours, err = decimal.NewFromString(hoursStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt hours for ledger entry %s: %w", e.ID, err)
	}
	e.SessionID = sessionID.String
	e.ConsultantID = consultantID.String
	e.Status = hours.LedgerStatus(status)
	e.SessionDate = sessionDate.String
	e.CancelledByParty = hours.Party(party.String)
	e.CancellationClause = clause.String
	e.CancellationReason = reason.String
	e.AdminOverrideReason = overrideReason.String
	e.RecordedBy = recordedBy.String
	e.UpdatedBy = updatedBy.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, nil
}

func prefixedLedgerColumns(alias string) string {
	return alias + `.id, ` + alias + `.allocation_id, ` + alias + `.session_id, ` +
		alias + `.consultant_id, ` + alias + `.hours, ` + alias + `.status, ` +
		alias + `.session_date, ` + alias + `.is_over_budget, ` + alias + `.is_manual, ` +
		alias + `.cancelled_by_party, ` + alias + `.cancellation_clause, ` +
		alias + `.cancellation_reason, ` + alias + `.admin_override, ` +
		alias + `.admin_override_reason, ` + alias + `.consultant_paid, ` +
		alias + `.recorded_by, ` + alias + `.updated_by, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

// =============================================================================
// CONSULTANT RATES
// =============================================================================

func (s *Store) ListRates(ctx context.Context, consultantID string) ([]hours.ConsultantRate, error) {
	query := `
		SELECT id, consultant_id, hour_type_key, rate_eur, effective_from, effective_to, created_by, created_at
		FROM consultant_rates`
	var args []any
	if consultantID != "" {
		query += ` WHERE consultant_id = ?`
		args = append(args, consultantID)
	}
	query += ` ORDER BY consultant_id, hour_type_key, effective_from`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var out []hours.ConsultantRate
	for rows.Next() {
		r, err := scanRate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) GetRate(ctx context.Context, id string) (*hours.ConsultantRate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, consultant_id, hour_type_key, rate_eur, effective_from, effective_to, created_by, created_at
		FROM consultant_rates WHERE id = ?`, id)
	r, err := scanRate(row.Scan)
	if err == sql.ErrNoRows {
		return nil, hours.ErrRateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	return r, nil
}

func (s *Store) CreateRate(ctx context.Context, r *hours.ConsultantRate) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consultant_rates
		(id, consultant_id, hour_type_key, rate_eur, effective_from, effective_to, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConsultantID, r.HourTypeKey, r.RateEUR.String(),
		r.EffectiveFrom, nullString(r.EffectiveTo), r.CreatedBy,
		createdAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create rate: %w", err)
	}
	return nil
}

func (s *Store) UpdateRate(ctx context.Context, r *hours.ConsultantRate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultant_rates
		SET rate_eur = ?, effective_from = ?, effective_to = ?
		WHERE id = ?`,
		r.RateEUR.String(), r.EffectiveFrom, nullString(r.EffectiveTo), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update rate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return hours.ErrRateNotFound
	}
	return nil
}

func (s *Store) CloseRate(ctx context.Context, id, effectiveTo string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultant_rates SET effective_to = ? WHERE id = ?`,
		effectiveTo, id)
	if err != nil {
		return fmt.Errorf("failed to close rate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return hours.ErrRateNotFound
	}
	return nil
}

func scanRate(scan func(dest ...any) error) (*hours.ConsultantRate, error) {
	var r hours.ConsultantRate
	var rate, createdAt string
	var effectiveTo, createdBy sql.NullString
	err := scan(&r.ID, &r.ConsultantID, &r.HourTypeKey, &rate, &r.EffectiveFrom, &effectiveTo, &createdBy, &createdAt)
	if err != nil {
		return nil, err
	}
	r.RateEUR, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("corrupt rate_eur for rate %s: %w", r.ID, err)
	}
	r.EffectiveTo = effectiveTo.String
	r.CreatedBy = createdBy.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// =============================================================================
// FX SNAPSHOTS
// =============================================================================

func (s *Store) LatestSnapshot(ctx context.Context) (*fx.Snapshot, error) {
	var rate, fetchedAt, source string
	err := s.db.QueryRowContext(ctx, `
		SELECT rate_clp_per_eur, fetched_at, source
		FROM fx_rates ORDER BY id DESC LIMIT 1`).
		Scan(&rate, &fetchedAt, &source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest fx snapshot: %w", err)
	}

	var snap fx.Snapshot
	snap.RateCLPPerEUR, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("corrupt fx rate: %w", err)
	}
	snap.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	snap.Source = source
	return &snap, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap fx.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fx_rates (rate_clp_per_eur, fetched_at, source)
		VALUES (?, ?, ?)`,
		snap.RateCLPPerEUR.String(),
		snap.FetchedAt.UTC().Format(time.RFC3339),
		snap.Source)
	if err != nil {
		return fmt.Errorf("failed to insert fx snapshot: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
