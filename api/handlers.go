/*
handlers.go - HTTP API handlers for the hour tracking engine

PURPOSE:
  Exposes the hour tracking and cancellation ledger via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Sessions:
    POST   /api/sessions                    Create a session record
    GET    /api/sessions/{id}               Get session details
    POST   /api/sessions/{id}/schedule      Reserve hours for the session
    POST   /api/sessions/{id}/finalize      Consume the reservation
    POST   /api/sessions/{id}/cancel        Cancel with clause evaluation

  Contracts:
    GET    /api/contracts/{id}/buckets      Per-hour-type budget summary
    GET    /api/contracts/{id}/allocations  List allocations
    POST   /api/contracts/{id}/allocations  Create the full allocation set
    DELETE /api/contracts/{id}/allocations  Remove (blocked once ledger has entries)

  Catalog:
    GET    /api/hour-types                  List active hour types

  Consultants:
    GET    /api/consultants/{id}/earnings   Earnings report (?from=&to=)

  Admin:
    GET    /api/admin/consultant-rates      List rates (?consultant_id=)
    POST   /api/admin/consultant-rates      Create rate
    PATCH  /api/admin/consultant-rates/{id} Reprice
    DELETE /api/admin/consultant-rates/{id} Soft close

  FX:
    GET    /api/fx/latest                   Current EUR->CLP rate
    POST   /api/fx/refresh                  Force a refresh

ACTOR IDENTIFICATION:
  The X-Actor-ID header identifies who performed the operation; it is
  recorded on ledger writes. Defaults to "system" when absent.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business rejections
  - 404: Resource not found
  - 409: Conflict (allocation in use, rate overlap, rate in use)
  - 500: Infrastructure errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/hours"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        hours.Store
	Engine       *hours.Engine
	Orchestrator *hours.Orchestrator
	Allocations  *hours.AllocationService
	Rates        *hours.RateService
	Earnings     *hours.EarningsService
	Fx           *fx.Service
	Log          *slog.Logger
}

// NewHandler creates a handler wiring all services over one store.
func NewHandler(store hours.Store, fxService *fx.Service, policy *hours.ClausePolicy, log *slog.Logger) *Handler {
	return &Handler{
		Store:        store,
		Engine:       hours.NewEngine(store, log),
		Orchestrator: hours.NewOrchestrator(store, policy, log),
		Allocations:  hours.NewAllocationService(store, log),
		Rates:        hours.NewRateService(store, log),
		Earnings:     hours.NewEarningsService(store, fxService, log),
		Fx:           fxService,
		Log:          log,
	}
}

func actorID(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "system"
}

// =============================================================================
// SESSION ENDPOINTS
// =============================================================================

// CreateSession registers a session record.
// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.SessionDate == "" {
		writeError(w, http.StatusBadRequest, "session_date is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	sess := &hours.Session{
		ID:                       req.ID,
		SchoolID:                 req.SchoolID,
		Title:                    req.Title,
		SessionDate:              req.SessionDate,
		StartTime:                req.StartTime,
		EndTime:                  req.EndTime,
		ScheduledDurationMinutes: req.ScheduledDurationMinutes,
		Modality:                 hours.Modality(req.Modality),
		Status:                   hours.SessionProgramada,
		HourTypeKey:              req.HourTypeKey,
		ContratoID:               req.ContratoID,
		ConsultantID:             req.ConsultantID,
	}
	if err := h.Store.CreateSession(r.Context(), sess); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// GetSession returns one session.
// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// ScheduleSession reserves hours for the session.
// POST /api/sessions/{id}/schedule
func (h *Handler) ScheduleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.Store.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	result, err := h.Engine.CreateReservation(ctx, sess, actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}

	switch {
	case result.Skipped:
		reservationsTotal.WithLabelValues("skipped").Inc()
	case result.Error != "":
		reservationsTotal.WithLabelValues("rejected").Inc()
	case result.IsOverBudget:
		reservationsTotal.WithLabelValues("over_budget").Inc()
	default:
		reservationsTotal.WithLabelValues("created").Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// FinalizeSession marks the session completed and consumes its reservation.
// POST /api/sessions/{id}/finalize
func (h *Handler) FinalizeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	actor := actorID(r)

	sess, err := h.Store.GetSession(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	// Reservation completion is advisory: a ledger failure is logged and
	// the finalization continues. The entry stays reservada and is picked
	// up by a later retry or reconciliation.
	result, err := h.Engine.CompleteReservation(ctx, id, actor)
	switch {
	case err != nil:
		h.Log.Error("reservation completion failed, finalizing session anyway",
			"session_id", id, "err", err)
		completionsTotal.WithLabelValues("error").Inc()
		result = hours.CompletionResult{Skipped: true}
	case result.Skipped:
		completionsTotal.WithLabelValues("skipped").Inc()
	default:
		completionsTotal.WithLabelValues("consumed").Inc()
	}

	if sess.Status != hours.SessionCompletada {
		if err := h.Store.SetSessionStatus(ctx, id, hours.SessionCompletada, actor); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to update session status", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// CancelSession cancels the session, evaluating the contract clause.
// POST /api/sessions/{id}/cancel
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CancelSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sess, err := h.Store.GetSession(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	params := hours.CancellationParams{
		CancelledByParty:    hours.Party(req.CancelledByParty),
		Reason:              req.Reason,
		AdminOverrideStatus: hours.LedgerStatus(req.AdminOverrideStatus),
		AdminOverrideReason: req.AdminOverrideReason,
	}
	result, err := h.Orchestrator.ExecuteCancellation(ctx, sess, params, actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to cancel session", err)
		return
	}

	if result.ClauseResult != nil {
		cancellationsTotal.WithLabelValues(result.ClauseResult.Clause, string(result.ClauseResult.LedgerStatus)).Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListHourTypes returns all active hour types.
// GET /api/hour-types
func (h *Handler) ListHourTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListHourTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list hour types", err)
		return
	}
	dtos := make([]HourTypeDTO, 0, len(types))
	for _, ht := range types {
		dtos = append(dtos, toHourTypeDTO(ht))
	}
	writeJSON(w, http.StatusOK, map[string]any{"hour_types": dtos})
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

// GetBuckets returns the contract's per-hour-type budget summary.
// GET /api/contracts/{id}/buckets
func (h *Handler) GetBuckets(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Engine.BucketSummaries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to aggregate buckets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": summaries})
}

// ListAllocations returns the contract's allocations.
// GET /api/contracts/{id}/allocations
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.Store.ListAllocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list allocations", err)
		return
	}
	dtos := make([]AllocationDTO, 0, len(allocations))
	for _, a := range allocations {
		dtos = append(dtos, toAllocationDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"allocations": dtos})
}

// CreateAllocations creates the contract's full allocation set.
// POST /api/contracts/{id}/allocations
func (h *Handler) CreateAllocations(w http.ResponseWriter, r *http.Request) {
	var req CreateAllocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inputs := make([]hours.AllocationInput, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		inputs = append(inputs, hours.AllocationInput{
			HourTypeKey: a.HourTypeKey,
			Hours:       a.AllocatedHours,
			IsFixed:     a.IsFixed,
		})
	}

	created, err := h.Allocations.Allocate(r.Context(), chi.URLParam(r, "id"), inputs, actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to create allocations", err)
		return
	}

	dtos := make([]AllocationDTO, 0, len(created))
	for _, a := range created {
		dtos = append(dtos, toAllocationDTO(a))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"allocations": dtos})
}

// DeleteAllocations removes the contract's allocations. Returns 409 once
// ledger entries reference them.
// DELETE /api/contracts/{id}/allocations
func (h *Handler) DeleteAllocations(w http.ResponseWriter, r *http.Request) {
	err := h.Allocations.Remove(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to delete allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// CONSULTANT ENDPOINTS
// =============================================================================

// GetEarnings returns the consultant's earnings report for a period.
// GET /api/consultants/{id}/earnings?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	report, err := h.Earnings.Report(r.Context(),
		chi.URLParam(r, "id"),
		r.URL.Query().Get("from"),
		r.URL.Query().Get("to"))
	if err != nil {
		writeDomainError(w, "Failed to build earnings report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// CONSULTANT RATE ADMIN ENDPOINTS
// =============================================================================

// ListRates lists consultant rates.
// GET /api/admin/consultant-rates?consultant_id=
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.Rates.List(r.Context(), r.URL.Query().Get("consultant_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}
	dtos := make([]RateDTO, 0, len(rates))
	for _, rate := range rates {
		dtos = append(dtos, toRateDTO(rate))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": dtos})
}

// CreateRate creates a consultant rate.
// POST /api/admin/consultant-rates
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := h.Rates.Create(r.Context(), hours.ConsultantRate{
		ConsultantID:  req.ConsultantID,
		HourTypeKey:   req.HourTypeKey,
		RateEUR:       req.RateEUR,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	}, actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to create rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(*rate))
}

// RepriceRate changes an existing rate's amount.
// PATCH /api/admin/consultant-rates/{id}
func (h *Handler) RepriceRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := h.Rates.Reprice(r.Context(), chi.URLParam(r, "id"), hours.ConsultantRate{
		RateEUR:       req.RateEUR,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	})
	if err != nil {
		writeDomainError(w, "Failed to update rate", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTO(*rate))
}

// CloseRate soft-deletes a rate.
// DELETE /api/admin/consultant-rates/{id}
func (h *Handler) CloseRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.Rates.Close(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to close rate", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTO(*rate))
}

// =============================================================================
// FX ENDPOINTS
// =============================================================================

// GetLatestFx returns the current EUR->CLP rate, refreshing if stale.
// GET /api/fx/latest
func (h *Handler) GetLatestFx(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Fx.Latest(r.Context()))
}

// RefreshFx forces a fetch from the external rate API.
// POST /api/fx/refresh
func (h *Handler) RefreshFx(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Fx.Refresh(r.Context())
	if err != nil {
		fxRefreshesTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadGateway, "Failed to refresh fx rate", err)
		return
	}
	fxRefreshesTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ERROR MAPPING AND JSON HELPERS
// =============================================================================

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case hours.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, hours.ErrLedgerEntriesExist),
		errors.Is(err, hours.ErrRateOverlap),
		errors.Is(err, hours.ErrRateInUse):
		writeError(w, http.StatusConflict, message, err)
	case hours.IsValidation(err), hours.IsAllocationRejection(err), hours.IsRateRejection(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
