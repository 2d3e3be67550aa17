package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nueva-educacion/hours-engine/api"
	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/hours"
	"github.com/nueva-educacion/hours-engine/store/memory"
)

// =============================================================================
// TEST SERVER
// =============================================================================

type fixedProvider struct {
	rate decimal.Decimal
	err  error
}

func (p fixedProvider) Rate(context.Context) (decimal.Decimal, error) {
	return p.rate, p.err
}

func newTestServer(t *testing.T, provider fx.Provider) (*memory.Store, *httptest.Server) {
	t.Helper()
	st := memory.New()
	st.SeedHourType(hours.HourType{ID: "ht-talleres-online", Key: "talleres_online", DisplayName: "Talleres online", Modality: hours.ModalityOnline, IsActive: true})
	st.SeedHourType(hours.HourType{ID: "ht-talleres-presenciales", Key: "talleres_presenciales", DisplayName: "Talleres presenciales", Modality: hours.ModalityPresencial, IsActive: true})
	st.SeedHourType(hours.HourType{ID: "ht-coaching-individual", Key: "coaching_individual", DisplayName: "Coaching individual", Modality: hours.ModalityBoth, IsActive: true})
	st.SeedContract(hours.Contract{ID: "ct-001", SchoolID: 7, Estado: hours.ContractActive, HorasContratadas: decimal.NewFromInt(100)})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := api.NewHandler(st, fx.NewService(st, provider, log), nil, log)
	srv := httptest.NewServer(api.NewRouter(handler, false))
	t.Cleanup(srv.Close)
	return st, srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "admin-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func allocate(t *testing.T, base string, buckets ...map[string]any) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, base+"/api/contracts/ct-001/allocations", map[string]any{"allocations": buckets})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func createSession(t *testing.T, base string, overrides map[string]any) string {
	t.Helper()
	body := map[string]any{
		"school_id":                  7,
		"title":                      "Taller de convivencia",
		"session_date":               time.Now().AddDate(0, 0, 10).Format("2006-01-02"),
		"start_time":                 "10:00",
		"scheduled_duration_minutes": 90,
		"modality":                   "online",
		"hour_type_key":              "talleres_online",
		"contrato_id":                "ct-001",
		"consultant_id":              "cons-ana",
	}
	for k, v := range overrides {
		body[k] = v
	}
	resp, payload := doJSON(t, http.MethodPost, base+"/api/sessions", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := payload["id"].(string)
	require.NotEmpty(t, id)
	return id
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionLifecycle_ScheduleThenFinalize(t *testing.T) {
	// GIVEN: An allocated contract and a programada session
	// WHEN: The session is scheduled, then finalized
	// THEN: Hours move reservada -> consumida and the buckets follow

	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	allocate(t, srv.URL, map[string]any{"hour_type_key": "talleres_online", "allocated_hours": "100"})
	id := createSession(t, srv.URL, nil)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, payload["skipped"])
	assert.Equal(t, "1.5", payload["hours"])
	assert.Equal(t, false, payload["is_over_budget"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completada", payload["status"])

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/ct-001/buckets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buckets := payload["buckets"].([]any)
	require.Len(t, buckets, 1)
	b := buckets[0].(map[string]any)
	assert.Equal(t, "1.5", b["consumed_hours"])
	assert.Equal(t, "98.5", b["available_hours"])
}

// ledgerDownStore fails every reservation lookup, simulating a ledger
// backend outage during finalization.
type ledgerDownStore struct {
	*memory.Store
}

func (ledgerDownStore) FindReservedEntry(context.Context, string) (*hours.LedgerEntry, error) {
	return nil, errors.New("ledger backend unavailable")
}

func TestFinalizeSession_LedgerFailureDoesNotBlockFinalization(t *testing.T) {
	// GIVEN: A programada session and a ledger store that is down
	// WHEN: The session is finalized
	// THEN: The completion failure is swallowed and the session still
	//       reaches completada

	st := memory.New()
	st.SeedHourType(hours.HourType{ID: "ht-talleres-online", Key: "talleres_online", Modality: hours.ModalityOnline, IsActive: true})
	require.NoError(t, st.CreateSession(context.Background(), &hours.Session{
		ID:          "s-1",
		SessionDate: "2026-09-15",
		Status:      hours.SessionProgramada,
		HourTypeKey: "talleres_online",
		ContratoID:  "ct-001",
	}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	fxService := fx.NewService(st, fixedProvider{err: errors.New("down")}, log)
	handler := api.NewHandler(ledgerDownStore{st}, fxService, nil, log)
	srv := httptest.NewServer(api.NewRouter(handler, false))
	t.Cleanup(srv.Close)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/s-1/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["skipped"])

	got, err := st.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, hours.SessionCompletada, got.Status)
}

func TestScheduleSession_UnknownSessionIs404(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/s-ghost/schedule", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, payload["error"])
}

func TestScheduleSession_BusinessRejectionIs200WithMessage(t *testing.T) {
	// No allocations exist, so the reservation is rejected as a business
	// outcome, not an HTTP failure.
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	id := createSession(t, srv.URL, nil)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, payload["error"])
}

func TestCancelSession_AppliesClause(t *testing.T) {
	st, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	allocate(t, srv.URL, map[string]any{"hour_type_key": "talleres_online", "allocated_hours": "100"})
	id := createSession(t, srv.URL, nil)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/cancel", map[string]any{
		"cancelled_by_party": "school",
		"reason":             "cambio de agenda",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	clause := payload["clause_result"].(map[string]any)
	assert.Equal(t, "clause_1", clause["clause"])
	assert.Equal(t, "devuelta", clause["ledger_status"])

	entry, err := st.FindEntryBySession(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, hours.StatusDevuelta, entry.Status)
	assert.Equal(t, "admin-1", entry.UpdatedBy, "the X-Actor-ID header is recorded")
}

func TestCancelSession_InvalidPartyIs400(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	id := createSession(t, srv.URL, nil)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/cancel", map[string]any{
		"cancelled_by_party": "vecino",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateSession_RequiresDate(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{"title": "sin fecha"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// CATALOG AND ALLOCATIONS
// =============================================================================

func TestListHourTypes(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/hour-types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, payload["hour_types"].([]any), 3)
}

func TestCreateAllocations_SumMismatchIs400(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/contracts/ct-001/allocations", map[string]any{
		"allocations": []map[string]any{{"hour_type_key": "talleres_online", "allocated_hours": "99"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, payload["details"])
}

func TestDeleteAllocations_BlockedByLedgerIs409(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	allocate(t, srv.URL, map[string]any{"hour_type_key": "talleres_online", "allocated_hours": "100"})
	id := createSession(t, srv.URL, nil)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/contracts/ct-001/allocations", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAllocations_CreateListDelete(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	allocate(t, srv.URL,
		map[string]any{"hour_type_key": "talleres_online", "allocated_hours": "60"},
		map[string]any{"hour_type_key": "talleres_presenciales", "allocated_hours": "40"},
	)

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/contracts/ct-001/allocations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, payload["allocations"].([]any), 2)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/contracts/ct-001/allocations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/contracts/ct-001/allocations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, payload["allocations"])
}

// =============================================================================
// RATES AND EARNINGS
// =============================================================================

func TestRates_CreateOverlapReprice(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})
	base := srv.URL + "/api/admin/consultant-rates"

	rate := map[string]any{
		"consultant_id":  "cons-ana",
		"hour_type_key":  "coaching_individual",
		"rate_eur":       "30",
		"effective_from": "2026-01-01",
	}
	resp, payload := doJSON(t, http.MethodPost, base, rate)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rateID := payload["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, base, rate)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "overlapping range")

	resp, payload = doJSON(t, http.MethodPatch, base+"/"+rateID, map[string]any{"rate_eur": "35"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "35", payload["rate_eur"])

	resp, payload = doJSON(t, http.MethodDelete, base+"/"+rateID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, payload["effective_to"], "close is a soft delete")
}

func TestGetEarnings_ReportsPayableHours(t *testing.T) {
	st, srv := newTestServer(t, fixedProvider{rate: decimal.NewFromInt(1050)})
	allocate(t, srv.URL, map[string]any{"hour_type_key": "talleres_online", "allocated_hours": "100"})
	id := createSession(t, srv.URL, map[string]any{"session_date": "2026-03-10"})
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, st.CreateRate(context.Background(), &hours.ConsultantRate{
		ID: "rate-1", ConsultantID: "cons-ana", HourTypeKey: "talleres_online",
		RateEUR: decimal.NewFromInt(30), EffectiveFrom: "2026-01-01",
	}))

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/consultants/cons-ana/earnings?from=2026-03-01&to=2026-03-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cons-ana", payload["consultant_id"])
	totals := payload["totals"].(map[string]any)
	assert.Equal(t, "45", totals["total_eur"], "1.5h at 30 EUR")
	assert.Equal(t, "47250", totals["total_clp"])
}

// =============================================================================
// FX
// =============================================================================

func TestFxEndpoints(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{rate: decimal.RequireFromString("1042.5")})

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/fx/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1042.5", payload["rate_clp_per_eur"])

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/fx/latest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1042.5", payload["rate_clp_per_eur"])
	assert.Equal(t, false, payload["is_stale"])
}

func TestRefreshFx_ProviderDownIs502(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("timeout")})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/fx/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, fixedProvider{err: errors.New("down")})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}
