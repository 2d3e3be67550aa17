package fx_test

import (
	"context"
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

	"github.com/nueva-educacion/hours-engine/fx"
	"github.com/nueva-educacion/hours-engine/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider counts calls and returns a fixed rate or error.
type fakeProvider struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (p *fakeProvider) Rate(context.Context) (decimal.Decimal, error) {
	p.calls++
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.rate, nil
}

func seedSnapshot(t *testing.T, st *memory.Store, rate string, age time.Duration) {
	t.Helper()
	require.NoError(t, st.InsertSnapshot(context.Background(), fx.Snapshot{
		RateCLPPerEUR: decimal.RequireFromString(rate),
		FetchedAt:     time.Now().Add(-age),
		Source:        fx.SourceAPI,
	}))
}

// =============================================================================
// LATEST
// =============================================================================

func TestLatest_FreshSnapshotSkipsProvider(t *testing.T) {
	st := memory.New()
	seedSnapshot(t, st, "1050", 10*time.Minute)
	provider := &fakeProvider{rate: decimal.NewFromInt(9999)}
	svc := fx.NewService(st, provider, testLogger())

	resp := svc.Latest(context.Background())

	assert.True(t, resp.RateCLPPerEUR.Equal(decimal.NewFromInt(1050)))
	assert.False(t, resp.IsStale)
	assert.Equal(t, fx.SourceAPI, resp.Source)
	assert.Zero(t, provider.calls, "a fresh cache never hits the API")
}

func TestLatest_StaleSnapshotTriggersRefresh(t *testing.T) {
	// GIVEN: A snapshot older than the freshness window
	// WHEN: The rate is read
	// THEN: The provider is consulted and the new value cached

	ctx := context.Background()
	st := memory.New()
	seedSnapshot(t, st, "1000", 2*time.Hour)
	provider := &fakeProvider{rate: decimal.NewFromInt(1080)}
	svc := fx.NewService(st, provider, testLogger())

	resp := svc.Latest(ctx)

	assert.True(t, resp.RateCLPPerEUR.Equal(decimal.NewFromInt(1080)))
	assert.False(t, resp.IsStale)
	assert.Equal(t, 1, provider.calls)

	cached, err := st.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.RateCLPPerEUR.Equal(decimal.NewFromInt(1080)), "refresh appends the new snapshot")
}

func TestLatest_ProviderDownFallsBackToStaleCache(t *testing.T) {
	st := memory.New()
	seedSnapshot(t, st, "1000", 2*time.Hour)
	svc := fx.NewService(st, &fakeProvider{err: errors.New("timeout")}, testLogger())

	resp := svc.Latest(context.Background())

	assert.True(t, resp.RateCLPPerEUR.Equal(decimal.NewFromInt(1000)), "a stale rate is still a rate")
	assert.True(t, resp.IsStale)
	assert.Empty(t, resp.Error)
}

func TestLatest_NoDataAtAllYieldsZeroSentinel(t *testing.T) {
	svc := fx.NewService(memory.New(), &fakeProvider{err: errors.New("timeout")}, testLogger())

	resp := svc.Latest(context.Background())

	assert.True(t, resp.RateCLPPerEUR.IsZero())
	assert.True(t, resp.IsStale)
	assert.Equal(t, fx.SourceNoData, resp.Source)
	assert.NotEmpty(t, resp.Error)
}

// =============================================================================
// REFRESH
// =============================================================================

func TestRefresh_AppendsSnapshot(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	svc := fx.NewService(st, &fakeProvider{rate: decimal.RequireFromString("1042.37")}, testLogger())

	resp, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, resp.RateCLPPerEUR.Equal(decimal.RequireFromString("1042.37")))
	assert.False(t, resp.IsStale)
	assert.Equal(t, fx.SourceAPI, resp.Source)

	cached, err := st.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.RateCLPPerEUR.Equal(resp.RateCLPPerEUR))
}

func TestRefresh_ProviderErrorPropagates(t *testing.T) {
	svc := fx.NewService(memory.New(), &fakeProvider{err: errors.New("boom")}, testLogger())

	_, err := svc.Refresh(context.Background())
	assert.Error(t, err)
}

// =============================================================================
// HTTP PROVIDER
// =============================================================================

func TestHTTPProvider_ParsesCLPRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"CLP":1051.23,"USD":1.08}}`))
	}))
	defer srv.Close()

	rate, err := fx.NewHTTPProvider(srv.URL).Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1051.23")))
}

func TestHTTPProvider_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := fx.NewHTTPProvider(srv.URL).Rate(context.Background())
	assert.Error(t, err)
}

func TestHTTPProvider_MissingCLP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":1.08}}`))
	}))
	defer srv.Close()

	_, err := fx.NewHTTPProvider(srv.URL).Rate(context.Background())
	assert.Error(t, err)
}

func TestHTTPProvider_DefaultURL(t *testing.T) {
	p := fx.NewHTTPProvider("")
	assert.Equal(t, fx.DefaultAPIURL, p.URL)
	assert.Equal(t, fx.DefaultTimeout, p.Client.Timeout)
}
