/*
Package fx caches the EUR->CLP exchange rate used by earnings reports.

PURPOSE:
  One external rate provider, one append-only snapshot cache, and a
  degrade-don't-crash read path: a stale rate is still a rate. Reports
  render with the freshest value available and a staleness flag rather
  than failing because an external API is down.

CONTRACT:
  - Latest returns the cached rate; once older than the freshness window it
    tries a refresh, and on provider failure falls back to the stale
    snapshot with IsStale=true. No snapshot at all yields a zero-rate
    sentinel plus a message - never an error.
  - Refresh fetches, persists a NEW snapshot (append-only), and returns it
    fresh. Safe under retry: a second call simply stores a newer snapshot.
*/
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FreshnessWindow is how long a snapshot counts as fresh.
	FreshnessWindow = time.Hour

	// DefaultAPIURL serves the EUR base rates the cache consumes.
	DefaultAPIURL = "https://api.exchangerate-api.com/v4/latest/EUR"

	// DefaultTimeout bounds the provider call; the provider never blocks
	// longer than this.
	DefaultTimeout = 5 * time.Second

	SourceAPI    = "api"
	SourceNoData = "no_data"
)

// msgNoRate is shown verbatim when no rate exists and the provider is down.
const msgNoRate = "No hay tipo de cambio disponible y la API externa no está accesible."

// Snapshot is one cached rate observation.
type Snapshot struct {
	RateCLPPerEUR decimal.Decimal
	FetchedAt     time.Time
	Source        string
}

// Response is the rate as returned to callers. All fields always present;
// Error is non-empty only on the zero-rate sentinel path.
type Response struct {
	RateCLPPerEUR decimal.Decimal `json:"rate_clp_per_eur"`
	FetchedAt     time.Time       `json:"fetched_at"`
	IsStale       bool            `json:"is_stale"`
	Source        string          `json:"source"`
	Error         string          `json:"error,omitempty"`
}

// Store persists snapshots. Append-only: refreshes insert, never update.
type Store interface {
	// LatestSnapshot returns the most recent snapshot, or nil when none.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// InsertSnapshot appends a snapshot.
	InsertSnapshot(ctx context.Context, s Snapshot) error
}

// Provider fetches the current EUR->CLP rate from an external source.
// Implementations enforce their own timeout.
type Provider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// =============================================================================
// HTTP PROVIDER
// =============================================================================

// HTTPProvider fetches the rate from an exchange-rate HTTP API.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

// NewHTTPProvider creates a provider against url ("" = DefaultAPIURL) with
// the default timeout.
func NewHTTPProvider(url string) *HTTPProvider {
	if url == "" {
		url = DefaultAPIURL
	}
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: DefaultTimeout}}
}

// Rate fetches the current CLP-per-EUR rate.
func (p *HTTPProvider) Rate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fx provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fx provider returned %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("fx provider: decode: %w", err)
	}
	clp, ok := payload.Rates["CLP"]
	if !ok || clp <= 0 {
		return decimal.Zero, fmt.Errorf("fx provider: CLP rate not found")
	}
	return decimal.NewFromFloat(clp), nil
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the rate cache.
type Service struct {
	store    Store
	provider Provider
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a rate cache over store and provider.
func NewService(store Store, provider Provider, log *slog.Logger) *Service {
	return &Service{store: store, provider: provider, log: log, now: time.Now}
}

// Latest returns the most useful rate available right now. Never fails:
// degraded states are expressed through IsStale and the zero-rate sentinel.
func (s *Service) Latest(ctx context.Context) Response {
	cached, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		s.log.Error("fx cache read failed", "err", err)
		cached = nil
	}

	now := s.now()
	if cached != nil && now.Sub(cached.FetchedAt) < FreshnessWindow {
		return Response{
			RateCLPPerEUR: cached.RateCLPPerEUR,
			FetchedAt:     cached.FetchedAt,
			IsStale:       false,
			Source:        cached.Source,
		}
	}

	// Stale or empty cache: try the provider, degrade on failure.
	fresh, err := s.Refresh(ctx)
	if err == nil {
		return fresh
	}
	s.log.Warn("fx refresh failed", "err", err)

	if cached != nil {
		return Response{
			RateCLPPerEUR: cached.RateCLPPerEUR,
			FetchedAt:     cached.FetchedAt,
			IsStale:       true,
			Source:        cached.Source,
		}
	}
	return Response{
		RateCLPPerEUR: decimal.Zero,
		FetchedAt:     now,
		IsStale:       true,
		Source:        SourceNoData,
		Error:         msgNoRate,
	}
}

// Refresh fetches a fresh rate from the provider and appends it to the
// cache. A cache write failure is logged, not fatal: the caller still gets
// the rate it asked for.
func (s *Service) Refresh(ctx context.Context) (Response, error) {
	rate, err := s.provider.Rate(ctx)
	if err != nil {
		return Response{}, err
	}

	fetchedAt := s.now()
	snap := Snapshot{RateCLPPerEUR: rate, FetchedAt: fetchedAt, Source: SourceAPI}
	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		s.log.Error("fx cache write failed", "err", err)
	}

	return Response{
		RateCLPPerEUR: rate,
		FetchedAt:     fetchedAt,
		IsStale:       false,
		Source:        SourceAPI,
	}, nil
}
