/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/nueva-educacion/hours-engine/hours"
)

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSessionRequest is the request to register a session.
type CreateSessionRequest struct {
	ID                       string `json:"id"`
	SchoolID                 int64  `json:"school_id"`
	Title                    string `json:"title"`
	SessionDate              string `json:"session_date"` // YYYY-MM-DD
	StartTime                string `json:"start_time"`   // HH:MM
	EndTime                  string `json:"end_time"`
	ScheduledDurationMinutes int    `json:"scheduled_duration_minutes"`
	Modality                 string `json:"modality"`
	HourTypeKey              string `json:"hour_type_key"`
	ContratoID               string `json:"contrato_id"`
	ConsultantID             string `json:"consultant_id"`
}

// SessionDTO represents a session in API responses.
type SessionDTO struct {
	ID                   string          `json:"id"`
	SchoolID             int64           `json:"school_id"`
	Title                string          `json:"title,omitempty"`
	SessionDate          string          `json:"session_date"`
	StartTime            string          `json:"start_time,omitempty"`
	EndTime              string          `json:"end_time,omitempty"`
	Modality             string          `json:"modality,omitempty"`
	Status               string          `json:"status"`
	HourTypeKey          string          `json:"hour_type_key,omitempty"`
	ContratoID           string          `json:"contrato_id,omitempty"`
	ConsultantID         string          `json:"consultant_id,omitempty"`
	CancelledBy          string          `json:"cancelled_by,omitempty"`
	CancellationReason   string          `json:"cancellation_reason,omitempty"`
	CancelledNoticeHours decimal.Decimal `json:"cancelled_notice_hours"`
}

// CancelSessionRequest is the request to cancel a session.
type CancelSessionRequest struct {
	CancelledByParty    string `json:"cancelled_by_party"`
	Reason              string `json:"reason"`
	AdminOverrideStatus string `json:"admin_override_status,omitempty"`
	AdminOverrideReason string `json:"admin_override_reason,omitempty"`
}

// =============================================================================
// HOUR TYPES AND ALLOCATIONS
// =============================================================================

// HourTypeDTO represents an hour type in API responses.
type HourTypeDTO struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Modality    string `json:"modality"`
}

// AllocationInputDTO is one bucket in an allocation request.
type AllocationInputDTO struct {
	HourTypeKey    string          `json:"hour_type_key"`
	AllocatedHours decimal.Decimal `json:"allocated_hours"`
	IsFixed        bool            `json:"is_fixed,omitempty"`
}

// CreateAllocationsRequest is the request to allocate a contract's hours.
type CreateAllocationsRequest struct {
	Allocations []AllocationInputDTO `json:"allocations"`
}

// AllocationDTO represents an allocation in API responses.
type AllocationDTO struct {
	ID             string          `json:"id"`
	ContratoID     string          `json:"contrato_id"`
	HourTypeID     string          `json:"hour_type_id"`
	AllocatedHours decimal.Decimal `json:"allocated_hours"`
	IsFixed        bool            `json:"is_fixed"`
}

// =============================================================================
// CONSULTANT RATES
// =============================================================================

// RateRequest is the request to create or reprice a consultant rate.
type RateRequest struct {
	ConsultantID  string          `json:"consultant_id"`
	HourTypeKey   string          `json:"hour_type_key"`
	RateEUR       decimal.Decimal `json:"rate_eur"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to,omitempty"`
}

// RateDTO represents a consultant rate in API responses.
type RateDTO struct {
	ID            string          `json:"id"`
	ConsultantID  string          `json:"consultant_id"`
	HourTypeKey   string          `json:"hour_type_key"`
	RateEUR       decimal.Decimal `json:"rate_eur"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSessionDTO(s *hours.Session) SessionDTO {
	return SessionDTO{
		ID:                   s.ID,
		SchoolID:             s.SchoolID,
		Title:                s.Title,
		SessionDate:          s.SessionDate,
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		Modality:             string(s.Modality),
		Status:               string(s.Status),
		HourTypeKey:          s.HourTypeKey,
		ContratoID:           s.ContratoID,
		ConsultantID:         s.ConsultantID,
		CancelledBy:          s.CancelledBy,
		CancellationReason:   s.CancellationReason,
		CancelledNoticeHours: s.CancelledNoticeHours,
	}
}

func toHourTypeDTO(ht hours.HourType) HourTypeDTO {
	return HourTypeDTO{
		ID:          ht.ID,
		Key:         ht.Key,
		DisplayName: ht.DisplayName,
		Modality:    string(ht.Modality),
	}
}

func toAllocationDTO(a hours.ContractHourAllocation) AllocationDTO {
	return AllocationDTO{
		ID:             a.ID,
		ContratoID:     a.ContratoID,
		HourTypeID:     a.HourTypeID,
		AllocatedHours: a.AllocatedHours,
		IsFixed:        a.IsFixedAllocation,
	}
}

func toRateDTO(r hours.ConsultantRate) RateDTO {
	return RateDTO{
		ID:            r.ID,
		ConsultantID:  r.ConsultantID,
		HourTypeKey:   r.HourTypeKey,
		RateEUR:       r.RateEUR,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
	}
}
