package factory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nueva-educacion/hours-engine/factory"
	"github.com/nueva-educacion/hours-engine/hours"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// validPolicyJSON mirrors the built-in table so a parsed policy evaluates
// identically to hours.DefaultClausePolicy().
const validPolicyJSON = `{
  "name": "quinto-test",
  "rules": [
    {"clause": "clause_6", "party": "fne", "ledger_status": "devuelta", "consultant_paid": false, "rescheduling_deadline_days": 30},
    {"clause": "clause_5", "party": "force_majeure", "ledger_status": "devuelta", "consultant_paid": false, "rescheduling_deadline_days": 30},
    {"clause": "clause_3", "party": "school", "modalities": ["presencial", "hibrida"], "min_notice_hours": "336", "ledger_status": "devuelta", "consultant_paid": false, "rescheduling_deadline_days": 30},
    {"clause": "clause_4", "party": "school", "modalities": ["presencial", "hibrida"], "ledger_status": "penalizada", "consultant_paid": true},
    {"clause": "clause_1", "party": "school", "min_notice_hours": "48", "ledger_status": "devuelta", "consultant_paid": false, "rescheduling_deadline_days": 30},
    {"clause": "clause_2", "party": "school", "ledger_status": "penalizada", "consultant_paid": true}
  ]
}`

// =============================================================================
// PARSING TESTS
// =============================================================================

func TestParseClausePolicy_ValidTable(t *testing.T) {
	// GIVEN: A well-formed clause table covering every party and modality
	// WHEN: Parsing it
	// THEN: The policy validates and evaluates like the built-in default

	policy, err := factory.ParseClausePolicy(validPolicyJSON)
	require.NoError(t, err)
	require.Len(t, policy.Rules, 6)
	assert.Equal(t, "quinto-test", policy.Name)

	defaultPolicy := hours.DefaultClausePolicy()
	cases := []struct {
		modality hours.Modality
		party    hours.Party
		notice   decimal.Decimal
	}{
		{hours.ModalityOnline, hours.PartySchool, decimal.NewFromInt(72)},
		{hours.ModalityOnline, hours.PartySchool, decimal.NewFromInt(12)},
		{hours.ModalityPresencial, hours.PartySchool, decimal.NewFromInt(400)},
		{hours.ModalityPresencial, hours.PartySchool, decimal.NewFromInt(100)},
		{hours.ModalityHibrida, hours.PartySchool, decimal.NewFromInt(400)},
		{hours.ModalityOnline, hours.PartyFNE, decimal.Zero},
		{hours.ModalityPresencial, hours.PartyForceMajeure, decimal.Zero},
	}
	for _, tc := range cases {
		got, ok := policy.Evaluate(tc.modality, tc.party, tc.notice)
		require.True(t, ok)
		want, ok := defaultPolicy.Evaluate(tc.modality, tc.party, tc.notice)
		require.True(t, ok)
		assert.Equal(t, want.Clause, got.Clause,
			"modality=%s party=%s notice=%s", tc.modality, tc.party, tc.notice)
		assert.Equal(t, want.LedgerStatus, got.LedgerStatus)
		assert.Equal(t, want.ConsultantPaid, got.ConsultantPaid)
	}
}

func TestParseClausePolicy_MalformedJSON(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{"rules": [`)
	assert.Error(t, err)
}

func TestParseClausePolicy_EmptyRules(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{"name": "empty", "rules": []}`)
	assert.ErrorContains(t, err, "no rules")
}

func TestParseClausePolicy_UnknownParty(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{
	  "rules": [{"clause": "c1", "party": "consultant", "ledger_status": "devuelta"}]
	}`)
	assert.ErrorContains(t, err, "unknown party")
}

func TestParseClausePolicy_UnknownModality(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{
	  "rules": [{"clause": "c1", "party": "school", "modalities": ["remoto"], "ledger_status": "devuelta"}]
	}`)
	assert.ErrorContains(t, err, "unknown modality")
}

func TestParseClausePolicy_StatusMustBeTerminalOutcome(t *testing.T) {
	// A cancellation clause can only resolve to devuelta or penalizada;
	// reservada and consumida are not cancellation outcomes.
	_, err := factory.ParseClausePolicy(`{
	  "rules": [{"clause": "c1", "party": "school", "ledger_status": "consumida"}]
	}`)
	assert.ErrorContains(t, err, "ledger status")
}

func TestParseClausePolicy_NegativeNoticeRejected(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{
	  "rules": [{"clause": "c1", "party": "school", "min_notice_hours": "-1", "ledger_status": "devuelta"}]
	}`)
	assert.ErrorContains(t, err, "negative")
}

// =============================================================================
// STRUCTURAL VALIDATION TESTS
// =============================================================================

func TestParseClausePolicy_IncompleteCoverageRejected(t *testing.T) {
	// GIVEN: A table that only handles school cancellations
	// WHEN: Parsing it
	// THEN: Validation rejects it because fne has no applicable rule

	_, err := factory.ParseClausePolicy(`{
	  "rules": [{"clause": "c1", "party": "school", "ledger_status": "penalizada", "consultant_paid": true}]
	}`)
	assert.ErrorContains(t, err, "no clause covers")
}

func TestParseClausePolicy_NonMonotonicTableRejected(t *testing.T) {
	// GIVEN: A table where more notice flips a returned outcome back to a
	//        penalty (threshold ordering is inverted)
	// WHEN: Parsing it
	// THEN: Validation rejects the table

	_, err := factory.ParseClausePolicy(`{
	  "rules": [
	    {"clause": "c_high", "party": "school", "min_notice_hours": "48", "ledger_status": "penalizada", "consultant_paid": true},
	    {"clause": "c_low", "party": "school", "ledger_status": "devuelta", "consultant_paid": false},
	    {"clause": "c_fne", "party": "fne", "ledger_status": "devuelta", "consultant_paid": false},
	    {"clause": "c_fm", "party": "force_majeure", "ledger_status": "devuelta", "consultant_paid": false}
	  ]
	}`)
	assert.Error(t, err)
}

func TestParseClausePolicy_ForceMajeurePenaltyRejected(t *testing.T) {
	_, err := factory.ParseClausePolicy(`{
	  "rules": [
	    {"clause": "c1", "party": "school", "ledger_status": "penalizada", "consultant_paid": true},
	    {"clause": "c_fne", "party": "fne", "ledger_status": "devuelta", "consultant_paid": false},
	    {"clause": "c_fm", "party": "force_majeure", "ledger_status": "penalizada", "consultant_paid": true}
	  ]
	}`)
	assert.ErrorContains(t, err, "force majeure")
}
