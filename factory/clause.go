/*
Package factory provides JSON to Go clause-policy conversion.

PURPOSE:
  Converts JSON clause tables into hours.ClausePolicy objects. This enables
  contract-clause configuration without code changes - operations staff can
  adjust notice thresholds and outcomes in JSON, and the factory creates the
  proper Go structs with structural validation.

JSON SCHEMA:
  {
    "name": "quinto-2026",
    "rules": [
      {
        "clause": "clause_6",
        "party": "fne",
        "ledger_status": "devuelta",
        "consultant_paid": false,
        "description": "Cancelacion por FNE"
      },
      {
        "clause": "clause_1",
        "party": "school",
        "modalities": ["online"],
        "min_notice_hours": "48",
        "ledger_status": "devuelta",
        "consultant_paid": false,
        "rescheduling_deadline_days": 30,
        "description": "Cancelacion online con 48h o mas de aviso"
      }
    ]
  }

KEY FEATURES:
  - Rules apply first-match in declaration order
  - Decimal notice thresholds parsed exactly (no float drift)
  - Structural validation: party coverage, threshold monotonicity,
    force-majeure dominance

USAGE:
  policy, err := factory.ParseClausePolicy(jsonStr)
  result, ok := policy.Evaluate(modality, party, noticeHours)

SEE ALSO:
  - hours/clause.go: ClausePolicy and ClauseRule definitions
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nueva-educacion/hours-engine/hours"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ClausePolicyJSON is the JSON representation of a clause table.
type ClausePolicyJSON struct {
	Name  string           `json:"name"`
	Rules []ClauseRuleJSON `json:"rules"`
}

// ClauseRuleJSON is the JSON representation of a single clause rule.
type ClauseRuleJSON struct {
	Clause                   string   `json:"clause"`
	Party                    string   `json:"party"`
	Modalities               []string `json:"modalities,omitempty"`
	MinNoticeHours           string   `json:"min_notice_hours,omitempty"`
	LedgerStatus             string   `json:"ledger_status"`
	ConsultantPaid           bool     `json:"consultant_paid"`
	ReschedulingDeadlineDays *int     `json:"rescheduling_deadline_days,omitempty"`
	Description              string   `json:"description,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseClausePolicy parses a JSON string into a validated ClausePolicy.
func ParseClausePolicy(jsonStr string) (*hours.ClausePolicy, error) {
	var pj ClausePolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse clause policy JSON: %w", err)
	}
	return FromClauseJSON(pj)
}

// FromClauseJSON converts ClausePolicyJSON into a validated ClausePolicy.
func FromClauseJSON(pj ClausePolicyJSON) (*hours.ClausePolicy, error) {
	if len(pj.Rules) == 0 {
		return nil, fmt.Errorf("clause policy %q has no rules", pj.Name)
	}

	policy := &hours.ClausePolicy{Name: pj.Name}
	for i, rj := range pj.Rules {
		rule, err := parseClauseRule(rj)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rj.Clause, err)
		}
		policy.Rules = append(policy.Rules, rule)
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("clause policy %q: %w", pj.Name, err)
	}
	return policy, nil
}

func parseClauseRule(rj ClauseRuleJSON) (hours.ClauseRule, error) {
	var zero hours.ClauseRule

	if rj.Clause == "" {
		return zero, fmt.Errorf("clause name is required")
	}

	party := hours.Party(rj.Party)
	if !party.Valid() {
		return zero, fmt.Errorf("unknown party %q", rj.Party)
	}

	status := hours.LedgerStatus(rj.LedgerStatus)
	if status != hours.StatusDevuelta && status != hours.StatusPenalizada {
		return zero, fmt.Errorf("ledger status must be %s or %s, got %q",
			hours.StatusDevuelta, hours.StatusPenalizada, rj.LedgerStatus)
	}

	rule := hours.ClauseRule{
		Clause:                   rj.Clause,
		Party:                    party,
		LedgerStatus:             status,
		ConsultantPaid:           rj.ConsultantPaid,
		ReschedulingDeadlineDays: rj.ReschedulingDeadlineDays,
		Description:              rj.Description,
	}

	for _, m := range rj.Modalities {
		modality := hours.Modality(m)
		switch modality {
		case hours.ModalityOnline, hours.ModalityPresencial, hours.ModalityHibrida:
			rule.Modalities = append(rule.Modalities, modality)
		default:
			return zero, fmt.Errorf("unknown modality %q", m)
		}
	}

	if rj.MinNoticeHours != "" {
		threshold, err := decimal.NewFromString(rj.MinNoticeHours)
		if err != nil {
			return zero, fmt.Errorf("invalid min_notice_hours %q: %w", rj.MinNoticeHours, err)
		}
		if threshold.IsNegative() {
			return zero, fmt.Errorf("min_notice_hours must not be negative, got %s", threshold)
		}
		rule.MinNoticeHours = &threshold
	}

	return rule, nil
}
