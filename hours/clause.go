/*
clause.go - Cancellation clause policy table and evaluator

PURPOSE:
  Determines what happens to reserved hours when a session is cancelled:
  returned to the budget (devuelta) or forfeited (penalizada), and whether
  the consultant is still paid. Pure computation, no side effects.

POLICY AS DATA:
  The six contract clauses are rows in a lookup table, not branches. The
  default table mirrors the QUINTO clause of the service contract:

    1: online     / school        / >= 48h  -> devuelta,   no pay, 30 days
    2: online     / school        / <  48h  -> penalizada, pay
    3: presencial / school        / >= 336h -> devuelta,   no pay, 30 days
    4: presencial / school        / <  336h -> penalizada, pay
    5: any        / force majeure            -> devuelta,   no pay, 30 days
    6: any        / FNE                      -> devuelta,   no pay, 30 days

  hibrida follows the presencial thresholds; an unknown modality falls back
  to the online ones.

STRUCTURAL GUARANTEES (enforced on any loaded table, see Validate):
  - Monotonicity: more notice never yields a worse outcome for the same
    cancelling party and modality.
  - Force-majeure dominance: force majeure always returns the hours.
  - Determinism: first-match over an ordered table; same inputs, same clause.

SEE ALSO:
  - factory/clause.go: loading alternative tables from JSON config
*/
package hours

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY TABLE
// =============================================================================

// ClauseRule is one row of a cancellation policy table. A rule matches when
// the cancelling party equals Party, the session modality is in Modalities
// (empty = any modality, including unknown ones), and the notice given is at
// least MinNoticeHours (nil = no lower bound).
type ClauseRule struct {
	Clause                   string
	Party                    Party
	Modalities               []Modality
	MinNoticeHours           *decimal.Decimal
	LedgerStatus             LedgerStatus
	ConsultantPaid           bool
	ReschedulingDeadlineDays *int
	Description              string
}

func (r *ClauseRule) matches(modality Modality, cancelledBy Party, noticeHours decimal.Decimal) bool {
	if r.Party != cancelledBy {
		return false
	}
	if len(r.Modalities) > 0 {
		found := false
		for _, m := range r.Modalities {
			if m == modality {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.MinNoticeHours != nil && noticeHours.LessThan(*r.MinNoticeHours) {
		return false
	}
	return true
}

// ClausePolicy is an ordered first-match lookup table.
type ClausePolicy struct {
	Name  string
	Rules []ClauseRule
}

// Evaluate maps (modality, who cancelled, notice hours) to the applicable
// clause. Pure and deterministic. Returns false when no rule matches, which
// a validated policy rules out (DefaultClausePolicy always matches).
func (p *ClausePolicy) Evaluate(modality Modality, cancelledBy Party, noticeHours decimal.Decimal) (ClauseResult, bool) {
	for i := range p.Rules {
		r := &p.Rules[i]
		if !r.matches(modality, cancelledBy, noticeHours) {
			continue
		}
		return ClauseResult{
			Clause:                   r.Clause,
			LedgerStatus:             r.LedgerStatus,
			ConsultantPaid:           r.ConsultantPaid,
			ReschedulingDeadlineDays: r.ReschedulingDeadlineDays,
			Description:              r.Description,
			NoticeHours:              noticeHours,
		}, true
	}
	return ClauseResult{}, false
}

// =============================================================================
// DEFAULT POLICY (contract clause QUINTO)
// =============================================================================

var (
	notice48h  = decimal.NewFromInt(48)
	notice336h = decimal.NewFromInt(336) // two weeks

	thirtyDays = 30
)

// DefaultClausePolicy is the policy table from the current service contract.
// Rule order matters: party-specific rules first, then the presencial pair,
// then the online pair as the catch-all for any remaining modality.
func DefaultClausePolicy() *ClausePolicy {
	return &ClausePolicy{Name: "quinto", Rules: []ClauseRule{
		{
			Clause:                   "clause_6",
			Party:                    PartyFNE,
			LedgerStatus:             StatusDevuelta,
			ConsultantPaid:           false,
			ReschedulingDeadlineDays: &thirtyDays,
			Description:              "Clausula 6 — Cancelación por FNE: las horas se devuelven y se debe reprogramar dentro de 30 días (máximo hasta el fin del contrato).",
		},
		{
			Clause:                   "clause_5",
			Party:                    PartyForceMajeure,
			LedgerStatus:             StatusDevuelta,
			ConsultantPaid:           false,
			ReschedulingDeadlineDays: &thirtyDays,
			Description:              "Clausula 5 — Cancelación por fuerza mayor: las horas se devuelven y se debe reprogramar dentro de 30 días.",
		},
		{
			Clause:                   "clause_3",
			Party:                    PartySchool,
			Modalities:               []Modality{ModalityPresencial, ModalityHibrida},
			MinNoticeHours:           &notice336h,
			LedgerStatus:             StatusDevuelta,
			ConsultantPaid:           false,
			ReschedulingDeadlineDays: &thirtyDays,
			Description:              "Clausula 3 — Cancelación presencial con aviso >= 2 semanas: las horas se devuelven. Se debe reprogramar dentro de 30 días.",
		},
		{
			Clause:         "clause_4",
			Party:          PartySchool,
			Modalities:     []Modality{ModalityPresencial, ModalityHibrida},
			LedgerStatus:   StatusPenalizada,
			ConsultantPaid: true,
			Description:    "Clausula 4 — Cancelación presencial con aviso < 2 semanas: las horas se penalizan y el consultor tiene derecho a pago.",
		},
		{
			Clause:                   "clause_1",
			Party:                    PartySchool,
			MinNoticeHours:           &notice48h,
			LedgerStatus:             StatusDevuelta,
			ConsultantPaid:           false,
			ReschedulingDeadlineDays: &thirtyDays,
			Description:              "Clausula 1 — Cancelación online con aviso >= 48 horas: las horas se devuelven. Se debe reprogramar dentro de 30 días.",
		},
		{
			Clause:         "clause_2",
			Party:          PartySchool,
			LedgerStatus:   StatusPenalizada,
			ConsultantPaid: true,
			Description:    "Clausula 2 — Cancelación online con aviso < 48 horas: las horas se penalizan y el consultor tiene derecho a pago.",
		},
	}}
}

// =============================================================================
// STRUCTURAL VALIDATION
// =============================================================================

var probeModalities = []Modality{ModalityOnline, ModalityPresencial, ModalityHibrida, Modality("otro")}

// Validate checks the structural guarantees of a policy table:
// total coverage for every known party and modality, monotonicity of the
// notice axis, and force-majeure dominance. Run on any table loaded from
// configuration before it replaces the default.
func (p *ClausePolicy) Validate() error {
	parties := []Party{PartySchool, PartyFNE, PartyForceMajeure}

	// Probe at zero, at each threshold, and just below each threshold.
	var probes []decimal.Decimal
	probes = append(probes, decimal.Zero)
	for i := range p.Rules {
		if t := p.Rules[i].MinNoticeHours; t != nil {
			probes = append(probes, *t, t.Sub(decimal.NewFromFloat(0.01)))
		}
	}
	sortDecimals(probes)

	for _, party := range parties {
		for _, modality := range probeModalities {
			returned := false // once devuelta, more notice must stay devuelta
			for _, notice := range probes {
				if notice.IsNegative() {
					continue
				}
				res, ok := p.Evaluate(modality, party, notice)
				if !ok {
					return fmt.Errorf("no clause covers party=%s modality=%s notice=%s", party, modality, notice)
				}
				if party == PartyForceMajeure && res.LedgerStatus != StatusDevuelta {
					return fmt.Errorf("clause %s: force majeure must return hours", res.Clause)
				}
				if returned && res.LedgerStatus == StatusPenalizada {
					return fmt.Errorf("clause %s: outcome worsens as notice grows for party=%s modality=%s", res.Clause, party, modality)
				}
				if res.LedgerStatus == StatusDevuelta {
					returned = true
				}
			}
		}
	}
	return nil
}

func sortDecimals(ds []decimal.Decimal) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].LessThan(ds[j-1]); j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}
