/*
eligibility.go - Ordered rule pipeline producing a verdict

PURPOSE:
  Turns a candidate request plus its context (attestations, annual balance,
  overlap) into flags and a verdict: approve, reject or escalate. Pure
  function of its inputs. No I/O, no clock, no globals.

RULE ORDER:
  1. HARD  destination permitted    sanctioned_country | no_maersk_entity
  2. HARD  right to work attested   no_right_to_work
  3. HARD  role eligible attested   role_ineligible
  4. SOFT  consecutive limit        exceeds_consecutive_limit
           (trip alone, or combined with nearby trips)
  5. SOFT  annual allowance         exceeds_annual_limit
           (days used + this trip against the balance's allowance;
           pending days are not counted)

  The first hard failure stops the pipeline with REJECT.
  Soft rules all run; each hit adds its flag.

VERDICT:
  soft flag + exception with a reason  -> ESCALATE (exception:<reason> added)
  soft flag, no usable exception        -> REJECT
  no flags                              -> APPROVE

  An exception request can turn a reject into an escalation. It can never
  turn anything into an approval, and it never overrides a hard rule.

  Rules() publishes the same order with a name, severity and description
  per rule.

SEE ALSO:
  - workflow.go: Runs balance + overlap, then Evaluate, then stamps the request
  - countries.go: Classification used by the first rule
*/
package sirw

import (
	"fmt"
	"strings"
)

// EvaluationInput is everything a rule may read.
type EvaluationInput struct {
	Request      Request
	Attestations Attestations
	Balance      AnnualBalance
	Overlap      OverlapResult
}

// Evaluation is the outcome of the pipeline.
type Evaluation struct {
	Verdict Verdict
	Flags   Flags

	// Reasons has one entry per triggering rule, in rule order.
	Reasons []string

	// Country is the destination classification, kept for messages.
	Country Classification
}

// Reason is the first triggering reason, or "" when approved.
func (e Evaluation) Reason() string {
	if len(e.Reasons) == 0 {
		return ""
	}
	return e.Reasons[0]
}

// RuleOutcome is one rule's result within an evaluation.
type RuleOutcome string

const (
	RulePassed  RuleOutcome = "passed"
	RuleFailed  RuleOutcome = "failed"
	RuleSkipped RuleOutcome = "skipped" // after a hard failure
)

// RuleResult pairs a catalogue entry with its outcome.
type RuleResult struct {
	Rule    RuleInfo
	Outcome RuleOutcome
}

// RuleResults reports every rule of the pipeline against this evaluation.
func (e Evaluation) RuleResults() []RuleResult {
	rules := Rules()
	out := make([]RuleResult, len(rules))
	stopped := false
	for i, r := range rules {
		out[i] = RuleResult{Rule: r, Outcome: RulePassed}
		if stopped {
			out[i].Outcome = RuleSkipped
			continue
		}
		for _, kind := range r.Flags {
			if e.Flags.Has(kind) {
				out[i].Outcome = RuleFailed
				stopped = kind.Hard()
				break
			}
		}
	}
	return out
}

// =============================================================================
// PIPELINE
// =============================================================================

// accumulator carries state between rules.
type accumulator struct {
	in       EvaluationInput
	policy   Policy
	country  Classification
	workdays int

	flags    Flags
	reasons  []string
	hardFail bool
}

func (a *accumulator) raise(f Flag, reason string) {
	a.flags = a.flags.Add(f)
	a.reasons = append(a.reasons, reason)
	if f.Kind.Hard() {
		a.hardFail = true
	}
}

// rule inspects the accumulator and raises flags on it.
type rule func(*accumulator)

// Rule severities as published by the rules catalogue.
const (
	SeverityBlock = "block" // hard: rejects, exceptions do not help
	SeverityWarn  = "warn"  // soft: rejects unless escalated as an exception
)

// RuleInfo describes one step of the pipeline.
type RuleInfo struct {
	Name        string
	Severity    string
	Description string
	Flags       []FlagKind // flags the rule may raise
}

type pipelineStep struct {
	info  RuleInfo
	apply rule
}

var pipeline = []pipelineStep{
	{RuleInfo{
		Name:        "Blocked Country Check",
		Severity:    SeverityBlock,
		Description: "The destination must not be under UN/EU sanctions and must have a Maersk legal entity.",
		Flags:       []FlagKind{FlagSanctionedCountry, FlagNoMaerskEntity},
	}, ruleDestinationPermitted},
	{RuleInfo{
		Name:        "Right to Work",
		Severity:    SeverityBlock,
		Description: "The employee must hold the legal right to work in the destination country.",
		Flags:       []FlagKind{FlagNoRightToWork},
	}, ruleRightToWork},
	{RuleInfo{
		Name:        "Role Eligibility Check",
		Severity:    SeverityBlock,
		Description: "The employee's role category must be eligible for SIRW.",
		Flags:       []FlagKind{FlagRoleIneligible},
	}, ruleRoleEligible},
	{RuleInfo{
		Name:        "Consecutive Days Limit",
		Severity:    SeverityWarn,
		Description: "A trip, alone or combined with trips close to it, must stay within the consecutive workday limit.",
		Flags:       []FlagKind{FlagExceedsConsecutiveLimit},
	}, ruleConsecutiveLimit},
	{RuleInfo{
		Name:        "Annual Limit",
		Severity:    SeverityWarn,
		Description: "Workdays used this year plus this trip must stay within the annual allowance.",
		Flags:       []FlagKind{FlagExceedsAnnualLimit},
	}, ruleAnnualLimit},
}

// Rules returns the pipeline in evaluation order.
func Rules() []RuleInfo {
	out := make([]RuleInfo, len(pipeline))
	for i, step := range pipeline {
		out[i] = step.info
		out[i].Flags = append([]FlagKind(nil), step.info.Flags...)
	}
	return out
}

// Evaluator applies the rule pipeline under a policy and country list.
type Evaluator struct {
	Policy    Policy
	Countries *CountryPolicy

	rules []rule
}

func NewEvaluator(policy Policy, countries *CountryPolicy) *Evaluator {
	rules := make([]rule, len(pipeline))
	for i, step := range pipeline {
		rules[i] = step.apply
	}
	return &Evaluator{
		Policy:    policy,
		Countries: countries,
		rules:     rules,
	}
}

// Evaluate runs the pipeline. Hard failures short-circuit.
func (e *Evaluator) Evaluate(in EvaluationInput) Evaluation {
	acc := &accumulator{
		in:       in,
		policy:   e.Policy,
		country:  e.Countries.Classify(in.Request.DestinationCountry),
		workdays: in.Request.Workdays(),
	}

	for _, r := range e.rules {
		r(acc)
		if acc.hardFail {
			return Evaluation{Verdict: VerdictReject, Flags: acc.flags, Reasons: acc.reasons, Country: acc.country}
		}
	}

	return Evaluation{
		Verdict: settle(acc),
		Flags:   acc.flags,
		Reasons: acc.reasons,
		Country: acc.country,
	}
}

// settle decides the verdict once every soft rule has run.
func settle(acc *accumulator) Verdict {
	if !acc.flags.HasSoft() {
		return VerdictApprove
	}

	req := acc.in.Request
	reason := strings.TrimSpace(req.ExceptionReason)
	if req.IsExceptionRequest && reason != "" {
		acc.flags = acc.flags.Add(ExceptionFlag(reason))
		return VerdictEscalate
	}
	return VerdictReject
}

// =============================================================================
// RULES
// =============================================================================

func ruleDestinationPermitted(acc *accumulator) {
	if acc.country.Permitted {
		return
	}
	acc.raise(acc.country.Reason.Flag(), acc.country.Message())
}

func ruleRightToWork(acc *accumulator) {
	if acc.in.Attestations.HasRightToWork {
		return
	}
	acc.raise(NewFlag(FlagNoRightToWork),
		"SIRW cannot be approved without the legal right to work in the destination country.")
}

func ruleRoleEligible(acc *accumulator) {
	if acc.in.Attestations.RoleEligible {
		return
	}
	acc.raise(NewFlag(FlagRoleIneligible),
		"Your role category is not eligible for SIRW according to company policy.")
}

func ruleConsecutiveLimit(acc *accumulator) {
	limit := acc.policy.ConsecutiveLimit
	switch {
	case acc.workdays > limit:
		acc.raise(NewFlag(FlagExceedsConsecutiveLimit),
			fmt.Sprintf("Request of %d workdays exceeds the %d-day consecutive limit.", acc.workdays, limit))
	case acc.in.Overlap.CombinedDays > limit:
		acc.raise(NewFlag(FlagExceedsConsecutiveLimit),
			fmt.Sprintf("Combined with nearby requests this trip totals %d workdays, exceeding the %d-day consecutive limit.",
				acc.in.Overlap.CombinedDays, limit))
	}
}

// ruleAnnualLimit checks against the allowance the balance was computed
// under; the evaluator's policy only fills in a balance without one.
func ruleAnnualLimit(acc *accumulator) {
	allowed := acc.in.Balance.DaysAllowed
	if allowed == 0 {
		allowed = acc.policy.DaysAllowed
	}
	used := acc.in.Balance.DaysUsed
	total := used + acc.workdays
	if total <= allowed {
		return
	}
	acc.raise(NewFlag(FlagExceedsAnnualLimit),
		fmt.Sprintf("Request would exceed the annual limit (%d + %d = %d of %d days).",
			used, acc.workdays, total, allowed))
}
