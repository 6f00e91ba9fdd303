/*
Package factory converts policy documents into sirw policy versions.

PURPOSE:
  Global Mobility edits the SIRW limits without a deploy. A policy document
  (JSON from the admin API, or YAML checked into the ops repo) is parsed here
  into a sirw.PolicyVersion, which the service then stores and applies.

DOCUMENT SCHEMA:
  {
    "name": "2025 standard",
    "days_allowed": 20,
    "consecutive_limit": 14,
    "proximity_days": 7,
    "changed_by": "gm-lead",
    "note": "annual review"
  }

  Omitted limits fall back to the defaults (20 / 14 / 7). proximity_days
  is a pointer so that an explicit 0 survives.

YAML:
  YAML is a superset of JSON, so ParsePolicy accepts both formats.

USAGE:
  f := factory.NewPolicyFactory()
  pv, err := f.ParsePolicy(body)
  pv, err = svc.UpdatePolicy(ctx, pv)

  At start-up, policy.file in the config names a document that seeds the
  policy (see config.LoadPolicyFile).

SEE ALSO:
  - sirw/policy.go: Policy and PolicyVersion
  - sirw/service.go: UpdatePolicy
*/
package factory

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyJSON is the external representation of a policy version.
type PolicyJSON struct {
	Name             string `json:"name" yaml:"name"`
	DaysAllowed      int    `json:"days_allowed,omitempty" yaml:"days_allowed,omitempty"`
	ConsecutiveLimit int    `json:"consecutive_limit,omitempty" yaml:"consecutive_limit,omitempty"`
	ProximityDays    *int   `json:"proximity_days,omitempty" yaml:"proximity_days,omitempty"`
	ChangedBy        string `json:"changed_by,omitempty" yaml:"changed_by,omitempty"`
	Note             string `json:"note,omitempty" yaml:"note,omitempty"`

	// Read-only on output.
	Version   int    `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts policy documents to sirw.PolicyVersion.
type PolicyFactory struct {
	// Defaults fill limits the document leaves out.
	Defaults sirw.Policy
}

// NewPolicyFactory creates a factory that falls back to sirw.DefaultPolicy.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{Defaults: sirw.DefaultPolicy()}
}

// ParsePolicy parses a JSON or YAML document.
func (f *PolicyFactory) ParsePolicy(doc []byte) (sirw.PolicyVersion, error) {
	var pj PolicyJSON
	if err := yaml.Unmarshal(doc, &pj); err != nil {
		return sirw.PolicyVersion{}, fmt.Errorf("failed to parse policy document: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts a decoded document. The result is validated; Version
// and CreatedAt are left for the store to assign.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (sirw.PolicyVersion, error) {
	p := sirw.Policy{
		DaysAllowed:      pj.DaysAllowed,
		ConsecutiveLimit: pj.ConsecutiveLimit,
		ProximityDays:    f.Defaults.ProximityDays,
	}
	if pj.ProximityDays != nil {
		p.ProximityDays = *pj.ProximityDays
	}
	if p.DaysAllowed == 0 {
		p.DaysAllowed = f.Defaults.DaysAllowed
	}
	if p.ConsecutiveLimit == 0 {
		p.ConsecutiveLimit = f.Defaults.ConsecutiveLimit
	}
	if err := p.Validate(); err != nil {
		return sirw.PolicyVersion{}, err
	}

	return sirw.PolicyVersion{
		Name:      pj.Name,
		Policy:    p,
		ChangedBy: pj.ChangedBy,
		Note:      pj.Note,
	}, nil
}

// ToJSON converts a stored version back to its document form.
func (f *PolicyFactory) ToJSON(pv sirw.PolicyVersion) PolicyJSON {
	proximity := pv.Policy.ProximityDays
	pj := PolicyJSON{
		Name:             pv.Name,
		DaysAllowed:      pv.Policy.DaysAllowed,
		ConsecutiveLimit: pv.Policy.ConsecutiveLimit,
		ProximityDays:    &proximity,
		ChangedBy:        pv.ChangedBy,
		Note:             pv.Note,
		Version:          pv.Version,
	}
	if !pv.CreatedAt.IsZero() {
		pj.CreatedAt = pv.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return pj
}
