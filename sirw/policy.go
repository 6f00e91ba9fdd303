package sirw

import (
	"fmt"
	"time"

	"github.com/warp/sirw-engine/generic"
)

// =============================================================================
// POLICY - The numeric limits every rule reads
// =============================================================================

// Policy holds the configurable limits. It is passed by value into every
// component; nothing in the engine reads a global.
type Policy struct {
	// DaysAllowed is the annual SIRW allowance in workdays.
	DaysAllowed int `json:"days_allowed" mapstructure:"days_allowed"`

	// ConsecutiveLimit is the longest trip, in workdays, that can be
	// auto-approved. Nearby trips are combined before comparing.
	ConsecutiveLimit int `json:"consecutive_limit" mapstructure:"consecutive_limit"`

	// ProximityDays is the calendar-day window within which another trip
	// counts as "nearby" for the consecutive-limit check.
	ProximityDays int `json:"proximity_days" mapstructure:"proximity_days"`
}

const (
	DefaultDaysAllowed      = 20
	DefaultConsecutiveLimit = 14
	DefaultProximityDays    = 7
)

func DefaultPolicy() Policy {
	return Policy{
		DaysAllowed:      DefaultDaysAllowed,
		ConsecutiveLimit: DefaultConsecutiveLimit,
		ProximityDays:    DefaultProximityDays,
	}
}

// Validate rejects limits that would make every request fail or pass.
func (p Policy) Validate() error {
	verr := generic.NewValidationError()
	if p.DaysAllowed <= 0 {
		verr.Add("days_allowed", fmt.Sprintf("must be positive, got %d", p.DaysAllowed))
	}
	if p.ConsecutiveLimit <= 0 {
		verr.Add("consecutive_limit", fmt.Sprintf("must be positive, got %d", p.ConsecutiveLimit))
	}
	if p.ProximityDays < 0 {
		verr.Add("proximity_days", fmt.Sprintf("must not be negative, got %d", p.ProximityDays))
	}
	return verr.OrNil()
}

// WithDefaults fills zero limits from DefaultPolicy. ProximityDays is left
// alone because 0 is meaningful (only intersecting trips are nearby).
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.DaysAllowed == 0 {
		p.DaysAllowed = d.DaysAllowed
	}
	if p.ConsecutiveLimit == 0 {
		p.ConsecutiveLimit = d.ConsecutiveLimit
	}
	return p
}

// PolicyVersion is one stored revision of the policy. The highest version wins.
type PolicyVersion struct {
	Version   int
	Name      string
	Policy    Policy
	ChangedBy string
	Note      string
	CreatedAt time.Time
}
