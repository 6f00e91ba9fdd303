/*
countries.go - Destination country classification

PURPOSE:
  Decides whether SIRW to a destination is permitted. Two lists block a
  destination: countries under UN/EU sanctions and countries where the
  company has no legal entity. Everything else is permitted.

MATCHING:
  Case-insensitive, surrounding whitespace ignored, by country name OR by
  ISO 3166-1 alpha-2 code: "iran", " IR ", "Iran" all match.
  Lookups hit pre-built maps; there is no scan per call.

OPEN WORLD:
  A destination that appears in neither list is PERMITTED. The lists are the
  only source of blocking; unknown spellings are not rejected.

DATA:
  The default list is embedded (countries.yaml). Operators can replace it at
  start-up with LoadCountryPolicy(path) using the same YAML layout.

SEE ALSO:
  - eligibility.go: First hard rule consumes Classify
  - api/handlers.go: GET /api/countries/...
*/
package sirw

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BlockReason explains why a destination is blocked.
type BlockReason string

const (
	BlockSanctions BlockReason = "sanctions"
	BlockNoEntity  BlockReason = "no_entity"
)

// Flag returns the policy flag raised by this block reason.
func (r BlockReason) Flag() Flag {
	if r == BlockSanctions {
		return NewFlag(FlagSanctionedCountry)
	}
	return NewFlag(FlagNoMaerskEntity)
}

// BlockedCountry is one entry of the reference list.
type BlockedCountry struct {
	Name   string      `yaml:"name" json:"name"`
	Code   string      `yaml:"code" json:"code"`
	Reason BlockReason `yaml:"reason" json:"reason"`
	Region string      `yaml:"region" json:"region"`
}

// Classification is the result of a lookup. Country is nil when permitted.
type Classification struct {
	Permitted bool
	Reason    BlockReason
	Country   *BlockedCountry
}

// Message is the employee-facing explanation for a blocked destination.
func (c Classification) Message() string {
	if c.Permitted || c.Country == nil {
		return ""
	}
	if c.Reason == BlockSanctions {
		return fmt.Sprintf("SIRW to %s is not permitted. This country is currently subject to UN/EU sanctions, "+
			"and remote work from this location would expose both Maersk and the employee to significant "+
			"legal and compliance risks.", c.Country.Name)
	}
	return fmt.Sprintf("SIRW to %s is not permitted. Maersk does not have a legal entity in this country, "+
		"which means we cannot ensure compliance with local tax, immigration, and employment regulations.",
		c.Country.Name)
}

// =============================================================================
// COUNTRY POLICY
// =============================================================================

//go:embed countries.yaml
var defaultCountriesYAML []byte

type countryFile struct {
	Countries []BlockedCountry `yaml:"countries"`
}

// CountryPolicy classifies destinations. Safe for concurrent use: it is
// never modified after construction.
type CountryPolicy struct {
	byKey     map[string]*BlockedCountry
	countries []BlockedCountry
}

// NewCountryPolicy indexes the given list by lower-cased name and code.
// A name or code may appear only once across the whole list.
func NewCountryPolicy(countries []BlockedCountry) (*CountryPolicy, error) {
	cp := &CountryPolicy{
		byKey:     make(map[string]*BlockedCountry, len(countries)*2),
		countries: make([]BlockedCountry, 0, len(countries)),
	}
	for _, c := range countries {
		if c.Reason != BlockSanctions && c.Reason != BlockNoEntity {
			return nil, fmt.Errorf("country %q: unknown block reason %q", c.Name, c.Reason)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("country with code %q has no name", c.Code)
		}
		cp.countries = append(cp.countries, c)
	}
	for i := range cp.countries {
		c := &cp.countries[i]
		keys := []string{normalizeCountry(c.Name)}
		if code := normalizeCountry(c.Code); code != "" && code != keys[0] {
			keys = append(keys, code)
		}
		for _, key := range keys {
			if prev, dup := cp.byKey[key]; dup {
				return nil, fmt.Errorf("country %q: %q is already listed for %q", c.Name, key, prev.Name)
			}
			cp.byKey[key] = c
		}
	}
	return cp, nil
}

// DefaultCountryPolicy returns the embedded reference list.
func DefaultCountryPolicy() *CountryPolicy {
	cp, err := parseCountryPolicy(defaultCountriesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded country list is invalid: %v", err))
	}
	return cp
}

// LoadCountryPolicy reads a replacement list from a YAML file.
func LoadCountryPolicy(path string) (*CountryPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country list: %w", err)
	}
	return parseCountryPolicy(data)
}

func parseCountryPolicy(data []byte) (*CountryPolicy, error) {
	var f countryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse country list: %w", err)
	}
	return NewCountryPolicy(f.Countries)
}

// Classify returns permitted unless the destination is on a blocked list.
func (cp *CountryPolicy) Classify(country string) Classification {
	c, ok := cp.byKey[normalizeCountry(country)]
	if !ok {
		return Classification{Permitted: true}
	}
	return Classification{Reason: c.Reason, Country: c}
}

// Blocked returns the list sorted by region then name, optionally filtered by reason.
func (cp *CountryPolicy) Blocked(reason BlockReason) []BlockedCountry {
	out := make([]BlockedCountry, 0, len(cp.countries))
	for _, c := range cp.countries {
		if reason == "" || c.Reason == reason {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func normalizeCountry(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
