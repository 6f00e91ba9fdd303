package sirw

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DASHBOARD STATS - Reviewer overview
// =============================================================================

// Stats summarizes a set of requests for the admin dashboard.
type Stats struct {
	Total          int
	ByStatus       map[Status]int
	AutoDecided    int
	HumanDecided   int
	AwaitingReview int

	// ApprovalRate is approved / (approved + rejected) as a percentage,
	// rounded to two decimals. Completed trips count as approved.
	ApprovalRate decimal.Decimal

	TopDestinations []DestinationCount
}

type DestinationCount struct {
	Country string
	Count   int
}

var hundred = decimal.NewFromInt(100)

// ComputeStats aggregates requests. topN limits TopDestinations.
func ComputeStats(requests []Request, topN int) Stats {
	s := Stats{
		Total:        len(requests),
		ByStatus:     make(map[Status]int, len(AllStatuses)),
		ApprovalRate: decimal.Zero,
	}
	for _, st := range AllStatuses {
		s.ByStatus[st] = 0
	}

	destinations := map[string]*DestinationCount{}
	for _, r := range requests {
		s.ByStatus[r.Status]++
		switch r.DecisionSource {
		case DecisionAuto:
			s.AutoDecided++
		case DecisionHuman:
			s.HumanDecided++
		}
		if r.Status == StatusEscalated {
			s.AwaitingReview++
		}

		key := strings.ToLower(strings.TrimSpace(r.DestinationCountry))
		if dc, ok := destinations[key]; ok {
			dc.Count++
		} else {
			destinations[key] = &DestinationCount{Country: r.DestinationCountry, Count: 1}
		}
	}

	approved := s.ByStatus[StatusApproved] + s.ByStatus[StatusCompleted]
	decided := approved + s.ByStatus[StatusRejected]
	if decided > 0 {
		s.ApprovalRate = decimal.NewFromInt(int64(approved)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(decided))).
			Round(2)
	}

	for _, dc := range destinations {
		s.TopDestinations = append(s.TopDestinations, *dc)
	}
	sort.Slice(s.TopDestinations, func(i, j int) bool {
		if s.TopDestinations[i].Count != s.TopDestinations[j].Count {
			return s.TopDestinations[i].Count > s.TopDestinations[j].Count
		}
		return s.TopDestinations[i].Country < s.TopDestinations[j].Country
	})
	if topN > 0 && len(s.TopDestinations) > topN {
		s.TopDestinations = s.TopDestinations[:topN]
	}
	return s
}

// UsagePercent is DaysUsed as a percentage of DaysAllowed, rounded to one decimal.
func (b AnnualBalance) UsagePercent() decimal.Decimal {
	if b.DaysAllowed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(b.DaysUsed)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(b.DaysAllowed))).
		Round(1)
}
