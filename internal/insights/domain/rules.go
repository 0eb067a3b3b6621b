package insights

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout renders the day inside insight texts.
const DateLayout = "Jan 2, 2006"

// Rule identifies which rule produced a candidate.
type Rule string

const (
	RulePeakUsage  Rule = "peak_usage"
	RuleHighEnergy Rule = "high_energy"
	RuleHighCost   Rule = "high_cost"
)

// Fact is one aggregate row as the generator sees it.
type Fact struct {
	DeviceID         string
	DeviceName       string
	Date             time.Time
	TotalEnergyKWh   float64
	TotalCost        float64
	PeakEnergyKWh    float64
	OffPeakEnergyKWh float64
}

// Candidate is a scored insight produced by one rule on one fact.
type Candidate struct {
	DeviceID   string
	DeviceName string
	Date       time.Time
	Rule       Rule
	Text       string
	Relevancy  float64
}

// RuleSet holds rule thresholds and relevancy weights.
type RuleSet struct {
	PeakWeight      float64
	EnergyThreshold float64
	EnergyWeight    float64
	CostThreshold   float64
	CostWeight      float64
}

// DefaultRuleSet returns the stock thresholds.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		PeakWeight:      10,
		EnergyThreshold: 1000,
		EnergyWeight:    5,
		CostThreshold:   500,
		CostWeight:      2,
	}
}

// Evaluate returns the candidates fact triggers, in rule order.
func (r RuleSet) Evaluate(fact Fact) []Candidate {
	name := fact.DeviceName
	if name == "" {
		name = fact.DeviceID
	}
	date := fact.Date.Format(DateLayout)

	var out []Candidate
	add := func(rule Rule, text string, relevancy float64) {
		out = append(out, Candidate{
			DeviceID:   fact.DeviceID,
			DeviceName: name,
			Date:       fact.Date,
			Rule:       rule,
			Text:       text,
			Relevancy:  relevancy,
		})
	}

	if fact.PeakEnergyKWh > fact.OffPeakEnergyKWh {
		add(RulePeakUsage,
			fmt.Sprintf("%s had higher energy usage during peak hours on %s", name, date),
			(fact.PeakEnergyKWh-fact.OffPeakEnergyKWh)*r.PeakWeight)
	}
	if fact.TotalEnergyKWh > r.EnergyThreshold {
		add(RuleHighEnergy,
			fmt.Sprintf("%s consumed more than %s kWh on %s", name, formatAmount(r.EnergyThreshold), date),
			fact.TotalEnergyKWh*r.EnergyWeight)
	}
	if fact.TotalCost > r.CostThreshold {
		add(RuleHighCost,
			fmt.Sprintf("%s incurred a cost greater than %s on %s", name, formatAmount(r.CostThreshold), date),
			fact.TotalCost*r.CostWeight)
	}
	return out
}

// Best returns the highest-relevancy candidate of fact; the first rule wins ties.
func (r RuleSet) Best(fact Fact) (Candidate, bool) {
	candidates := r.Evaluate(fact)
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.Relevancy > best.Relevancy {
			best = candidate
		}
	}
	return best, true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
