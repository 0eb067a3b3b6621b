package insights

import "sort"

// Rank selects one winner per device and orders winners by relevancy, highest first.
//
// facts are scanned in the given order. A device's winner is replaced only by a
// strictly more relevant candidate, so earlier facts win ties. Winners with
// equal relevancy keep the order their devices were first seen.
func Rank(rules RuleSet, facts []Fact) []Candidate {
	winners := make(map[string]int)
	var ordered []Candidate

	for _, fact := range facts {
		best, ok := rules.Best(fact)
		if !ok {
			continue
		}
		idx, seen := winners[fact.DeviceID]
		if !seen {
			winners[fact.DeviceID] = len(ordered)
			ordered = append(ordered, best)
			continue
		}
		if best.Relevancy > ordered[idx].Relevancy {
			ordered[idx] = best
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Relevancy > ordered[j].Relevancy
	})
	return ordered
}
