package stats

import "github.com/shopspring/decimal"

// Trend is the direction of a period-over-period change.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// PercentChange returns the change from previous to current in percent,
// rounded to two decimals. A zero previous value yields 0 when current is
// also zero and 100 otherwise.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	cur := decimal.NewFromFloat(current)
	prev := decimal.NewFromFloat(previous)
	change, _ := cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return change
}

// TrendOf reports up when current is at least previous.
func TrendOf(current, previous float64) Trend {
	if current >= previous {
		return TrendUp
	}
	return TrendDown
}

// Round rounds v to places decimals.
func Round(v float64, places int32) float64 {
	out, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return out
}
