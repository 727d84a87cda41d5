// Package compare cross-references odds snapshots from multiple sources
// and surfaces the pairs that differ by close to a unit fraction (1/N) of
// a USD-normalised decimal-odds unit.
package compare

import "fmt"

// Outcome is one priced selection within a market, e.g. a team to win.
type Outcome struct {
	Name     string
	Odds     float64
	Source   string
	Currency string
}

// Market is one priced event/market pair as seen by one source.
type Market struct {
	MarketID   string
	MarketName string
	EventName  string
	Source     string
	Currency   string
	Outcomes   []Outcome
}

// OddsDiff is one matched outcome pair whose USD-normalised odds differ by
// close to a unit fraction.
type OddsDiff struct {
	OutcomeName string
	SourceA     string
	OddsAUSD    float64
	SourceB     string
	OddsBUSD    float64
}

// AbsDiff is the raw absolute difference in USD-normalised decimal odds.
func (d OddsDiff) AbsDiff() float64 {
	diff := d.OddsAUSD - d.OddsBUSD
	if diff < 0 {
		diff = -diff
	}
	return round6(diff)
}

// Fraction is the nearest unit fraction 1/N (N in [1, maxDenominator])
// to AbsDiff, and how far AbsDiff actually sits from it.
func (d OddsDiff) Fraction(maxDenominator int) (denominator int, fractionErr float64) {
	return nearestUnitFraction(d.AbsDiff(), maxDenominator)
}

// BestSource is whichever side of the pair offered the higher USD odds.
func (d OddsDiff) BestSource() string {
	if d.OddsAUSD >= d.OddsBUSD {
		return d.SourceA
	}
	return d.SourceB
}

// BestOddsUSD is the higher of the two USD-normalised odds.
func (d OddsDiff) BestOddsUSD() float64 {
	if d.OddsAUSD >= d.OddsBUSD {
		return d.OddsAUSD
	}
	return d.OddsBUSD
}

func (d OddsDiff) String() string {
	n, ferr := d.Fraction(100)
	fracStr := "0"
	if n > 0 {
		fracStr = fmt.Sprintf("1/%d", n)
	}
	return fmt.Sprintf("[%s] %s=%.4f vs %s=%.4f (USD) | diff=%.6f ≈ %s unit | err=%.6f | best=%s@%.4f",
		d.OutcomeName, d.SourceA, d.OddsAUSD, d.SourceB, d.OddsBUSD,
		d.AbsDiff(), fracStr, round6(ferr), d.BestSource(), d.BestOddsUSD())
}

// MarketComparison groups every OddsDiff found for one (event, market)
// pair across all sources that reported it.
type MarketComparison struct {
	EventName  string
	MarketName string
	Diffs      []OddsDiff
}

// MaxDiff is the largest AbsDiff among this comparison's diffs, or zero
// if there are none.
func (c MarketComparison) MaxDiff() float64 {
	var max float64
	for _, d := range c.Diffs {
		if v := d.AbsDiff(); v > max {
			max = v
		}
	}
	return max
}

// TightestFraction is the smallest unit fraction observed across every
// diff in this comparison, formatted as "1/N", or "" if there are none.
func (c MarketComparison) TightestFraction(maxDenominator int) string {
	if len(c.Diffs) == 0 {
		return ""
	}
	bestN := 0
	bestVal := -1.0
	for _, d := range c.Diffs {
		n, _ := d.Fraction(maxDenominator)
		if n == 0 {
			continue
		}
		val := 1.0 / float64(n)
		if bestVal < 0 || val < bestVal {
			bestVal = val
			bestN = n
		}
	}
	if bestN == 0 {
		return "0"
	}
	return fmt.Sprintf("1/%d", bestN)
}

func round6(v float64) float64 {
	const scale = 1e6
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}
