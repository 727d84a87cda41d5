package compare

import (
	"sort"
	"strings"

	"github.com/corvid-labs/tideline/internal/fxrate"
)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// nearestUnitFraction returns the N in [1, maxDenominator] minimizing
// |diff - 1/N|, and how far diff actually sits from 1/N. Returns (0, 0)
// when diff is exactly zero, matching the "no fractional relationship"
// case.
func nearestUnitFraction(diff float64, maxDenominator int) (n int, fractionErr float64) {
	if diff == 0 {
		return 0, 0
	}
	bestN := 1
	bestErr := absf(diff - 1.0)
	for candidate := 2; candidate <= maxDenominator; candidate++ {
		err := absf(diff - 1.0/float64(candidate))
		if err < bestErr {
			bestErr = err
			bestN = candidate
		}
	}
	return bestN, bestErr
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func oddsToUSD(o Outcome, fx *fxrate.Rates) (float64, error) {
	rate, err := fx.Rate(o.Currency)
	if err != nil {
		return 0, err
	}
	return round6(o.Odds * rate), nil
}

type marketKey struct{ event, market string }

// CompareMarkets cross-references markets from every source, keeping only
// matched-outcome pairs whose USD-normalised odds differ within
// fractionTolerance of a unit fraction 1/N (N <= maxDenominator). Results
// are sorted by MaxDiff descending, matching the source's "biggest
// discrepancy first" ordering.
func CompareMarkets(marketsBySource map[string][]Market, fx *fxrate.Rates, maxDenominator int, fractionTolerance float64) ([]MarketComparison, error) {
	indexed := make(map[marketKey]map[string]Market)
	for source, markets := range marketsBySource {
		for _, m := range markets {
			key := marketKey{normalize(m.EventName), normalize(m.MarketName)}
			bySource, ok := indexed[key]
			if !ok {
				bySource = make(map[string]Market)
				indexed[key] = bySource
			}
			bySource[source] = m
		}
	}

	var comparisons []MarketComparison
	for _, bySource := range indexed {
		if len(bySource) < 2 {
			continue
		}

		sources := make([]string, 0, len(bySource))
		for s := range bySource {
			sources = append(sources, s)
		}
		sort.Strings(sources)

		var diffs []OddsDiff
		var anyMarket Market
		for i := 0; i < len(sources); i++ {
			for j := i + 1; j < len(sources); j++ {
				sourceA, sourceB := sources[i], sources[j]
				marketA, marketB := bySource[sourceA], bySource[sourceB]
				anyMarket = marketA

				outcomesA := outcomesByName(marketA)
				outcomesB := outcomesByName(marketB)

				for name, oa := range outcomesA {
					ob, ok := outcomesB[name]
					if !ok {
						continue
					}

					usdA, err := oddsToUSD(oa, fx)
					if err != nil {
						continue
					}
					usdB, err := oddsToUSD(ob, fx)
					if err != nil {
						continue
					}
					rawDiff := absf(usdA - usdB)

					n, fracErr := nearestUnitFraction(rawDiff, maxDenominator)
					if n == 0 || fracErr > fractionTolerance {
						continue
					}

					diffs = append(diffs, OddsDiff{
						OutcomeName: oa.Name,
						SourceA:     sourceA,
						OddsAUSD:    usdA,
						SourceB:     sourceB,
						OddsBUSD:    usdB,
					})
				}
			}
		}

		if len(diffs) > 0 {
			comparisons = append(comparisons, MarketComparison{
				EventName:  anyMarket.EventName,
				MarketName: anyMarket.MarketName,
				Diffs:      diffs,
			})
		}
	}

	sort.Slice(comparisons, func(i, j int) bool {
		return comparisons[i].MaxDiff() > comparisons[j].MaxDiff()
	})
	return comparisons, nil
}

func outcomesByName(m Market) map[string]Outcome {
	out := make(map[string]Outcome, len(m.Outcomes))
	for _, o := range m.Outcomes {
		out[normalize(o.Name)] = o
	}
	return out
}
