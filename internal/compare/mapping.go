package compare

import "github.com/corvid-labs/tideline/internal/record"

// marketsFromRecords interprets each record's Payload as a single market
// with a "outcomes" list, using a fixed minimal field set. This mapping
// is deliberately shallow: it reads only market_id, market_name,
// event_name, currency, and an outcomes list of {name, odds, currency}.
// A source whose payload doesn't carry this shape simply yields no
// outcomes for that record — it does not error, since the comparator is
// an optional subscriber layered on top of an otherwise opaque core
// record, not a schema the core enforces.
func marketsFromRecords(records []record.Record) []Market {
	markets := make([]Market, 0, len(records))
	for _, r := range records {
		m := Market{
			MarketID:   stringField(r.Payload, "market_id"),
			MarketName: stringField(r.Payload, "market_name"),
			EventName:  stringField(r.Payload, "event_name"),
			Source:     r.Source,
			Currency:   stringField(r.Payload, "currency"),
		}

		rawOutcomes, _ := r.Payload["outcomes"].([]any)
		for _, raw := range rawOutcomes {
			fields, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			m.Outcomes = append(m.Outcomes, Outcome{
				Name:     stringField(fields, "name"),
				Odds:     floatField(fields, "odds"),
				Source:   r.Source,
				Currency: firstNonEmpty(stringField(fields, "currency"), m.Currency),
			})
		}

		markets = append(markets, m)
	}
	return markets
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
