package analysis

import (
	"math"
	"sort"
	"time"
)

// Anomaly — аномальная трата или подозрительная пара операций.
type Anomaly struct {
	Category string  `json:"category"`
	Period   string  `json:"period"`
	Amount   float64 `json:"amount"`
	Z        float64 `json:"z,omitempty"`
	Reason   string  `json:"reason"`
	Merchant string  `json:"merchant,omitempty"`
}

// DetectAnomalies находит три вида аномалий: недельные всплески категории
// против скользящего окна (z-score), разовые траты выше 99-го перцентиля
// вне аренды и возможные дубли — одинаковая сумма у того же продавца в
// пределах пяти минут.
func DetectAnomalies(rows []Row) []Anomaly {
	var spendRows []Row
	for _, row := range rows {
		if row.IsSpend {
			spendRows = append(spendRows, row)
		}
	}
	if len(spendRows) == 0 {
		return nil
	}

	var anomalies []Anomaly

	weeklyCategory := make(map[string]map[string]float64)
	for _, row := range spendRows {
		if weeklyCategory[row.Category] == nil {
			weeklyCategory[row.Category] = make(map[string]float64)
		}
		weeklyCategory[row.Category][row.WeekKey] += row.AmountAbs
	}

	for _, category := range orderedKeys(weeklyCategory) {
		weekMap := weeklyCategory[category]
		weeks := orderedKeys(weekMap)
		for i := 1; i < len(weeks); i++ {
			windowStart := i - anomalyWindowWeeks
			if windowStart < 0 {
				windowStart = 0
			}
			history := make([]float64, 0, i-windowStart)
			for j := windowStart; j < i; j++ {
				history = append(history, weekMap[weeks[j]])
			}
			if len(history) < 2 {
				continue
			}

			stdHistory := stdev(history)
			if stdHistory == 0 {
				continue
			}

			currValue := weekMap[weeks[i]]
			z := (currValue - mean(history)) / stdHistory
			delta := pctChange(currValue, weekMap[weeks[i-1]])
			if z > anomalyZThreshold && delta != nil && *delta > anomalyWeekDelta {
				anomalies = append(anomalies, Anomaly{
					Category: category,
					Period:   weeks[i],
					Amount:   currValue,
					Z:        z,
					Reason:   "spike_vs_rolling",
				})
			}
		}
	}

	var nonRentValues []float64
	for _, row := range spendRows {
		if !rentCategories[row.Category] {
			nonRentValues = append(nonRentValues, row.AmountAbs)
		}
	}
	if p99 := percentileValue(nonRentValues, 0.99); p99 > 0 {
		for _, row := range spendRows {
			if rentCategories[row.Category] {
				continue
			}
			if row.AmountAbs >= p99 && row.AmountAbs > 0 {
				anomalies = append(anomalies, Anomaly{
					Category: row.Category,
					Period:   row.Timestamp.Format(time.RFC3339),
					Amount:   row.AmountAbs,
					Reason:   "single_day_spike",
					Merchant: row.Merchant,
				})
			}
		}
	}

	anomalies = append(anomalies, detectDuplicates(spendRows)...)

	return anomalies
}

func detectDuplicates(spendRows []Row) []Anomaly {
	ordered := append([]Row(nil), spendRows...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })

	type dupKey struct {
		merchant string
		cents    int64
	}

	var anomalies []Anomaly
	seen := make(map[dupKey]time.Time)
	for _, row := range ordered {
		key := dupKey{merchant: row.MerchantKey, cents: int64(math.Round(row.Amount * 100))}
		if previous, ok := seen[key]; ok && row.Timestamp.Sub(previous) <= duplicateWindow {
			anomalies = append(anomalies, Anomaly{
				Category: row.Category,
				Period:   row.Timestamp.Format(time.RFC3339),
				Amount:   row.AmountAbs,
				Reason:   "potential_duplicate",
				Merchant: row.Merchant,
			})
		}
		seen[key] = row.Timestamp
	}
	return anomalies
}
