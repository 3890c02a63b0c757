package analysis

// CategoryVariance — отклонение категории от базовой линии с оценкой
// доступной экономии.
type CategoryVariance struct {
	Baseline   float64  `json:"baseline"`
	Projection float64  `json:"projection"`
	Variance   float64  `json:"variance"`
	// Opportunity ограничена пятой частью базовой линии: резать категорию
	// сильнее за один месяц нереалистично.
	Opportunity float64  `json:"opportunity"`
	SpentSoFar  float64  `json:"spent_so_far"`
	DayOfMonth  int      `json:"day_of_month"`
	MoMPct      *float64 `json:"mom_pct"`
}

// Variances — сводка отклонений по категориям за текущий месяц.
type Variances struct {
	PerCategory     map[string]CategoryVariance `json:"per_category"`
	CurrentMonth    string                      `json:"current_month"`
	TotalProjection float64                     `json:"total_projection"`
	TotalBaseline   float64                     `json:"total_baseline"`
}

// ComputeVariances проецирует траты текущего месяца по прожитым дням и
// сравнивает с базовой линией — медианой трёх предыдущих месяцев.
// baselines позволяет задать базовые линии явно (например, из бюджета).
func ComputeVariances(rows []Row, baselines map[string]float64) Variances {
	result := Variances{PerCategory: make(map[string]CategoryVariance)}

	var spendRows []Row
	for _, row := range rows {
		if row.IsSpend {
			spendRows = append(spendRows, row)
		}
	}
	if len(spendRows) == 0 {
		return result
	}

	monthSet := make(map[string]struct{})
	for _, row := range spendRows {
		monthSet[row.MonthKey] = struct{}{}
	}
	months := orderedKeys(monthSet)
	currentMonth := months[len(months)-1]
	previousMonths := months[:len(months)-1]
	if len(previousMonths) > 3 {
		previousMonths = previousMonths[len(previousMonths)-3:]
	}

	categoryMonthly := make(map[string]map[string]float64)
	dayOfMonth := 0
	for _, row := range spendRows {
		if categoryMonthly[row.Category] == nil {
			categoryMonthly[row.Category] = make(map[string]float64)
		}
		categoryMonthly[row.Category][row.MonthKey] += row.AmountAbs
		if row.MonthKey == currentMonth && row.Day > dayOfMonth {
			dayOfMonth = row.Day
		}
	}

	daysInCurrent := monthDays(currentMonth)
	result.CurrentMonth = currentMonth

	for category, monthMap := range categoryMonthly {
		var baseline float64
		if v, ok := baselines[category]; ok {
			baseline = v
		} else {
			var history []float64
			for _, m := range previousMonths {
				if monthMap[m] > 0 {
					history = append(history, monthMap[m])
				}
			}
			switch {
			case len(history) > 0:
				baseline = median(history)
			case len(previousMonths) > 0:
				baseline = monthMap[previousMonths[len(previousMonths)-1]]
			}
		}

		spentSoFar := monthMap[currentMonth]
		projection := spentSoFar
		if dayOfMonth > 0 && dayOfMonth < daysInCurrent {
			projection = spentSoFar / float64(dayOfMonth) * float64(daysInCurrent)
		}

		variance := projection - baseline
		opportunity := 0.0
		if baseline > 0 && variance > 0 {
			opportunity = min(variance, baseline*opportunityCapRatio)
		}

		var momPct *float64
		if len(previousMonths) > 0 {
			prev := monthMap[previousMonths[len(previousMonths)-1]]
			momPct = pctChange(spentSoFar, prev)
		}

		result.PerCategory[category] = CategoryVariance{
			Baseline:    baseline,
			Projection:  projection,
			Variance:    variance,
			Opportunity: opportunity,
			SpentSoFar:  spentSoFar,
			DayOfMonth:  dayOfMonth,
			MoMPct:      momPct,
		}
		result.TotalProjection += projection
		result.TotalBaseline += baseline
	}

	return result
}
