package analysis

// TrendSlopes содержит наклоны линейных трендов расходов и доходов.
type TrendSlopes struct {
	TotalSpend  float64            `json:"total_spend"`
	TotalIncome float64            `json:"total_income"`
	Categories  map[string]float64 `json:"categories"`
}

// Forecast — прогноз расходов на следующий месяц с резервной моделью.
type Forecast struct {
	Month         string   `json:"month"`
	PrimaryModel  string   `json:"primary_model"`
	PrimaryValue  *float64 `json:"primary_value"`
	BackstopModel string   `json:"backstop_model"`
	BackstopValue *float64 `json:"backstop_value"`
}

// TrendMetrics — помесячные ряды расходов и доходов с производными метриками.
type TrendMetrics struct {
	Months          []string                      `json:"months"`
	MonthlySpend    map[string]float64            `json:"monthly_spend"`
	MonthlyIncome   map[string]float64            `json:"monthly_income"`
	SpendMovingAvg  map[string]float64            `json:"spend_moving_average"`
	IncomeMovingAvg map[string]float64            `json:"income_moving_average"`
	SpendMoMPct     map[string]*float64           `json:"spend_mom_pct"`
	IncomeMoMPct    map[string]*float64           `json:"income_mom_pct"`
	CategorySpend   map[string]map[string]float64 `json:"category_spend"`
	CategoryShare   map[string]map[string]float64 `json:"category_share"`
	TrendSlopes     TrendSlopes                   `json:"trend_slopes"`
	Forecast        *Forecast                     `json:"forecast"`
}

// MonthlyTrends строит помесячные метрики по винзоризованным суммам
// и прогноз на следующий месяц.
func MonthlyTrends(rows []Row) TrendMetrics {
	spendTotals := make(map[string]float64)
	incomeTotals := make(map[string]float64)
	categoryTotals := make(map[string]map[string]float64)

	for _, row := range rows {
		amount := row.AmountWinsorised
		switch {
		case row.IsSpend:
			spendTotals[row.MonthKey] += abs(amount)
			if categoryTotals[row.Category] == nil {
				categoryTotals[row.Category] = make(map[string]float64)
			}
			categoryTotals[row.Category][row.MonthKey] += abs(amount)
		case row.IsIncome:
			incomeTotals[row.MonthKey] += amount
		}
	}

	monthSet := make(map[string]struct{})
	for m := range spendTotals {
		monthSet[m] = struct{}{}
	}
	for m := range incomeTotals {
		monthSet[m] = struct{}{}
	}
	months := orderedKeys(monthSet)

	spendSeries := make([]float64, len(months))
	incomeSeries := make([]float64, len(months))
	for i, m := range months {
		spendSeries[i] = spendTotals[m]
		incomeSeries[i] = incomeTotals[m]
	}

	metrics := TrendMetrics{
		Months:          months,
		MonthlySpend:    make(map[string]float64, len(months)),
		MonthlyIncome:   make(map[string]float64, len(months)),
		SpendMovingAvg:  make(map[string]float64),
		IncomeMovingAvg: make(map[string]float64),
		SpendMoMPct:     make(map[string]*float64, len(months)),
		IncomeMoMPct:    make(map[string]*float64, len(months)),
		CategorySpend:   make(map[string]map[string]float64, len(categoryTotals)),
		CategoryShare:   make(map[string]map[string]float64),
	}

	for i, m := range months {
		metrics.MonthlySpend[m] = spendSeries[i]
		metrics.MonthlyIncome[m] = incomeSeries[i]
	}

	for i, avg := range rollingMean(spendSeries, 3) {
		if avg != nil {
			metrics.SpendMovingAvg[months[i]] = *avg
		}
	}
	for i, avg := range rollingMean(incomeSeries, 3) {
		if avg != nil {
			metrics.IncomeMovingAvg[months[i]] = *avg
		}
	}

	for i := range months {
		if i == 0 {
			metrics.SpendMoMPct[months[i]] = nil
			metrics.IncomeMoMPct[months[i]] = nil
			continue
		}
		metrics.SpendMoMPct[months[i]] = pctChange(spendSeries[i], spendSeries[i-1])
		metrics.IncomeMoMPct[months[i]] = pctChange(incomeSeries[i], incomeSeries[i-1])
	}

	categorySlopes := make(map[string]float64, len(categoryTotals))
	for category, byMonth := range categoryTotals {
		series := make(map[string]float64, len(months))
		values := make([]float64, len(months))
		for i, m := range months {
			series[m] = byMonth[m]
			values[i] = byMonth[m]
		}
		metrics.CategorySpend[category] = series
		categorySlopes[category] = linearTrend(values)
	}

	for _, m := range months {
		total := metrics.MonthlySpend[m]
		if total == 0 {
			continue
		}
		for category, series := range metrics.CategorySpend {
			if value := series[m]; value != 0 {
				if metrics.CategoryShare[m] == nil {
					metrics.CategoryShare[m] = make(map[string]float64)
				}
				metrics.CategoryShare[m][category] = value / total
			}
		}
	}

	metrics.TrendSlopes = TrendSlopes{
		TotalSpend:  linearTrend(spendSeries),
		TotalIncome: linearTrend(incomeSeries),
		Categories:  categorySlopes,
	}

	metrics.Forecast = forecastNextMonth(months, metrics.MonthlySpend)

	return metrics
}

// forecastNextMonth предпочитает сезонную наивную модель (тот же месяц год
// назад), резервируя скользящее среднее за последние три месяца.
func forecastNextMonth(months []string, monthlySpend map[string]float64) *Forecast {
	if len(months) == 0 {
		return nil
	}

	lastMonth := months[len(months)-1]
	nextMonth := addMonths(lastMonth, 1)

	var seasonal *float64
	if v, ok := monthlySpend[addMonths(nextMonth, -12)]; ok {
		seasonal = &v
	} else {
		v := monthlySpend[lastMonth]
		seasonal = &v
	}

	var movingAvg *float64
	if len(months) >= 3 {
		var sum float64
		for _, m := range months[len(months)-3:] {
			sum += monthlySpend[m]
		}
		v := sum / 3
		movingAvg = &v
	}

	primaryModel, primaryValue := "seasonal_naive", seasonal
	backstopModel, backstopValue := "moving_average", movingAvg
	if seasonal == nil {
		primaryModel, primaryValue = "moving_average", movingAvg
		backstopModel, backstopValue = "seasonal_naive", seasonal
	}

	if primaryValue == nil && backstopValue == nil {
		return nil
	}

	return &Forecast{
		Month:         nextMonth,
		PrimaryModel:  primaryModel,
		PrimaryValue:  primaryValue,
		BackstopModel: backstopModel,
		BackstopValue: backstopValue,
	}
}
