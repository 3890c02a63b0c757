package analysis

import (
	"sort"

	"github.com/mmeshcher/prism-system/internal/model"
)

// RisingCategory — категория с заметным ростом трат месяц к месяцу.
type RisingCategory struct {
	Category string  `json:"category"`
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	MoMPct   float64 `json:"mom_pct"`
}

// SavingOpportunity — категория с наибольшим доступным резервом экономии.
type SavingOpportunity struct {
	Category    string  `json:"category"`
	Opportunity float64 `json:"opportunity"`
	Baseline    float64 `json:"baseline"`
	Projection  float64 `json:"projection"`
}

// Summary — краткая выжимка отчёта для первого экрана.
type Summary struct {
	Period                  string              `json:"period"`
	TotalSpend30d           float64             `json:"total_spend_30d"`
	ProjectedSpendCurrMonth float64             `json:"projected_spend_curr_month"`
	TopRisingCategories     []RisingCategory    `json:"top_rising_categories"`
	TopSavingOpportunities  []SavingOpportunity `json:"top_saving_opportunities"`
}

// PatternsSummary — сжатое представление паттернов для отчёта.
type PatternsSummary struct {
	DowPeaks         map[string][]string           `json:"dow_peaks"`
	TimeBuckets      map[string]map[string]float64 `json:"time_buckets"`
	MerchantHHI      map[string]float64            `json:"merchant_hhi"`
	SmallLeaks       []LeakWeek                    `json:"small_leaks"`
	CashflowSqueezes []Squeeze                     `json:"cashflow_squeezes"`
}

// Report — полный результат анализа выписки.
type Report struct {
	Summary     Summary            `json:"summary"`
	Trends      TrendMetrics       `json:"trends"`
	Patterns    PatternsSummary    `json:"patterns"`
	Recurring   []RecurringEntry   `json:"recurring"`
	Anomalies   []Anomaly          `json:"anomalies"`
	Variances   Variances          `json:"variances"`
	Suggestions []model.Suggestion `json:"suggestions"`
	Challenges  []model.Challenge  `json:"challenges"`
}

// BuildReport прогоняет выписку через весь конвейер анализа и собирает отчёт.
func BuildReport(transactions []model.Transaction) (*Report, error) {
	rows, err := Preprocess(transactions)
	if err != nil {
		return nil, err
	}

	trends := MonthlyTrends(rows)
	patterns := MinePatterns(rows)
	recurring := DetectRecurring(rows)
	anomalies := DetectAnomalies(rows)
	variances := ComputeVariances(rows, nil)
	suggestions := BuildSuggestions(patterns, recurring)
	challenges := BuildChallenges(suggestions, patterns, variances)

	report := &Report{
		Summary:     buildSummary(rows, trends, variances),
		Trends:      trends,
		Patterns:    summarisePatterns(patterns),
		Recurring:   recurring,
		Anomalies:   anomalies,
		Variances:   variances,
		Suggestions: suggestions,
		Challenges:  challenges,
	}
	return report, nil
}

func summarisePatterns(patterns Patterns) PatternsSummary {
	return PatternsSummary{
		DowPeaks:         patterns.DowPeaks,
		TimeBuckets:      patterns.TimeBuckets,
		MerchantHHI:      patterns.MerchantHHI,
		SmallLeaks:       patterns.SmallLeaks,
		CashflowSqueezes: patterns.Cashflow.Squeezes,
	}
}

func buildSummary(rows []Row, trends TrendMetrics, variances Variances) Summary {
	summary := Summary{
		TopRisingCategories:    topRisingCategories(trends),
		TopSavingOpportunities: topSavingOpportunities(variances),
	}

	if len(trends.Months) > 0 {
		summary.Period = trends.Months[0] + ".." + trends.Months[len(trends.Months)-1]
	}
	summary.ProjectedSpendCurrMonth = variances.TotalProjection

	latest, ok := latestTimestamp(rows)
	if ok {
		cutoff := latest.AddDate(0, 0, -30)
		for _, row := range rows {
			if row.IsSpend && !row.Timestamp.Before(cutoff) {
				summary.TotalSpend30d += row.AmountAbs
			}
		}
	}

	return summary
}

// topRisingCategories выбирает до трёх категорий с ростом трат не меньше
// 10% месяц к месяцу при заметном текущем объёме.
func topRisingCategories(trends TrendMetrics) []RisingCategory {
	if len(trends.Months) < 2 {
		return nil
	}
	curr := trends.Months[len(trends.Months)-1]
	prev := trends.Months[len(trends.Months)-2]

	var rising []RisingCategory
	for _, category := range orderedKeys(trends.CategorySpend) {
		series := trends.CategorySpend[category]
		currValue, prevValue := series[curr], series[prev]
		if currValue < risingCategoryMinSpend {
			continue
		}
		change := pctChange(currValue, prevValue)
		if change == nil || *change < risingMoMThreshold {
			continue
		}
		rising = append(rising, RisingCategory{
			Category: category,
			Current:  currValue,
			Previous: prevValue,
			MoMPct:   *change,
		})
	}

	sort.SliceStable(rising, func(i, j int) bool { return rising[i].MoMPct > rising[j].MoMPct })
	if len(rising) > 3 {
		rising = rising[:3]
	}
	return rising
}

func topSavingOpportunities(variances Variances) []SavingOpportunity {
	var opportunities []SavingOpportunity
	for _, category := range orderedKeys(variances.PerCategory) {
		cv := variances.PerCategory[category]
		if cv.Opportunity <= 0 {
			continue
		}
		opportunities = append(opportunities, SavingOpportunity{
			Category:    category,
			Opportunity: cv.Opportunity,
			Baseline:    cv.Baseline,
			Projection:  cv.Projection,
		})
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Opportunity > opportunities[j].Opportunity
	})
	if len(opportunities) > 3 {
		opportunities = opportunities[:3]
	}
	return opportunities
}
