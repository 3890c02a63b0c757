package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/prism-system/internal/model"
)

func tx(ts time.Time, amount float64, merchant, category string) model.Transaction {
	return model.Transaction{
		Timestamp: ts,
		Amount:    amount,
		Currency:  DisplayCurrency,
		Merchant:  merchant,
		Category:  category,
	}
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestPreprocessRejectsBadInput(t *testing.T) {
	_, err := Preprocess([]model.Transaction{
		tx(at(2025, time.March, 1, 12), -10, "Tesco", "groceries"),
		{Timestamp: at(2025, time.March, 2, 12), Amount: -5, Currency: "USD", Merchant: "Amazon"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported currency")

	_, err = Preprocess([]model.Transaction{
		{Amount: -5, Currency: DisplayCurrency, Merchant: "Amazon"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing timestamp")
}

func TestDetectRecurringSubscription(t *testing.T) {
	var txs []model.Transaction
	for _, month := range []time.Month{time.January, time.February, time.March, time.April} {
		txs = append(txs, tx(at(2025, month, 5, 10), -9.99, "Netflix", "entertainment"))
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	recurring := DetectRecurring(rows)
	require.Len(t, recurring, 1)

	entry := recurring[0]
	assert.Equal(t, "Netflix", entry.Merchant)
	assert.Equal(t, 30, entry.IntervalDays)
	assert.Equal(t, 5, entry.PayDayOfMonth)
	assert.Equal(t, 4, entry.Occurrences)
	assert.Equal(t, "subscription", entry.Type)
	assert.True(t, entry.GhostSubscription, "single merchant in category must look ghost")
	assert.InDelta(t, -9.99, entry.MedianAmount, 1e-9)
}

func TestDetectRecurringRent(t *testing.T) {
	var txs []model.Transaction
	for _, month := range []time.Month{time.January, time.February, time.March} {
		txs = append(txs, tx(at(2025, month, 1, 9), -950, "Flatline Lettings", "housing.rent"))
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	recurring := DetectRecurring(rows)
	require.Len(t, recurring, 1)
	assert.Equal(t, "rent", recurring[0].Type)
	assert.False(t, recurring[0].GhostSubscription)
}

func TestDetectRecurringSkipsUnstableAmounts(t *testing.T) {
	txs := []model.Transaction{
		tx(at(2025, time.January, 5, 10), -10, "Gymshark", "fitness"),
		tx(at(2025, time.February, 5, 10), -25, "Gymshark", "fitness"),
		tx(at(2025, time.March, 5, 10), -50, "Gymshark", "fitness"),
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)
	assert.Empty(t, DetectRecurring(rows))
}

func TestDetectAnomaliesDuplicates(t *testing.T) {
	txs := []model.Transaction{
		tx(at(2025, time.March, 1, 12), -8, "Tesco", "groceries"),
		tx(at(2025, time.March, 2, 12), -12, "Tesco", "groceries"),
		tx(time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC), -23.50, "Deliveroo", "eating_out"),
		tx(time.Date(2025, time.March, 3, 12, 3, 0, 0, time.UTC), -23.50, "Deliveroo", "eating_out"),
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	anomalies := DetectAnomalies(rows)

	var duplicates []Anomaly
	for _, anomaly := range anomalies {
		if anomaly.Reason == "potential_duplicate" {
			duplicates = append(duplicates, anomaly)
		}
	}
	require.Len(t, duplicates, 1)
	assert.Equal(t, "Deliveroo", duplicates[0].Merchant)
	assert.InDelta(t, 23.50, duplicates[0].Amount, 1e-9)
}

func TestMonthlyTrendsForecast(t *testing.T) {
	txs := []model.Transaction{
		tx(at(2025, time.January, 10, 12), -100, "Tesco", "groceries"),
		tx(at(2025, time.February, 10, 12), -110, "Tesco", "groceries"),
		tx(at(2025, time.March, 10, 12), -120, "Tesco", "groceries"),
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	trends := MonthlyTrends(rows)
	assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, trends.Months)

	mom := trends.SpendMoMPct["2025-02"]
	require.NotNil(t, mom)
	assert.InDelta(t, 0.1, *mom, 1e-9)

	forecast := trends.Forecast
	require.NotNil(t, forecast)
	assert.Equal(t, "2025-04", forecast.Month)
	assert.Equal(t, "seasonal_naive", forecast.PrimaryModel)
	require.NotNil(t, forecast.PrimaryValue)
	assert.InDelta(t, trends.MonthlySpend["2025-03"], *forecast.PrimaryValue, 1e-9)
	assert.Equal(t, "moving_average", forecast.BackstopModel)
	require.NotNil(t, forecast.BackstopValue)
}

func TestMinePatternsSmallLeaks(t *testing.T) {
	var txs []model.Transaction
	for day := 3; day <= 9; day++ {
		txs = append(txs, tx(at(2025, time.March, day, 15), -3, "Grind & Co", "snacks"))
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	patterns := MinePatterns(rows)
	require.Len(t, patterns.SmallLeaks, 1)
	assert.Equal(t, 7, patterns.SmallLeaks[0].Count)
	assert.InDelta(t, 3.0, patterns.SmallLeaks[0].AvgAmount, 1e-9)
}

func TestComputeVariances(t *testing.T) {
	txs := []model.Transaction{
		tx(at(2025, time.January, 5, 12), -100, "Tesco", "groceries"),
		tx(at(2025, time.January, 15, 12), -100, "Tesco", "groceries"),
		tx(at(2025, time.January, 25, 12), -100, "Tesco", "groceries"),
		tx(at(2025, time.February, 5, 12), -75, "Tesco", "groceries"),
		tx(at(2025, time.February, 10, 12), -75, "Tesco", "groceries"),
	}

	rows, err := Preprocess(txs)
	require.NoError(t, err)

	variances := ComputeVariances(rows, nil)
	assert.Equal(t, "2025-02", variances.CurrentMonth)

	cv, ok := variances.PerCategory["groceries"]
	require.True(t, ok)
	assert.InDelta(t, 300, cv.Baseline, 1e-9)
	assert.InDelta(t, 150, cv.SpentSoFar, 1e-9)
	assert.Equal(t, 10, cv.DayOfMonth)
	assert.InDelta(t, 420, cv.Projection, 1e-9, "150 over 10 days projected onto 28")
	assert.InDelta(t, 60, cv.Opportunity, 1e-9, "capped at 20% of baseline")
}

func TestBuildSuggestionsSubscription(t *testing.T) {
	recurring := []RecurringEntry{{
		Merchant:     "Netflix",
		MerchantKey:  "netflix",
		Category:     "entertainment",
		IntervalDays: 30,
		MedianAmount: -9.99,
		Type:         "subscription",
	}}

	suggestions := BuildSuggestions(Patterns{}, recurring)
	require.Len(t, suggestions, 1)
	assert.Equal(t, model.SuggestionSubscription, suggestions[0].Type)
	assert.InDelta(t, 9.99, suggestions[0].ExpectedSaving, 1e-9)
	assert.InDelta(t, 0.75, suggestions[0].Confidence, 1e-9)
}

func TestBuildChallengesCapAndOrder(t *testing.T) {
	patterns := Patterns{
		LateNight:     map[string]LateNightStat{"eating_out": {Share: 0.5, Amount: 80}},
		RidehailUsage: &RidehailUsage{Month: "2025-03", TripCount: 6, Spend: 100, AvgTicket: 16.7},
	}
	variances := Variances{PerCategory: map[string]CategoryVariance{
		"groceries": {Baseline: 300},
	}}
	suggestions := []model.Suggestion{{
		Type:           model.SuggestionSubscription,
		Category:       "entertainment",
		ExpectedSaving: 9.99,
	}}

	challenges := BuildChallenges(suggestions, patterns, variances)
	require.Len(t, challenges, 3)
	assert.Equal(t, "RIDEHAIL_SWAP_14D", challenges[0].Code)
	assert.Equal(t, "NO_LATE_NIGHT_7D", challenges[1].Code)
	assert.Equal(t, "GROCERY_TRIM_14D", challenges[2].Code)
}

func TestBuildReport(t *testing.T) {
	var txs []model.Transaction
	for _, month := range []time.Month{time.January, time.February, time.March} {
		txs = append(txs,
			tx(at(2025, month, 1, 9), 2400, "Salary", "income.salary"),
			tx(at(2025, month, 2, 9), -950, "Flatline Lettings", "housing.rent"),
			tx(at(2025, month, 5, 10), -9.99, "Netflix", "entertainment"),
			tx(at(2025, month, 12, 19), -35, "Deliveroo", "eating_out"),
			tx(at(2025, month, 20, 12), -80, "Tesco", "groceries"),
		)
	}

	report, err := BuildReport(txs)
	require.NoError(t, err)

	assert.Equal(t, "2025-01..2025-03", report.Summary.Period)
	assert.Greater(t, report.Summary.TotalSpend30d, 0.0)
	assert.NotEmpty(t, report.Recurring)
	assert.LessOrEqual(t, len(report.Suggestions), 10)
	assert.LessOrEqual(t, len(report.Challenges), 3)
}
