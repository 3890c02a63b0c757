// Package analysis реализует анализ трат: тренды, паттерны, регулярные
// платежи, аномалии и рекомендации по экономии. Все функции чистые и
// работают над выпиской в памяти, без обращения к хранилищу.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmeshcher/prism-system/internal/model"
)

// DisplayCurrency — единственная валюта, поддерживаемая анализатором.
const DisplayCurrency = "GBP"

// Пороговые константы анализатора. Значения перенесены из продуктовой
// калибровки и меняются только вместе с ней.
const (
	winsorisePercentile       = 0.99
	hhiWindowWeeks            = 8
	hhiHighThreshold          = 0.4
	smallTxThreshold          = 5.0
	smallTxWeekLimit          = 6
	dripRiseMinDelta          = 0.15
	recurringCVThreshold      = 0.15
	recurringIntervalTol      = 2
	recurringMinOccurrences   = 3
	anomalyWindowWeeks        = 6
	anomalyZThreshold         = 2.0
	anomalyWeekDelta          = 0.30
	opportunityCapRatio       = 0.2
	risingMoMThreshold        = 0.10
	duplicateWindow           = 5 * time.Minute
	lateNightShareThreshold   = 0.35
	ridehailSuggestMinTrips   = 4
	maxRuleSuggestions        = 10
	maxChallenges             = 3
	risingCategoryMinSpend    = 15.0
	ghostSubscriptionInterval = 30
	rentAmountThreshold       = 200.0
)

// categoryAliases сводит продавцов и разговорные названия к каноническим категориям.
var categoryAliases = map[string]string{
	"uber":          "transport.ridehail",
	"bolt":          "transport.ridehail",
	"lyft":          "transport.ridehail",
	"tfl":           "transport.public",
	"national rail": "transport.public",
	"tesco":         "groceries",
	"sainsburys":    "groceries",
	"sainsbury's":   "groceries",
	"waitrose":      "groceries",
	"aldi":          "groceries",
	"lidl":          "groceries",
	"deliveroo":     "eating_out",
	"just eat":      "eating_out",
	"starbucks":     "dining.coffee",
	"pret":          "dining.coffee",
	"hmrc":          "taxes",
	"salary":        "income.salary",
}

var necessityCategories = map[string]bool{
	"groceries":        true,
	"housing.rent":     true,
	"rent":             true,
	"utilities":        true,
	"transport.public": true,
	"taxes":            true,
}

var swapEligibleCategories = map[string]bool{
	"groceries":     true,
	"dining.coffee": true,
}

var lateNightCategories = map[string]bool{
	"eating_out":      true,
	"dining.delivery": true,
}

var ridehailCategories = map[string]bool{
	"transport.ridehail": true,
}

var rentCategories = map[string]bool{
	"housing.rent": true,
	"rent":         true,
}

var dowNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

var timeBuckets = []string{"morning", "afternoon", "evening", "late"}

// Row — одна операция выписки, обогащённая производными полями.
type Row struct {
	Timestamp        time.Time
	Amount           float64
	AmountAbs        float64
	AmountWinsorised float64
	Merchant         string
	MerchantKey      string
	Category         string
	WeekKey          string
	MonthKey         string
	Day              int
	Hour             int
	Dow              int
	TimeBucket       string
	IsSpend          bool
	IsIncome         bool
}

// Preprocess обогащает операции производными полями и винзоризует траты
// по перцентилю внутри категории, чтобы разовые выбросы не ломали тренды.
func Preprocess(transactions []model.Transaction) ([]Row, error) {
	rows := make([]Row, 0, len(transactions))
	for i, tx := range transactions {
		if tx.Currency != "" && tx.Currency != DisplayCurrency {
			return nil, fmt.Errorf("unsupported currency %q at index %d, expected %s", tx.Currency, i, DisplayCurrency)
		}
		if tx.Timestamp.IsZero() {
			return nil, fmt.Errorf("missing timestamp at index %d", i)
		}

		dt := tx.Timestamp.UTC()
		merchant := strings.TrimSpace(tx.Merchant)
		if merchant == "" {
			merchant = "unknown"
		}

		isoYear, isoWeek := dt.ISOWeek()

		rows = append(rows, Row{
			Timestamp:   dt,
			Amount:      tx.Amount,
			AmountAbs:   abs(tx.Amount),
			Merchant:    merchant,
			MerchantKey: strings.ToLower(merchant),
			Category:    normaliseCategory(tx.Category),
			WeekKey:     fmt.Sprintf("%d-W%02d", isoYear, isoWeek),
			MonthKey:    dt.Format("2006-01"),
			Day:         dt.Day(),
			Hour:        dt.Hour(),
			Dow:         mondayIndexed(dt.Weekday()),
			TimeBucket:  timeOfDayBucket(dt.Hour()),
			IsSpend:     tx.Amount < 0,
			IsIncome:    tx.Amount > 0,
		})
	}

	winsoriseSpendAmounts(rows, winsorisePercentile)
	return rows, nil
}

func normaliseCategory(raw string) string {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == "" {
		return "uncategorised"
	}
	if alias, ok := categoryAliases[norm]; ok {
		return alias
	}
	return norm
}

func timeOfDayBucket(hour int) string {
	switch {
	case hour >= 6 && hour <= 11:
		return "morning"
	case hour >= 12 && hour <= 17:
		return "afternoon"
	case hour >= 18 && hour <= 22:
		return "evening"
	default:
		return "late"
	}
}

func mondayIndexed(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

func winsoriseSpendAmounts(rows []Row, percentile float64) {
	perCategory := make(map[string][]float64)
	for _, row := range rows {
		if row.IsSpend {
			perCategory[row.Category] = append(perCategory[row.Category], row.AmountAbs)
		}
	}

	caps := make(map[string]float64, len(perCategory))
	for cat, values := range perCategory {
		caps[cat] = percentileValue(values, percentile)
	}

	for i := range rows {
		if rows[i].IsSpend {
			cap, ok := caps[rows[i].Category]
			if !ok {
				cap = rows[i].AmountAbs
			}
			rows[i].AmountWinsorised = -min(rows[i].AmountAbs, cap)
		} else {
			rows[i].AmountWinsorised = rows[i].Amount
		}
	}
}

// orderedKeys возвращает отсортированные ключи вида YYYY-MM или YYYY-Www.
// Оба формата с ведущими нулями, поэтому лексикографический порядок хронологичен.
func orderedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func latestTimestamp(rows []Row) (time.Time, bool) {
	var latest time.Time
	for _, row := range rows {
		if row.Timestamp.After(latest) {
			latest = row.Timestamp
		}
	}
	return latest, !latest.IsZero()
}
