package analysis

import (
	"sort"
	"time"
)

// RecurringEntry — выявленный регулярный платёж (подписка или аренда).
type RecurringEntry struct {
	Merchant          string  `json:"merchant"`
	MerchantKey       string  `json:"merchant_key"`
	Category          string  `json:"category"`
	IntervalDays      int     `json:"interval_days"`
	MedianAmount      float64 `json:"median_amount"`
	PayDayOfMonth     int     `json:"pay_day_of_month"`
	Occurrences       int     `json:"occurrences"`
	GhostSubscription bool    `json:"ghost_subscription"`
	Type              string  `json:"type"`
	CV                float64 `json:"cv"`
}

// DetectRecurring ищет регулярные платежи: не меньше трёх списаний у одного
// продавца со стабильной суммой (CV <= 0.15) и интервалом около 7/14/30 дней.
// Месячная подписка в категории без другой активности за 60 дней помечается
// «призрачной» — вероятный кандидат на отмену.
func DetectRecurring(rows []Row) []RecurringEntry {
	var spendRows []Row
	for _, row := range rows {
		if row.IsSpend {
			spendRows = append(spendRows, row)
		}
	}
	if len(spendRows) == 0 {
		return nil
	}

	latest, _ := latestTimestamp(rows)
	cutoff60 := latest.AddDate(0, 0, -60)
	categoryMerchantsLast60 := make(map[string]map[string]bool)
	for _, row := range rows {
		if !row.Timestamp.Before(cutoff60) {
			if categoryMerchantsLast60[row.Category] == nil {
				categoryMerchantsLast60[row.Category] = make(map[string]bool)
			}
			categoryMerchantsLast60[row.Category][row.MerchantKey] = true
		}
	}

	byMerchant := make(map[string][]Row)
	for _, row := range spendRows {
		byMerchant[row.MerchantKey] = append(byMerchant[row.MerchantKey], row)
	}

	var recurring []RecurringEntry
	for merchantKey, txs := range byMerchant {
		if len(txs) < recurringMinOccurrences {
			continue
		}
		sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })

		amounts := make([]float64, len(txs))
		for i, tx := range txs {
			amounts[i] = tx.AmountAbs
		}
		avgAmount := mean(amounts)
		if avgAmount == 0 {
			continue
		}
		cv := stdev(amounts) / avgAmount
		if cv > recurringCVThreshold {
			continue
		}

		intervals := make([]float64, 0, len(txs)-1)
		for i := 1; i < len(txs); i++ {
			days := daysBetween(txs[i-1].Timestamp, txs[i].Timestamp)
			if days < 1 {
				days = 1
			}
			intervals = append(intervals, float64(days))
		}
		if len(intervals) == 0 {
			continue
		}
		interval, ok := matchInterval(median(intervals))
		if !ok {
			continue
		}

		payDays := make([]float64, len(txs))
		for i, tx := range txs {
			payDays[i] = float64(tx.Day)
		}
		payDay := int(median(payDays) + 0.5)

		category := mostCommonCategory(txs)
		displayName := mostCommonMerchant(txs)
		medianAmount := -median(amounts)

		ghost := false
		if interval == ghostSubscriptionInterval {
			others := 0
			for m := range categoryMerchantsLast60[category] {
				if m != merchantKey {
					others++
				}
			}
			ghost = others == 0
		}

		recurringType := "subscription"
		if abs(medianAmount) > rentAmountThreshold && (interval == 30 || rentCategories[category]) {
			recurringType = "rent"
		}

		recurring = append(recurring, RecurringEntry{
			Merchant:          displayName,
			MerchantKey:       merchantKey,
			Category:          category,
			IntervalDays:      interval,
			MedianAmount:      medianAmount,
			PayDayOfMonth:     payDay,
			Occurrences:       len(txs),
			GhostSubscription: ghost,
			Type:              recurringType,
			CV:                cv,
		})
	}

	sort.Slice(recurring, func(i, j int) bool {
		return abs(recurring[i].MedianAmount) > abs(recurring[j].MedianAmount)
	})
	return recurring
}

func matchInterval(value float64) (int, bool) {
	for _, candidate := range []int{7, 14, 30} {
		if abs(value-float64(candidate)) <= recurringIntervalTol {
			return candidate, true
		}
	}
	return 0, false
}

func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

func mostCommonCategory(txs []Row) string {
	counts := make(map[string]int)
	for _, tx := range txs {
		counts[tx.Category]++
	}
	best, bestCount := "", -1
	for _, key := range orderedKeys(counts) {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	return best
}

func mostCommonMerchant(txs []Row) string {
	counts := make(map[string]int)
	for _, tx := range txs {
		counts[tx.Merchant]++
	}
	best, bestCount := "", -1
	for _, key := range orderedKeys(counts) {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	return best
}
