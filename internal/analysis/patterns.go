package analysis

import "time"

// HHIDetail описывает концентрацию трат категории на продавцах за окно HHI.
type HHIDetail struct {
	HHI         float64 `json:"hhi"`
	TopMerchant string  `json:"top_merchant"`
	TopShare    float64 `json:"top_share"`
	Total       float64 `json:"total"`
}

// LeakWeek — неделя с избыточным числом мелких трат.
type LeakWeek struct {
	Week      string  `json:"week"`
	Count     int     `json:"count"`
	AvgAmount float64 `json:"avg_amount"`
	Total     float64 `json:"total"`
	Rising    bool    `json:"rising"`
}

// Squeeze — неделя с отрицательным нетто-потоком перед положительной.
type Squeeze struct {
	Week          string  `json:"week"`
	Net           float64 `json:"net"`
	FollowingWeek string  `json:"following_week"`
}

// Cashflow — понедельный нетто-поток и зажатые недели.
type Cashflow struct {
	Weeks     []string           `json:"weeks"`
	WeeklyNet map[string]float64 `json:"weekly_net"`
	Squeezes  []Squeeze          `json:"squeezes"`
}

// LateNightStat — доля и сумма вечерних трат категории.
type LateNightStat struct {
	Share  float64 `json:"share"`
	Amount float64 `json:"amount"`
}

// RidehailUsage — использование такси-агрегаторов в текущем месяце.
type RidehailUsage struct {
	Month     string  `json:"month"`
	TripCount int     `json:"trip_count"`
	Spend     float64 `json:"spend"`
	AvgTicket float64 `json:"avg_ticket"`
}

// Patterns — результаты майнинга паттернов трат.
type Patterns struct {
	DowPeaks           map[string][]string           `json:"dow_peaks"`
	TimeBuckets        map[string]map[string]float64 `json:"time_buckets"`
	MerchantHHI        map[string]float64            `json:"merchant_hhi"`
	MerchantHHIDetails map[string]HHIDetail          `json:"merchant_hhi_details"`
	SmallLeaks         []LeakWeek                    `json:"small_leaks"`
	Cashflow           Cashflow                      `json:"cashflow"`
	LateNight          map[string]LateNightStat      `json:"late_night"`
	RidehailUsage      *RidehailUsage                `json:"ridehail_usage"`
	Category30dSpend   map[string]float64            `json:"category_30d_spend"`
}

// MinePatterns ищет повторяющиеся поведенческие паттерны: пики по дням
// недели, вечерние траты, концентрацию на продавцах, мелкие утечки и
// зажатые недели кэшфлоу.
func MinePatterns(rows []Row) Patterns {
	patterns := Patterns{
		DowPeaks:           make(map[string][]string),
		TimeBuckets:        make(map[string]map[string]float64),
		MerchantHHI:        make(map[string]float64),
		MerchantHHIDetails: make(map[string]HHIDetail),
		LateNight:          make(map[string]LateNightStat),
		Category30dSpend:   make(map[string]float64),
		Cashflow:           Cashflow{WeeklyNet: make(map[string]float64)},
	}

	var spendRows []Row
	for _, row := range rows {
		if row.IsSpend {
			spendRows = append(spendRows, row)
		}
	}
	if len(spendRows) == 0 {
		return patterns
	}

	latest, _ := latestTimestamp(rows)
	cutoffHHI := latest.Add(-time.Duration(hhiWindowWeeks) * 7 * 24 * time.Hour)
	cutoff30d := latest.AddDate(0, 0, -30)

	categoryTotals := make(map[string]float64)
	categoryDow := make(map[string]map[int]float64)
	categoryTime := make(map[string]map[string]float64)
	merchantWindow := make(map[string]map[string]float64)

	for _, row := range spendRows {
		cat := row.Category
		amt := row.AmountAbs
		categoryTotals[cat] += amt

		if categoryDow[cat] == nil {
			categoryDow[cat] = make(map[int]float64)
		}
		categoryDow[cat][row.Dow] += amt

		if categoryTime[cat] == nil {
			categoryTime[cat] = make(map[string]float64)
		}
		categoryTime[cat][row.TimeBucket] += amt

		if !row.Timestamp.Before(cutoffHHI) {
			if merchantWindow[cat] == nil {
				merchantWindow[cat] = make(map[string]float64)
			}
			merchantWindow[cat][row.MerchantKey] += amt
		}
		if !row.Timestamp.Before(cutoff30d) {
			patterns.Category30dSpend[cat] += amt
		}
	}

	for cat, total := range categoryTotals {
		if total == 0 {
			continue
		}

		// Пиком считается день с долей не ниже 20% и не дальше 5 п.п. от максимума.
		maxShare := 0.0
		for _, value := range categoryDow[cat] {
			if share := value / total; share > maxShare {
				maxShare = share
			}
		}
		var peaks []string
		for dow := 0; dow < len(dowNames); dow++ {
			share := categoryDow[cat][dow] / total
			if share >= maxShare-0.05 && share >= 0.2 {
				peaks = append(peaks, dowNames[dow])
			}
		}
		if len(peaks) > 0 {
			patterns.DowPeaks[cat] = peaks
		}

		bucketShares := make(map[string]float64, len(timeBuckets))
		for _, bucket := range timeBuckets {
			bucketShares[bucket] = categoryTime[cat][bucket] / total
		}
		patterns.TimeBuckets[cat] = bucketShares

		lateShare := bucketShares["evening"] + bucketShares["late"]
		lateAmount := categoryTime[cat]["evening"] + categoryTime[cat]["late"]
		if lateShare > 0 {
			patterns.LateNight[cat] = LateNightStat{Share: lateShare, Amount: lateAmount}
		}
	}

	for cat, merchants := range merchantWindow {
		var total float64
		for _, value := range merchants {
			total += value
		}
		if total == 0 {
			continue
		}

		var hhi, topShare float64
		var topMerchant string
		for merchant, value := range merchants {
			share := value / total
			hhi += share * share
			if share > topShare {
				topShare = share
				topMerchant = merchant
			}
		}
		patterns.MerchantHHI[cat] = hhi
		patterns.MerchantHHIDetails[cat] = HHIDetail{
			HHI:         hhi,
			TopMerchant: topMerchant,
			TopShare:    topShare,
			Total:       total,
		}
	}

	patterns.SmallLeaks = computeSmallLeaks(spendRows)
	patterns.Cashflow = computeCashflow(rows)
	patterns.RidehailUsage = computeRidehailUsage(spendRows)

	return patterns
}

// computeSmallLeaks находит недели, где мелких необязательных трат больше лимита.
func computeSmallLeaks(spendRows []Row) []LeakWeek {
	type leak struct {
		count int
		total float64
	}
	leaks := make(map[string]*leak)
	for _, row := range spendRows {
		if row.AmountAbs < smallTxThreshold && !necessityCategories[row.Category] {
			if leaks[row.WeekKey] == nil {
				leaks[row.WeekKey] = &leak{}
			}
			leaks[row.WeekKey].count++
			leaks[row.WeekKey].total += row.AmountAbs
		}
	}

	var result []LeakWeek
	prevCount := -1
	for _, week := range orderedKeys(leaks) {
		data := leaks[week]
		avg := 0.0
		if data.count > 0 {
			avg = data.total / float64(data.count)
		}
		rising := prevCount > 0 && float64(data.count) > float64(prevCount)*(1+dripRiseMinDelta)
		prevCount = data.count

		if data.count > smallTxWeekLimit {
			result = append(result, LeakWeek{
				Week:      week,
				Count:     data.count,
				AvgAmount: avg,
				Total:     data.total,
				Rising:    rising,
			})
		}
	}
	return result
}

func computeCashflow(rows []Row) Cashflow {
	weeklyNet := make(map[string]float64)
	for _, row := range rows {
		weeklyNet[row.WeekKey] += row.Amount
	}
	weeks := orderedKeys(weeklyNet)

	var squeezes []Squeeze
	for i := 0; i+1 < len(weeks); i++ {
		if weeklyNet[weeks[i]] < 0 && weeklyNet[weeks[i+1]] > 0 {
			squeezes = append(squeezes, Squeeze{
				Week:          weeks[i],
				Net:           weeklyNet[weeks[i]],
				FollowingWeek: weeks[i+1],
			})
		}
	}

	return Cashflow{Weeks: weeks, WeeklyNet: weeklyNet, Squeezes: squeezes}
}

func computeRidehailUsage(spendRows []Row) *RidehailUsage {
	var currentMonth string
	for _, row := range spendRows {
		if ridehailCategories[row.Category] && row.MonthKey > currentMonth {
			currentMonth = row.MonthKey
		}
	}
	if currentMonth == "" {
		return nil
	}

	var count int
	var spend float64
	for _, row := range spendRows {
		if ridehailCategories[row.Category] && row.MonthKey == currentMonth {
			count++
			spend += row.AmountAbs
		}
	}

	avg := 0.0
	if count > 0 {
		avg = spend / float64(count)
	}
	return &RidehailUsage{Month: currentMonth, TripCount: count, Spend: spend, AvgTicket: avg}
}
