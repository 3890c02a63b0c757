package analysis

import (
	"fmt"

	"github.com/mmeshcher/prism-system/internal/model"
)

// BuildSuggestions собирает правила экономии в фиксированном порядке
// генераторов и отдаёт не больше десяти рекомендаций.
func BuildSuggestions(patterns Patterns, recurring []RecurringEntry) []model.Suggestion {
	var suggestions []model.Suggestion
	suggestions = append(suggestions, subscriptionSuggestions(recurring)...)
	suggestions = append(suggestions, merchantSwapSuggestions(patterns)...)
	suggestions = append(suggestions, dripSpendSuggestions(patterns)...)
	suggestions = append(suggestions, lateNightSuggestions(patterns)...)
	suggestions = append(suggestions, ridehailSuggestions(patterns)...)
	suggestions = append(suggestions, cashflowBufferSuggestions(patterns, recurring)...)

	if len(suggestions) > maxRuleSuggestions {
		suggestions = suggestions[:maxRuleSuggestions]
	}
	return suggestions
}

func subscriptionSuggestions(recurring []RecurringEntry) []model.Suggestion {
	var results []model.Suggestion
	for _, entry := range recurring {
		if entry.Type != "subscription" && !entry.GhostSubscription {
			continue
		}
		if entry.IntervalDays != 30 {
			continue
		}

		insight := fmt.Sprintf("%s charges %s every %dd",
			entry.Merchant, formatCurrency(abs(entry.MedianAmount)), entry.IntervalDays)
		if entry.GhostSubscription {
			insight += " and shows low surrounding activity"
		}

		results = append(results, model.Suggestion{
			Title:   fmt.Sprintf("Review %s subscription", entry.Merchant),
			Insight: insight,
			Evidence: map[string]any{
				"interval_days": entry.IntervalDays,
				"median_amount": entry.MedianAmount,
				"pay_day":       entry.PayDayOfMonth,
				"ghost":         entry.GhostSubscription,
			},
			Action:         "Cancel or downgrade the plan if it's unused.",
			ExpectedSaving: abs(entry.MedianAmount),
			Confidence:     0.75,
			Category:       entry.Category,
			Type:           model.SuggestionSubscription,
		})
	}
	return results
}

func merchantSwapSuggestions(patterns Patterns) []model.Suggestion {
	var results []model.Suggestion
	for _, category := range orderedKeys(patterns.MerchantHHIDetails) {
		info := patterns.MerchantHHIDetails[category]
		if !swapEligibleCategories[category] || info.HHI <= hhiHighThreshold {
			continue
		}

		results = append(results, model.Suggestion{
			Title: fmt.Sprintf("Swap out pricey %s merchants", humaniseCategory(category)),
			Insight: fmt.Sprintf("%s spend is %.2f HHI; %s accounts for %.0f%%",
				humaniseCategory(category), info.HHI, info.TopMerchant, info.TopShare*100),
			Evidence: map[string]any{
				"top_merchant": info.TopMerchant,
				"top_share":    info.TopShare,
				"hhi":          info.HHI,
			},
			Action:         "Shift at least half of orders to a lower-cost alternative or loyalty offer.",
			ExpectedSaving: info.Total * 0.1 * info.TopShare,
			Confidence:     0.6,
			Category:       category,
			Type:           model.SuggestionSwap,
		})
	}
	return results
}

func dripSpendSuggestions(patterns Patterns) []model.Suggestion {
	if len(patterns.SmallLeaks) == 0 {
		return nil
	}
	latest := patterns.SmallLeaks[len(patterns.SmallLeaks)-1]

	excess := latest.Count - smallTxWeekLimit
	if excess < 0 {
		excess = 0
	}

	return []model.Suggestion{{
		Title: "Cap sub-£5 drip spend",
		Insight: fmt.Sprintf("%d small transactions last week (avg %s).",
			latest.Count, formatCurrency(latest.AvgAmount)),
		Evidence: map[string]any{
			"week":         latest.Week,
			"count":        latest.Count,
			"avg_small_tx": latest.AvgAmount,
		},
		Action:         "Limit small discretionary taps to 3 per week and batch essentials.",
		ExpectedSaving: float64(excess) * latest.AvgAmount * 4,
		Confidence:     0.55,
		Category:       "misc",
		Type:           model.SuggestionNudge,
	}}
}

func lateNightSuggestions(patterns Patterns) []model.Suggestion {
	var results []model.Suggestion
	for _, category := range orderedKeys(patterns.LateNight) {
		stats := patterns.LateNight[category]
		if !lateNightCategories[category] || stats.Share < lateNightShareThreshold {
			continue
		}

		last30d := patterns.Category30dSpend[category]
		results = append(results, model.Suggestion{
			Title: fmt.Sprintf("Cut late-night %s by 30%%", humaniseCategory(category)),
			Insight: fmt.Sprintf("%s is %.0f%% after 18:00.",
				humaniseCategory(category), stats.Share*100),
			Evidence: map[string]any{
				"time_peak":      "evening+late",
				"last_30d_spend": last30d,
				"projection":     last30d * 1.33,
			},
			Action:         "Pre-plan meals and limit post-21:00 orders to 1 night/week.",
			ExpectedSaving: stats.Amount * 0.3,
			Confidence:     0.6,
			Category:       category,
			Type:           model.SuggestionNudge,
		})
	}
	return results
}

func ridehailSuggestions(patterns Patterns) []model.Suggestion {
	usage := patterns.RidehailUsage
	if usage == nil || usage.TripCount <= ridehailSuggestMinTrips {
		return nil
	}

	return []model.Suggestion{{
		Title: "Swap half of ride-hail trips to bus/walk",
		Insight: fmt.Sprintf("%d ride-hail trips this month averaging %s.",
			usage.TripCount, formatCurrency(usage.AvgTicket)),
		Evidence: map[string]any{
			"month":      usage.Month,
			"trip_count": usage.TripCount,
			"avg_ticket": usage.AvgTicket,
		},
		Action:         "Plan errands to bundle journeys and default to transit when weather allows.",
		ExpectedSaving: usage.Spend * 0.5,
		Confidence:     0.5,
		Category:       "transport.ridehail",
		Type:           model.SuggestionNudge,
	}}
}

func cashflowBufferSuggestions(patterns Patterns, recurring []RecurringEntry) []model.Suggestion {
	squeezes := patterns.Cashflow.Squeezes
	var rent *RecurringEntry
	for i := range recurring {
		if recurring[i].Type == "rent" {
			rent = &recurring[i]
			break
		}
	}
	if len(squeezes) == 0 || rent == nil {
		return nil
	}

	last := squeezes[len(squeezes)-1]
	return []model.Suggestion{{
		Title:   "Build a rent buffer",
		Insight: "Recent negative cashflow weeks flip positive right after rent.",
		Evidence: map[string]any{
			"rent_due_day": rent.PayDayOfMonth,
			"squeeze_week": last.Week,
			"net":          last.Net,
		},
		Action:         fmt.Sprintf("Auto-set aside %s weekly before rent hits.", formatCurrency(abs(rent.MedianAmount)/4)),
		ExpectedSaving: 0,
		Confidence:     0.65,
		Category:       "housing.rent",
		Type:           model.SuggestionCashflow,
	}}
}

// BuildChallenges превращает находки анализа в игровые задания с баллами;
// отдаёт не больше трёх самых выгодных.
func BuildChallenges(suggestions []model.Suggestion, patterns Patterns, variances Variances) []model.Challenge {
	var candidates []model.Challenge

	if gv, ok := variances.PerCategory["groceries"]; ok && gv.Baseline > 0 {
		candidates = append(candidates, model.Challenge{
			Code:            "GROCERY_TRIM_14D",
			Name:            "Trim Groceries by 10%",
			WindowDays:      14,
			TargetKind:      "amount",
			Target:          roundToNearest5(gv.Baseline * 0.9 * (14.0 / 30.0)),
			CategoryScope:   []string{"groceries"},
			Context:         map[string]any{},
			RewardPoints:    120,
			ExpectedSaving:  gv.Baseline * 0.1 * (14.0 / 30.0),
			SuccessCriteria: "spend(groceries,14d) <= 0.9 * baseline",
		})
	}

	if lateNight, ok := patterns.LateNight["eating_out"]; ok {
		candidates = append(candidates, model.Challenge{
			Code:            "NO_LATE_NIGHT_7D",
			Name:            "No Late-Night Orders",
			WindowDays:      7,
			TargetKind:      "amount",
			Target:          0,
			CategoryScope:   []string{"eating_out"},
			Context:         map[string]any{"after_hour": 21},
			RewardPoints:    100,
			ExpectedSaving:  lateNight.Amount / 4,
			SuccessCriteria: "sum(amount where cat=eating_out and hour>=21) == 0",
		})
	}

	if usage := patterns.RidehailUsage; usage != nil && usage.TripCount >= ridehailSuggestMinTrips {
		target := float64(usage.TripCount - 4)
		if target < 0 {
			target = 0
		}
		candidates = append(candidates, model.Challenge{
			Code:            "RIDEHAIL_SWAP_14D",
			Name:            "Swap 4 Ride-Hail Trips",
			WindowDays:      14,
			TargetKind:      "count",
			Target:          target,
			CategoryScope:   []string{"transport.ridehail"},
			Context:         map[string]any{"replace_with": "walk/bus"},
			RewardPoints:    90,
			ExpectedSaving:  usage.Spend * 0.4,
			SuccessCriteria: "replace >=4 trips with non-ridehail options",
		})
	}

	for _, s := range suggestions {
		if s.Type == model.SuggestionSubscription {
			candidates = append(candidates, model.Challenge{
				Code:            "SUBSCRIPTION_AUDIT_30D",
				Name:            "Cancel One Subscription",
				WindowDays:      30,
				TargetKind:      "count",
				Target:          1,
				CategoryScope:   []string{s.Category},
				Context:         map[string]any{},
				RewardPoints:    80,
				ExpectedSaving:  s.ExpectedSaving,
				SuccessCriteria: "cancel_or_downgrade >=1 recurring charge",
			})
			break
		}
	}

	// Устойчивая сортировка: при равной экономии сохраняем порядок генераторов.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].ExpectedSaving > candidates[j-1].ExpectedSaving; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	if len(candidates) > maxChallenges {
		candidates = candidates[:maxChallenges]
	}
	return candidates
}
