package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

func abs(v float64) float64 {
	return math.Abs(v)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev — выборочное стандартное отклонение (n-1 в знаменателе).
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ordered := append([]float64(nil), values...)
	sort.Float64s(ordered)
	mid := len(ordered) / 2
	if len(ordered)%2 == 1 {
		return ordered[mid]
	}
	return (ordered[mid-1] + ordered[mid]) / 2
}

func percentileValue(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ordered := append([]float64(nil), values...)
	sort.Float64s(ordered)
	if len(ordered) == 1 {
		return ordered[0]
	}
	pos := float64(len(ordered)-1) * q
	lower := int(pos)
	upper := lower + 1
	if upper > len(ordered)-1 {
		upper = len(ordered) - 1
	}
	weight := pos - float64(lower)
	return ordered[lower]*(1-weight) + ordered[upper]*weight
}

// rollingMean возвращает скользящее среднее; позиции без полного окна пропущены (nil).
func rollingMean(series []float64, window int) []*float64 {
	result := make([]*float64, len(series))
	if window <= 0 {
		return result
	}
	for i := range series {
		if i+1 < window {
			continue
		}
		var sum float64
		for _, v := range series[i+1-window : i+1] {
			sum += v
		}
		avg := sum / float64(window)
		result[i] = &avg
	}
	return result
}

// pctChange возвращает nil при нулевой базе: изменение от нуля не определено.
func pctChange(curr, prev float64) *float64 {
	if prev == 0 {
		return nil
	}
	v := (curr - prev) / prev
	return &v
}

// linearTrend — наклон МНК-прямой по индексам точек.
func linearTrend(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	yMean := mean(values)
	var numer, denom float64
	for i, v := range values {
		dx := float64(i) - xMean
		numer += dx * (v - yMean)
		denom += dx * dx
	}
	if denom == 0 {
		return 0
	}
	return numer / denom
}

func roundToNearest5(value float64) float64 {
	return math.Round(value/5.0) * 5.0
}

func humaniseCategory(category string) string {
	replaced := strings.NewReplacer(".", " ", "_", " ").Replace(category)
	words := strings.Fields(replaced)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatCurrency(value float64) string {
	sign := ""
	if value < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s£%.2f", sign, math.Abs(value))
}

func addMonths(monthKey string, months int) string {
	t, err := time.Parse("2006-01", monthKey)
	if err != nil {
		return monthKey
	}
	return t.AddDate(0, months, 0).Format("2006-01")
}

func monthDays(monthKey string) int {
	t, err := time.Parse("2006-01", monthKey)
	if err != nil {
		return 30
	}
	return t.AddDate(0, 1, -1).Day()
}
