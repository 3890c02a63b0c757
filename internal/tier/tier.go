// Package tier содержит вычисление уровня лояльности по балансу баллов.
package tier

// Tier обозначает уровень лояльности пользователя.
type Tier string

const (
	Bronze   Tier = "BRONZE"
	Silver   Tier = "SILVER"
	Gold     Tier = "GOLD"
	Platinum Tier = "PLATINUM"
)

// thresholds задаёт минимальный баланс каждого уровня по возрастанию.
// Единственная каноническая таблица порогов — другие пакеты её не дублируют.
var thresholds = []struct {
	tier Tier
	min  int64
}{
	{Bronze, 0},
	{Silver, 500},
	{Gold, 1500},
	{Platinum, 5000},
}

// ForBalance возвращает уровень как наивысший порог, не превышающий баланс.
// Отрицательный баланс трактуется как нулевой.
func ForBalance(balance int64) Tier {
	if balance < 0 {
		balance = 0
	}

	current := Bronze
	for _, t := range thresholds {
		if balance >= t.min {
			current = t.tier
		}
	}
	return current
}

// rank возвращает порядковый номер уровня в фиксированном порядке уровней.
func rank(t Tier) int {
	for i, entry := range thresholds {
		if entry.tier == t {
			return i
		}
	}
	return -1
}

// AtLeast сообщает, что уровень have не ниже уровня want.
// Неизвестный уровень want считается недостижимым.
func AtLeast(have, want Tier) bool {
	wr := rank(want)
	if wr < 0 {
		return false
	}
	return rank(have) >= wr
}

// Valid проверяет, что строка является известным уровнем.
func Valid(t Tier) bool {
	return rank(t) >= 0
}
