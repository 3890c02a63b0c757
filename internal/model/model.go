// Package model содержит доменные сущности сервиса prism.
package model

import (
	"time"

	"github.com/mmeshcher/prism-system/internal/tier"
)

// Reward описывает позицию статического каталога вознаграждений.
type Reward struct {
	ID      int64
	Title   string
	Vendor  string
	Cost    int64
	MinTier tier.Tier
	// Stock равен nil для вознаграждений без ограничения по количеству.
	Stock     *int64
	CreatedAt time.Time
}

// TicketStatus описывает статус талона на выдачу вознаграждения.
type TicketStatus string

const (
	TicketStatusActive  TicketStatus = "ACTIVE"
	TicketStatusUsed    TicketStatus = "USED"
	TicketStatusExpired TicketStatus = "EXPIRED"
)

// Ticket описывает талон, созданный успешным списанием баллов.
// Payload — непрозрачная подписанная строка для отображения сканируемым кодом.
type Ticket struct {
	ID          string
	DeviceID    string
	RewardID    int64
	PointsSpent int64
	Payload     string
	CodeURL     string
	Status      TicketStatus
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// Balance содержит баланс баллов и производный от него уровень.
type Balance struct {
	Current int64     `json:"current"`
	Tier    tier.Tier `json:"tier"`
}

// Transaction описывает одну операцию из выписки, поступающую на анализ трат.
type Transaction struct {
	Timestamp time.Time `json:"ts"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Merchant  string    `json:"merchant"`
	Category  string    `json:"category"`
}

// SuggestionType перечисляет допустимые типы рекомендаций по экономии.
type SuggestionType string

const (
	SuggestionSubscription SuggestionType = "subscription"
	SuggestionSwap         SuggestionType = "swap"
	SuggestionNudge        SuggestionType = "behavioural_nudge"
	SuggestionCashflow     SuggestionType = "cashflow"
	SuggestionForecast     SuggestionType = "forecast_adjustment"
)

// ValidSuggestionType проверяет принадлежность типа фиксированному перечню.
func ValidSuggestionType(t SuggestionType) bool {
	switch t {
	case SuggestionSubscription, SuggestionSwap, SuggestionNudge, SuggestionCashflow, SuggestionForecast:
		return true
	}
	return false
}

// Suggestion описывает одну рекомендацию по экономии в фиксированной схеме.
type Suggestion struct {
	Title          string         `json:"title"`
	Insight        string         `json:"insight"`
	Evidence       map[string]any `json:"evidence"`
	Action         string         `json:"action"`
	ExpectedSaving float64        `json:"expected_saving"`
	Confidence     float64        `json:"confidence"`
	Category       string         `json:"category"`
	Type           SuggestionType `json:"type"`
}

// Challenge описывает игровое задание по экономии, построенное из анализа трат.
type Challenge struct {
	Code            string         `json:"code"`
	Name            string         `json:"name"`
	WindowDays      int            `json:"window_days"`
	TargetKind      string         `json:"target_kind"`
	Target          float64        `json:"target"`
	CategoryScope   []string       `json:"category_scope"`
	Context         map[string]any `json:"context"`
	RewardPoints    int64          `json:"reward_points"`
	ExpectedSaving  float64        `json:"expected_saving"`
	SuccessCriteria string         `json:"success_criteria"`
}
