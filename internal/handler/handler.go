// Package handler содержит HTTP-обработчики API сервиса prism.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/prism-system/internal/analysis"
	"github.com/mmeshcher/prism-system/internal/middleware"
	"github.com/mmeshcher/prism-system/internal/model"
	"github.com/mmeshcher/prism-system/internal/repository"
	"github.com/mmeshcher/prism-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetBalance(ctx context.Context, deviceID string) (*model.Balance, error)
	SetBalance(ctx context.Context, deviceID string, balance int64) (*model.Balance, error)
	AddPoints(ctx context.Context, deviceID string, delta int64) (*model.Balance, error)
	ListRewards(ctx context.Context) ([]model.Reward, error)
	Redeem(ctx context.Context, deviceID string, rewardID int64) (*model.Ticket, error)
	ListTickets(ctx context.Context, deviceID string) ([]model.Ticket, error)
	MarkTicketUsed(ctx context.Context, deviceID, ticketID string) (*model.Ticket, error)
	RenderTicketCode(ctx context.Context, deviceID, ticketID string) (string, error)
	BuildReport(transactions []model.Transaction) (*analysis.Report, error)
	Suggest(ctx context.Context, transactions []model.Transaction) (*analysis.Summary, []model.Suggestion, error)
}

// Handler реализует HTTP-обработчики API сервиса prism.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

// GetBalance возвращает баланс и уровень текущего устройства.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.String("device", deviceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

type setBalanceRequest struct {
	Balance int64 `json:"balance"`
}

// SetBalance выставляет баланс текущего устройства.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req setBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.SetBalance(r.Context(), deviceID, req.Balance)
	if err != nil {
		h.logger.Error("set balance error", zap.Error(err), zap.String("device", deviceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

type accrueRequest struct {
	Delta int64 `json:"delta"`
}

// Accrue изменяет баланс текущего устройства на указанную величину.
func (h *Handler) Accrue(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req accrueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	balance, err := h.service.AddPoints(r.Context(), deviceID, req.Delta)
	if err != nil {
		h.logger.Error("accrue error", zap.Error(err), zap.String("device", deviceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

type rewardResponse struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Vendor  string `json:"vendor"`
	Cost    int64  `json:"cost"`
	MinTier string `json:"min_tier"`
	Stock   *int64 `json:"stock,omitempty"`
}

// ListRewards возвращает каталог вознаграждений.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.service.ListRewards(r.Context())
	if err != nil {
		h.logger.Error("list rewards error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(rewards) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]rewardResponse, 0, len(rewards))
	for _, reward := range rewards {
		resp = append(resp, rewardResponse{
			ID:      reward.ID,
			Title:   reward.Title,
			Vendor:  reward.Vendor,
			Cost:    reward.Cost,
			MinTier: string(reward.MinTier),
			Stock:   reward.Stock,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type ticketResponse struct {
	ID          string `json:"id"`
	RewardID    int64  `json:"reward_id"`
	PointsSpent int64  `json:"points_spent"`
	Payload     string `json:"payload"`
	CodeURL     string `json:"code_url,omitempty"`
	Status      string `json:"status"`
	IssuedAt    string `json:"issued_at"`
	ExpiresAt   string `json:"expires_at"`
	UsedAt      string `json:"used_at,omitempty"`
}

func toTicketResponse(t *model.Ticket) ticketResponse {
	resp := ticketResponse{
		ID:          t.ID,
		RewardID:    t.RewardID,
		PointsSpent: t.PointsSpent,
		Payload:     t.Payload,
		CodeURL:     t.CodeURL,
		Status:      string(t.Status),
		IssuedAt:    t.IssuedAt.Format(time.RFC3339),
		ExpiresAt:   t.ExpiresAt.Format(time.RFC3339),
	}
	if t.UsedAt != nil {
		resp.UsedAt = t.UsedAt.Format(time.RFC3339)
	}
	return resp
}

// Redeem списывает стоимость вознаграждения и возвращает выданный талон.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rewardID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || rewardID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ticket, err := h.service.Redeem(r.Context(), deviceID, rewardID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRewardNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrRewardOutOfStock):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, repository.ErrTierTooLow):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrInsufficientPoints):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("redeem error", zap.Error(err), zap.String("device", deviceID), zap.Int64("reward", rewardID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toTicketResponse(ticket))
}

// ListTickets возвращает талоны текущего устройства, новые первыми.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	tickets, err := h.service.ListTickets(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("list tickets error", zap.Error(err), zap.String("device", deviceID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, toTicketResponse(&tickets[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UseTicket помечает талон использованным и возвращает его актуальное
// состояние. Неизвестный и чужой талон — идемпотентный no-op: 200 без тела.
func (h *Handler) UseTicket(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ticketID := chi.URLParam(r, "id")
	ticket, err := h.service.MarkTicketUsed(r.Context(), deviceID, ticketID)
	if err != nil {
		h.logger.Error("use ticket error", zap.Error(err), zap.String("device", deviceID), zap.String("ticket", ticketID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if ticket == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	writeJSON(w, http.StatusOK, toTicketResponse(ticket))
}

type codeResponse struct {
	ImageURL string `json:"image_url"`
}

// RenderTicketCode перезапрашивает отрисовку кода для талона без изображения.
func (h *Handler) RenderTicketCode(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := middleware.GetDeviceIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ticketID := chi.URLParam(r, "id")
	codeURL, err := h.service.RenderTicketCode(r.Context(), deviceID, ticketID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrRendererUnavailable):
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.logger.Error("render code error", zap.Error(err), zap.String("device", deviceID), zap.String("ticket", ticketID))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{ImageURL: codeURL})
}

type statementRequest struct {
	Transactions []model.Transaction `json:"transactions"`
}

// BuildReport строит аналитический отчёт по присланной выписке.
func (h *Handler) BuildReport(w http.ResponseWriter, r *http.Request) {
	var req statementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	report, err := h.service.BuildReport(req.Transactions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type suggestionsResponse struct {
	Summary     *analysis.Summary  `json:"summary"`
	Suggestions []model.Suggestion `json:"suggestions"`
}

// Suggest возвращает рекомендации по экономии для присланной выписки.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req statementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	summary, suggestions, err := h.service.Suggest(r.Context(), req.Transactions)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Summary: summary, Suggestions: suggestions})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
