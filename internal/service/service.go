// Package service реализует бизнес-логику сервиса prism.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/prism-system/internal/analysis"
	"github.com/mmeshcher/prism-system/internal/model"
	"github.com/mmeshcher/prism-system/internal/payload"
	"github.com/mmeshcher/prism-system/internal/repository"
	"github.com/mmeshcher/prism-system/internal/tier"
)

// ErrRendererUnavailable возвращается, когда сервис отрисовки кодов не настроен.
var ErrRendererUnavailable = errors.New("renderer not configured")

// renderTimeout ограничивает фоновый запрос отрисовки кода после выдачи талона.
const renderTimeout = 30 * time.Second

// fallbackSuggestionLimit — сколько правил отдаётся, когда внешний советник недоступен.
const fallbackSuggestionLimit = 4

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetBalance(ctx context.Context, deviceID string) (int64, error)
	SetBalance(ctx context.Context, deviceID string, balance int64) (int64, error)
	AddPoints(ctx context.Context, deviceID string, delta int64) (int64, error)
	ListRewards(ctx context.Context) ([]model.Reward, error)
	RedeemReward(ctx context.Context, deviceID string, rewardID int64, ticket repository.RedeemTicket) (*model.Ticket, error)
	ListTickets(ctx context.Context, deviceID string) ([]model.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	MarkTicketUsed(ctx context.Context, ticketID string) error
	ExpireTickets(ctx context.Context, now time.Time) (int64, error)
	SetTicketCode(ctx context.Context, ticketID, codeURL string) error
}

// Renderer описывает контракт сервиса отрисовки кодов погашения.
type Renderer interface {
	RenderCode(ctx context.Context, payload string) (string, error)
}

// Advisor описывает контракт внешнего сервиса рекомендаций.
type Advisor interface {
	Suggest(ctx context.Context, report *analysis.Report) ([]model.Suggestion, error)
}

// Service содержит бизнес-логику сервиса prism.
type Service struct {
	repo     Repository
	renderer Renderer
	advisor  Advisor
	secret   []byte
	ttl      time.Duration
	logger   *zap.SugaredLogger
}

// NewService создаёт сервис. renderer и advisor могут быть nil, если внешние
// системы не настроены: талоны тогда выдаются без кодов, а рекомендации
// строятся только по правилам.
func NewService(repo Repository, renderer Renderer, advisor Advisor, secret []byte, ttl time.Duration, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		repo:     repo,
		renderer: renderer,
		advisor:  advisor,
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// GetBalance возвращает текущий баланс устройства с производным уровнем.
func (s *Service) GetBalance(ctx context.Context, deviceID string) (*model.Balance, error) {
	current, err := s.repo.GetBalance(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current, Tier: tier.ForBalance(current)}, nil
}

// SetBalance выставляет баланс устройства. Отрицательные значения усекаются до нуля.
func (s *Service) SetBalance(ctx context.Context, deviceID string, balance int64) (*model.Balance, error) {
	current, err := s.repo.SetBalance(ctx, deviceID, balance)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current, Tier: tier.ForBalance(current)}, nil
}

// AddPoints изменяет баланс устройства на delta, не опуская его ниже нуля.
func (s *Service) AddPoints(ctx context.Context, deviceID string, delta int64) (*model.Balance, error) {
	current, err := s.repo.AddPoints(ctx, deviceID, delta)
	if err != nil {
		return nil, err
	}
	return &model.Balance{Current: current, Tier: tier.ForBalance(current)}, nil
}

// ListRewards возвращает каталог вознаграждений.
func (s *Service) ListRewards(ctx context.Context) ([]model.Reward, error) {
	return s.repo.ListRewards(ctx)
}

// Redeem списывает стоимость вознаграждения и выдаёт активный талон.
// Отрисовка кода выполняется в фоне после фиксации транзакции: её сбой
// не отменяет уже совершённое списание.
func (s *Service) Redeem(ctx context.Context, deviceID string, rewardID int64) (*model.Ticket, error) {
	ticketID := uuid.NewString()
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	signed := payload.Encode(s.secret, payload.Claims{
		TicketID:  ticketID,
		RewardID:  rewardID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})

	ticket, err := s.repo.RedeemReward(ctx, deviceID, rewardID, repository.RedeemTicket{
		ID:        ticketID,
		Payload:   signed,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	if s.renderer != nil {
		go s.renderTicketCode(ticket.ID, ticket.Payload)
	}

	return ticket, nil
}

func (s *Service) renderTicketCode(ticketID, signed string) {
	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	codeURL, err := s.renderer.RenderCode(ctx, signed)
	if err != nil {
		s.logger.Warnw("render ticket code failed", "ticket", ticketID, "error", err)
		return
	}
	if err := s.repo.SetTicketCode(ctx, ticketID, codeURL); err != nil {
		s.logger.Warnw("store ticket code failed", "ticket", ticketID, "error", err)
	}
}

// RenderTicketCode синхронно перезапрашивает отрисовку кода для талона,
// оставшегося без изображения после фоновой попытки.
func (s *Service) RenderTicketCode(ctx context.Context, deviceID, ticketID string) (string, error) {
	if s.renderer == nil {
		return "", ErrRendererUnavailable
	}

	ticket, err := s.ownedTicket(ctx, deviceID, ticketID)
	if err != nil {
		return "", err
	}
	if ticket.CodeURL != "" {
		return ticket.CodeURL, nil
	}

	codeURL, err := s.renderer.RenderCode(ctx, ticket.Payload)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetTicketCode(ctx, ticketID, codeURL); err != nil {
		return "", err
	}
	return codeURL, nil
}

// ListTickets возвращает талоны устройства, новые первыми.
func (s *Service) ListTickets(ctx context.Context, deviceID string) ([]model.Ticket, error) {
	return s.repo.ListTickets(ctx, deviceID)
}

// MarkTicketUsed помечает талон устройства использованным. Операция
// идемпотентна: для неизвестного или чужого талона, как и для уже
// завершённого, ничего не меняется и ошибки нет — возвращается nil-талон.
func (s *Service) MarkTicketUsed(ctx context.Context, deviceID, ticketID string) (*model.Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if ticket.DeviceID != deviceID {
		return nil, nil
	}

	if err := s.repo.MarkTicketUsed(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.repo.GetTicket(ctx, ticketID)
}

// Чужие талоны неотличимы от несуществующих.
func (s *Service) ownedTicket(ctx context.Context, deviceID, ticketID string) (*model.Ticket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.DeviceID != deviceID {
		return nil, repository.ErrTicketNotFound
	}
	return ticket, nil
}

// ExpireSweep переводит просроченные активные талоны в EXPIRED и возвращает
// число затронутых талонов. Повторный проход ничего не меняет.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	return s.repo.ExpireTickets(ctx, time.Now().UTC())
}

// StartExpirySweeps запускает фоновый процесс перевода просроченных талонов.
func (s *Service) StartExpirySweeps(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := s.ExpireSweep(ctx)
				if err != nil {
					s.logger.Warnw("expiry sweep failed", "error", err)
					continue
				}
				if expired > 0 {
					s.logger.Infow("tickets expired", "count", expired)
				}
			}
		}
	}()
}

// BuildReport строит аналитический отчёт по выписке.
func (s *Service) BuildReport(transactions []model.Transaction) (*analysis.Report, error) {
	return analysis.BuildReport(transactions)
}

// Suggest возвращает сводку анализа и рекомендации по экономии. При
// недоступности внешнего советника отдаются первые правила из локального анализа.
func (s *Service) Suggest(ctx context.Context, transactions []model.Transaction) (*analysis.Summary, []model.Suggestion, error) {
	report, err := analysis.BuildReport(transactions)
	if err != nil {
		return nil, nil, err
	}

	if s.advisor != nil {
		suggestions, err := s.advisor.Suggest(ctx, report)
		if err == nil {
			return &report.Summary, suggestions, nil
		}
		s.logger.Warnw("advisor unavailable, falling back to rules", "error", err)
	}

	fallback := report.Suggestions
	if len(fallback) > fallbackSuggestionLimit {
		fallback = fallback[:fallbackSuggestionLimit]
	}
	return &report.Summary, fallback, nil
}
