// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/prism-system/internal/model"
	"github.com/mmeshcher/prism-system/internal/tier"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRewardNotFound возвращается, если вознаграждение отсутствует в каталоге.
var (
	ErrRewardNotFound = errors.New("reward not found")
	// ErrRewardOutOfStock возвращается при исчерпанном остатке вознаграждения.
	ErrRewardOutOfStock = errors.New("reward out of stock")
	// ErrTierTooLow возвращается, если уровень пользователя ниже требуемого.
	ErrTierTooLow = errors.New("tier too low for reward")
	// ErrInsufficientPoints возвращается при попытке списания сверх баланса.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrTicketNotFound возвращается, если талон не найден.
	ErrTicketNotFound = errors.New("ticket not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// База может подниматься одновременно с сервисом, пингуем с бэкоффом.
	backoff := retry.WithMaxRetries(3, retry.NewConstant(2*time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим только конфликты сериализации и дедлоки: блокировки строк
		// account/reward в RedeemReward могут пересекаться между запросами.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetBalance возвращает баланс устройства. Отсутствующая запись читается как ноль.
func (r *PostgresRepository) GetBalance(ctx context.Context, deviceID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE device_id = $1`,
		deviceID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// SetBalance заменяет баланс устройства. Отрицательное значение обрезается до нуля.
func (r *PostgresRepository) SetBalance(ctx context.Context, deviceID string, balance int64) (int64, error) {
	if balance < 0 {
		balance = 0
	}

	var result int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (device_id, balance) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()
		 RETURNING balance`,
		deviceID, balance,
	).Scan(&result)
	if err != nil {
		return 0, fmt.Errorf("set balance: %w", err)
	}
	return result, nil
}

// AddPoints прибавляет delta к балансу устройства, не опуская его ниже нуля.
func (r *PostgresRepository) AddPoints(ctx context.Context, deviceID string, delta int64) (int64, error) {
	var result int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (device_id, balance) VALUES ($1, GREATEST(0, $2))
		 ON CONFLICT (device_id) DO UPDATE
		 SET balance = GREATEST(0, accounts.balance + $2), updated_at = now()
		 RETURNING balance`,
		deviceID, delta,
	).Scan(&result)
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return result, nil
}

// ListRewards возвращает каталог вознаграждений.
func (r *PostgresRepository) ListRewards(ctx context.Context) ([]model.Reward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, vendor, cost, min_tier, stock, created_at
		 FROM rewards
		 ORDER BY cost`,
	)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		var (
			rw      model.Reward
			minTier string
		)
		if err := rows.Scan(&rw.ID, &rw.Title, &rw.Vendor, &rw.Cost, &minTier, &rw.Stock, &rw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rw.MinTier = tier.Tier(minTier)
		rewards = append(rewards, rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rewards, nil
}

// rewardState содержит поля вознаграждения, участвующие в проверках списания.
type rewardState struct {
	cost    int64
	minTier tier.Tier
	stock   *int64
}

// validateRedeem проверяет предусловия списания в фиксированном порядке:
// остаток, затем уровень, затем баланс. Существование вознаграждения
// проверяется раньше, при чтении строки.
func validateRedeem(reward rewardState, balance int64) error {
	if reward.stock != nil && *reward.stock <= 0 {
		return ErrRewardOutOfStock
	}
	if !tier.AtLeast(tier.ForBalance(balance), reward.minTier) {
		return ErrTierTooLow
	}
	if balance < reward.cost {
		return ErrInsufficientPoints
	}
	return nil
}

// RedeemTicket описывает данные талона, подготовленные сервисом до транзакции.
type RedeemTicket struct {
	ID        string
	Payload   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RedeemReward атомарно списывает стоимость вознаграждения и создаёт талон.
// Строки счёта и вознаграждения блокируются, чтобы параллельные списания
// не ушли в минус по балансу или остатку. При любой несоблюдённой проверке
// состояние не меняется.
func (r *PostgresRepository) RedeemReward(ctx context.Context, deviceID string, rewardID int64, ticket RedeemTicket) (*model.Ticket, error) {
	var created *model.Ticket

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (device_id, balance) VALUES ($1, 0)
			 ON CONFLICT (device_id) DO NOTHING`,
			deviceID,
		)
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}

		var balance int64
		err = tx.QueryRow(ctx,
			`SELECT balance FROM accounts WHERE device_id = $1 FOR UPDATE`,
			deviceID,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		var (
			reward  rewardState
			minTier string
		)
		err = tx.QueryRow(ctx,
			`SELECT cost, min_tier, stock FROM rewards WHERE id = $1 FOR UPDATE`,
			rewardID,
		).Scan(&reward.cost, &minTier, &reward.stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRewardNotFound
			}
			return fmt.Errorf("lock reward: %w", err)
		}
		reward.minTier = tier.Tier(minTier)

		if err := validateRedeem(reward, balance); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $2, updated_at = now() WHERE device_id = $1`,
			deviceID, reward.cost,
		)
		if err != nil {
			return fmt.Errorf("deduct balance: %w", err)
		}

		if reward.stock != nil {
			_, err = tx.Exec(ctx,
				`UPDATE rewards SET stock = stock - 1 WHERE id = $1`,
				rewardID,
			)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO tickets (id, device_id, reward_id, points_spent, payload, status, issued_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ticket.ID, deviceID, rewardID, reward.cost, ticket.Payload,
			string(model.TicketStatusActive), ticket.IssuedAt, ticket.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		created = &model.Ticket{
			ID:          ticket.ID,
			DeviceID:    deviceID,
			RewardID:    rewardID,
			PointsSpent: reward.cost,
			Payload:     ticket.Payload,
			Status:      model.TicketStatusActive,
			IssuedAt:    ticket.IssuedAt,
			ExpiresAt:   ticket.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// ListTickets возвращает талоны устройства, новые первыми.
func (r *PostgresRepository) ListTickets(ctx context.Context, deviceID string) ([]model.Ticket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, device_id, reward_id, points_spent, payload, code_url, status, issued_at, expires_at, used_at
		 FROM tickets
		 WHERE device_id = $1
		 ORDER BY issued_at DESC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var (
			t      model.Ticket
			status string
		)
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.RewardID, &t.PointsSpent, &t.Payload,
			&t.CodeURL, &status, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Status = model.TicketStatus(status)
		tickets = append(tickets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tickets, nil
}

// GetTicket возвращает талон по идентификатору.
func (r *PostgresRepository) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, device_id, reward_id, points_spent, payload, code_url, status, issued_at, expires_at, used_at
		 FROM tickets
		 WHERE id = $1`,
		ticketID,
	)

	var (
		t      model.Ticket
		status string
	)
	err := row.Scan(&t.ID, &t.DeviceID, &t.RewardID, &t.PointsSpent, &t.Payload,
		&t.CodeURL, &status, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	t.Status = model.TicketStatus(status)

	return &t, nil
}

// canMarkUsed — предикат перехода в USED: возможен только из ACTIVE,
// использованные и истёкшие талоны терминальны.
func canMarkUsed(status model.TicketStatus) bool {
	return status == model.TicketStatusActive
}

// shouldExpire — предикат перехода в EXPIRED: активный талон с наступившим
// сроком (expires_at <= now). Уже истёкшие и использованные талоны не
// затрагиваются, поэтому повторный проход ничего не меняет. WHERE-условие
// ExpireTickets построчно повторяет этот предикат.
func shouldExpire(status model.TicketStatus, expiresAt, now time.Time) bool {
	return status == model.TicketStatusActive && !expiresAt.After(now)
}

// MarkTicketUsed переводит активный талон в использованные.
// Для неизвестных и уже завершённых талонов ничего не делает.
func (r *PostgresRepository) MarkTicketUsed(ctx context.Context, ticketID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM tickets WHERE id = $1 FOR UPDATE`,
		ticketID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("lock ticket: %w", err)
	}

	if !canMarkUsed(model.TicketStatus(status)) {
		return nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE tickets SET status = $2, used_at = now() WHERE id = $1`,
		ticketID, string(model.TicketStatusUsed),
	)
	if err != nil {
		return fmt.Errorf("mark ticket used: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ExpireTickets переводит просроченные активные талоны в истёкшие
// и возвращает число затронутых талонов. Повторные вызовы безопасны.
func (r *PostgresRepository) ExpireTickets(ctx context.Context, now time.Time) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status = $1
		 WHERE status = $2 AND expires_at <= $3`,
		string(model.TicketStatusExpired), string(model.TicketStatusActive), now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire tickets: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// SetTicketCode сохраняет ссылку на отрисованный сканируемый код талона.
func (r *PostgresRepository) SetTicketCode(ctx context.Context, ticketID, codeURL string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tickets SET code_url = $2 WHERE id = $1`,
		ticketID, codeURL,
	)
	if err != nil {
		return fmt.Errorf("set ticket code: %w", err)
	}
	return nil
}
