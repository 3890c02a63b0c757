package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/prism-system/internal/model"
	"github.com/mmeshcher/prism-system/internal/tier"
)

func ptrInt64(v int64) *int64 {
	return &v
}

func TestValidateRedeem_OrderOfChecks(t *testing.T) {
	tests := []struct {
		name    string
		reward  rewardState
		balance int64
		wantErr error
	}{
		{
			name:    "unlimited stock succeeds",
			reward:  rewardState{cost: 750, minTier: tier.Silver, stock: nil},
			balance: 1250,
			wantErr: nil,
		},
		{
			name:    "last unit still redeemable",
			reward:  rewardState{cost: 100, minTier: tier.Bronze, stock: ptrInt64(1)},
			balance: 200,
			wantErr: nil,
		},
		{
			name:    "exhausted stock",
			reward:  rewardState{cost: 100, minTier: tier.Bronze, stock: ptrInt64(0)},
			balance: 200,
			wantErr: ErrRewardOutOfStock,
		},
		{
			name: "stock checked before tier",
			// Баланс не дотягивает ни до уровня, ни до стоимости,
			// но при нулевом остатке отвечаем именно об остатке.
			reward:  rewardState{cost: 5000, minTier: tier.Platinum, stock: ptrInt64(0)},
			balance: 10,
			wantErr: ErrRewardOutOfStock,
		},
		{
			name:    "tier too low regardless of balance",
			reward:  rewardState{cost: 100, minTier: tier.Gold, stock: nil},
			balance: 1250,
			wantErr: ErrTierTooLow,
		},
		{
			name: "tier checked before points",
			// Silver-баланса не хватает и на Gold-уровень, и на стоимость:
			// первым должно сработать ограничение уровня.
			reward:  rewardState{cost: 100_000, minTier: tier.Gold, stock: nil},
			balance: 600,
			wantErr: ErrTierTooLow,
		},
		{
			name:    "insufficient points",
			reward:  rewardState{cost: 1300, minTier: tier.Silver, stock: nil},
			balance: 1250,
			wantErr: ErrInsufficientPoints,
		},
		{
			name:    "cost equal to balance succeeds",
			reward:  rewardState{cost: 1250, minTier: tier.Silver, stock: nil},
			balance: 1250,
			wantErr: nil,
		},
		{
			name:    "tier boundary balance qualifies",
			reward:  rewardState{cost: 100, minTier: tier.Gold, stock: nil},
			balance: 1500,
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRedeem(tt.reward, tt.balance)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("validateRedeem() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanMarkUsed(t *testing.T) {
	tests := []struct {
		name   string
		status model.TicketStatus
		want   bool
	}{
		{"active transitions", model.TicketStatusActive, true},
		{"used is terminal", model.TicketStatusUsed, false},
		{"expired is terminal", model.TicketStatusExpired, false},
		{"unknown status never transitions", model.TicketStatus("PENDING"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canMarkUsed(tt.status); got != tt.want {
				t.Fatalf("canMarkUsed(%s) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestShouldExpire(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    model.TicketStatus
		expiresAt time.Time
		want      bool
	}{
		{"active past expiry", model.TicketStatusActive, now.Add(-time.Minute), true},
		{"active exactly at expiry", model.TicketStatusActive, now, true},
		{"active before expiry stays", model.TicketStatusActive, now.Add(time.Minute), false},
		{"used past expiry untouched", model.TicketStatusUsed, now.Add(-time.Hour), false},
		{"already expired not re-expired", model.TicketStatusExpired, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldExpire(tt.status, tt.expiresAt, now); got != tt.want {
				t.Fatalf("shouldExpire(%s, %s) = %v, want %v", tt.status, tt.expiresAt, got, tt.want)
			}
		})
	}
}
