package loyalty_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/loyalty"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

var policy = loyalty.Policy{
	PointValue:    100,
	MinExchange:   50,
	SpendPerPoint: 10_000,
}

func account(balance int64) *loyalty.Account {
	return &loyalty.Account{ID: uuid.New(), Code: "M-001", Name: "Siti", Balance: balance}
}

func TestRedemptionRequiresAccount(t *testing.T) {
	r := loyalty.ResolveRedemption(200, nil, policy, 0, 100_000)
	require.Zero(t, r.Resolved)
	require.Zero(t, r.Discount)
	require.Equal(t, loyalty.AdjustNoAccount, r.Adjustment)
}

func TestRedemptionClampsToBalance(t *testing.T) {
	r := loyalty.ResolveRedemption(500, account(120), policy, 0, 100_000)
	require.Equal(t, int64(120), r.Resolved)
	require.Equal(t, pricing.Money(12_000), r.Discount)
	require.Equal(t, loyalty.AdjustBalance, r.Adjustment)
}

func TestRedemptionClampsToPriceFloor(t *testing.T) {
	// 30_000 remains after promo; at 100 per point at most 300 points apply.
	r := loyalty.ResolveRedemption(1_000, account(2_000), policy, 20_000, 50_000)
	require.Equal(t, int64(300), r.Resolved)
	require.Equal(t, pricing.Money(30_000), r.Discount)
	require.Equal(t, loyalty.AdjustPriceFloor, r.Adjustment)
}

func TestRedemptionMinimumIsAllOrNothing(t *testing.T) {
	// 30 points requested, below the minimum of 50: rejected in full,
	// never raised to the minimum.
	r := loyalty.ResolveRedemption(30, account(2_000), policy, 0, 100_000)
	require.Zero(t, r.Resolved)
	require.Zero(t, r.Discount)
	require.Equal(t, loyalty.AdjustMinExchange, r.Adjustment)
}

func TestRedemptionBelowMinimumAfterClamping(t *testing.T) {
	// Balance clamps the request to 40, which then falls under the minimum.
	r := loyalty.ResolveRedemption(100, account(40), policy, 0, 100_000)
	require.Zero(t, r.Resolved)
	require.Equal(t, loyalty.AdjustMinExchange, r.Adjustment)
}

func TestRedemptionIsIdempotent(t *testing.T) {
	acct := account(750)
	first := loyalty.ResolveRedemption(600, acct, policy, 5_000, 80_000)
	second := loyalty.ResolveRedemption(600, acct, policy, 5_000, 80_000)
	require.Equal(t, first, second)
}

func TestRedemptionHonoursExactRequest(t *testing.T) {
	r := loyalty.ResolveRedemption(100, account(500), policy, 0, 100_000)
	require.Equal(t, int64(100), r.Resolved)
	require.Equal(t, pricing.Money(10_000), r.Discount)
	require.Equal(t, loyalty.AdjustNone, r.Adjustment)
}

func TestEarnedPoints(t *testing.T) {
	require.Equal(t, int64(12), loyalty.EarnedPoints(125_000, policy))
	require.Zero(t, loyalty.EarnedPoints(9_999, policy))
	require.Zero(t, loyalty.EarnedPoints(50_000, loyalty.Policy{}))
}
