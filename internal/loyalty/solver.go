package loyalty

import (
	"github.com/google/uuid"

	"github.com/noah-isme/pos-engine/internal/obs"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

// Policy holds the store's configured point exchange rules.
type Policy struct {
	// PointValue is the currency value of one point.
	PointValue pricing.Money
	// MinExchange is the smallest point count redeemable in one transaction.
	MinExchange int64
	// SpendPerPoint is the spend required to earn one point.
	SpendPerPoint pricing.Money
}

// Account is the read-only loyalty account view this core consumes.
type Account struct {
	ID      uuid.UUID
	Code    string
	Name    string
	Balance int64
}

// Adjustment names the clamp that reduced a requested redemption. An empty
// adjustment means the request was honoured as asked.
type Adjustment string

const (
	// AdjustNone means the requested point count was used unchanged.
	AdjustNone Adjustment = ""
	// AdjustNoAccount means no identified account was selected.
	AdjustNoAccount Adjustment = "no_account"
	// AdjustBalance means the request exceeded the account balance.
	AdjustBalance Adjustment = "balance"
	// AdjustPriceFloor means the request would drive the total negative.
	AdjustPriceFloor Adjustment = "price_floor"
	// AdjustMinExchange means the clamped result fell below the minimum
	// exchange and the redemption was rejected in full.
	AdjustMinExchange Adjustment = "min_exchange"
)

// Redemption is the resolved outcome of a point redemption request.
type Redemption struct {
	Requested  int64         `json:"requested"`
	Resolved   int64         `json:"resolved"`
	Discount   pricing.Money `json:"discount"`
	Adjustment Adjustment    `json:"adjustment,omitempty"`
}

// ResolveRedemption clamps a requested point count to every applicable limit
// and computes the resulting discount. It is a pure function of its inputs:
// resolving the same request against unchanged state yields the same result.
// Each clamp that changes the requested figure is reported back as an
// informational adjustment, never as an error.
func ResolveRedemption(requested int64, account *Account, policy Policy, promoDiscount, cartSubtotal pricing.Money) Redemption {
	out := Redemption{Requested: requested}
	if requested <= 0 {
		return out
	}
	if account == nil {
		out.Adjustment = AdjustNoAccount
		record(out.Adjustment)
		return out
	}

	resolved := requested
	if resolved > account.Balance {
		resolved = account.Balance
		out.Adjustment = AdjustBalance
	}
	if policy.PointValue > 0 {
		remaining := cartSubtotal - promoDiscount
		if remaining < 0 {
			remaining = 0
		}
		maxByPrice := remaining / policy.PointValue
		if resolved > maxByPrice {
			resolved = maxByPrice
			out.Adjustment = AdjustPriceFloor
		}
	}
	// Partial redemption below the minimum is rejected in full, never
	// clamped up to the minimum.
	if resolved > 0 && resolved < policy.MinExchange {
		resolved = 0
		out.Adjustment = AdjustMinExchange
	}

	out.Resolved = resolved
	out.Discount = resolved * policy.PointValue
	record(out.Adjustment)
	return out
}

// EarnedPoints previews the points a completed transaction total earns.
func EarnedPoints(total pricing.Money, policy Policy) int64 {
	if policy.SpendPerPoint <= 0 || total <= 0 {
		return 0
	}
	return total / policy.SpendPerPoint
}

func record(adj Adjustment) {
	if adj == AdjustNone {
		return
	}
	obs.RedemptionAdjustedTotal.WithLabelValues(string(adj)).Inc()
}
