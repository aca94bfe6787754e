package promo

import (
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

var (
	// ErrCodeNotFound is returned when the code does not resolve to a promotion.
	ErrCodeNotFound = errors.New("promo: code not found")
	// ErrCartEmpty is returned when a promotion is applied to an empty cart.
	ErrCartEmpty = errors.New("promo: cart is empty")
	// ErrScopeNotMet indicates no cart line satisfies the promotion's scope.
	ErrScopeNotMet = errors.New("promo: no eligible cart line")
	// ErrApplyInFlight rejects a second apply while one is still resolving.
	ErrApplyInFlight = errors.New("promo: another apply is in flight")
	// ErrAlreadyApplied rejects applying on top of an active promotion.
	ErrAlreadyApplied = errors.New("promo: a promotion is already applied")
	// ErrRuleInvalid indicates a malformed promotion definition.
	ErrRuleInvalid = errors.New("promo: invalid promotion rule")
)

// Kind discriminates the promotion families.
type Kind string

const (
	// KindAmount grants a flat discount, capped at the cart subtotal.
	KindAmount Kind = "AMOUNT"
	// KindPercent grants a basis-point share of the eligible subtotal.
	KindPercent Kind = "PERCENT"
	// KindBuyXGetY grants free units based on purchased quantity.
	KindBuyXGetY Kind = "BUY_X_GET_Y"
)

// Variant selects the buy-X-get-Y sub-mode.
type Variant string

const (
	// VariantSameProduct grants free units of the purchased product itself.
	VariantSameProduct Variant = "SAME_PRODUCT"
	// VariantDifferentProduct grants free units of a second product.
	VariantDifferentProduct Variant = "DIFFERENT_PRODUCT"
)

// Rule captures the runtime constraints of a promotion definition.
type Rule struct {
	ID         uuid.UUID
	Code       string
	Kind       Kind
	Value      pricing.Money // flat amount for KindAmount
	PercentBps int32         // basis points for KindPercent

	// Scope filters for amount/percent promotions, AND-composed; each is
	// optional.
	CategoryID   *uuid.UUID
	MinUnitPrice pricing.Money
	ProductIDs   []uuid.UUID

	// Buy-X-get-Y parameters.
	BuyQty   int
	GetQty   int
	Variant  Variant
	ProductX uuid.UUID
	ProductY uuid.UUID // required iff Variant == VariantDifferentProduct
}

// Result is the outcome of evaluating a rule against cart contents.
type Result struct {
	Rule     Rule
	Discount pricing.Money
	// Tagged lists the product ids the promotion is bound to; when every
	// tagged product leaves the cart the promotion is revoked.
	Tagged []uuid.UUID
	// Shortfall reports, for a same-product set that is not yet complete,
	// how many more units would complete it. Zero otherwise.
	Shortfall int
}

// Evaluate computes the discount a rule yields for the given cart lines.
// The computation is always from scratch: no free-unit allocation survives
// between calls, so repeated evaluation against the same cart is idempotent.
func Evaluate(r Rule, lines []cart.Line) (Result, error) {
	if len(lines) == 0 {
		return Result{}, ErrCartEmpty
	}
	switch r.Kind {
	case KindAmount, KindPercent:
		return evaluateAmountOrPercent(r, lines)
	case KindBuyXGetY:
		return evaluateBuyXGetY(r, lines)
	default:
		return Result{}, ErrRuleInvalid
	}
}

func evaluateAmountOrPercent(r Rule, lines []cart.Line) (Result, error) {
	var (
		eligible pricing.Money
		subtotal pricing.Money
		tagged   []uuid.UUID
	)
	for _, l := range lines {
		subtotal += l.Subtotal()
		if !matchesScope(r, l) {
			continue
		}
		eligible += l.Subtotal()
		tagged = append(tagged, l.ProductID)
	}
	if len(tagged) == 0 {
		return Result{}, ErrScopeNotMet
	}

	var discount pricing.Money
	switch r.Kind {
	case KindPercent:
		if r.PercentBps <= 0 {
			return Result{}, ErrRuleInvalid
		}
		discount = (eligible * pricing.Money(r.PercentBps)) / 10000
	default:
		discount = r.Value
		if discount > subtotal {
			discount = subtotal
		}
	}
	if discount < 0 {
		discount = 0
	}
	return Result{Rule: r, Discount: discount, Tagged: tagged}, nil
}

func evaluateBuyXGetY(r Rule, lines []cart.Line) (Result, error) {
	if r.BuyQty < 1 || r.GetQty < 1 {
		return Result{}, ErrRuleInvalid
	}
	qtyOf := func(id uuid.UUID) (int, pricing.Money, bool) {
		for _, l := range lines {
			if l.ProductID == id && l.Mode == pricing.ModeUnit {
				return l.Qty, l.UnitPrice, true
			}
		}
		return 0, 0, false
	}

	switch r.Variant {
	case VariantSameProduct:
		qty, price, ok := qtyOf(r.ProductX)
		if !ok {
			return Result{}, ErrScopeNotMet
		}
		setSize := r.BuyQty + r.GetQty
		if qty < setSize {
			return Result{
				Rule:      r,
				Tagged:    []uuid.UUID{r.ProductX},
				Shortfall: setSize - qty,
			}, nil
		}
		freeUnits := (qty / setSize) * r.GetQty
		return Result{
			Rule:     r,
			Discount: pricing.Money(freeUnits) * price,
			Tagged:   []uuid.UUID{r.ProductX},
		}, nil

	case VariantDifferentProduct:
		qtyX, _, okX := qtyOf(r.ProductX)
		qtyY, priceY, okY := qtyOf(r.ProductY)
		if !okX || !okY {
			return Result{}, ErrScopeNotMet
		}
		entitled := (qtyX / r.BuyQty) * r.GetQty
		free := entitled
		// Cannot give away more of Y than the cart actually holds.
		if qtyY < free {
			free = qtyY
		}
		return Result{
			Rule:     r,
			Discount: pricing.Money(free) * priceY,
			Tagged:   []uuid.UUID{r.ProductX, r.ProductY},
		}, nil

	default:
		return Result{}, ErrRuleInvalid
	}
}

func matchesScope(r Rule, l cart.Line) bool {
	if r.CategoryID != nil && l.CategoryID != *r.CategoryID {
		return false
	}
	if r.MinUnitPrice > 0 && l.UnitPrice < r.MinUnitPrice {
		return false
	}
	if len(r.ProductIDs) > 0 {
		found := false
		for _, id := range r.ProductIDs {
			if id == l.ProductID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
