package promo

import (
	"github.com/google/uuid"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

// Application is the currently accepted promotion together with its computed
// discount and the product ids it is tagged against.
type Application struct {
	Rule      Rule
	Discount  pricing.Money
	Tagged    []uuid.UUID
	Shortfall int
}

// NewApplication builds an application from an evaluation result.
func NewApplication(res Result) Application {
	return Application{
		Rule:      res.Rule,
		Discount:  res.Discount,
		Tagged:    res.Tagged,
		Shortfall: res.Shortfall,
	}
}

// Revalidate recomputes the application against the current cart contents.
// When none of the tagged products remain, or the rule no longer yields an
// eligible line, the promotion is revoked. Otherwise the discount and tag set
// are refreshed from scratch.
func (a Application) Revalidate(lines []cart.Line) (Application, bool) {
	remaining := false
	for _, id := range a.Tagged {
		for _, l := range lines {
			if l.ProductID == id {
				remaining = true
				break
			}
		}
		if remaining {
			break
		}
	}
	if !remaining {
		return Application{}, true
	}
	res, err := Evaluate(a.Rule, lines)
	if err != nil {
		return Application{}, true
	}
	return NewApplication(res), false
}
