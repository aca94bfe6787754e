package pricing

import "errors"

// Money represents a monetary value stored in minor units.
type Money = int64

// Mode determines how a product's line subtotal is derived.
type Mode string

const (
	// ModeUnit prices per discrete piece; quantity is an integer count.
	ModeUnit Mode = "UNIT"
	// ModeWeighted prices per 1000 grams; quantity is a measured mass.
	ModeWeighted Mode = "WEIGHTED"
)

// Valid reports whether the mode is one of the known pricing modes.
func (m Mode) Valid() bool {
	return m == ModeUnit || m == ModeWeighted
}

var (
	// ErrQuantityInvalid is returned for a unit-priced quantity below one.
	ErrQuantityInvalid = errors.New("pricing: quantity must be at least 1")
	// ErrMassInvalid is returned for a negative mass.
	ErrMassInvalid = errors.New("pricing: mass must not be negative")
	// ErrModeInvalid is returned for an unknown pricing mode.
	ErrModeInvalid = errors.New("pricing: unknown pricing mode")
)

// ResolveSubtotal converts a quantity expression into a line subtotal.
// Unit mode multiplies the piece count by the unit price. Weighted mode
// prices the mass against the per-kilogram unit price, rounding half-up
// to the smallest currency unit. A weighed mass of zero resolves to zero;
// whether that is acceptable is the caller's concern.
func ResolveSubtotal(mode Mode, unitPrice Money, qty int, massGrams int64) (Money, error) {
	if unitPrice < 0 {
		unitPrice = 0
	}
	switch mode {
	case ModeUnit:
		if qty < 1 {
			return 0, ErrQuantityInvalid
		}
		return Money(qty) * unitPrice, nil
	case ModeWeighted:
		if massGrams < 0 {
			return 0, ErrMassInvalid
		}
		return (massGrams*unitPrice + 500) / 1000, nil
	default:
		return 0, ErrModeInvalid
	}
}
