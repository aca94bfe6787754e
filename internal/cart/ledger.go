package cart

import (
	"errors"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-engine/internal/pricing"
)

var (
	// ErrLineNotFound indicates the product has no line in the ledger.
	ErrLineNotFound = errors.New("cart: line not found")
	// ErrOutOfStock is returned when an add would exceed available stock.
	ErrOutOfStock = errors.New("cart: product out of stock")
	// ErrInsufficientStock is returned when a quantity adjustment would exceed stock.
	ErrInsufficientStock = errors.New("cart: insufficient stock")
	// ErrNotUnitPriced indicates a piece-count operation on a weighed line.
	ErrNotUnitPriced = errors.New("cart: line is not unit priced")
	// ErrNotWeighted indicates a mass operation on a unit-priced line.
	ErrNotWeighted = errors.New("cart: line is not weight priced")
)

// MaxUnitQty caps the piece count a single line may carry. Stock columns are
// int32; a count anywhere near that range is a keying mistake, not a sale.
const MaxUnitQty = 100_000

// Product is the read-only catalog view the ledger consumes.
type Product struct {
	ID         uuid.UUID
	SKU        string
	Barcode    string
	Name       string
	Mode       pricing.Mode
	UnitPrice  pricing.Money
	Stock      int32
	CategoryID uuid.UUID
}

// Line is a single cart entry. At most one line exists per product.
type Line struct {
	ProductID  uuid.UUID
	Name       string
	Mode       pricing.Mode
	UnitPrice  pricing.Money
	CategoryID uuid.UUID
	Stock      int32
	Qty        int   // piece count for unit-priced lines
	MassGrams  int64 // measured mass for weight-priced lines
}

// Subtotal derives the line amount from its quantity expression.
func (l Line) Subtotal() pricing.Money {
	amount, err := pricing.ResolveSubtotal(l.Mode, l.UnitPrice, l.Qty, l.MassGrams)
	if err != nil {
		// Ledger operations never store an invalid quantity; reaching this
		// is a programming defect, not an input error.
		panic(err)
	}
	return amount
}

// Weighed reports whether a weight-priced line has a usable mass.
func (l Line) Weighed() bool {
	return l.Mode != pricing.ModeWeighted || l.MassGrams > 0
}

// Ledger holds the ordered, deduplicated cart lines of one checkout session.
// It is not safe for concurrent use; the owning session serialises access.
type Ledger struct {
	lines   []Line
	index   map[uuid.UUID]int
	version uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{index: make(map[uuid.UUID]int)}
}

// AddOrUpdate inserts a line for the product or folds the quantity into an
// existing one. Unit-priced quantities accumulate; a weighed mass replaces the
// previous reading, because a scale reading supersedes a prior estimate.
func (c *Ledger) AddOrUpdate(p Product, qty int, massGrams int64) error {
	if !p.Mode.Valid() {
		return pricing.ErrModeInvalid
	}
	idx, exists := c.index[p.ID]
	switch p.Mode {
	case pricing.ModeUnit:
		if qty < 1 || qty > MaxUnitQty {
			return pricing.ErrQuantityInvalid
		}
		total := qty
		if exists {
			total += c.lines[idx].Qty
		}
		if total > MaxUnitQty {
			return pricing.ErrQuantityInvalid
		}
		if int64(total) > int64(p.Stock) {
			return ErrOutOfStock
		}
		if exists {
			c.lines[idx].Qty = total
		} else {
			c.append(Line{
				ProductID:  p.ID,
				Name:       p.Name,
				Mode:       p.Mode,
				UnitPrice:  p.UnitPrice,
				CategoryID: p.CategoryID,
				Stock:      p.Stock,
				Qty:        qty,
			})
		}
	case pricing.ModeWeighted:
		if massGrams < 0 {
			return pricing.ErrMassInvalid
		}
		if exists {
			c.lines[idx].MassGrams = massGrams
		} else {
			c.append(Line{
				ProductID:  p.ID,
				Name:       p.Name,
				Mode:       p.Mode,
				UnitPrice:  p.UnitPrice,
				CategoryID: p.CategoryID,
				Stock:      p.Stock,
				MassGrams:  massGrams,
			})
		}
	}
	c.version++
	return nil
}

// SetMass replaces the measured mass of a weight-priced line.
func (c *Ledger) SetMass(productID uuid.UUID, massGrams int64) error {
	idx, ok := c.index[productID]
	if !ok {
		return ErrLineNotFound
	}
	if c.lines[idx].Mode != pricing.ModeWeighted {
		return ErrNotWeighted
	}
	if massGrams < 0 {
		return pricing.ErrMassInvalid
	}
	c.lines[idx].MassGrams = massGrams
	c.version++
	return nil
}

// AdjustUnitQty shifts a unit-priced line's count by delta. The count clamps
// at one: dropping to zero requires an explicit Remove. Exceeding the
// product's stock is rejected.
func (c *Ledger) AdjustUnitQty(productID uuid.UUID, delta int) error {
	idx, ok := c.index[productID]
	if !ok {
		return ErrLineNotFound
	}
	line := &c.lines[idx]
	if line.Mode != pricing.ModeUnit {
		return ErrNotUnitPriced
	}
	if delta > MaxUnitQty {
		return pricing.ErrQuantityInvalid
	}
	next := line.Qty + delta
	if next < 1 {
		next = 1
	}
	if next > MaxUnitQty {
		return pricing.ErrQuantityInvalid
	}
	if int64(next) > int64(line.Stock) {
		return ErrInsufficientStock
	}
	line.Qty = next
	c.version++
	return nil
}

// Remove deletes the product's line.
func (c *Ledger) Remove(productID uuid.UUID) error {
	idx, ok := c.index[productID]
	if !ok {
		return ErrLineNotFound
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	delete(c.index, productID)
	for i := idx; i < len(c.lines); i++ {
		c.index[c.lines[i].ProductID] = i
	}
	c.version++
	return nil
}

// Clear drops every line.
func (c *Ledger) Clear() {
	c.lines = nil
	c.index = make(map[uuid.UUID]int)
	c.version++
}

// Subtotal returns the sum of all line subtotals, derived on read.
func (c *Ledger) Subtotal() pricing.Money {
	var total pricing.Money
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

// Lines returns a copy of the lines in insertion order.
func (c *Ledger) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// QtyOf returns the piece count of a unit-priced line, zero when absent.
func (c *Ledger) QtyOf(productID uuid.UUID) int {
	if idx, ok := c.index[productID]; ok && c.lines[idx].Mode == pricing.ModeUnit {
		return c.lines[idx].Qty
	}
	return 0
}

// Contains reports whether a line exists for the product.
func (c *Ledger) Contains(productID uuid.UUID) bool {
	_, ok := c.index[productID]
	return ok
}

// Empty reports whether the ledger has no lines.
func (c *Ledger) Empty() bool { return len(c.lines) == 0 }

// Len returns the number of lines.
func (c *Ledger) Len() int { return len(c.lines) }

// Unweighed returns the ids of weight-priced lines still at mass zero.
// Such lines block submission.
func (c *Ledger) Unweighed() []uuid.UUID {
	var ids []uuid.UUID
	for _, l := range c.lines {
		if !l.Weighed() {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// Version increments on every mutation. Consumers use it to detect that the
// cart a long-running computation started from has changed.
func (c *Ledger) Version() uint64 { return c.version }

func (c *Ledger) append(l Line) {
	c.index[l.ProductID] = len(c.lines)
	c.lines = append(c.lines, l)
}
