package cart_test

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

func unitProduct(price pricing.Money, stock int32) cart.Product {
	return cart.Product{
		ID:        uuid.New(),
		Name:      "Indomie Goreng",
		Mode:      pricing.ModeUnit,
		UnitPrice: price,
		Stock:     stock,
	}
}

func weightedProduct(pricePerKg pricing.Money) cart.Product {
	return cart.Product{
		ID:        uuid.New(),
		Name:      "Beras Premium",
		Mode:      pricing.ModeWeighted,
		UnitPrice: pricePerKg,
		Stock:     1000,
	}
}

func requireConsistent(t *testing.T, c *cart.Ledger) {
	t.Helper()
	var sum pricing.Money
	for _, l := range c.Lines() {
		sum += l.Subtotal()
	}
	require.Equal(t, sum, c.Subtotal())
}

func TestUnitQuantitiesAccumulate(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(3_500, 20)

	require.NoError(t, c.AddOrUpdate(p, 2, 0))
	require.NoError(t, c.AddOrUpdate(p, 3, 0))

	require.Equal(t, 1, c.Len())
	require.Equal(t, 5, c.QtyOf(p.ID))
	require.Equal(t, pricing.Money(17_500), c.Subtotal())
	requireConsistent(t, c)
}

func TestWeighedMassReplaces(t *testing.T) {
	c := cart.NewLedger()
	p := weightedProduct(12_000)

	require.NoError(t, c.AddOrUpdate(p, 0, 400))
	require.NoError(t, c.AddOrUpdate(p, 0, 250))

	lines := c.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, int64(250), lines[0].MassGrams)
	require.Equal(t, pricing.Money(3_000), c.Subtotal())
	requireConsistent(t, c)
}

func TestAddBeyondStockRejected(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(1_000, 3)

	require.NoError(t, c.AddOrUpdate(p, 3, 0))
	require.ErrorIs(t, c.AddOrUpdate(p, 1, 0), cart.ErrOutOfStock)
	require.Equal(t, 3, c.QtyOf(p.ID))
}

func TestHugeQuantityRejectedBeforeStockGate(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(2_000, 10)

	// A count past the int32 range must not wrap around the stock check.
	require.ErrorIs(t, c.AddOrUpdate(p, 1<<31, 0), pricing.ErrQuantityInvalid)
	require.True(t, c.Empty())

	require.NoError(t, c.AddOrUpdate(p, 2, 0))
	require.ErrorIs(t, c.AdjustUnitQty(p.ID, 1<<31), pricing.ErrQuantityInvalid)
	require.Equal(t, 2, c.QtyOf(p.ID))
}

func TestQuantityCapAppliesEvenWithinStock(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(500, math.MaxInt32)

	require.NoError(t, c.AddOrUpdate(p, cart.MaxUnitQty, 0))
	require.ErrorIs(t, c.AddOrUpdate(p, 1, 0), pricing.ErrQuantityInvalid)
	require.ErrorIs(t, c.AdjustUnitQty(p.ID, 1), pricing.ErrQuantityInvalid)
	require.Equal(t, cart.MaxUnitQty, c.QtyOf(p.ID))
	requireConsistent(t, c)
}

func TestAdjustUnitQtyClampsAtOne(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(1_000, 10)
	require.NoError(t, c.AddOrUpdate(p, 2, 0))

	require.NoError(t, c.AdjustUnitQty(p.ID, -5))
	require.Equal(t, 1, c.QtyOf(p.ID))

	require.ErrorIs(t, c.AdjustUnitQty(p.ID, 10), cart.ErrInsufficientStock)
	require.Equal(t, 1, c.QtyOf(p.ID))

	require.NoError(t, c.AdjustUnitQty(p.ID, 4))
	require.Equal(t, 5, c.QtyOf(p.ID))
	requireConsistent(t, c)
}

func TestRemoveReindexes(t *testing.T) {
	c := cart.NewLedger()
	first := unitProduct(1_000, 10)
	second := unitProduct(2_000, 10)
	third := weightedProduct(9_000)

	require.NoError(t, c.AddOrUpdate(first, 1, 0))
	require.NoError(t, c.AddOrUpdate(second, 1, 0))
	require.NoError(t, c.AddOrUpdate(third, 0, 500))

	require.NoError(t, c.Remove(second.ID))
	require.False(t, c.Contains(second.ID))
	require.Equal(t, 2, c.Len())
	require.NoError(t, c.AdjustUnitQty(first.ID, 1))
	require.NoError(t, c.SetMass(third.ID, 750))
	requireConsistent(t, c)

	require.ErrorIs(t, c.Remove(second.ID), cart.ErrLineNotFound)
}

func TestUnweighedLinesBlockReporting(t *testing.T) {
	c := cart.NewLedger()
	p := weightedProduct(9_000)
	require.NoError(t, c.AddOrUpdate(p, 0, 0))

	require.Len(t, c.Unweighed(), 1)
	require.NoError(t, c.SetMass(p.ID, 120))
	require.Empty(t, c.Unweighed())
}

func TestVersionAdvancesOnEveryMutation(t *testing.T) {
	c := cart.NewLedger()
	p := unitProduct(1_000, 10)

	v0 := c.Version()
	require.NoError(t, c.AddOrUpdate(p, 1, 0))
	v1 := c.Version()
	require.Greater(t, v1, v0)
	require.NoError(t, c.AdjustUnitQty(p.ID, 1))
	require.Greater(t, c.Version(), v1)
}

func TestSubtotalConsistencyAcrossOperations(t *testing.T) {
	c := cart.NewLedger()
	unit := unitProduct(2_500, 50)
	kg := weightedProduct(30_000)

	require.NoError(t, c.AddOrUpdate(unit, 4, 0))
	requireConsistent(t, c)
	require.NoError(t, c.AddOrUpdate(kg, 0, 1234))
	requireConsistent(t, c)
	require.NoError(t, c.AdjustUnitQty(unit.ID, -2))
	requireConsistent(t, c)
	require.NoError(t, c.SetMass(kg.ID, 998))
	requireConsistent(t, c)
	require.NoError(t, c.Remove(unit.ID))
	requireConsistent(t, c)
}
