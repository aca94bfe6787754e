package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/payment"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

func TestAddValidatesAmount(t *testing.T) {
	var p payment.Ledger
	_, err := p.Add(payment.InstrumentCash, 0, "")
	require.ErrorIs(t, err, payment.ErrAmountInvalid)
	_, err = p.Add(payment.InstrumentCash, -100, "")
	require.ErrorIs(t, err, payment.ErrAmountInvalid)
}

func TestAddRejectsUnknownInstrument(t *testing.T) {
	var p payment.Ledger
	_, err := p.Add(payment.Instrument("CHEQUE"), 1_000, "")
	require.ErrorIs(t, err, payment.ErrInstrumentInvalid)
}

func TestNonCashGetsGeneratedReference(t *testing.T) {
	var p payment.Ledger
	line, err := p.Add(payment.InstrumentQRIS, 50_000, "")
	require.NoError(t, err)
	require.NotEmpty(t, line.Reference)
}

func TestCashReferenceStaysOptional(t *testing.T) {
	var p payment.Ledger
	line, err := p.Add(payment.InstrumentCash, 50_000, "")
	require.NoError(t, err)
	require.Empty(t, line.Reference)
}

func TestCustomReferenceGenerator(t *testing.T) {
	p := payment.Ledger{NewReference: func() string { return "EDC-0042" }}
	line, err := p.Add(payment.InstrumentDebit, 75_000, "")
	require.NoError(t, err)
	require.Equal(t, "EDC-0042", line.Reference)

	p.Clear()
	p.NewReference = func() string { return "  " }
	_, err = p.Add(payment.InstrumentDebit, 75_000, "")
	require.ErrorIs(t, err, payment.ErrReferenceRequired)
}

func TestSingleInstrumentPolicy(t *testing.T) {
	p := payment.Ledger{SingleInstrumentOnly: true}
	_, err := p.Add(payment.InstrumentCash, 20_000, "")
	require.NoError(t, err)
	_, err = p.Add(payment.InstrumentQRIS, 5_000, "")
	require.ErrorIs(t, err, payment.ErrSingleInstrument)

	p.Clear()
	_, err = p.Add(payment.InstrumentQRIS, 5_000, "")
	require.NoError(t, err)
}

func TestSplitTenderWhenPolicyDisabled(t *testing.T) {
	var p payment.Ledger
	_, err := p.Add(payment.InstrumentCash, 20_000, "")
	require.NoError(t, err)
	_, err = p.Add(payment.InstrumentDebit, 30_000, "")
	require.NoError(t, err)

	require.Equal(t, pricing.Money(50_000), p.TotalPaid())
	require.Equal(t, pricing.Money(5_000), p.Change(45_000))
	require.Equal(t, pricing.Money(-10_000), p.Change(60_000))
	require.Equal(t, 2, p.Len())
}
