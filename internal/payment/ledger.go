package payment

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/pos-engine/internal/pricing"
)

var (
	// ErrAmountInvalid is returned for a non-positive tender amount.
	ErrAmountInvalid = errors.New("payment: amount must be positive")
	// ErrReferenceRequired indicates a non-cash line without a reference.
	ErrReferenceRequired = errors.New("payment: reference required for non-cash instrument")
	// ErrInstrumentInvalid is returned for an unknown instrument.
	ErrInstrumentInvalid = errors.New("payment: unknown instrument")
	// ErrSingleInstrument rejects a second tender while the single-instrument
	// policy is active; the ledger must be cleared first.
	ErrSingleInstrument = errors.New("payment: a payment line is already tendered")
)

// Instrument identifies the tender type of a payment line.
type Instrument string

const (
	InstrumentCash         Instrument = "CASH"
	InstrumentQRIS         Instrument = "QRIS"
	InstrumentBankTransfer Instrument = "BANK_TRANSFER"
	InstrumentDebit        Instrument = "DEBIT"
	InstrumentCredit       Instrument = "CREDIT"
)

// Valid reports whether the instrument is a known tender type.
func (i Instrument) Valid() bool {
	switch i {
	case InstrumentCash, InstrumentQRIS, InstrumentBankTransfer, InstrumentDebit, InstrumentCredit:
		return true
	default:
		return false
	}
}

// Line is a single tendered payment.
type Line struct {
	ID         uuid.UUID     `json:"id"`
	Instrument Instrument    `json:"instrument"`
	Amount     pricing.Money `json:"amount"`
	// Reference is system-generated for non-cash instruments and free-form
	// (often empty) for cash.
	Reference string `json:"reference,omitempty"`
}

// Ledger accumulates the payments tendered for one checkout session.
// It is not safe for concurrent use; the owning session serialises access.
type Ledger struct {
	// SingleInstrumentOnly enforces the one-active-tender workflow. Split
	// tender is the deliberate extension point behind this flag.
	SingleInstrumentOnly bool
	// NewReference generates references for non-cash lines. Defaults to a
	// shortened uuid.
	NewReference func() string

	lines []Line
}

// Add validates and appends a payment line, returning the accepted line with
// its generated reference.
func (p *Ledger) Add(instrument Instrument, amount pricing.Money, reference string) (Line, error) {
	if !instrument.Valid() {
		return Line{}, ErrInstrumentInvalid
	}
	if amount <= 0 {
		return Line{}, ErrAmountInvalid
	}
	if p.SingleInstrumentOnly && len(p.lines) > 0 {
		return Line{}, ErrSingleInstrument
	}
	reference = strings.TrimSpace(reference)
	if instrument != InstrumentCash && reference == "" {
		reference = p.generateReference()
		if reference == "" {
			return Line{}, ErrReferenceRequired
		}
	}
	line := Line{
		ID:         uuid.New(),
		Instrument: instrument,
		Amount:     amount,
		Reference:  reference,
	}
	p.lines = append(p.lines, line)
	return line, nil
}

// TotalPaid sums the tendered amounts, derived on read.
func (p *Ledger) TotalPaid() pricing.Money {
	var total pricing.Money
	for _, l := range p.lines {
		total += l.Amount
	}
	return total
}

// Change returns totalPaid minus amountDue; negative means underpaid.
func (p *Ledger) Change(amountDue pricing.Money) pricing.Money {
	return p.TotalPaid() - amountDue
}

// Lines returns a copy of the tendered lines in order.
func (p *Ledger) Lines() []Line {
	out := make([]Line, len(p.lines))
	copy(out, p.lines)
	return out
}

// Len returns the number of tendered lines.
func (p *Ledger) Len() int { return len(p.lines) }

// Clear drops every tendered line.
func (p *Ledger) Clear() { p.lines = nil }

func (p *Ledger) generateReference() string {
	if p.NewReference != nil {
		return strings.TrimSpace(p.NewReference())
	}
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}
