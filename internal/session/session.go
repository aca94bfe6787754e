package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/events"
	"github.com/noah-isme/pos-engine/internal/loyalty"
	"github.com/noah-isme/pos-engine/internal/obs"
	"github.com/noah-isme/pos-engine/internal/payment"
	"github.com/noah-isme/pos-engine/internal/pricing"
	"github.com/noah-isme/pos-engine/internal/promo"
	"github.com/noah-isme/pos-engine/internal/txn"
)

var (
	// ErrCartEmpty blocks operations that require cart contents.
	ErrCartEmpty = errors.New("session: cart is empty")
	// ErrWeightRequired blocks submission while a weighed line has no mass.
	ErrWeightRequired = errors.New("session: weighed line has no mass")
	// ErrNoPayment blocks submission without a tendered payment line.
	ErrNoPayment = errors.New("session: no payment tendered")
	// ErrUnderpaid blocks submission while totalPaid < amountDue.
	ErrUnderpaid = errors.New("session: payment does not cover amount due")
	// ErrPromotionActive rejects applying a promotion on top of another.
	ErrPromotionActive = promo.ErrAlreadyApplied
)

// Submitter persists a finished checkout; implemented by txn.Store.
type Submitter interface {
	Submit(ctx context.Context, sub txn.Submission) (txn.Record, error)
}

// ReceiptEnqueuer schedules receipt printing after submission.
type ReceiptEnqueuer interface {
	EnqueuePrint(ctx context.Context, transactionID uuid.UUID, number string) error
}

// PointSettler settles loyalty point movements after submission.
type PointSettler interface {
	DeductPoints(ctx context.Context, id uuid.UUID, points int64) error
	AddPoints(ctx context.Context, id uuid.UUID, points int64) error
}

// Config carries the collaborators a session needs.
type Config struct {
	CashierID        uuid.UUID
	Promo            *promo.Service
	Policy           loyalty.Policy
	Submitter        Submitter
	Receipts         ReceiptEnqueuer
	Points           PointSettler
	Events           *events.Bus
	SingleInstrument bool
	Logger           zerolog.Logger
}

// Totals aggregates every figure derived from the session state. All fields
// are computed on read; nothing here is cached independently of its inputs.
type Totals struct {
	Subtotal       pricing.Money `json:"subtotal"`
	PromoDiscount  pricing.Money `json:"promoDiscount"`
	PointsResolved int64         `json:"pointsResolved"`
	PointDiscount  pricing.Money `json:"pointDiscount"`
	AmountDue      pricing.Money `json:"amountDue"`
	TotalPaid      pricing.Money `json:"totalPaid"`
	Change         pricing.Money `json:"change"`
	EarnedPoints   int64         `json:"earnedPoints"`
}

// Session is the single owned aggregate for one checkout. Mutation and reads
// go through its mutex; the only suspension point is promotion resolution,
// which runs without the lock so cart edits stay responsive while a code is
// validated over the network.
type Session struct {
	ID        uuid.UUID
	CashierID uuid.UUID

	mu              sync.Mutex
	cart            *cart.Ledger
	promoApp        *promo.Application
	member          *loyalty.Account
	requestedPoints int64
	payments        payment.Ledger
	notice          string

	promoSvc *promo.Service
	policy   loyalty.Policy
	subm     Submitter
	receipts ReceiptEnqueuer
	points   PointSettler
	bus      *events.Bus
	logger   zerolog.Logger
}

// New creates an empty checkout session.
func New(cfg Config) *Session {
	s := &Session{
		ID:        uuid.New(),
		CashierID: cfg.CashierID,
		cart:      cart.NewLedger(),
		promoSvc:  cfg.Promo,
		policy:    cfg.Policy,
		subm:      cfg.Submitter,
		receipts:  cfg.Receipts,
		points:    cfg.Points,
		bus:       cfg.Events,
		logger:    cfg.Logger,
	}
	s.payments.SingleInstrumentOnly = cfg.SingleInstrument
	return s
}

// AddProduct inserts or folds a product into the cart. Unit-priced products
// accumulate, weighed products take the latest scale reading.
func (s *Session) AddProduct(p cart.Product, qty int, massGrams int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.AddOrUpdate(p, qty, massGrams); err != nil {
		return err
	}
	s.afterCartChangeLocked()
	return nil
}

// SetMass replaces the measured mass of a weighed line.
func (s *Session) SetMass(productID uuid.UUID, massGrams int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.SetMass(productID, massGrams); err != nil {
		return err
	}
	s.afterCartChangeLocked()
	return nil
}

// AdjustQty shifts a unit-priced line's count by delta.
func (s *Session) AdjustQty(productID uuid.UUID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.AdjustUnitQty(productID, delta); err != nil {
		return err
	}
	s.afterCartChangeLocked()
	return nil
}

// RemoveProduct deletes a cart line.
func (s *Session) RemoveProduct(productID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cart.Remove(productID); err != nil {
		return err
	}
	s.afterCartChangeLocked()
	return nil
}

// ApplyPromotion resolves a code against the promotion catalog and, when the
// rule still applies to the cart as it stands on arrival, binds it to the
// session. The resolution round-trip runs without the session lock; the
// discount is always evaluated from scratch against the current cart, so a
// result computed for an older cart can never be applied verbatim.
func (s *Session) ApplyPromotion(ctx context.Context, code string) (promo.Application, error) {
	s.mu.Lock()
	if s.cart.Empty() {
		s.mu.Unlock()
		return promo.Application{}, promo.ErrCartEmpty
	}
	if s.promoApp != nil {
		s.mu.Unlock()
		return promo.Application{}, promo.ErrAlreadyApplied
	}
	s.mu.Unlock()

	rule, err := s.promoSvc.Resolve(ctx, code)
	if err != nil {
		return promo.Application{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promoApp != nil {
		return promo.Application{}, promo.ErrAlreadyApplied
	}
	res, err := promo.Evaluate(rule, s.cart.Lines())
	if err != nil {
		return promo.Application{}, err
	}
	app := promo.NewApplication(res)
	s.promoApp = &app
	obs.PromoApplyTotal.WithLabelValues("applied").Inc()
	s.emit(events.TopicPromotionApplied, s.ID, map[string]any{
		"code":     rule.Code,
		"discount": app.Discount,
	})
	return app, nil
}

// RemovePromotion clears the active promotion unconditionally.
func (s *Session) RemovePromotion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoApp = nil
}

// Promotion returns the active application, if any.
func (s *Session) Promotion() (promo.Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promoApp == nil {
		return promo.Application{}, false
	}
	return *s.promoApp, true
}

// SelectMember attaches a loyalty account to the session.
func (s *Session) SelectMember(acct loyalty.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.member = &acct
}

// ClearMember detaches the loyalty account and any requested redemption.
func (s *Session) ClearMember() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.member = nil
	s.requestedPoints = 0
}

// RedeemPoints records the requested point count and returns the redemption
// after clamping. A clamp is informational, not an error: the caller reflects
// the corrected figure.
func (s *Session) RedeemPoints(points int64) (loyalty.Redemption, error) {
	if points < 0 {
		return loyalty.Redemption{}, errors.New("session: requested points must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestedPoints = points
	return s.redemptionLocked(), nil
}

// AddPayment tenders a payment line.
func (s *Session) AddPayment(instrument payment.Instrument, amount pricing.Money, reference string) (payment.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments.Add(instrument, amount, reference)
}

// ClearPayments drops every tendered line.
func (s *Session) ClearPayments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments.Clear()
}

// Lines returns the cart lines in insertion order.
func (s *Session) Lines() []cart.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Lines()
}

// Payments returns the tendered payment lines.
func (s *Session) Payments() []payment.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments.Lines()
}

// Member returns the attached loyalty account, if any.
func (s *Session) Member() (loyalty.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.member == nil {
		return loyalty.Account{}, false
	}
	return *s.member, true
}

// Totals derives every aggregate figure from current state.
func (s *Session) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

// TakeNotice returns and clears the pending operator notice, such as an
// automatic promotion revocation. Reads leave the notice in place; the UI
// calls this once the operator has seen it.
func (s *Session) TakeNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	notice := s.notice
	s.notice = ""
	return notice
}

// Snapshot is a point-in-time view of the session taken under one lock
// acquisition, so lines, totals and payments agree with each other.
type Snapshot struct {
	Lines     []cart.Line
	Promotion *promo.Application
	Member    *loyalty.Account
	Payments  []payment.Line
	Totals    Totals
	Notice    string
}

// Snapshot returns a consistent view of the session. The operator notice is
// reported but not consumed.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Lines:    s.cart.Lines(),
		Payments: s.payments.Lines(),
		Totals:   s.totalsLocked(),
		Notice:   s.notice,
	}
	if s.promoApp != nil {
		app := *s.promoApp
		snap.Promotion = &app
	}
	if s.member != nil {
		acct := *s.member
		snap.Member = &acct
	}
	return snap
}

// CanSubmit reports whether the session passes every submission gate,
// returning the first violated gate otherwise.
func (s *Session) CanSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmitLocked()
}

// Submit validates the gates, persists the transaction, settles loyalty
// points, requests receipt printing and resets the session atomically. On any
// persistence failure the session state is left untouched so the cashier can
// retry without re-entering data.
func (s *Session) Submit(ctx context.Context) (txn.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canSubmitLocked(); err != nil {
		obs.CheckoutSubmitTotal.WithLabelValues("rejected").Inc()
		return txn.Record{}, err
	}
	if s.subm == nil {
		return txn.Record{}, errors.New("session: submitter not configured")
	}

	totals := s.totalsLocked()
	sub := txn.Submission{
		SessionID:     s.ID,
		CashierID:     s.CashierID,
		Lines:         s.cart.Lines(),
		Subtotal:      totals.Subtotal,
		PromoDiscount: totals.PromoDiscount,
		PointsUsed:    totals.PointsResolved,
		PointDiscount: totals.PointDiscount,
		Total:         totals.AmountDue,
		Payments:      s.payments.Lines(),
		Change:        totals.Change,
	}
	if s.promoApp != nil {
		sub.PromoCode = s.promoApp.Rule.Code
	}
	if s.member != nil {
		id := s.member.ID
		sub.MemberID = &id
	}

	record, err := s.subm.Submit(ctx, sub)
	if err != nil {
		obs.CheckoutSubmitTotal.WithLabelValues("error").Inc()
		return txn.Record{}, err
	}
	obs.CheckoutSubmitTotal.WithLabelValues("ok").Inc()

	if s.points != nil && s.member != nil {
		if err := s.points.DeductPoints(ctx, s.member.ID, totals.PointsResolved); err != nil {
			s.logger.Error().Err(err).Msg("deduct loyalty points")
		}
		if err := s.points.AddPoints(ctx, s.member.ID, totals.EarnedPoints); err != nil {
			s.logger.Error().Err(err).Msg("credit earned points")
		}
	}

	s.emit(events.TopicCheckoutCompleted, record.ID, map[string]any{
		"number":    record.Number,
		"sessionId": s.ID.String(),
		"total":     totals.AmountDue,
	})
	if s.receipts != nil {
		// Fire-and-forget: a printer problem falls back to the on-screen
		// receipt and the manual reprint path.
		if err := s.receipts.EnqueuePrint(ctx, record.ID, record.Number); err != nil {
			s.logger.Warn().Err(err).Msg("enqueue receipt print")
		} else {
			s.emit(events.TopicReceiptRequested, record.ID, map[string]any{
				"number": record.Number,
			})
		}
	}

	s.resetLocked()
	return record, nil
}

// Reset cancels the checkout, clearing cart, promotion, redemption and
// payments together. Partial resets are not a valid state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cart.Empty() {
		s.emit(events.TopicCheckoutCanceled, s.ID, map[string]any{
			"sessionId": s.ID.String(),
		})
	}
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.cart.Clear()
	s.promoApp = nil
	s.member = nil
	s.requestedPoints = 0
	s.payments.Clear()
	s.notice = ""
}

// afterCartChangeLocked is the compensating control for promotion staleness:
// every cart mutation re-validates the tagging and revokes the promotion once
// no tagged product remains.
func (s *Session) afterCartChangeLocked() {
	if s.promoApp == nil {
		return
	}
	updated, revoked := s.promoApp.Revalidate(s.cart.Lines())
	if revoked {
		code := s.promoApp.Rule.Code
		s.promoApp = nil
		s.notice = "promotion " + code + " no longer applies and was removed"
		obs.PromoRevokedTotal.Inc()
		s.emit(events.TopicPromotionRevoked, s.ID, map[string]any{"code": code})
		return
	}
	s.promoApp = &updated
}

func (s *Session) redemptionLocked() loyalty.Redemption {
	var promoDiscount pricing.Money
	if s.promoApp != nil {
		promoDiscount = s.promoApp.Discount
	}
	return loyalty.ResolveRedemption(s.requestedPoints, s.member, s.policy, promoDiscount, s.cart.Subtotal())
}

func (s *Session) totalsLocked() Totals {
	subtotal := s.cart.Subtotal()
	var promoDiscount pricing.Money
	if s.promoApp != nil {
		promoDiscount = s.promoApp.Discount
	}
	redemption := s.redemptionLocked()
	due := subtotal - promoDiscount - redemption.Discount
	if due < 0 {
		due = 0
	}
	paid := s.payments.TotalPaid()
	return Totals{
		Subtotal:       subtotal,
		PromoDiscount:  promoDiscount,
		PointsResolved: redemption.Resolved,
		PointDiscount:  redemption.Discount,
		AmountDue:      due,
		TotalPaid:      paid,
		Change:         paid - due,
		EarnedPoints:   loyalty.EarnedPoints(due, s.policy),
	}
}

func (s *Session) canSubmitLocked() error {
	if s.cart.Empty() {
		return ErrCartEmpty
	}
	if len(s.cart.Unweighed()) > 0 {
		return ErrWeightRequired
	}
	if s.payments.Len() == 0 {
		return ErrNoPayment
	}
	if s.payments.TotalPaid() < s.totalsLocked().AmountDue {
		return ErrUnderpaid
	}
	return nil
}

func (s *Session) emit(topic string, aggregateID uuid.UUID, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Emit(context.Background(), topic, aggregateID, payload); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("emit event")
	}
}
