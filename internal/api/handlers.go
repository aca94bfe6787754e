package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/catalog"
	"github.com/noah-isme/pos-engine/internal/common"
	"github.com/noah-isme/pos-engine/internal/loyalty"
	"github.com/noah-isme/pos-engine/internal/payment"
	"github.com/noah-isme/pos-engine/internal/pricing"
	"github.com/noah-isme/pos-engine/internal/promo"
	"github.com/noah-isme/pos-engine/internal/scan"
	"github.com/noah-isme/pos-engine/internal/session"
)

// ProductFinder resolves a scanned or typed identifier to a product.
type ProductFinder interface {
	FindByIdentifier(ctx context.Context, code string) (cart.Product, error)
}

// MemberFinder resolves a member id or code to a loyalty account.
type MemberFinder interface {
	FindAccount(ctx context.Context, idOrCode string) (loyalty.Account, error)
}

// Handler exposes the checkout session API. Each live session owns a scan
// classifier; decoded barcodes are looked up and added to the cart by a
// per-session consumer goroutine.
type Handler struct {
	Registry      *session.Registry
	Products      ProductFinder
	Members       MemberFinder
	NewSession    func(cashierID uuid.UUID) *session.Session
	ScanDebounce  time.Duration
	ScanMinLength int
	Validate      *validator.Validate
	Logger        zerolog.Logger

	mu       sync.Mutex
	scanners map[uuid.UUID]*scan.Classifier
}

// Routes mounts the session API under the given router. Middlewares passed
// here wrap only the submit endpoint, which is where idempotency and rate
// limits belong.
func (h *Handler) Routes(r chi.Router, submitMiddlewares ...func(http.Handler) http.Handler) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CancelSession)
		r.Post("/keystrokes", h.Keystrokes)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{productID}", h.UpdateItem)
		r.Delete("/items/{productID}", h.RemoveItem)
		r.Post("/promotion", h.ApplyPromotion)
		r.Delete("/promotion", h.RemovePromotion)
		r.Delete("/notice", h.AcknowledgeNotice)
		r.Post("/member", h.SelectMember)
		r.Delete("/member", h.ClearMember)
		r.Post("/points", h.RedeemPoints)
		r.Post("/payments", h.AddPayment)
		r.Delete("/payments", h.ClearPayments)
		r.With(submitMiddlewares...).Post("/submit", h.Submit)
	})
}

type createSessionRequest struct {
	CashierID string `json:"cashierId" validate:"omitempty,uuid4"`
}

// CreateSession opens a checkout session and its scan channel.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
			return
		}
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	cashierID := uuid.Nil
	if req.CashierID != "" {
		cashierID, _ = uuid.Parse(req.CashierID)
	}

	sess := h.NewSession(cashierID)
	h.Registry.Put(sess)

	scanner := scan.NewClassifier(h.ScanDebounce, h.ScanMinLength)
	h.mu.Lock()
	if h.scanners == nil {
		h.scanners = make(map[uuid.UUID]*scan.Classifier)
	}
	h.scanners[sess.ID] = scanner
	h.mu.Unlock()
	go h.consumeScans(sess, scanner)

	common.JSONData(w, http.StatusCreated, h.state(sess))
}

// GetSession returns the derived session state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	common.JSONData(w, http.StatusOK, h.state(sess))
}

// CancelSession discards the session and closes its scan channel.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Reset()
	_, _ = h.Registry.Remove(sess.ID)
	h.closeScanner(sess.ID)
	common.JSONData(w, http.StatusOK, map[string]any{"canceled": true})
}

type keystrokesRequest struct {
	Keys string `json:"keys" validate:"required"`
}

// Keystrokes feeds raw keyboard input into the session's scan classifier.
func (h *Handler) Keystrokes(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req keystrokesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	h.mu.Lock()
	scanner := h.scanners[sess.ID]
	h.mu.Unlock()
	if scanner == nil {
		common.JSONError(w, http.StatusConflict, common.CodeConflict, "scan channel closed", nil)
		return
	}
	for _, key := range req.Keys {
		scanner.Keystroke(key)
	}
	common.JSONData(w, http.StatusAccepted, map[string]any{"accepted": len(req.Keys)})
}

type addItemRequest struct {
	Code      string `json:"code" validate:"required"`
	Qty       int    `json:"qty" validate:"omitempty,min=1"`
	MassGrams int64  `json:"massGrams" validate:"omitempty,min=0"`
}

// AddItem resolves a product code and adds it to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	product, err := h.Products.FindByIdentifier(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	qty := req.Qty
	if qty == 0 {
		qty = 1
	}
	if err := sess.AddProduct(product, qty, req.MassGrams); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.state(sess))
}

type updateItemRequest struct {
	DeltaQty  *int   `json:"deltaQty"`
	MassGrams *int64 `json:"massGrams" validate:"omitempty,min=1"`
}

// UpdateItem adjusts a unit-priced line's count or records a scale reading.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return
	}
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	switch {
	case req.MassGrams != nil:
		err = sess.SetMass(productID, *req.MassGrams)
	case req.DeltaQty != nil:
		err = sess.AdjustQty(productID, *req.DeltaQty)
	default:
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "deltaQty or massGrams is required", nil)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.state(sess))
}

// RemoveItem deletes a cart line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return
	}
	if err := sess.RemoveProduct(productID); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, h.state(sess))
}

type promotionRequest struct {
	Code string `json:"code" validate:"required"`
}

// ApplyPromotion resolves a promotion code and applies it to the session.
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req promotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	app, err := sess.ApplyPromotion(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := map[string]any{"data": h.state(sess)}
	if app.Shortfall > 0 {
		payload["shortfall"] = app.Shortfall
	}
	common.JSON(w, http.StatusOK, payload)
}

// RemovePromotion clears the active promotion.
func (h *Handler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.RemovePromotion()
	common.JSONData(w, http.StatusOK, h.state(sess))
}

// AcknowledgeNotice consumes the pending operator notice. Plain session reads
// leave the notice in place so every polling surface sees it.
func (h *Handler) AcknowledgeNotice(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.TakeNotice()
	common.JSONData(w, http.StatusOK, h.state(sess))
}

type memberRequest struct {
	Code string `json:"code" validate:"required"`
}

// SelectMember attaches a loyalty account by id or member code.
func (h *Handler) SelectMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	acct, err := h.Members.FindAccount(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sess.SelectMember(acct)
	common.JSONData(w, http.StatusOK, h.state(sess))
}

// ClearMember detaches the loyalty account.
func (h *Handler) ClearMember(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ClearMember()
	common.JSONData(w, http.StatusOK, h.state(sess))
}

type pointsRequest struct {
	Points int64 `json:"points" validate:"min=0"`
}

// RedeemPoints records a requested point redemption. The response reflects
// the clamped figure together with the adjustment reason.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	redemption, err := sess.RedeemPoints(req.Points)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       h.state(sess),
		"redemption": redemption,
	})
}

type paymentRequest struct {
	Instrument string `json:"instrument" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,min=1"`
	Reference  string `json:"reference"`
}

// AddPayment tenders a payment line.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
		return
	}
	line, err := sess.AddPayment(payment.Instrument(req.Instrument), req.Amount, req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":    h.state(sess),
		"payment": line,
	})
}

// ClearPayments drops every tendered payment line.
func (h *Handler) ClearPayments(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.ClearPayments()
	common.JSONData(w, http.StatusOK, h.state(sess))
}

// Submit finalises the checkout.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	record, err := sess.Submit(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, record)
}

func (h *Handler) consumeScans(sess *session.Session, scanner *scan.Classifier) {
	for code := range scanner.Decoded() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		product, err := h.Products.FindByIdentifier(ctx, code)
		cancel()
		if err != nil {
			h.Logger.Warn().Err(err).Str("code", code).Msg("scanned product lookup")
			continue
		}
		if err := sess.AddProduct(product, 1, 0); err != nil {
			h.Logger.Warn().Err(err).Str("code", code).Msg("add scanned product")
		}
	}
}

func (h *Handler) closeScanner(id uuid.UUID) {
	h.mu.Lock()
	scanner := h.scanners[id]
	delete(h.scanners, id)
	h.mu.Unlock()
	if scanner != nil {
		scanner.Close()
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid session id", nil)
		return nil, false
	}
	sess, err := h.Registry.Get(id)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "session not found", nil)
		return nil, false
	}
	return sess, true
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

type lineState struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Mode      string `json:"mode"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty,omitempty"`
	MassGrams int64  `json:"massGrams,omitempty"`
	Subtotal  int64  `json:"subtotal"`
	Weighed   bool   `json:"weighed"`
}

type promotionState struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

type memberState struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type sessionState struct {
	ID        string          `json:"id"`
	Lines     []lineState     `json:"lines"`
	Promotion *promotionState `json:"promotion,omitempty"`
	Member    *memberState    `json:"member,omitempty"`
	Payments  []payment.Line  `json:"payments"`
	Totals    session.Totals  `json:"totals"`
	Notice    string          `json:"notice,omitempty"`
}

func (h *Handler) state(sess *session.Session) sessionState {
	snap := sess.Snapshot()
	state := sessionState{
		ID:       sess.ID.String(),
		Lines:    []lineState{},
		Payments: snap.Payments,
		Totals:   snap.Totals,
		Notice:   snap.Notice,
	}
	for _, l := range snap.Lines {
		ls := lineState{
			ProductID: l.ProductID.String(),
			Name:      l.Name,
			Mode:      string(l.Mode),
			UnitPrice: l.UnitPrice,
			Qty:       l.Qty,
			MassGrams: l.MassGrams,
			Subtotal:  l.Subtotal(),
			Weighed:   l.Weighed(),
		}
		state.Lines = append(state.Lines, ls)
	}
	if app := snap.Promotion; app != nil {
		state.Promotion = &promotionState{Code: app.Rule.Code, Discount: app.Discount}
	}
	if acct := snap.Member; acct != nil {
		state.Member = &memberState{
			ID:      acct.ID.String(),
			Code:    acct.Code,
			Name:    acct.Name,
			Balance: acct.Balance,
		}
	}
	return state
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, loyalty.ErrAccountNotFound),
		errors.Is(err, promo.ErrCodeNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, promo.ErrApplyInFlight):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
	case errors.Is(err, promo.ErrAlreadyApplied):
		common.JSONError(w, http.StatusConflict, common.CodeConflict, err.Error(), nil)
	case errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, cart.ErrInsufficientStock),
		errors.Is(err, pricing.ErrQuantityInvalid),
		errors.Is(err, pricing.ErrMassInvalid),
		errors.Is(err, cart.ErrNotUnitPriced),
		errors.Is(err, cart.ErrNotWeighted),
		errors.Is(err, promo.ErrCartEmpty),
		errors.Is(err, promo.ErrScopeNotMet),
		errors.Is(err, payment.ErrAmountInvalid),
		errors.Is(err, payment.ErrInstrumentInvalid),
		errors.Is(err, payment.ErrReferenceRequired),
		errors.Is(err, payment.ErrSingleInstrument),
		errors.Is(err, session.ErrCartEmpty),
		errors.Is(err, session.ErrWeightRequired),
		errors.Is(err, session.ErrNoPayment),
		errors.Is(err, session.ErrUnderpaid):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeUnprocessable, err.Error(), nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			code := appErr.Code
			if code == "" {
				code = common.CodeInternal
			}
			common.JSONError(w, status, code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal error", nil)
	}
}
