package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-engine/internal/api"
	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/catalog"
	"github.com/noah-isme/pos-engine/internal/loyalty"
	"github.com/noah-isme/pos-engine/internal/pricing"
	"github.com/noah-isme/pos-engine/internal/promo"
	"github.com/noah-isme/pos-engine/internal/session"
	"github.com/noah-isme/pos-engine/internal/txn"
)

type stubProducts struct {
	byCode map[string]cart.Product
}

func (s *stubProducts) FindByIdentifier(_ context.Context, code string) (cart.Product, error) {
	p, ok := s.byCode[code]
	if !ok {
		return cart.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

type stubMembers struct {
	byCode map[string]loyalty.Account
}

func (s *stubMembers) FindAccount(_ context.Context, code string) (loyalty.Account, error) {
	acct, ok := s.byCode[code]
	if !ok {
		return loyalty.Account{}, loyalty.ErrAccountNotFound
	}
	return acct, nil
}

type stubRules struct {
	rules map[string]promo.Rule
	stall map[string]chan struct{} // codes that block until their channel closes
}

func (s *stubRules) ResolveByCode(ctx context.Context, code string) (promo.Rule, error) {
	if ch, ok := s.stall[code]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return promo.Rule{}, ctx.Err()
		}
	}
	rule, ok := s.rules[code]
	if !ok {
		return promo.Rule{}, promo.ErrCodeNotFound
	}
	return rule, nil
}

type stubSubmitter struct {
	rec txn.Record
}

func (s *stubSubmitter) Submit(_ context.Context, _ txn.Submission) (txn.Record, error) {
	return s.rec, nil
}

type fixture struct {
	router   chi.Router
	products *stubProducts
	rules    *stubRules
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	products := &stubProducts{byCode: map[string]cart.Product{}}
	members := &stubMembers{byCode: map[string]loyalty.Account{}}
	rules := &stubRules{rules: map[string]promo.Rule{}}
	subm := &stubSubmitter{rec: txn.Record{ID: uuid.New(), Number: "POS-20260831-TESTTEST"}}

	policy := loyalty.Policy{PointValue: 100, MinExchange: 50, SpendPerPoint: 10_000}

	h := &api.Handler{
		Registry: session.NewRegistry(),
		Products: products,
		Members:  members,
		NewSession: func(cashierID uuid.UUID) *session.Session {
			return session.New(session.Config{
				CashierID:        cashierID,
				Promo:            &promo.Service{Resolver: rules, Logger: zerolog.Nop()},
				Policy:           policy,
				Submitter:        subm,
				SingleInstrument: true,
				Logger:           zerolog.Nop(),
			})
		},
		ScanDebounce:  20 * time.Millisecond,
		ScanMinLength: 3,
		Validate:      validator.New(),
		Logger:        zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) { h.Routes(r) })
	return &fixture{router: r, products: products, rules: rules}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type stateEnvelope struct {
	Data struct {
		ID    string `json:"id"`
		Lines []struct {
			ProductID string `json:"productId"`
			Qty       int    `json:"qty"`
			Subtotal  int64  `json:"subtotal"`
		} `json:"lines"`
		Promotion *struct {
			Code     string `json:"code"`
			Discount int64  `json:"discount"`
		} `json:"promotion"`
		Totals struct {
			Subtotal      int64 `json:"subtotal"`
			PromoDiscount int64 `json:"promoDiscount"`
			AmountDue     int64 `json:"amountDue"`
			Change        int64 `json:"change"`
		} `json:"totals"`
		Notice string `json:"notice"`
	} `json:"data"`
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateEnvelope {
	t.Helper()
	var env stateEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeState(t, rec).Data.ID
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	f := newFixture(t)
	f.products.byCode["899100210"] = cart.Product{
		ID: uuid.New(), SKU: "SKU-1", Name: "soap", Mode: pricing.ModeUnit, UnitPrice: 7_500, Stock: 10,
	}
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "899100210", "qty": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "899100210"})
	require.Equal(t, http.StatusOK, rec.Code)

	state := decodeState(t, rec)
	require.Len(t, state.Data.Lines, 1)
	require.Equal(t, 3, state.Data.Lines[0].Qty)
	require.Equal(t, int64(22_500), state.Data.Totals.Subtotal)
}

func TestAddItemUnknownCode(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "nope"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeystrokesDecodeIntoCart(t *testing.T) {
	f := newFixture(t)
	pid := uuid.New()
	f.products.byCode["12345"] = cart.Product{
		ID: pid, Name: "milk", Mode: pricing.ModeUnit, UnitPrice: 18_000, Stock: 5,
	}
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/keystrokes", map[string]any{"keys": "12345\n"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		state := decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil))
		return len(state.Data.Lines) == 1 && state.Data.Lines[0].ProductID == pid.String()
	}, time.Second, 10*time.Millisecond)
}

func TestShortKeystrokeBurstIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.products.byCode["12"] = cart.Product{ID: uuid.New(), Mode: pricing.ModeUnit, UnitPrice: 100, Stock: 5}
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/keystrokes", map[string]any{"keys": "12\n"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	time.Sleep(100 * time.Millisecond)
	state := decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Empty(t, state.Data.Lines)
}

func TestPromotionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	pid := uuid.New()
	f.products.byCode["chips"] = cart.Product{
		ID: pid, Name: "chips", Mode: pricing.ModeUnit, UnitPrice: 10_000, Stock: 20,
	}
	f.rules.rules["TEN"] = promo.Rule{
		ID: uuid.New(), Code: "TEN", Kind: promo.KindPercent, PercentBps: 1_000, ProductIDs: []uuid.UUID{pid},
	}
	id := f.createSession(t)
	f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "chips", "qty": 2})

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/promotion", map[string]any{"code": "TEN"})
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeState(t, rec)
	require.NotNil(t, state.Data.Promotion)
	require.Equal(t, int64(2_000), state.Data.Promotion.Discount)

	// Removing the only tagged product revokes the promotion.
	rec = f.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/items/"+pid.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state = decodeState(t, rec)
	require.Nil(t, state.Data.Promotion)
	require.Contains(t, state.Data.Notice, "TEN")

	// Reads keep the notice around for every polling surface; only an
	// explicit acknowledge consumes it.
	state = decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Contains(t, state.Data.Notice, "TEN")

	rec = f.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/notice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state = decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Empty(t, state.Data.Notice)
}

func TestPromotionApplyIsIndependentAcrossSessions(t *testing.T) {
	f := newFixture(t)
	pidA, pidB := uuid.New(), uuid.New()
	f.products.byCode["a"] = cart.Product{ID: pidA, Name: "a", Mode: pricing.ModeUnit, UnitPrice: 10_000, Stock: 5}
	f.products.byCode["b"] = cart.Product{ID: pidB, Name: "b", Mode: pricing.ModeUnit, UnitPrice: 10_000, Stock: 5}
	f.rules.rules["SLOW"] = promo.Rule{ID: uuid.New(), Code: "SLOW", Kind: promo.KindAmount, Value: 1_000, ProductIDs: []uuid.UUID{pidA}}
	f.rules.rules["FAST"] = promo.Rule{ID: uuid.New(), Code: "FAST", Kind: promo.KindAmount, Value: 1_000, ProductIDs: []uuid.UUID{pidB}}
	release := make(chan struct{})
	f.rules.stall = map[string]chan struct{}{"SLOW": release}

	laneA := f.createSession(t)
	laneB := f.createSession(t)
	f.do(t, http.MethodPost, "/api/v1/sessions/"+laneA+"/items", map[string]any{"code": "a"})
	f.do(t, http.MethodPost, "/api/v1/sessions/"+laneB+"/items", map[string]any{"code": "b"})

	laneADone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		laneADone <- f.do(t, http.MethodPost, "/api/v1/sessions/"+laneA+"/promotion", map[string]any{"code": "SLOW"})
	}()
	time.Sleep(20 * time.Millisecond) // lane A is stalled mid-resolution

	// An unrelated lane must not be turned away while lane A resolves.
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+laneB+"/promotion", map[string]any{"code": "FAST"})
	require.Equal(t, http.StatusOK, rec.Code)

	close(release)
	require.Equal(t, http.StatusOK, (<-laneADone).Code)
}

func TestApplyUnknownPromotion(t *testing.T) {
	f := newFixture(t)
	f.products.byCode["x"] = cart.Product{ID: uuid.New(), Mode: pricing.ModeUnit, UnitPrice: 100, Stock: 1}
	id := f.createSession(t)
	f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "x"})

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/promotion", map[string]any{"code": "NOPE"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitFlow(t *testing.T) {
	f := newFixture(t)
	f.products.byCode["soap"] = cart.Product{
		ID: uuid.New(), Name: "soap", Mode: pricing.ModeUnit, UnitPrice: 20_000, Stock: 10,
	}
	id := f.createSession(t)
	f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"code": "soap"})

	// Submitting before paying trips the payment gate.
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/payments", map[string]any{"instrument": "CASH", "amount": 50_000})
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeState(t, rec)
	require.Equal(t, int64(30_000), state.Data.Totals.Change)

	rec = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submit", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	state = decodeState(t, f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Empty(t, state.Data.Lines)
	require.Equal(t, int64(0), state.Data.Totals.AmountDue)
}

func TestCancelSessionRemovesIt(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	rec := f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationRejectsMissingCode(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/items", map[string]any{"qty": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
