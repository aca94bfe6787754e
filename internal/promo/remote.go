package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-engine/internal/resilience"
)

// RemoteResolver asks the authoritative promotion service to resolve a code.
// The local Evaluate mirrors what the server computes; a discrepancy between
// the two is a correctness bug, not an expected case.
type RemoteResolver struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// NewRemoteResolver wires an otel-instrumented client behind the circuit breaker.
func NewRemoteResolver(baseURL string, breaker *resilience.Breaker, timeout time.Duration) *RemoteResolver {
	return &RemoteResolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			MaxAttempts: 2,
			BaseBackoff: 200 * time.Millisecond,
			Timeout:     timeout,
			Target:      "promo-catalog",
		},
	}
}

type remoteRule struct {
	ID           string   `json:"id"`
	Code         string   `json:"code"`
	Kind         string   `json:"kind"`
	Value        int64    `json:"value"`
	PercentBps   int32    `json:"percentBps"`
	CategoryID   string   `json:"categoryId"`
	MinUnitPrice int64    `json:"minUnitPrice"`
	ProductIDs   []string `json:"productIds"`
	BuyQty       int      `json:"buyQty"`
	GetQty       int      `json:"getQty"`
	Variant      string   `json:"variant"`
	ProductX     string   `json:"productX"`
	ProductY     string   `json:"productY"`
}

// ResolveByCode implements Resolver over the promotion service HTTP API.
func (r *RemoteResolver) ResolveByCode(ctx context.Context, code string) (Rule, error) {
	if r == nil || r.HTTP == nil || r.BaseURL == "" {
		return Rule{}, errors.New("promo: remote resolver not configured")
	}
	endpoint := r.BaseURL + "/promotions/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Rule{}, err
	}
	resp, err := r.HTTP.Do(ctx, req)
	if err != nil {
		return Rule{}, fmt.Errorf("promo: resolve %q: %w", code, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Rule{}, ErrCodeNotFound
	default:
		return Rule{}, fmt.Errorf("promo: resolve %q: unexpected status %s", code, resp.Status)
	}

	var payload remoteRule
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Rule{}, fmt.Errorf("promo: decode promotion: %w", err)
	}
	return payload.toRule()
}

func (p remoteRule) toRule() (Rule, error) {
	rule := Rule{
		Code:         p.Code,
		Kind:         Kind(p.Kind),
		Value:        p.Value,
		PercentBps:   p.PercentBps,
		MinUnitPrice: p.MinUnitPrice,
		BuyQty:       p.BuyQty,
		GetQty:       p.GetQty,
		Variant:      Variant(p.Variant),
	}
	var err error
	if rule.ID, err = parseUUID(p.ID); err != nil {
		return Rule{}, err
	}
	if p.CategoryID != "" {
		cid, err := parseUUID(p.CategoryID)
		if err != nil {
			return Rule{}, err
		}
		rule.CategoryID = &cid
	}
	for _, raw := range p.ProductIDs {
		pid, err := parseUUID(raw)
		if err != nil {
			return Rule{}, err
		}
		rule.ProductIDs = append(rule.ProductIDs, pid)
	}
	if p.ProductX != "" {
		if rule.ProductX, err = parseUUID(p.ProductX); err != nil {
			return Rule{}, err
		}
	}
	if p.ProductY != "" {
		if rule.ProductY, err = parseUUID(p.ProductY); err != nil {
			return Rule{}, err
		}
	}
	return rule, nil
}

func parseUUID(v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("promo: parse uuid %q: %w", v, err)
	}
	return id, nil
}
