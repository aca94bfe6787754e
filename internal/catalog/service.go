package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/pos-engine/internal/cart"
	"github.com/noah-isme/pos-engine/internal/common"
	"github.com/noah-isme/pos-engine/internal/pricing"
)

// ErrProductNotFound is returned when no product matches the identifier.
var ErrProductNotFound = errors.New("catalog: product not found")

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service resolves scanned or typed identifiers to sellable products. Lookup
// order is barcode first, SKU second; a warm entry is served from Redis.
type Service struct {
	db    rowQuerier
	cache *Cache
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	DB    rowQuerier
	Cache *Cache
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.DB == nil {
		return nil, errors.New("catalog: db is required")
	}
	return &Service{db: cfg.DB, cache: cfg.Cache}, nil
}

const findByIdentifierSQL = `
SELECT id::text,
       sku,
       COALESCE(barcode, ''),
       name,
       pricing_mode,
       unit_price,
       stock,
       COALESCE(category_id::text, '')
FROM products
WHERE barcode = $1 OR sku = $1
LIMIT 1`

// FindByIdentifier resolves a barcode or SKU to a product.
func (s *Service) FindByIdentifier(ctx context.Context, code string) (cart.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return cart.Product{}, badRequest("code", "code is required")
	}

	key := productCacheKey(code)
	if s.cache != nil {
		var cached cart.Product
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}

	var (
		p          cart.Product
		id         string
		mode       string
		categoryID string
	)
	row := s.db.QueryRow(ctx, findByIdentifierSQL, code)
	if err := row.Scan(&id, &p.SKU, &p.Barcode, &p.Name, &mode, &p.UnitPrice, &p.Stock, &categoryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Product{}, ErrProductNotFound
		}
		return cart.Product{}, fmt.Errorf("find product %q: %w", code, err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return cart.Product{}, fmt.Errorf("product id %q: %w", id, err)
	}
	p.ID = parsed
	p.Mode = pricing.Mode(mode)
	if !p.Mode.Valid() {
		return cart.Product{}, fmt.Errorf("product %q: %w", code, pricing.ErrModeInvalid)
	}
	if categoryID != "" {
		cid, err := uuid.Parse(categoryID)
		if err != nil {
			return cart.Product{}, fmt.Errorf("category id %q: %w", categoryID, err)
		}
		p.CategoryID = cid
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, p)
	}
	return p, nil
}

func productCacheKey(code string) string {
	return "catalog:product:" + code
}

func badRequest(field, message string) *common.AppError {
	return &common.AppError{
		Code:       common.CodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]any{
			"field": field,
		},
	}
}
