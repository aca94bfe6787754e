package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store resolves promotion codes against the Postgres promotion catalog.
type Store struct {
	Pool *pgxpool.Pool
}

const resolveByCodeSQL = `
SELECT id::text, kind, value, percent_bps,
       COALESCE(category_id::text, ''), min_unit_price,
       COALESCE(array_to_string(product_ids, ','), ''),
       buy_qty, get_qty, COALESCE(variant, ''),
       COALESCE(product_x::text, ''), COALESCE(product_y::text, '')
FROM promotions
WHERE code = $1 AND active
`

// ResolveByCode implements Resolver.
func (s *Store) ResolveByCode(ctx context.Context, code string) (Rule, error) {
	if s == nil || s.Pool == nil {
		return Rule{}, errors.New("promo: store not configured")
	}
	var (
		id, category, productIDs, variant, productX, productY string
		kind                                                  string
		rule                                                  Rule
	)
	row := s.Pool.QueryRow(ctx, resolveByCodeSQL, code)
	err := row.Scan(&id, &kind, &rule.Value, &rule.PercentBps, &category,
		&rule.MinUnitPrice, &productIDs, &rule.BuyQty, &rule.GetQty,
		&variant, &productX, &productY)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrCodeNotFound
		}
		return Rule{}, fmt.Errorf("promo: resolve code: %w", err)
	}

	rule.Code = code
	rule.Kind = Kind(kind)
	rule.Variant = Variant(variant)
	if rule.ID, err = uuid.Parse(id); err != nil {
		return Rule{}, fmt.Errorf("promo: parse promotion id: %w", err)
	}
	if category != "" {
		cid, err := uuid.Parse(category)
		if err != nil {
			return Rule{}, fmt.Errorf("promo: parse category id: %w", err)
		}
		rule.CategoryID = &cid
	}
	if productIDs != "" {
		for _, raw := range strings.Split(productIDs, ",") {
			pid, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return Rule{}, fmt.Errorf("promo: parse allowlist id: %w", err)
			}
			rule.ProductIDs = append(rule.ProductIDs, pid)
		}
	}
	if productX != "" {
		if rule.ProductX, err = uuid.Parse(productX); err != nil {
			return Rule{}, fmt.Errorf("promo: parse product x: %w", err)
		}
	}
	if productY != "" {
		if rule.ProductY, err = uuid.Parse(productY); err != nil {
			return Rule{}, fmt.Errorf("promo: parse product y: %w", err)
		}
	}
	if rule.Kind == KindBuyXGetY && rule.Variant == VariantDifferentProduct && rule.ProductY == uuid.Nil {
		return Rule{}, ErrRuleInvalid
	}
	return rule, nil
}
