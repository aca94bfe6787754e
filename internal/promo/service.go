package promo

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-engine/internal/obs"
)

// Resolver looks a promotion code up in the external promotion catalog.
// Implementations return ErrCodeNotFound when the code is unknown.
type Resolver interface {
	ResolveByCode(ctx context.Context, code string) (Rule, error)
}

// Service coordinates promotion code resolution for a checkout session.
// Resolution crosses the network, so a single in-flight token rejects
// concurrent applies rather than queueing them; cart mutation is never
// blocked while a resolution is pending. The token lives in the Service
// value, so each session owns its own Service while the Resolver behind
// it is shared.
type Service struct {
	Resolver Resolver
	Timeout  time.Duration
	Logger   zerolog.Logger

	inFlight atomic.Bool
}

const defaultResolveTimeout = 5 * time.Second

// Resolve fetches the rule for a code. A second call while one is pending is
// rejected with ErrApplyInFlight. The network round-trip runs under a timeout;
// expiry is reported as ErrCodeNotFound so the operator simply retries.
func (s *Service) Resolve(ctx context.Context, code string) (Rule, error) {
	if s == nil || s.Resolver == nil {
		return Rule{}, errors.New("promo: resolver not configured")
	}
	if code == "" {
		return Rule{}, ErrCodeNotFound
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		obs.PromoApplyTotal.WithLabelValues("rejected_in_flight").Inc()
		return Rule{}, ErrApplyInFlight
	}
	defer s.inFlight.Store(false)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rule, err := s.Resolver.ResolveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Warn().Str("code", code).Msg("promotion resolve timed out")
			obs.PromoApplyTotal.WithLabelValues("timeout").Inc()
			return Rule{}, ErrCodeNotFound
		}
		if errors.Is(err, ErrCodeNotFound) {
			obs.PromoApplyTotal.WithLabelValues("not_found").Inc()
			return Rule{}, ErrCodeNotFound
		}
		obs.PromoApplyTotal.WithLabelValues("error").Inc()
		return Rule{}, err
	}
	return rule, nil
}
