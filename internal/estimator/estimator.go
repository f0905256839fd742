package estimator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rapidride/internal/observability"
)

// DefaultCacheTTL is how long an estimate stays cached.
const DefaultCacheTTL = 300 * time.Second

// Estimator combines the remote service, a cache and local fallbacks.
type Estimator struct {
	service Service
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a new Estimator. cache may be nil.
func New(service Service, cache Cache, ttl time.Duration, logger *slog.Logger) *Estimator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Estimator{service: service, cache: cache, ttl: ttl, logger: logger}
}

// Estimate returns a fare and ETA for req. It never fails: when the
// service cannot answer, the missing half is computed from the
// straight-line distance and the result is a Fallback.
func (e *Estimator) Estimate(ctx context.Context, req Request) Result {
	key := CacheKey(req)

	if cached := e.lookup(ctx, key); cached != nil {
		r := cached.result()
		observability.EstimatesTotal.WithLabelValues(Variant(r)).Inc()
		return r
	}

	r := e.compute(ctx, req)
	observability.EstimatesTotal.WithLabelValues(Variant(r)).Inc()

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, toCached(r), e.ttl); err != nil {
			e.logger.Warn("estimate cache write failed", "key", key, "error", err)
		}
	}
	return r
}

func (e *Estimator) lookup(ctx context.Context, key string) *CachedResult {
	if e.cache == nil {
		return nil
	}
	cached, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.EstimateCacheTotal.WithLabelValues("error").Inc()
		e.logger.Warn("estimate cache read failed", "key", key, "error", err)
		return nil
	case cached == nil:
		observability.EstimateCacheTotal.WithLabelValues("miss").Inc()
		return nil
	default:
		observability.EstimateCacheTotal.WithLabelValues("hit").Inc()
		return cached
	}
}

func (e *Estimator) compute(ctx context.Context, req Request) Result {
	var (
		wg      sync.WaitGroup
		fare    *FareQuote
		eta     *ETAPrediction
		fareErr error
		etaErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		fare, fareErr = e.service.CalculateFare(ctx, req)
	}()
	go func() {
		defer wg.Done()
		eta, etaErr = e.service.PredictETA(ctx, req)
	}()
	wg.Wait()

	var est Estimate
	est.Currency = Currency

	distance := -1.0
	straightLine := func() float64 {
		if distance < 0 {
			distance = HaversineKm(req.Pickup, req.Destination)
		}
		return distance
	}

	if fareErr != nil {
		e.logger.Warn("fare calculation failed, using fallback", "error", fareErr)
		est.DistanceKm = straightLine()
		est.Fare = FareFallback(est.DistanceKm)
	} else {
		est.Fare = fare.Fare
		est.DistanceKm = fare.DistanceKm
		if fare.Currency != "" {
			est.Currency = fare.Currency
		}
	}

	if etaErr != nil {
		e.logger.Warn("eta prediction failed, using fallback", "error", etaErr)
		est.ETASeconds, est.Confidence = ETAFallback(straightLine())
	} else {
		est.ETASeconds = eta.ETASeconds
		est.Confidence = eta.Confidence
	}

	if fareErr != nil || etaErr != nil {
		return Fallback{Value: est, FareFallback: fareErr != nil, ETAFallback: etaErr != nil}
	}
	return Authoritative{Value: est}
}
