package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerProvider fails fast with ErrUnavailable while the backend is tripped.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerProvider(inner Provider, cfg BreakerConfig, log *logger.Logger) *BreakerProvider {
	blog := log.With("component", "EmbeddingBreaker", "breaker", cfg.Name)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			blog.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerProvider{inner: inner, cb: cb}
}

func (b *BreakerProvider) Name() string        { return b.inner.Name() }
func (b *BreakerProvider) Dims() int           { return b.inner.Dims() }
func (b *BreakerProvider) Deterministic() bool { return b.inner.Deterministic() }

func (b *BreakerProvider) State() gobreaker.State { return b.cb.State() }

func (b *BreakerProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return res.([][]float32), nil
}
