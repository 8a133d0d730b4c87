// Package fallback recovers a dataset after the primary load failed by
// trying a fixed list of alternative sources in order.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

// Strategy is one recovery source.
type Strategy interface {
	Name() materials.LoadedVia
	Load(ctx context.Context) (*materials.Dataset, error)
}

// StrategyError records why one strategy did not produce a dataset.
type StrategyError struct {
	Strategy materials.LoadedVia
	Err      error
}

func (e StrategyError) Error() string { return fmt.Sprintf("%s: %v", e.Strategy, e.Err) }

// AllStrategiesFailedError is returned when no strategy recovered. Its
// message carries the error that triggered recovery.
type AllStrategiesFailedError struct {
	Cause    error
	Attempts []StrategyError
}

func (e *AllStrategiesFailedError) Error() string {
	msg := "unknown error"
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	return "All loading strategies failed. Original error: " + msg
}

func (e *AllStrategiesFailedError) Unwrap() error { return e.Cause }

// Details lists the per-strategy failures on one line.
func (e *AllStrategiesFailedError) Details() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	return strings.Join(parts, "; ")
}

// Outcome is a recovered dataset and the strategy that produced it.
type Outcome struct {
	Dataset *materials.Dataset
	Via     materials.LoadedVia
}

type Orchestrator struct {
	log        *logger.Logger
	strategies []Strategy
}

func New(log *logger.Logger, strategies ...Strategy) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{log: log.With("component", "Fallback"), strategies: strategies}
}

// Strategies returns the configured order.
func (o *Orchestrator) Strategies() []materials.LoadedVia {
	out := make([]materials.LoadedVia, 0, len(o.strategies))
	for _, s := range o.strategies {
		out = append(out, s.Name())
	}
	return out
}

// Recover tries each strategy in order and returns the first dataset
// produced. Later strategies are not attempted once one succeeds.
func (o *Orchestrator) Recover(ctx context.Context, cause error) (*Outcome, error) {
	ctx, span := otel.Tracer("materialmap/fallback").Start(ctx, "fallback.Recover")
	defer span.End()

	o.log.Warn("primary load failed, trying fallbacks", "error", cause, "strategies", o.Strategies())

	failed := &AllStrategiesFailedError{Cause: cause}
	for _, s := range o.strategies {
		if err := ctx.Err(); err != nil {
			failed.Attempts = append(failed.Attempts, StrategyError{Strategy: s.Name(), Err: err})
			break
		}
		ds, err := o.try(ctx, s)
		if err == nil && ds != nil {
			o.log.Info("recovered dataset", "strategy", s.Name(), "materials", len(ds.Materials))
			span.SetAttributes(attribute.String("fallback.strategy", string(s.Name())))
			return &Outcome{Dataset: ds, Via: s.Name()}, nil
		}
		if err == nil {
			err = errors.New("no dataset")
		}
		o.log.Warn("fallback strategy failed", "strategy", s.Name(), "error", err)
		failed.Attempts = append(failed.Attempts, StrategyError{Strategy: s.Name(), Err: err})
	}

	span.RecordError(failed)
	span.SetStatus(codes.Error, failed.Error())
	return nil, failed
}

func (o *Orchestrator) try(ctx context.Context, s Strategy) (*materials.Dataset, error) {
	ctx, span := otel.Tracer("materialmap/fallback").Start(ctx, "fallback."+string(s.Name()))
	defer span.End()
	ds, err := s.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ds, err
}
