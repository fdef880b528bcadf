package history

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's otel instruments.
type Metrics struct {
	// Syncs counts Synchronize calls by outcome.
	Syncs metric.Int64Counter

	// Lookups counts FindOwner/OwnerExists calls by the tier that answered.
	Lookups metric.Int64Counter

	// Collisions counts sequence resolutions that found a direct conflict.
	Collisions metric.Int64Counter
}

// NewMetrics registers the engine instruments with meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Syncs, err = meter.Int64Counter(
		"slughist.history.sync",
		metric.WithDescription("History synchronizations by outcome"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create history.sync: %w", err)
	}

	m.Lookups, err = meter.Int64Counter(
		"slughist.lookup",
		metric.WithDescription("Owner lookups by resolving tier"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create lookup: %w", err)
	}

	m.Collisions, err = meter.Int64Counter(
		"slughist.sequence.collisions",
		metric.WithDescription("Sequence resolutions that hit an existing identifier"),
		metric.WithUnit("{collision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sequence.collisions: %w", err)
	}

	return m, nil
}

func (m *Metrics) sync(ctx context.Context, outcome SyncOutcome) {
	m.Syncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) lookup(ctx context.Context, t tier) {
	m.Lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(t))))
}

func (m *Metrics) collision(ctx context.Context) {
	m.Collisions.Add(ctx, 1)
}
