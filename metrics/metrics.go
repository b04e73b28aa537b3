// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics counts what the symbolization pipeline does. The counters are
// recorded through the global OpenTelemetry meter and are no-ops unless the
// embedding program installs a MeterProvider.
package metrics // import "github.com/stacksym/stacksym/metrics"

import (
	"context"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stacksym/stacksym/vc"
)

// Outcome classifies a single counted event.
type Outcome string

const (
	OutcomeFound      Outcome = "found"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeFallback   Outcome = "fallback"
	OutcomeError      Outcome = "error"
	OutcomeHit        Outcome = "hit"
	OutcomeMiss       Outcome = "miss"
	OutcomeAdded      Outcome = "added"
	OutcomeEvicted    Outcome = "evicted"
	OutcomeSymbolized Outcome = "symbolized"
	OutcomeUnresolved Outcome = "unresolved"
)

var (
	meter = otel.Meter("github.com/stacksym/stacksym",
		metric.WithInstrumentationVersion(vc.Version()))

	resolverLookups = newCounter("stacksym.resolver.lookups",
		"Debug file lookups by resolver and outcome")
	cacheEvents = newCounter("stacksym.cache.events",
		"Build id cache lookups, insertions and evictions by outcome")
	frames = newCounter("stacksym.frames",
		"Frames passed through the symbolizer session by outcome")
)

func newCounter(name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("{event}"))
	if err != nil {
		log.Errorf("Creating Int64Counter %s: %v", name, err)
		return nil
	}
	return counter
}

func add(ctx context.Context, counter metric.Int64Counter, n uint64,
	attrs ...attribute.KeyValue) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

// ResolverLookup records one Resolve call of the named resolver.
func ResolverLookup(ctx context.Context, resolver string, outcome Outcome) {
	add(ctx, resolverLookups, 1,
		attribute.String("resolver", resolver),
		attribute.String("outcome", string(outcome)))
}

// CacheEvents records the build id cache activity since the previous report.
func CacheEvents(ctx context.Context, hit, miss, added, evicted uint64) {
	for outcome, n := range map[Outcome]uint64{
		OutcomeHit:     hit,
		OutcomeMiss:    miss,
		OutcomeAdded:   added,
		OutcomeEvicted: evicted,
	} {
		add(ctx, cacheEvents, n, attribute.String("outcome", string(outcome)))
	}
}

// Frame records one frame leaving the symbolizer session.
func Frame(ctx context.Context, outcome Outcome) {
	add(ctx, frames, 1, attribute.String("outcome", string(outcome)))
}
