package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"

	selerrors "github.com/edgeandnode/candidate-selection/internal/errors"
	"github.com/edgeandnode/candidate-selection/internal/logging"
	"github.com/edgeandnode/candidate-selection/internal/observability"
	"github.com/edgeandnode/candidate-selection/internal/selection/ledger"
)

// ReportOutcome feeds the result of a request sent to candidate id back into
// its statistics. Unknown ids get a record lazily unless strict_feedback is
// set, in which case UnknownCandidate is returned and nothing changes.
// Reports for one candidate are applied in the order they arrive.
func (e *Engine) ReportOutcome(ctx context.Context, id string, success bool, latency time.Duration) error {
	ctx, span := observability.StartSpan(ctx, e.tracer, observability.SpanReportOutcome,
		observability.OutcomeAttrs(id, success, durationMillis(latency))...)
	defer span.End()

	err := e.reportOutcome(ctx, id, success, latency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ReportSelectionOutcome is ReportOutcome for a candidate chosen by a known
// selection round. The report is checked against the round in the ledger;
// in strict mode a report for an unknown round, or for a candidate the round
// did not choose, is rejected with UnknownCandidate.
func (e *Engine) ReportSelectionOutcome(ctx context.Context, selectionID, id string, success bool, latency time.Duration) error {
	ctx = observability.ContextWithSelectionID(ctx, selectionID)
	ctx, span := observability.StartSpan(ctx, e.tracer, observability.SpanReportOutcome,
		observability.OutcomeAttrs(id, success, durationMillis(latency))...)
	defer span.End()

	if _, err := e.ledger.Resolve(selectionID, id); err != nil {
		logger := logging.FromContext(ctx, e.logger)
		if e.cfg.StrictFeedback {
			logger.Warn("rejecting outcome for %s: %v", id, err)
			rejected := &selerrors.SelectionError{Kind: selerrors.KindUnknownCandidate, Candidate: id, Err: err}
			span.RecordError(rejected)
			span.SetStatus(codes.Error, rejected.Error())
			return rejected
		}
		if errors.Is(err, ledger.ErrNotSelected) {
			logger.Warn("outcome for %s does not match its selection: %v", id, err)
		} else {
			logger.Debug("outcome for %s without ledger entry: %v", id, err)
		}
	}

	err := e.reportOutcome(ctx, id, success, latency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Engine) reportOutcome(ctx context.Context, id string, success bool, latency time.Duration) error {
	logger := logging.FromContext(ctx, e.logger)
	if id == "" {
		return selerrors.NewUnknownCandidate(id)
	}
	if latency < 0 {
		return selerrors.NewInvalidValue(id, "latency", "negative latency %v", latency)
	}

	if e.cfg.StrictFeedback {
		rec, ok := e.registry.Lookup(id)
		if !ok {
			logger.Warn("rejecting outcome for unknown candidate %s", id)
			return selerrors.NewUnknownCandidate(id)
		}
		rec.Observe(e.now(), success, latency)
	} else if created := e.registry.Observe(id, success, latency); created {
		e.poolMetrics.SetTracked(e.registry.Len())
	}

	if e.breakers != nil {
		e.breakers.Get(id).Record(success)
	}
	e.metrics.RecordOutcome(ctx, success, latency)
	return nil
}
