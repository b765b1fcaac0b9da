package analytics

import (
	"context"
	"errors"
	"slices"
	"strings"

	"onchain-analytics/internal/address"
	"onchain-analytics/internal/domain"
)

// Metric names reported in MetricFailure.
const (
	MetricTrades    = "trades"
	MetricPositions = "positions"
	MetricHolders   = "holders"
	MetricBuyers    = "buyers"

	// MetricUnrealizedPrefix is followed by the mint whose price is missing.
	MetricUnrealizedPrefix = "unrealized_pnl:"
)

// Report statuses, used as metric labels.
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusInvalid  = "invalid"
)

// sourceEngine names failures that did not come from an upstream source.
const sourceEngine = "engine"

// Query selects the subjects of a report. At least one must be set.
type Query struct {
	Wallet string
	Mint   string
}

// Validate rejects structurally invalid identifiers.
func (q Query) Validate() error {
	if q.Wallet == "" && q.Mint == "" {
		return &domain.ValidationError{Field: "query", Reason: "wallet or mint required"}
	}
	if q.Wallet != "" {
		if err := address.Validate("wallet", q.Wallet); err != nil {
			return err
		}
	}
	if q.Mint != "" {
		if err := address.Validate("mint", q.Mint); err != nil {
			return err
		}
	}
	return nil
}

// MetricFailure explains why a metric is missing from a report.
type MetricFailure struct {
	Metric string             `json:"metric"`
	Source string             `json:"source"`
	Kind   domain.FailureKind `json:"kind"`
	Reason string             `json:"reason"`
}

// Report holds every metric that could be computed for a query and the
// reason for each one that could not.
// Values may be shared with concurrent callers and must not be modified.
type Report struct {
	Wallet string `json:"wallet,omitempty"`
	Mint   string `json:"mint,omitempty"`

	Trades    *domain.TradeHistory     `json:"trades,omitempty"`
	Positions []domain.PositionSummary `json:"positions,omitempty"`
	Census    *domain.Census           `json:"census,omitempty"`
	Buyers    *domain.BuyerCensus      `json:"buyers,omitempty"`

	Failures      []MetricFailure `json:"failures"`
	GeneratedAtMs int64           `json:"generatedAtMs"`
}

// Status is complete when no metric failed.
func (r *Report) Status() string {
	if len(r.Failures) == 0 {
		return StatusComplete
	}
	return StatusPartial
}

// Failed reports whether metric is listed as failed.
func (r *Report) Failed(metric string) bool {
	return slices.ContainsFunc(r.Failures, func(f MetricFailure) bool { return f.Metric == metric })
}

// failureOf describes err as the failure of metric.
func failureOf(metric string, err error) MetricFailure {
	var sf *domain.SourceFailure
	if errors.As(err, &sf) {
		reason := sf.Error()
		if sf.Err != nil {
			reason = sf.Err.Error()
		}
		return MetricFailure{Metric: metric, Source: sf.Source, Kind: sf.Kind, Reason: reason}
	}

	kind := domain.FailureUpstream
	switch {
	case errors.Is(err, context.Canceled):
		kind = domain.FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureTimeout
	case errors.Is(err, domain.ErrConfiguration):
		kind = domain.FailureConfiguration
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrMalformedEvent), errors.Is(err, domain.ErrOutOfOrder):
		kind = domain.FailureMalformed
	}
	return MetricFailure{Metric: metric, Source: sourceEngine, Kind: kind, Reason: err.Error()}
}

// metricLabel drops the per-mint suffix so metric labels stay bounded.
func metricLabel(metric string) string {
	if strings.HasPrefix(metric, MetricUnrealizedPrefix) {
		return strings.TrimSuffix(MetricUnrealizedPrefix, ":")
	}
	return metric
}

func sortFailures(fs []MetricFailure) {
	slices.SortFunc(fs, func(a, b MetricFailure) int {
		return strings.Compare(a.Metric, b.Metric)
	})
}
