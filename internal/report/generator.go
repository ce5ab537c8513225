package report

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/logging"
	"xui_reseller_bot/internal/panel"
)

// FallbackMessage is what recipients see whenever a report cannot be
// produced. The real failure goes to the failure log.
const FallbackMessage = "⚠️ The report is temporarily unavailable. Please try again in a few minutes."

// SnapshotFetcher fetches a fresh point-in-time panel snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (panel.Snapshot, error)
}

// FailureRecorder appends a failure detail entry to the local failure log.
type FailureRecorder interface {
	Record(op string, err error)
}

// Generator produces report text for a set of inbound ids. Its Text methods
// never fail the caller: any fetch or aggregation error is logged and turned
// into FallbackMessage.
type Generator struct {
	fetcher  SnapshotFetcher
	failures FailureRecorder
	logger   *logrus.Entry
	now      func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(fetcher SnapshotFetcher, failures FailureRecorder, logger *logrus.Entry) *Generator {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Generator{
		fetcher:  fetcher,
		failures: failures,
		logger:   logger,
		now:      time.Now,
	}
}

// BuildFor fetches a fresh snapshot and aggregates it over the given inbound
// ids.
func (g *Generator) BuildFor(ctx context.Context, inboundIDs []int64) (Report, error) {
	if g == nil || g.fetcher == nil {
		return Report{}, errors.New("report generator is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	snap, err := g.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	return Build(snap, Filter(inboundIDs), g.now()), nil
}

// BuildAll aggregates over every inbound present on the panel.
func (g *Generator) BuildAll(ctx context.Context) (Report, error) {
	if g == nil || g.fetcher == nil {
		return Report{}, errors.New("report generator is not initialized")
	}
	if ctx == nil {
		return Report{}, errors.New("context is required")
	}

	snap, err := g.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	return Build(snap, Filter(snap.InboundIDs()), g.now()), nil
}

// TextFor returns the formatted report for the given inbound ids, or
// FallbackMessage on failure.
func (g *Generator) TextFor(ctx context.Context, inboundIDs []int64) string {
	rep, err := g.BuildFor(ctx, inboundIDs)
	if err != nil {
		g.recordFailure("build report", err)
		return FallbackMessage
	}

	return rep.Format(g.now())
}

// TextAll returns the formatted full-panel report, or FallbackMessage on
// failure.
func (g *Generator) TextAll(ctx context.Context) string {
	rep, err := g.BuildAll(ctx)
	if err != nil {
		g.recordFailure("build full report", err)
		return FallbackMessage
	}

	return rep.Format(g.now())
}

func (g *Generator) recordFailure(op string, err error) {
	if g.failures != nil {
		g.failures.Record(op, err)
	}

	g.logger.WithFields(logging.Fields{
		"event": "report_failed",
		"op":    op,
	}).WithError(err).Error("report generation failed")
}
