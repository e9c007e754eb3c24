package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
)

// ErrLoadInFlight is returned when a staged load is started while a
// previous one has not finished.
var ErrLoadInFlight = errors.New("load already in flight")

// Stage groups the sections fetched by one request, with its own timeout.
type Stage struct {
	Name     string
	Sections []string
	Timeout  time.Duration
	// Critical stages abort the remaining stages on failure.
	Critical bool
}

// marketFetcher is the slice of Client the loader depends on.
type marketFetcher interface {
	FetchMarketData(ctx context.Context, sections []string, refresh bool) (*models.MarketSummary, error)
}

// StagedLoader runs the tiered market-data load: a lightweight critical
// stage first, then the two bulk stages sequentially. Results merge into
// the shared snapshot and the whole snapshot re-renders after each stage.
type StagedLoader struct {
	client   marketFetcher
	snapshot *Snapshot
	view     View
	stages   []Stage
	log      *logrus.Entry
	inFlight atomic.Bool
}

// DefaultStages builds the standard three-stage plan from the configured
// timeouts.
func DefaultStages(stage1Timeout, stage2Timeout time.Duration) []Stage {
	return []Stage{
		{
			Name:     "indices",
			Sections: []string{models.SectionUSIndices},
			Timeout:  stage1Timeout,
			Critical: true,
		},
		{
			Name:     "stocks",
			Sections: []string{models.SectionUSStocks, models.SectionTWMarkets},
			Timeout:  stage2Timeout,
		},
		{
			Name:     "bulk",
			Sections: []string{models.SectionInternational, models.SectionMetalsFutures, models.SectionCrypto, models.SectionRatios},
			Timeout:  stage2Timeout,
		},
	}
}

// NewStagedLoader wires a loader over the API client, snapshot, and view.
func NewStagedLoader(client marketFetcher, snapshot *Snapshot, view View, stages []Stage) *StagedLoader {
	return &StagedLoader{
		client:   client,
		snapshot: snapshot,
		view:     view,
		stages:   stages,
		log:      logger.Component("loader"),
	}
}

// Load runs the staged sequence once. A failed critical stage writes its
// error into every outstanding stage's sections and stops; a failed
// non-critical stage marks only its own sections and the sequence
// continues. Only one Load runs at a time.
func (l *StagedLoader) Load(ctx context.Context, refresh bool) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		return ErrLoadInFlight
	}
	defer l.inFlight.Store(false)

	for i, stage := range l.stages {
		err := l.runStage(ctx, stage, refresh)
		if err == nil {
			l.view.RenderSnapshot(l.snapshot.State())
			continue
		}

		l.log.WithError(err).WithField("stage", stage.Name).Warn("stage failed")
		if stage.Critical {
			// Mark this stage's sections and everything still pending.
			for _, later := range l.stages[i:] {
				l.snapshot.SetError(err.Error(), later.Sections...)
			}
			l.view.ShowBanner(err.Error())
			l.view.RenderSnapshot(l.snapshot.State())
			return err
		}
		l.snapshot.SetError(err.Error(), stage.Sections...)
		l.view.RenderSnapshot(l.snapshot.State())
	}
	return nil
}

// runStage fetches one stage's sections under its timeout and merges the
// result.
func (l *StagedLoader) runStage(ctx context.Context, stage Stage, refresh bool) error {
	sctx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	summary, err := l.client.FetchMarketData(sctx, stage.Sections, refresh)
	if err != nil {
		return classify(err)
	}
	l.snapshot.Merge(summary)
	return nil
}
