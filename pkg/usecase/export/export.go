package export

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/caselog/pkg/model"
	"github.com/m-mizutani/caselog/pkg/service/directory"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
)

// ErrAllCollectionsFailed means no top-level collection could be fetched at
// all; the run has nothing to export.
var ErrAllCollectionsFailed = goerr.New("all collections failed")

// UseCase runs one batch export: fetch both collections, normalize, enrich,
// dedup and sort. One invocation, one pass, no state kept between runs.
type UseCase struct {
	fetcher  *fetch.Service
	resolver *directory.Resolver
	workers  int
	clock    func() time.Time
}

// Option is a functional option for the export UseCase.
type Option func(*UseCase)

// WithWorkers sets the enrichment worker pool size.
func WithWorkers(n int) Option {
	return func(x *UseCase) {
		if n > 0 {
			x.workers = n
		}
	}
}

// WithClock replaces the wall clock, for deterministic tests of synthesized
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(x *UseCase) {
		x.clock = clock
	}
}

// New creates an export UseCase.
func New(fetcher *fetch.Service, resolver *directory.Resolver, opts ...Option) *UseCase {
	x := &UseCase{
		fetcher:  fetcher,
		resolver: resolver,
		workers:  4,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// collection binds a plan to the kind its records normalize into.
type collection struct {
	plan fetch.Plan
	kind model.Kind
}

// Run exports the activity timeline of one project. A collection whose whole
// strategy space is exhausted contributes zero items and a failed outcome on
// the report without crashing the other collection; the run errors only when
// every collection failed. Everything below collection level degrades
// locally.
func (x *UseCase) Run(ctx context.Context, projectID string) (*model.Timeline, error) {
	logger := logging.From(ctx)

	collections := []collection{
		{plan: fetch.NotesPlan(projectID), kind: model.KindNote},
		{plan: fetch.EmailsPlan(projectID), kind: model.KindEmail},
	}

	// The two collection fetches are independent: no shared mutable state,
	// each writes only its own slot.
	outcomes := make([]model.CollectionOutcome, len(collections))
	pendings := make([][]*pending, len(collections))

	g := &errgroup.Group{}
	for i, col := range collections {
		i, col := i, col
		g.Go(func() error {
			pendings[i], outcomes[i] = x.fetchCollection(ctx, col)
			return nil
		})
	}
	_ = g.Wait() // collection failures land in outcomes, not errors

	report := model.Report{Collections: outcomes}
	if report.Failed() {
		return nil, goerr.Wrap(ErrAllCollectionsFailed, "nothing to export",
			goerr.V("projectID", projectID),
			goerr.V("collections", outcomes))
	}

	var all []*pending
	for _, batch := range pendings {
		all = append(all, batch...)
	}

	report.DegradedItems = x.enrich(ctx, all)

	items := make([]*model.Item, 0, len(all))
	for _, p := range all {
		items = append(items, p.item)
	}

	timeline := &model.Timeline{
		RunID:       model.NewRunID(),
		GeneratedAt: x.clock(),
		Items:       MergeAndSort(items),
		Report:      report,
	}

	logger.Info("export completed",
		"projectID", projectID,
		"items", len(timeline.Items),
		"degraded", report.DegradedItems)

	return timeline, nil
}

// fetchCollection retrieves and normalizes one collection. Fetch failure is
// absorbed into the outcome; the caller decides whether the run survives.
func (x *UseCase) fetchCollection(ctx context.Context, col collection) ([]*pending, model.CollectionOutcome) {
	logger := logging.From(ctx)
	outcome := model.CollectionOutcome{Collection: col.plan.Collection}

	raws, err := x.fetcher.Fetch(ctx, col.plan)
	if err != nil {
		logger.Warn("collection fetch failed", "collection", col.plan.Collection, "error", err)
		outcome.Status = model.CollectionFailed
		outcome.Error = err.Error()
		return nil, outcome
	}

	now := x.clock()
	batch := make([]*pending, 0, len(raws))
	for _, raw := range raws {
		item := normalizeItem(raw, col.kind, now)
		batch = append(batch, &pending{
			raw:      raw,
			item:     item,
			sourceID: sourceID(item),
		})
	}

	outcome.Status = model.CollectionOK
	outcome.Items = len(batch)
	logger.Info("collection fetched", "collection", col.plan.Collection, "items", len(batch))
	return batch, outcome
}

// sourceID recovers the unprefixed upstream id from a canonical item, or ""
// when the id was synthesized and cannot scope a sub-collection fetch.
func sourceID(item *model.Item) string {
	id := strings.TrimPrefix(item.ID, string(item.Kind)+"-")
	if strings.HasPrefix(id, "gen-") {
		return ""
	}
	return id
}
