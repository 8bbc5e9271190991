package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/model"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNoRouteAvailable means every candidate strategy for a collection failed
// or returned an empty first page. It usually signals genuinely no data or an
// upstream contract change, so it is surfaced rather than swallowed.
var ErrNoRouteAvailable = goerr.New("no route available for collection")

// Service retrieves logical collections from the upstream by trying an
// ordered list of candidate routes until one succeeds, then paginating that
// same route to exhaustion (strategy lock-in).
type Service struct {
	upstream adapter.Upstream
	pageSize int
}

// Option is a functional option for the fetch Service.
type Option func(*Service)

// WithPageSize overrides the per-page item count requested from upstream.
func WithPageSize(n int) Option {
	return func(x *Service) {
		x.pageSize = n
	}
}

// New creates a fetch Service on top of an Upstream.
func New(upstream adapter.Upstream, opts ...Option) *Service {
	x := &Service{
		upstream: upstream,
		pageSize: 50,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Fetch realizes one collection plan: the first strategy whose first page is
// a success with at least one item is locked in and paginated to completion;
// no other candidate is tried afterwards, even if a later page comes back
// empty. Items are returned in upstream order, no re-sorting here. When every
// candidate fails, ErrNoRouteAvailable is returned with the attempt log
// attached.
func (x *Service) Fetch(ctx context.Context, plan Plan) ([]model.RawRecord, error) {
	logger := logging.From(ctx)

	var attempts []string
	for _, st := range plan.Strategies {
		first, err := x.fetchPage(ctx, st, 0)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s %s: %v", st.Method, st.Path, err))
			logger.Debug("fetch candidate failed", "collection", plan.Collection, "path", st.Path, "error", err)
			continue
		}
		if len(first.items) == 0 {
			attempts = append(attempts, fmt.Sprintf("%s %s: empty first page", st.Method, st.Path))
			continue
		}

		logger.Debug("fetch strategy locked in", "collection", plan.Collection, "path", st.Path)
		return x.paginate(ctx, plan.Collection, st, first), nil
	}

	return nil, goerr.Wrap(ErrNoRouteAvailable, "all strategies exhausted",
		goerr.V("collection", plan.Collection),
		goerr.V("attempts", attempts))
}

// FetchOne realizes a single-entity plan: strategies are tried in order and
// the first decodable success wins.
func (x *Service) FetchOne(ctx context.Context, plan Plan) (model.RawRecord, error) {
	var attempts []string
	for _, st := range plan.Strategies {
		resp, err := x.upstream.Do(ctx, st.Method, st.Path, cloneQuery(st.Query))
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s %s: %v", st.Method, st.Path, err))
			continue
		}
		if !resp.Success() {
			attempts = append(attempts, fmt.Sprintf("%s %s: status %d", st.Method, st.Path, resp.StatusCode))
			continue
		}
		record, ok := decodeEntity(resp.Body)
		if !ok {
			attempts = append(attempts, fmt.Sprintf("%s %s: undecodable body", st.Method, st.Path))
			continue
		}
		return record, nil
	}

	return nil, goerr.Wrap(ErrNoRouteAvailable, "all strategies exhausted",
		goerr.V("collection", plan.Collection),
		goerr.V("attempts", attempts))
}

// paginate walks the locked-in strategy until the upstream signals no more
// pages. A failure on a later page ends pagination with the items gathered so
// far; partial data beats aborting the collection after lock-in.
func (x *Service) paginate(ctx context.Context, collection string, st Strategy, first *page) []model.RawRecord {
	logger := logging.From(ctx)

	all := first.items
	current := first
	for x.morePages(current) {
		next, err := x.fetchPage(ctx, st, len(all))
		if err != nil {
			logger.Warn("pagination stopped early", "collection", collection, "path", st.Path, "fetched", len(all), "error", err)
			break
		}
		if len(next.items) == 0 {
			break
		}
		all = append(all, next.items...)
		current = next
	}
	return all
}

// morePages applies the locked-in strategy's end-of-pages rule: the explicit
// flag when the response carries one, otherwise the short-page rule.
func (x *Service) morePages(p *page) bool {
	if p.hasMore != nil {
		return *p.hasMore
	}
	return len(p.items) >= x.pageSize
}

func (x *Service) fetchPage(ctx context.Context, st Strategy, offset int) (*page, error) {
	query := cloneQuery(st.Query)
	switch st.Pagination {
	case PageRequestedFirst:
		query.Set("requestedFirst", strconv.Itoa(offset))
		query.Set("requestedCount", strconv.Itoa(x.pageSize))
	case PageOffsetLimit:
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(x.pageSize))
	case PageNone:
	}

	resp, err := x.upstream.Do(ctx, st.Method, st.Path, query)
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, goerr.New("non-success status", goerr.V("status", resp.StatusCode), goerr.V("path", st.Path))
	}
	p, ok := decodePage(resp.Body)
	if !ok {
		return nil, goerr.New("undecodable page body", goerr.V("path", st.Path))
	}
	return p, nil
}

func cloneQuery(q url.Values) url.Values {
	out := url.Values{}
	for key, vals := range q {
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	return out
}
