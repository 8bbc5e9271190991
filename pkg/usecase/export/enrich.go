package export

import (
	"context"
	"sync/atomic"

	"github.com/m-mizutani/caselog/pkg/model"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// pending pairs a canonical item with its raw record. The raw form is still
// needed during enrichment: inline comments and author fields live there.
type pending struct {
	raw      model.RawRecord
	item     *model.Item
	sourceID string // unprefixed upstream id, empty when synthesized
}

// inlineCommentKeys are the shapes under which a record may already embed its
// comments. An embedded empty array still counts: it means zero comments at
// zero network cost.
var inlineCommentKeys = []string{"comments", "replies", "children"}

// enrich attaches comments and resolves authors for all items using a fixed
// worker pool. Failures are isolated per item: a failed comment fetch leaves
// that item with an empty comment list and never blocks or poisons siblings.
// Returns how many items were degraded that way.
func (x *UseCase) enrich(ctx context.Context, pendings []*pending) int {
	var degraded atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(x.workers)
	for _, p := range pendings {
		p := p
		g.Go(func() error {
			if !x.enrichOne(ctx, p) {
				degraded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // workers absorb their own failures

	return int(degraded.Load())
}

// enrichOne handles one item: author first, then comments. The return value
// is false when the item lost its comments to a fetch failure.
func (x *UseCase) enrichOne(ctx context.Context, p *pending) bool {
	p.item.Author = x.resolver.Resolve(ctx, p.raw)

	for _, key := range inlineCommentKeys {
		if raws, ok := p.raw.DigRecords(key); ok {
			p.item.Comments = x.normalizeComments(ctx, raws)
			return true
		}
	}

	// Only notes carry a remote comment sub-collection; a synthesized id
	// cannot scope a fetch.
	if p.item.Kind != model.KindNote || p.sourceID == "" {
		return true
	}

	raws, err := x.fetcher.Fetch(ctx, fetch.CommentsPlan(p.sourceID))
	if err != nil {
		logging.From(ctx).Warn("comment fetch failed, exporting item without comments",
			"itemID", p.item.ID, "error", err)
		p.item.Comments = []*model.Comment{}
		return false
	}

	p.item.Comments = x.normalizeComments(ctx, raws)
	return true
}

func (x *UseCase) normalizeComments(ctx context.Context, raws []model.RawRecord) []*model.Comment {
	comments := make([]*model.Comment, 0, len(raws))
	for _, raw := range raws {
		comment := normalizeComment(raw, x.clock())
		comment.Author = x.resolver.Resolve(ctx, raw)
		comments = append(comments, comment)
	}
	return comments
}
