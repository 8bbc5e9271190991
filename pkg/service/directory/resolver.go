package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/model"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
)

// Resolver turns a record's creator into a human-readable name through an
// ordered cascade: inline name fields, the static directory table, the
// record's relational creator link, and finally a direct user lookup by id.
// Each step short-circuits on the first non-empty result; every failure falls
// through to the next step, and an empty result is a legitimate terminal
// state, not an error.
type Resolver struct {
	dir      *Directory
	fetcher  *fetch.Service
	upstream adapter.Upstream
}

// NewResolver creates a Resolver. The fetcher serves direct user lookups and
// the upstream serves raw creator-link traversal.
func NewResolver(dir *Directory, fetcher *fetch.Service, upstream adapter.Upstream) *Resolver {
	return &Resolver{
		dir:      dir,
		fetcher:  fetcher,
		upstream: upstream,
	}
}

// Directory exposes the backing directory, mainly so callers can seed it.
func (x *Resolver) Directory() *Directory {
	return x.dir
}

// Resolve returns the display name of the record's creator, or "" when every
// step comes up empty. Remote steps are deduplicated: concurrent records
// sharing one link target or creator id issue exactly one upstream call.
func (x *Resolver) Resolve(ctx context.Context, record model.RawRecord) string {
	if name := inlineName(record); name != "" {
		return name
	}

	id := creatorID(record)
	if id != "" {
		if name, ok := x.dir.Lookup(id); ok {
			return name
		}
	}

	if link := creatorLink(record); link != "" {
		if name := x.fetchCached(ctx, "link:"+link, func() string {
			return x.followLink(ctx, link)
		}); name != "" {
			if id != "" {
				x.dir.put(id, name)
			}
			return name
		}
	}

	if id != "" {
		return x.fetchCached(ctx, "user:"+id, func() string {
			return x.lookupUser(ctx, id)
		})
	}

	return ""
}

// fetchCached memoizes one remote resolution per key for the run, fanning a
// single in-flight call out to all waiters.
func (x *Resolver) fetchCached(ctx context.Context, key string, fn func() string) string {
	if name, ok := x.dir.known(key); ok {
		return name
	}

	result, _, _ := x.dir.flight.Do(key, func() (any, error) {
		if name, ok := x.dir.known(key); ok {
			return name, nil
		}
		name := fn()
		x.dir.put(key, name)
		return name, nil
	})

	name, _ := result.(string)
	return name
}

// followLink issues one GET against the record's creator link and extracts a
// name from whatever shape comes back.
func (x *Resolver) followLink(ctx context.Context, link string) string {
	path, query := splitLink(link)
	if path == "" {
		return ""
	}

	resp, err := x.upstream.Do(ctx, http.MethodGet, path, query)
	if err != nil || !resp.Success() {
		logging.From(ctx).Debug("creator link traversal failed", "link", link, "error", err)
		return ""
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return ""
	}
	return userName(unwrapEntity(body))
}

// lookupUser issues the users/{id} fallback via the strategy fetcher.
func (x *Resolver) lookupUser(ctx context.Context, id string) string {
	record, err := x.fetcher.FetchOne(ctx, fetch.UserPlan(id))
	if err != nil {
		logging.From(ctx).Debug("user lookup failed", "userID", id, "error", err)
		return ""
	}
	return userName(record)
}

// inlineName probes the name shapes a record may already carry, in priority
// order.
func inlineName(record model.RawRecord) string {
	for _, path := range [][]string{{"authorFullname"}, {"authorName"}, {"createdByFullname"}} {
		if v, ok := record.Dig(path...); ok {
			if s := model.Stringify(v); s != "" {
				return s
			}
		}
	}

	for _, key := range []string{"author", "createdBy", "creator", "user", "sender", "from"} {
		v, ok := record.Dig(key)
		if !ok {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			if name := userName(model.RawRecord(obj)); name != "" {
				return name
			}
			continue
		}
		// Plain string author field; addresses are not names.
		if s := model.Stringify(v); s != "" && !strings.Contains(s, "@") {
			return s
		}
	}

	return ""
}

// creatorID probes the id shapes that point at the record's creator.
func creatorID(record model.RawRecord) string {
	for _, path := range [][]string{
		{"authorId"}, {"createdById"}, {"creatorId"}, {"userId"},
		{"createdBy", "id"}, {"author", "id"}, {"user", "id"},
	} {
		if v, ok := record.Dig(path...); ok {
			if id := model.UnwrapID(v); id != "" {
				return id
			}
		}
	}
	return ""
}

// creatorLink probes the relational link shapes that point at the creator.
func creatorLink(record model.RawRecord) string {
	for _, path := range [][]string{
		{"links", "createdBy"}, {"links", "author"}, {"links", "user"},
		{"_links", "createdBy", "href"}, {"_links", "creator", "href"},
	} {
		if v, ok := record.Dig(path...); ok {
			if s := model.Stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// userName extracts a display name from a user-shaped record.
func userName(record model.RawRecord) string {
	for _, key := range []string{"fullname", "fullName", "name", "displayName"} {
		if s, ok := record.DigString(key); ok {
			return s
		}
	}

	first, _ := record.DigString("firstName")
	last, _ := record.DigString("lastName")
	if first == "" && last == "" {
		first, _ = record.DigString("first")
		last, _ = record.DigString("last")
	}
	return strings.TrimSpace(first + " " + last)
}

// unwrapEntity peels the conventional envelope keys off a single-entity
// response.
func unwrapEntity(body map[string]any) model.RawRecord {
	for _, key := range []string{"data", "user", "item", "result"} {
		if obj, ok := body[key].(map[string]any); ok {
			return model.RawRecord(obj)
		}
	}
	return model.RawRecord(body)
}

// splitLink turns a creator link, absolute or relative, into an upstream
// path and query.
func splitLink(link string) (string, url.Values) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		query = nil
	}
	return strings.TrimLeft(u.Path, "/"), query
}
