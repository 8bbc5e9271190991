package fetch

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/m-mizutani/caselog/pkg/model"
)

// Pagination names the convention a strategy uses to walk pages.
type Pagination string

const (
	// PageOffsetLimit sends offset/limit query params; a page shorter than
	// the requested limit signals the end.
	PageOffsetLimit Pagination = "offset-limit"

	// PageRequestedFirst sends requestedFirst/requestedCount params and the
	// response carries an explicit has-more flag. When the flag is absent the
	// short-page rule applies.
	PageRequestedFirst Pagination = "requested-first"

	// PageNone marks a single-entity route with no pagination at all.
	PageNone Pagination = "none"
)

// Strategy is one candidate route for realizing a collection fetch: an HTTP
// method, a concrete path, and the pagination convention that route follows.
type Strategy struct {
	Method     string
	Path       string
	Query      url.Values
	Pagination Pagination
}

// Plan is the ordered list of candidate strategies for one logical
// collection, most likely to succeed first. The order encodes what is known
// about upstream API versions; it is data, not code, so tests and future
// upstream changes only touch these tables.
type Plan struct {
	Collection string
	Strategies []Strategy
}

// NotesPlan lists the known routes for a project's notes, newest API
// convention first.
func NotesPlan(projectID string) Plan {
	return Plan{
		Collection: "notes",
		Strategies: []Strategy{
			{Method: http.MethodGet, Path: "core/projects/" + projectID + "/notes", Pagination: PageRequestedFirst},
			{Method: http.MethodGet, Path: "v2/projects/" + projectID + "/notes", Pagination: PageOffsetLimit},
			{Method: http.MethodGet, Path: "core/notes", Query: url.Values{"projectId": {projectID}}, Pagination: PageOffsetLimit},
		},
	}
}

// EmailsPlan lists the known routes for a project's emails.
func EmailsPlan(projectID string) Plan {
	return Plan{
		Collection: "emails",
		Strategies: []Strategy{
			{Method: http.MethodGet, Path: "core/projects/" + projectID + "/emails", Pagination: PageRequestedFirst},
			{Method: http.MethodGet, Path: "v2/projects/" + projectID + "/emails", Pagination: PageOffsetLimit},
			{Method: http.MethodGet, Path: "core/communications/emails", Query: url.Values{"projectId": {projectID}}, Pagination: PageOffsetLimit},
		},
	}
}

// CommentsPlan lists the known routes for the comments of one note.
func CommentsPlan(noteID string) Plan {
	return Plan{
		Collection: "comments",
		Strategies: []Strategy{
			{Method: http.MethodGet, Path: "core/notes/" + noteID + "/comments", Pagination: PageRequestedFirst},
			{Method: http.MethodGet, Path: "v2/notes/" + noteID + "/comments", Pagination: PageOffsetLimit},
		},
	}
}

// UserPlan lists the known single-entity routes for a user lookup.
func UserPlan(userID string) Plan {
	return Plan{
		Collection: "users",
		Strategies: []Strategy{
			{Method: http.MethodGet, Path: "core/users/" + userID, Pagination: PageNone},
			{Method: http.MethodGet, Path: "v2/users/" + userID, Pagination: PageNone},
			{Method: http.MethodGet, Path: "users/" + userID, Pagination: PageNone},
		},
	}
}

// itemKeys are the conventional envelope keys an items array hides under.
var itemKeys = []string{"items", "data", "results", "records"}

// moreKeys are the conventional explicit has-more flags.
var moreKeys = []string{"hasMore", "has_more", "more"}

// page is one decoded upstream page.
type page struct {
	items   []model.RawRecord
	hasMore *bool
}

// decodePage extracts the items array and the optional has-more flag from a
// response body. A bare top-level array is accepted as well. Malformed bodies
// and objects with no recognizable items array yield ok=false, so the
// strategy is treated as a failed candidate rather than aborting the run.
func decodePage(body []byte) (*page, bool) {
	var envelope any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}

	switch v := envelope.(type) {
	case []any:
		return &page{items: toRecords(v)}, true
	case map[string]any:
		p := &page{}
		for _, key := range moreKeys {
			if flag, ok := v[key].(bool); ok {
				f := flag
				p.hasMore = &f
				break
			}
		}
		for _, key := range itemKeys {
			if list, ok := v[key].([]any); ok {
				p.items = toRecords(list)
				return p, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// decodeEntity extracts a single record from a response body, unwrapping the
// conventional envelope keys when present.
func decodeEntity(body []byte) (model.RawRecord, bool) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false
	}
	for _, key := range itemKeys {
		if obj, ok := envelope[key].(map[string]any); ok {
			return model.RawRecord(obj), true
		}
	}
	return model.RawRecord(envelope), true
}

func toRecords(list []any) []model.RawRecord {
	records := make([]model.RawRecord, 0, len(list))
	for _, elem := range list {
		if obj, ok := elem.(map[string]any); ok {
			records = append(records, model.RawRecord(obj))
		}
	}
	return records
}
