package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/model"
	"github.com/m-mizutani/caselog/pkg/service/directory"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/usecase/export"
	"github.com/m-mizutani/gt"
)

// scriptedUpstream routes requests to per-path handlers; unknown paths 404.
type scriptedUpstream struct {
	mu     sync.Mutex
	routes map[string]func(query url.Values) (int, any)
}

func (x *scriptedUpstream) Do(ctx context.Context, method, path string, query url.Values) (*adapter.Response, error) {
	x.mu.Lock()
	handler, ok := x.routes[path]
	x.mu.Unlock()
	if !ok {
		return &adapter.Response{StatusCode: http.StatusNotFound, Body: []byte(`{}`)}, nil
	}

	status, body := handler(query)
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &adapter.Response{StatusCode: status, Body: encoded}, nil
}

func page(items ...map[string]any) func(url.Values) (int, any) {
	return func(url.Values) (int, any) {
		return http.StatusOK, map[string]any{"items": items, "hasMore": false}
	}
}

func newUseCase(upstream adapter.Upstream, table map[string]string, opts ...export.Option) *export.UseCase {
	fetcher := fetch.New(upstream)
	resolver := directory.NewResolver(directory.NewFromTable(table), fetcher, upstream)
	return export.New(fetcher, resolver, opts...)
}

func TestRunFullPipeline(t *testing.T) {
	upstream := &scriptedUpstream{routes: map[string]func(url.Values) (int, any){
		"core/projects/p1/notes": page(
			map[string]any{
				// Mirror of the email below, emitted 30s later as a note
				"id":        map[string]any{"native": 1},
				"createdAt": "2024-01-01T10:00:30Z",
				"body":      "Status\nHello",
				"authorId":  101,
			},
			map[string]any{
				"id":        map[string]any{"native": 2},
				"createdAt": "2024-01-01T09:30:00Z",
				"body":      "Call with client\nDiscussed settlement.",
				"authorId":  101,
				"comments": []map[string]any{
					{"commentId": 7, "createdAt": "2024-01-01T09:45:00Z", "body": "Agreed.", "authorId": 102},
				},
			},
		),
		"core/projects/p1/emails": page(
			map[string]any{
				"emailId": 10,
				"subject": "Status",
				"body":    map[string]any{"text": "Hello"},
				"sentAt":  "2024-01-01T10:00:00Z",
				"author":  map[string]any{"name": "Mail Sender"},
			},
		),
		"core/notes/1/comments": page(),
	}}

	uc := newUseCase(upstream, map[string]string{"101": "Jane Roe", "102": "John Doe"})
	timeline, err := uc.Run(context.Background(), "p1")
	gt.NoError(t, err)

	// The mirrored note collapsed into the email; order is chronological
	gt.A(t, timeline.Items).Length(2)
	gt.Equal(t, timeline.Items[0].ID, "note-2")
	gt.Equal(t, timeline.Items[1].ID, "email-10")
	gt.Equal(t, timeline.Items[1].Kind, model.KindEmail)

	// Authors resolved through directory and inline shapes
	gt.Equal(t, timeline.Items[0].Author, "Jane Roe")
	gt.Equal(t, timeline.Items[1].Author, "Mail Sender")

	// Inline comments attached without a fetch, with their own authors
	gt.A(t, timeline.Items[0].Comments).Length(1)
	gt.Equal(t, timeline.Items[0].Comments[0].Author, "John Doe")

	// Both collections reported healthy
	gt.A(t, timeline.Report.Collections).Length(2)
	for _, c := range timeline.Report.Collections {
		gt.Equal(t, c.Status, model.CollectionOK)
	}
}

func TestRunOneCollectionFails(t *testing.T) {
	// Emails 404 on every route; notes must still export
	upstream := &scriptedUpstream{routes: map[string]func(url.Values) (int, any){
		"core/projects/p1/notes": page(
			map[string]any{"id": 1, "createdAt": "2024-01-01T10:00:00Z", "body": "A note", "comments": []map[string]any{}},
		),
	}}

	uc := newUseCase(upstream, nil)
	timeline, err := uc.Run(context.Background(), "p1")
	gt.NoError(t, err)
	gt.A(t, timeline.Items).Length(1)

	var failed *model.CollectionOutcome
	for i, c := range timeline.Report.Collections {
		if c.Collection == "emails" {
			failed = &timeline.Report.Collections[i]
		}
	}
	gt.V(t, failed).NotNil()
	gt.Equal(t, failed.Status, model.CollectionFailed)
	gt.S(t, failed.Error).Contains("no route available")
}

func TestRunAllCollectionsFail(t *testing.T) {
	upstream := &scriptedUpstream{routes: map[string]func(url.Values) (int, any){}}

	uc := newUseCase(upstream, nil)
	_, err := uc.Run(context.Background(), "p1")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, export.ErrAllCollectionsFailed))
}

func TestCommentFailureIsolation(t *testing.T) {
	// Note 1's comment routes all fail; note 2's succeed. Only note 1
	// degrades.
	upstream := &scriptedUpstream{routes: map[string]func(url.Values) (int, any){
		"core/projects/p1/notes": page(
			map[string]any{"id": 1, "createdAt": "2024-01-01T10:00:00Z", "body": "First note"},
			map[string]any{"id": 2, "createdAt": "2024-01-01T11:00:00Z", "body": "Second note"},
		),
		"core/projects/p1/emails": page(
			map[string]any{"emailId": 9, "subject": "Hi", "body": "there", "sentAt": "2024-01-01T12:00:00Z"},
		),
		"core/notes/1/comments": func(url.Values) (int, any) {
			return http.StatusInternalServerError, map[string]any{}
		},
		"core/notes/2/comments": page(
			map[string]any{"commentId": 5, "createdAt": "2024-01-01T11:30:00Z", "body": "A reply"},
		),
	}}

	uc := newUseCase(upstream, nil)
	timeline, err := uc.Run(context.Background(), "p1")
	gt.NoError(t, err)
	gt.A(t, timeline.Items).Length(3)

	byID := map[string]*model.Item{}
	for _, item := range timeline.Items {
		byID[item.ID] = item
	}
	gt.A(t, byID["note-1"].Comments).Length(0)
	gt.A(t, byID["note-2"].Comments).Length(1)
	gt.Equal(t, byID["note-2"].Comments[0].Body, "A reply")
}

func TestRunWithWorkerPool(t *testing.T) {
	// Many items with remote comments through a small pool; all must arrive
	notes := make([]map[string]any, 0, 20)
	routes := map[string]func(url.Values) (int, any){}
	for i := 1; i <= 20; i++ {
		id := i
		notes = append(notes, map[string]any{
			"id":        id,
			"createdAt": "2024-01-01T10:00:00Z",
			"body":      strings.Repeat("x", id), // distinct fingerprints
		})
		routes["core/notes/"+strconv.Itoa(id)+"/comments"] = page(
			map[string]any{"commentId": id, "createdAt": "2024-01-01T10:30:00Z", "body": "reply"},
		)
	}
	routes["core/projects/p1/notes"] = page(notes...)

	upstream := &scriptedUpstream{routes: routes}
	uc := newUseCase(upstream, nil, export.WithWorkers(3))
	timeline, err := uc.Run(context.Background(), "p1")
	gt.NoError(t, err)

	gt.A(t, timeline.Items).Length(20)
	for _, item := range timeline.Items {
		gt.A(t, item.Comments).Length(1)
	}
}
