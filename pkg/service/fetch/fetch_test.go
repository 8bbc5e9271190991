package fetch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/gt"
)

// fakeUpstream scripts responses per path and records every call.
type fakeUpstream struct {
	mu      sync.Mutex
	calls   []string
	handler func(path string, query url.Values) (*adapter.Response, error)
}

func (x *fakeUpstream) Do(ctx context.Context, method, path string, query url.Values) (*adapter.Response, error) {
	x.mu.Lock()
	x.calls = append(x.calls, path)
	x.mu.Unlock()
	return x.handler(path, query)
}

func (x *fakeUpstream) callsTo(path string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for _, c := range x.calls {
		if c == path {
			n++
		}
	}
	return n
}

func jsonResponse(status int, body any) (*adapter.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &adapter.Response{StatusCode: status, Body: encoded}, nil
}

func notFound() (*adapter.Response, error) {
	return &adapter.Response{StatusCode: http.StatusNotFound, Body: []byte(`{"message":"not found"}`)}, nil
}

func items(ids ...int) []map[string]any {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"id": id})
	}
	return out
}

func TestStrategyLockIn(t *testing.T) {
	// Strategy #1 yields a non-empty first page; strategy #2 would also
	// succeed but must never be consulted, even for later pages.
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			switch path {
			case "core/projects/p1/notes":
				if query.Get("requestedFirst") == "0" {
					return jsonResponse(200, map[string]any{"items": items(1, 2), "hasMore": true})
				}
				return jsonResponse(200, map[string]any{"items": items(3), "hasMore": false})
			case "v2/projects/p1/notes":
				return jsonResponse(200, map[string]any{"items": items(99)})
			default:
				return notFound()
			}
		},
	}

	svc := fetch.New(upstream)
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(3)

	// Upstream page order is preserved as-is
	first, _ := records[0].DigString("id")
	last, _ := records[2].DigString("id")
	gt.Equal(t, first, "1")
	gt.Equal(t, last, "3")
	gt.Equal(t, upstream.callsTo("v2/projects/p1/notes"), 0)
}

func TestFallsToSecondStrategy(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			if path == "v2/projects/p1/notes" {
				return jsonResponse(200, map[string]any{"data": items(7, 8)})
			}
			return notFound()
		},
	}

	svc := fetch.New(upstream)
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(2)
	gt.Equal(t, upstream.callsTo("core/projects/p1/notes"), 1)
}

func TestNoRouteAvailable(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			return notFound()
		},
	}

	svc := fetch.New(upstream)
	_, err := svc.Fetch(context.Background(), fetch.EmailsPlan("p1"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, fetch.ErrNoRouteAvailable))
}

func TestEmptyFirstPagesMeanNoRoute(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			return jsonResponse(200, map[string]any{"items": []any{}})
		},
	}

	svc := fetch.New(upstream)
	_, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.True(t, errors.Is(err, fetch.ErrNoRouteAvailable))
}

func TestLockInSurvivesEmptyLaterPage(t *testing.T) {
	// The locked-in route claims more pages but delivers an empty one; the
	// fetcher must stop, not swap strategies.
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			switch path {
			case "core/projects/p1/notes":
				if query.Get("requestedFirst") == "0" {
					return jsonResponse(200, map[string]any{"items": items(1, 2), "hasMore": true})
				}
				return jsonResponse(200, map[string]any{"items": []any{}, "hasMore": true})
			case "v2/projects/p1/notes":
				return jsonResponse(200, map[string]any{"items": items(99)})
			default:
				return notFound()
			}
		},
	}

	svc := fetch.New(upstream)
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(2)
	gt.Equal(t, upstream.callsTo("v2/projects/p1/notes"), 0)
}

func TestOffsetLimitPagination(t *testing.T) {
	// offset/limit convention: a page shorter than the limit ends the walk.
	all := items(1, 2, 3, 4, 5)
	var offsets []string
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			if path != "v2/projects/p1/notes" {
				return notFound()
			}
			offset, _ := strconv.Atoi(query.Get("offset"))
			offsets = append(offsets, query.Get("offset"))
			limit, _ := strconv.Atoi(query.Get("limit"))
			end := offset + limit
			if end > len(all) {
				end = len(all)
			}
			if offset > len(all) {
				offset = len(all)
			}
			return jsonResponse(200, map[string]any{"items": all[offset:end]})
		},
	}

	svc := fetch.New(upstream, fetch.WithPageSize(2))
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(5)
	gt.Equal(t, offsets, []string{"0", "2", "4"})
}

func TestBareArrayPage(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			if path == "core/projects/p1/notes" {
				return jsonResponse(200, items(1, 2, 3))
			}
			return notFound()
		},
	}

	svc := fetch.New(upstream)
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(3)
}

func TestPartialDataOnLaterPageFailure(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			if path != "core/projects/p1/notes" {
				return notFound()
			}
			if query.Get("requestedFirst") == "0" {
				return jsonResponse(200, map[string]any{"items": items(1, 2), "hasMore": true})
			}
			return nil, fmt.Errorf("connection reset")
		},
	}

	svc := fetch.New(upstream)
	records, err := svc.Fetch(context.Background(), fetch.NotesPlan("p1"))
	gt.NoError(t, err)
	gt.A(t, records).Length(2)
}

func TestFetchOne(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			if path == "v2/users/5" {
				return jsonResponse(200, map[string]any{"data": map[string]any{"fullname": "Jane Roe"}})
			}
			return notFound()
		},
	}

	svc := fetch.New(upstream)
	record, err := svc.FetchOne(context.Background(), fetch.UserPlan("5"))
	gt.NoError(t, err)

	name, ok := record.DigString("fullname")
	gt.True(t, ok)
	gt.Equal(t, name, "Jane Roe")
	gt.Equal(t, upstream.callsTo("core/users/5"), 1)
}

func TestFetchOneNoRoute(t *testing.T) {
	upstream := &fakeUpstream{
		handler: func(path string, query url.Values) (*adapter.Response, error) {
			return notFound()
		},
	}

	svc := fetch.New(upstream)
	_, err := svc.FetchOne(context.Background(), fetch.UserPlan("5"))
	gt.True(t, errors.Is(err, fetch.ErrNoRouteAvailable))
}
