package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/retry"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

type campaign struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

var noRetry = &retry.None

func newPair(t *testing.T, h http.HandlerFunc) transport.Pair {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return transport.NewPair(
		transport.WithBaseURL(srv.URL),
		transport.WithTokenSource(transport.TokenSourceFunc(func(context.Context) (string, error) {
			return "tok", nil
		})),
	)
}

func TestRead_HeaderModesDoNotShareEntries(t *testing.T) {
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		title := "public"
		if r.Header.Get("Authorization") != "" {
			title = "private"
		}
		json.NewEncoder(w).Encode(campaign{ID: "c-1", Title: title})
	})
	qc := NewClient()

	authed := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{})
	public := Read(qc, pair.Public, "/campaigns/c-1", Config[campaign]{})

	a := authed.Fetch(context.Background())
	p := public.Fetch(context.Background())

	if a.Data.Title != "private" || p.Data.Title != "public" {
		t.Errorf("titles = %q / %q, want private / public", a.Data.Title, p.Data.Title)
	}
	if qc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", qc.Len())
	}
	if authed.Key() == public.Key() {
		t.Error("keys must differ by header mode")
	}
}

func TestRead_SelectFailureKeepsSuccess(t *testing.T) {
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c-1","title":"Launch"}`))
	})
	qc := NewClient()

	for name, sel := range map[string]func(*transport.Response) (campaign, error){
		"returns error": func(*transport.Response) (campaign, error) {
			return campaign{}, errors.New("bad shape")
		},
		"panics": func(*transport.Response) (campaign, error) {
			panic("nil map")
		},
	} {
		t.Run(name, func(t *testing.T) {
			qc.Purge()
			successCalls := 0
			q := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{
				Select:    sel,
				OnSuccess: func(campaign) error { successCalls++; return nil },
			})
			defer q.Close()

			res := q.Fetch(context.Background())
			if res.Status != StatusSuccess || res.Error != nil {
				t.Fatalf("Status = %s, Error = %v; want success", res.Status, res.Error)
			}
			if res.Raw == nil || !strings.Contains(string(res.Raw.Body), "Launch") {
				t.Error("raw response missing from result")
			}
			e, ok := qc.Peek(q.Key())
			if !ok || e.Status != StatusSuccess || e.Raw == nil {
				t.Errorf("cache entry = %+v, %v", e, ok)
			}
			if successCalls != 0 {
				t.Errorf("OnSuccess called %d times after failed select", successCalls)
			}
		})
	}
}

func TestRead_CallbackPanicIsContained(t *testing.T) {
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c-1"}`))
	})
	qc := NewClient()
	q := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{
		OnSuccess: func(campaign) error { panic("boom") },
	})

	res := q.Fetch(context.Background())
	if !res.IsSuccess() || res.Data.ID != "c-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestRead_Disabled(t *testing.T) {
	var hits atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	qc := NewClient()
	q := Read(qc, pair.Authenticated, "/campaigns/", Config[[]campaign]{Disabled: true})

	if res := q.Fetch(context.Background()); res.Status != StatusIdle {
		t.Errorf("Status = %s, want idle", res.Status)
	}
	if res := q.Refetch(context.Background()); res.Status != StatusIdle {
		t.Errorf("Refetch Status = %s, want idle", res.Status)
	}
	if hits.Load() != 0 {
		t.Errorf("disabled query made %d requests", hits.Load())
	}
}

func TestRead_ErrorEnvelopeAndCallbacks(t *testing.T) {
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Campaign not found"}`))
	})
	qc := NewClient()

	var got *apierr.Error
	q := Read(qc, pair.Authenticated, "/campaigns/missing", Config[campaign]{
		Retry:   noRetry,
		OnError: func(err *apierr.Error) error { got = err; return errors.New("handler failed too") },
	})

	res := q.Fetch(context.Background())
	if res.Status != StatusError || !res.IsClientError() || res.IsServerError() {
		t.Errorf("result = %+v", res)
	}
	if got == nil || got.Message != "Campaign not found" || got.Status != http.StatusNotFound {
		t.Errorf("OnError got %+v", got)
	}
}

func TestRead_ServerErrorsRetried(t *testing.T) {
	var hits atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"c-1"}`))
	})
	qc := NewClient(WithRetry(retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))

	res := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{}).Fetch(context.Background())
	if !res.IsSuccess() || hits.Load() != 3 {
		t.Errorf("status = %s after %d hits", res.Status, hits.Load())
	}
}

func TestRead_ClientErrorsNotRetried(t *testing.T) {
	var hits atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	qc := NewClient(WithRetry(retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}))

	res := Read(qc, pair.Public, "/creators/search", Config[campaign]{}).Fetch(context.Background())
	if res.Error.Message != "Request failed with status code 400" {
		t.Errorf("Message = %q", res.Error.Message)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestFetch_ServesFreshCache(t *testing.T) {
	var hits atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"id":"c-1"}`))
	})
	qc := NewClient()

	first := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{})
	first.Fetch(context.Background())
	second := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{})
	if res := second.Fetch(context.Background()); res.Data.ID != "c-1" {
		t.Errorf("cached Data = %+v", res.Data)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}

	second.Refetch(context.Background())
	if hits.Load() != 2 {
		t.Errorf("Refetch did not hit the network")
	}
}

func TestFetch_ConcurrentFirstLoadsShareRequest(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte(`{"id":"c-1"}`))
	})
	qc := NewClient()

	var wg sync.WaitGroup
	results := make([]Result[campaign], 2)
	fetch := func(i int) {
		defer wg.Done()
		results[i] = Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{}).Fetch(context.Background())
	}

	wg.Add(2)
	go fetch(0)
	<-arrived
	go fetch(1)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
	for i, res := range results {
		if res.Data.ID != "c-1" {
			t.Errorf("results[%d] = %+v", i, res)
		}
	}
}

func TestInvalidate_RefetchesOpenQueries(t *testing.T) {
	var hits atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		json.NewEncoder(w).Encode([]campaign{{ID: "c-1", Title: strings.Repeat("v", int(n))}})
	})
	qc := NewClient()

	open := Read(qc, pair.Authenticated, "/campaigns/", Config[[]campaign]{})
	open.Fetch(context.Background())

	closed := Read(qc, pair.Public, "/campaigns/", Config[[]campaign]{})
	closed.Fetch(context.Background())
	closed.Close()

	if err := qc.Invalidate(context.Background(), "/campaigns/"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3 (only the open query refetches)", hits.Load())
	}
	if got := open.Result().Data[0].Title; got != "vvv" {
		t.Errorf("open query Title = %q after invalidation", got)
	}

	e, ok := qc.Peek(Key{URL: "/campaigns/", Mode: transport.WithoutAuth})
	if !ok || !e.Stale {
		t.Errorf("closed query entry = %+v, want stale", e)
	}
	if res := Read(qc, pair.Public, "/campaigns/", Config[[]campaign]{}).Fetch(context.Background()); !res.IsSuccess() || hits.Load() != 4 {
		t.Errorf("stale entry served from cache")
	}
}

func TestInvalidate_ReportsRefetchFailures(t *testing.T) {
	var fail atomic.Bool
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	})
	qc := NewClient(WithRetry(retry.None))

	q := Read(qc, pair.Authenticated, "/campaigns/", Config[[]campaign]{})
	q.Fetch(context.Background())

	fail.Store(true)
	err := qc.Invalidate(context.Background(), "/campaigns/")
	var env *apierr.Error
	if !errors.As(err, &env) || !env.IsServerError() {
		t.Errorf("Invalidate() error = %v, want server error", err)
	}

	res := q.Result()
	if res.Status != StatusError {
		t.Errorf("Status = %s, want error", res.Status)
	}
	if e, _ := qc.Peek(q.Key()); e.Raw == nil {
		t.Error("previous successful response dropped on failure")
	}
}

func TestClose_SilencesCallbacks(t *testing.T) {
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c-1"}`))
	})
	qc := NewClient()

	calls := 0
	q := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{
		OnSuccess: func(campaign) error { calls++; return nil },
	})
	q.Close()
	q.Refetch(context.Background())
	if calls != 0 {
		t.Errorf("OnSuccess ran %d times after Close", calls)
	}
}

func TestRefetch_LastArrivalWinsInCacheAndResult(t *testing.T) {
	var calls atomic.Int32
	pair := newPair(t, func(w http.ResponseWriter, r *http.Request) {
		title := "A"
		if calls.Add(1) > 1 {
			title = "B"
		}
		json.NewEncoder(w).Encode(campaign{ID: "c-1", Title: title})
	})
	qc := NewClient()

	selectingA := make(chan struct{})
	releaseA := make(chan struct{})
	var mu sync.Mutex
	var notified []string

	q := Read(qc, pair.Authenticated, "/campaigns/c-1", Config[campaign]{
		Retry: noRetry,
		Select: func(resp *transport.Response) (campaign, error) {
			var c campaign
			err := resp.Decode(&c)
			if c.Title == "A" {
				close(selectingA)
				<-releaseA
			}
			return c, err
		},
		OnSuccess: func(c campaign) error {
			mu.Lock()
			notified = append(notified, c.Title)
			mu.Unlock()
			return nil
		},
	})
	defer q.Close()

	first := make(chan Result[campaign], 1)
	go func() { first <- q.Refetch(context.Background()) }()
	<-selectingA

	if got := q.Refetch(context.Background()); got.Data.Title != "B" {
		t.Fatalf("second Refetch() = %q, want B", got.Data.Title)
	}
	close(releaseA)
	older := <-first

	entry, ok := qc.Peek(q.Key())
	if !ok {
		t.Fatal("no cache entry")
	}
	var cached campaign
	if err := entry.Raw.Decode(&cached); err != nil {
		t.Fatal(err)
	}
	if cached.Title != "B" {
		t.Errorf("cache = %q, want B", cached.Title)
	}
	if got := q.Result().Data.Title; got != "B" {
		t.Errorf("Result() = %q, want B to match the cache", got)
	}
	if older.Data.Title != "B" {
		t.Errorf("older Refetch() returned %q, want the latest result", older.Data.Title)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0] != "B" {
		t.Errorf("OnSuccess calls = %v, want [B]", notified)
	}
}
