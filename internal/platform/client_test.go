package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/query"
	"github.com/tjfontaine/creatorlink/internal/retry"
	"github.com/tjfontaine/creatorlink/internal/testutil"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

type recorded struct {
	mu    sync.Mutex
	calls []string
	body  map[string]map[string]any
}

func (r *recorded) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := req.Method + " " + req.URL.RequestURI()
	r.calls = append(r.calls, key)
	if req.Body != nil {
		var m map[string]any
		if json.NewDecoder(req.Body).Decode(&m) == nil {
			if r.body == nil {
				r.body = map[string]map[string]any{}
			}
			r.body[key] = m
		}
	}
}

func (r *recorded) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == key {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	pair := transport.NewPair(
		transport.WithBaseURL(srv.URL),
		transport.WithTokenSource(transport.TokenSourceFunc(func(context.Context) (string, error) {
			return "tok", nil
		})),
	)
	return New(pair, query.NewClient(query.WithRetry(retry.None)), opts...), rec
}

func TestCampaigns_CreateRefreshesListing(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /campaigns/":
			w.Write([]byte(`{"data":[{"id":1,"title":"Spring","status":"active"}],"success":true,"status":200}`))
		case "GET /analytics/dashboard":
			w.Write([]byte(`{"data":{"total_campaigns":1,"active_campaigns":1},"success":true}`))
		case "POST /campaigns":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"data":{"id":2,"title":"Summer","status":"draft"},"success":true,"status":201}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	list, err := c.Campaigns.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != "1" || list[0].Status != CampaignActive {
		t.Fatalf("List() = %+v", list)
	}
	if _, err := c.Campaigns.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if n := rec.count("GET /campaigns/"); n != 1 {
		t.Fatalf("fresh listing fetched %d times, want 1", n)
	}

	created, err := c.Campaigns.Create(ctx, CampaignInput{
		Title:          "Summer",
		Budget:         5000,
		TargetAudience: TextValue{Value: "students"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "2" || created.Status != CampaignDraft {
		t.Errorf("Create() = %+v", created)
	}
	body := rec.body["POST /campaigns"]
	if ta, _ := body["target_audience"].(map[string]any); ta["value"] != "students" {
		t.Errorf("target_audience sent as %v", body["target_audience"])
	}

	if _, err := c.Campaigns.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if n := rec.count("GET /campaigns/"); n != 2 {
		t.Errorf("listing fetched %d times after create, want 2", n)
	}
}

func TestCampaigns_UpdateAndDeleteResolveID(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Write([]byte(`{"data":{"id":42,"title":"Renamed","status":"paused"}}`))
		}
	})
	ctx := context.Background()

	if _, err := c.Campaigns.Update(ctx, "42", CampaignInput{Title: "Renamed"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := c.Campaigns.UpdateStatus(ctx, "42", CampaignPaused)
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if got.Status != CampaignPaused {
		t.Errorf("UpdateStatus() status = %q", got.Status)
	}
	if err := c.Campaigns.Delete(ctx, "42"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for _, want := range []string{"PUT /campaigns/42", "PATCH /campaigns/42/status", "DELETE /campaigns/42"} {
		if rec.count(want) != 1 {
			t.Errorf("missing %s in %v", want, rec.calls)
		}
	}
	if s := rec.body["PATCH /campaigns/42/status"]["status"]; s != "paused" {
		t.Errorf("status body = %v", s)
	}
}

func TestCampaigns_UpdateStatusRejectsUnknown(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.Campaigns.UpdateStatus(context.Background(), "1", "archived")
	var env *apierr.Error
	if !errors.As(err, &env) || env.Kind() != apierr.KindInvalid {
		t.Fatalf("UpdateStatus() error = %v, want invalid", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("request dispatched: %v", rec.calls)
	}
}

func TestCampaigns_InviteRefreshesRoster(t *testing.T) {
	var mu sync.Mutex
	roster := []string{`{"id":1,"campaign_id":5,"creator_id":7,"status":"invited"}`}
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method + " " + r.URL.Path {
		case "GET /campaigns/5/creators":
			w.Write([]byte(`{"data":[` + strings.Join(roster, ",") + `]}`))
		case "POST /campaigns/5/invite":
			roster = append(roster, `{"id":2,"campaign_id":5,"creator_id":8,"status":"invited"}`)
			w.Write([]byte(`{"data":[` + strings.Join(roster, ",") + `]}`))
		}
	})
	ctx := context.Background()

	before, err := c.Campaigns.Creators(ctx, "5")
	if err != nil || len(before) != 1 {
		t.Fatalf("Creators() = %v, %v", before, err)
	}
	if _, err := c.Campaigns.Invite(ctx, "5", []ID{"8"}); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if ids, _ := rec.body["POST /campaigns/5/invite"]["creator_ids"].([]any); len(ids) != 1 || ids[0] != "8" {
		t.Errorf("creator_ids = %v", rec.body["POST /campaigns/5/invite"]["creator_ids"])
	}

	after, err := c.Campaigns.Creators(ctx, "5")
	if err != nil {
		t.Fatalf("Creators() error = %v", err)
	}
	if len(after) != 2 || after[1].CreatorID != "8" {
		t.Errorf("roster after invite = %+v", after)
	}
}

func TestCampaigns_CreateUndecodableResponse(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":[1,2],"title":"Summer"}}`))
	})

	created, err := c.Campaigns.Create(context.Background(), CampaignInput{Title: "Summer"})
	var env *apierr.Error
	if !errors.As(err, &env) || env.Kind() != apierr.KindCallback {
		t.Fatalf("Create() error = %v, want callback error", err)
	}
	if created.ID != "" {
		t.Errorf("Create() = %+v, want zero campaign", created)
	}
	if rec.count("POST /campaigns") != 1 {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestCampaigns_ReadErrorEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Campaign not found"}`))
	})

	_, err := c.Campaigns.Get(context.Background(), "404")
	var env *apierr.Error
	if !errors.As(err, &env) {
		t.Fatalf("Get() error = %v", err)
	}
	if env.Status != http.StatusNotFound || env.Message != "Campaign not found" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestCreators_SearchRecorded(t *testing.T) {
	pair := transport.NewPair(transport.WithHTTPClient(testutil.Cassette(t, "creators_search")))
	c := New(pair, query.NewClient(query.WithRetry(retry.None)))

	creators, err := c.Creators.Search(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(creators) != 3 {
		t.Fatalf("got %d creators, want 3", len(creators))
	}

	if s := creators[0].MatchScore; s == nil || *s != 87 {
		t.Errorf("creators[0].MatchScore = %v, want 87", s)
	}
	if creators[1].MatchScore != nil {
		t.Errorf("zero score should leave MatchScore nil, got %d", *creators[1].MatchScore)
	}
	if creators[2].MatchScore != nil {
		t.Errorf("missing score should leave MatchScore nil, got %d", *creators[2].MatchScore)
	}

	if creators[0].ID != "7" || creators[2].ID != "c-9" {
		t.Errorf("ids = %q, %q", creators[0].ID, creators[2].ID)
	}
	if creators[1].InstagramFollowers != nil {
		t.Errorf("null followers decoded as %d", *creators[1].InstagramFollowers)
	}
	if got := FormatCount(*creators[1].YouTubeSubscribers); got != "1.2M" {
		t.Errorf("FormatCount() = %q", got)
	}
}

func TestSearchParams_Values(t *testing.T) {
	tests := []struct {
		name string
		p    SearchParams
		want string
	}{
		{"defaults", SearchParams{}, "/creators/search?limit=20&query=+"},
		{"filters", SearchParams{Query: "vegan food", Location: "Delhi", Limit: 5},
			"/creators/search?limit=5&location=Delhi&query=vegan+food"},
		{"followers", SearchParams{Query: "tech", MinFollowers: 1000},
			"/creators/search?limit=20&min_followers=1000&query=tech"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":{"creators":[],"similarity_scores":[]}}`))
			})
			got, err := c.Creators.Search(context.Background(), tt.p)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if got == nil {
				t.Error("empty search should return an empty slice")
			}
			if rec.count("GET "+tt.want) != 1 {
				t.Errorf("requests = %v, want GET %s", rec.calls, tt.want)
			}
		})
	}
}

func TestAnalytics_Reads(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analytics/dashboard":
			w.Write([]byte(`{"data":{"total_campaigns":4,"active_campaigns":2,"total_creators":11,"total_spend":5400.5}}`))
		case "/analytics/campaigns/3":
			w.Write([]byte(`{"data":{"campaign_id":3,"reach":120000,"engagement_rate":3.1}}`))
		case "/analytics/influencers/7":
			w.Write([]byte(`{"creator_id":"7","followers":184000,"campaigns":2}`))
		}
	})
	ctx := context.Background()

	d, err := c.Analytics.Dashboard(ctx)
	if err != nil || d.TotalCampaigns != 4 || d.TotalSpend != 5400.5 {
		t.Errorf("Dashboard() = %+v, %v", d, err)
	}
	ca, err := c.Analytics.Campaign(ctx, "3")
	if err != nil || ca.CampaignID != "3" || ca.Reach != 120000 {
		t.Errorf("Campaign() = %+v, %v", ca, err)
	}
	ia, err := c.Analytics.Influencer(ctx, "7")
	if err != nil || ia.Followers != 184000 || ia.Campaigns != 2 {
		t.Errorf("Influencer() = %+v, %v", ia, err)
	}
}

func TestPayments_CreateIntent(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"clientSecret":"pi_123_secret_456"}`))
	}, WithPayments(PaymentsConfig{PublishableKey: "pk_test_abc", Currency: "usd", Mode: "payment"}))

	intent, err := c.Payments.CreateIntent(context.Background(), 250000)
	if err != nil {
		t.Fatalf("CreateIntent() error = %v", err)
	}
	if intent.ClientSecret != "pi_123_secret_456" {
		t.Errorf("ClientSecret = %q", intent.ClientSecret)
	}
	body := rec.body["POST /campaigns/payment"]
	if body["amount"] != float64(250000) || body["currency"] != "usd" {
		t.Errorf("payment body = %v", body)
	}
	if c.Payments.Config().PublishableKey != "pk_test_abc" {
		t.Errorf("Config() = %+v", c.Payments.Config())
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":12,"b":"x-1","c":null}`), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v.A != "12" || v.B != "x-1" || v.C != "" {
		t.Errorf("got %+v", v)
	}
	if err := json.Unmarshal([]byte(`{"a":true}`), &v); err == nil {
		t.Error("boolean id should fail")
	}
}

func TestFormatCount(t *testing.T) {
	tests := map[int64]string{
		950:       "950",
		1500:      "1.5K",
		184000:    "184.0K",
		2_300_000: "2.3M",
	}
	for n, want := range tests {
		if got := FormatCount(n); got != want {
			t.Errorf("FormatCount(%d) = %q, want %q", n, got, want)
		}
	}
}
