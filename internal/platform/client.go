// Package platform is the typed client for the influencer-marketing backend.
// Reads go through the shared query cache; writes are mutations that
// invalidate the reads they affect.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/endpoints"
	"github.com/tjfontaine/creatorlink/internal/mutation"
	"github.com/tjfontaine/creatorlink/internal/query"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// PaymentsConfig is handed to callers that drive the card form. The client
// never touches card data itself.
type PaymentsConfig struct {
	PublishableKey string
	Currency       string
	Mode           string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPayments sets the payment settings exposed by Payments.Config.
func WithPayments(cfg PaymentsConfig) Option {
	return func(c *Client) {
		c.payments = cfg
	}
}

// WithVoiceAgent sets the configuration id handed to the voice widget.
func WithVoiceAgent(id string) Option {
	return func(c *Client) {
		c.voiceAgent = id
	}
}

// Client groups the backend's resources.
type Client struct {
	public *transport.Client
	authed *transport.Client
	cache  *query.Client
	logger *slog.Logger

	payments   PaymentsConfig
	voiceAgent string

	Campaigns *CampaignService
	Creators  *CreatorService
	Analytics *AnalyticsService
	Payments  *PaymentService
}

// New creates a client over an existing transport pair and cache.
func New(pair transport.Pair, cache *query.Client, opts ...Option) *Client {
	c := &Client{
		public:   pair.Public,
		authed:   pair.Authenticated,
		cache:    cache,
		logger:   slog.Default(),
		payments: PaymentsConfig{Currency: "inr", Mode: "payment"},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Campaigns = &CampaignService{c: c}
	c.Creators = &CreatorService{c: c}
	c.Analytics = &AnalyticsService{c: c}
	c.Payments = &PaymentService{c: c}
	return c
}

// VoiceAgentID returns the voice widget's configuration id, or "" when the
// widget is not configured. The widget itself owns its connection.
func (c *Client) VoiceAgentID() string { return c.voiceAgent }

// Cache returns the query cache shared by every read.
func (c *Client) Cache() *query.Client { return c.cache }

// read performs a one-shot cached read. A nil sel decodes the body,
// unwrapping the standard envelope when present.
func read[T any](ctx context.Context, c *Client, target string, sel func(*transport.Response) (T, error)) (T, error) {
	if sel == nil {
		sel = decodeData[T]
	}
	q := query.Read(c.cache, c.authed, target, query.Config[T]{Select: sel})
	defer q.Close()

	res := q.Fetch(ctx)
	if res.Error != nil {
		return res.Data, res.Error
	}
	return res.Data, nil
}

func mutationConfig[V, D any](c *Client, invalidate ...string) mutation.Config[V, D] {
	return mutation.Config[V, D]{
		Decode:     decodeData[D],
		Invalidate: invalidate,
		Logger:     c.logger,
	}
}

// mutate runs m once. A write that succeeded but whose response could not
// be decoded reports the decode failure, so callers never mistake a zero
// value for the server's answer.
func mutate[V, D any](ctx context.Context, m *mutation.Mutation[V, D], vars V) (D, error) {
	d, err := m.Mutate(ctx, vars)
	if err != nil {
		return d, err
	}
	if st := m.State(); st.DecodeErr != nil {
		return d, st.DecodeErr
	}
	return d, nil
}

// decodeData decodes the body into T, unwrapping a top-level "data" member
// when there is one.
func decodeData[T any](resp *transport.Response) (T, error) {
	var v T
	body := resp.Body
	if len(body) == 0 {
		return v, nil
	}
	if r := gjson.ParseBytes(body); r.IsObject() {
		if data := r.Get("data"); data.Exists() {
			body = []byte(data.Raw)
		}
	}
	err := json.Unmarshal(body, &v)
	return v, err
}

func path(name string, params map[string]string) string {
	p, err := endpoints.Resolve(endpoints.MustLookup(name), params)
	if err != nil {
		// Only reachable with an empty id; let the backend reject it.
		return endpoints.MustLookup(name)
	}
	return p
}

// CampaignService manages campaigns and their rosters.
type CampaignService struct{ c *Client }

// List returns the signed-in brand's campaigns.
func (s *CampaignService) List(ctx context.Context) ([]Campaign, error) {
	return read[[]Campaign](ctx, s.c, endpoints.MustLookup(endpoints.Campaigns), nil)
}

// Get returns one campaign.
func (s *CampaignService) Get(ctx context.Context, id ID) (Campaign, error) {
	return read[Campaign](ctx, s.c, path(endpoints.CampaignDetails, map[string]string{"id": id.String()}), nil)
}

// Create creates a campaign and refreshes the listing and dashboard.
func (s *CampaignService) Create(ctx context.Context, in CampaignInput) (Campaign, error) {
	m := mutation.Create(s.c.authed, s.c.cache, endpoints.MustLookup(endpoints.CreateCampaign),
		mutationConfig[CampaignInput, Campaign](s.c,
			endpoints.MustLookup(endpoints.Campaigns),
			endpoints.MustLookup(endpoints.DashboardStats),
		))
	return mutate(ctx, m, in)
}

type campaignUpdate struct {
	ID ID `json:"id"`
	CampaignInput
}

// Update replaces a campaign's editable fields.
func (s *CampaignService) Update(ctx context.Context, id ID, in CampaignInput) (Campaign, error) {
	m := mutation.Update(s.c.authed, s.c.cache, endpoints.MustLookup(endpoints.UpdateCampaign),
		mutationConfig[campaignUpdate, Campaign](s.c,
			endpoints.MustLookup(endpoints.Campaigns),
			endpoints.MustLookup(endpoints.CampaignDetails),
		))
	return mutate(ctx, m, campaignUpdate{ID: id, CampaignInput: in})
}

// Delete removes a campaign.
func (s *CampaignService) Delete(ctx context.Context, id ID) error {
	m := mutation.Delete(s.c.authed, s.c.cache, endpoints.MustLookup(endpoints.DeleteCampaign),
		mutationConfig[string, json.RawMessage](s.c,
			endpoints.MustLookup(endpoints.Campaigns),
			endpoints.MustLookup(endpoints.CampaignDetails),
			endpoints.MustLookup(endpoints.DashboardStats),
		))
	_, err := mutate(ctx, m, id.String())
	return err
}

type statusChange struct {
	ID     ID             `json:"id"`
	Status CampaignStatus `json:"status"`
}

// UpdateStatus moves a campaign to status. Unknown statuses are rejected
// without a request.
func (s *CampaignService) UpdateStatus(ctx context.Context, id ID, status CampaignStatus) (Campaign, error) {
	if !status.Valid() {
		return Campaign{}, apierr.Validation(map[string][]string{
			"status": {fmt.Sprintf("unknown campaign status %q", status)},
		})
	}
	cfg := mutationConfig[statusChange, Campaign](s.c,
		endpoints.MustLookup(endpoints.Campaigns),
		endpoints.MustLookup(endpoints.CampaignDetails),
	)
	cfg.Method = http.MethodPatch
	m := mutation.Update(s.c.authed, s.c.cache, endpoints.MustLookup(endpoints.CampaignStatus), cfg)
	return mutate(ctx, m, statusChange{ID: id, Status: status})
}

// Creators returns the campaign's roster.
func (s *CampaignService) Creators(ctx context.Context, campaignID ID) ([]CampaignCreator, error) {
	return read[[]CampaignCreator](ctx, s.c,
		path(endpoints.CampaignCreators, map[string]string{"campaign_id": campaignID.String()}), nil)
}

type invitation struct {
	CampaignID ID   `json:"campaign_id"`
	CreatorIDs []ID `json:"creator_ids"`
}

// Invite adds creators to a campaign's roster.
func (s *CampaignService) Invite(ctx context.Context, campaignID ID, creatorIDs []ID) ([]CampaignCreator, error) {
	m := mutation.Create(s.c.authed, s.c.cache, endpoints.MustLookup(endpoints.CampaignInvite),
		mutationConfig[invitation, []CampaignCreator](s.c,
			endpoints.MustLookup(endpoints.CampaignCreators),
		))
	return mutate(ctx, m, invitation{CampaignID: campaignID, CreatorIDs: creatorIDs})
}

// Chat returns the negotiation transcript between a campaign and a creator.
func (s *CampaignService) Chat(ctx context.Context, campaignID, creatorID ID) ([]ChatMessage, error) {
	return read[[]ChatMessage](ctx, s.c, path(endpoints.CampaignChat, map[string]string{
		"campaign_id": campaignID.String(),
		"creator_id":  creatorID.String(),
	}), nil)
}

// SearchParams filters creator search.
type SearchParams struct {
	Query        string
	Category     string
	Location     string
	Gender       string
	MinFollowers int64
	MaxFollowers int64
	Limit        int
}

// DefaultSearchLimit is used when SearchParams.Limit is zero.
const DefaultSearchLimit = 20

func (p SearchParams) values() url.Values {
	v := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	q := p.Query
	if q == "" {
		q = " "
	}
	v.Set("query", q)
	v.Set("category", p.Category)
	v.Set("location", p.Location)
	v.Set("gender", p.Gender)
	if p.MinFollowers > 0 {
		v.Set("min_followers", strconv.FormatInt(p.MinFollowers, 10))
	}
	if p.MaxFollowers > 0 {
		v.Set("max_followers", strconv.FormatInt(p.MaxFollowers, 10))
	}
	return v
}

// CreatorService searches creators.
type CreatorService struct{ c *Client }

// Search runs a semantic creator search. Each result carries its similarity
// as a whole percentage in MatchScore.
func (s *CreatorService) Search(ctx context.Context, p SearchParams) ([]Creator, error) {
	u := endpoints.WithQuery(endpoints.MustLookup(endpoints.CreatorsList), p.values())
	return read(ctx, s.c, u, selectCreators)
}

func selectCreators(resp *transport.Response) ([]Creator, error) {
	root := gjson.ParseBytes(resp.Body).Get("data")
	var creators []Creator
	if raw := root.Get("creators"); raw.IsArray() {
		if err := json.Unmarshal([]byte(raw.Raw), &creators); err != nil {
			return nil, err
		}
	}
	scores := root.Get("similarity_scores").Array()
	for i := range creators {
		if i < len(scores) && scores[i].Float() != 0 {
			pct := int(scores[i].Float()*100 + 0.5)
			creators[i].MatchScore = &pct
		}
	}
	if creators == nil {
		creators = []Creator{}
	}
	return creators, nil
}

// AnalyticsService reads reporting data.
type AnalyticsService struct{ c *Client }

// Dashboard returns the account summary.
func (s *AnalyticsService) Dashboard(ctx context.Context) (DashboardStats, error) {
	return read[DashboardStats](ctx, s.c, endpoints.MustLookup(endpoints.DashboardStats), nil)
}

// Campaign returns one campaign's performance.
func (s *AnalyticsService) Campaign(ctx context.Context, id ID) (CampaignAnalytics, error) {
	return read[CampaignAnalytics](ctx, s.c, path(endpoints.CampaignAnalytics, map[string]string{"id": id.String()}), nil)
}

// Influencer returns one creator's performance.
func (s *AnalyticsService) Influencer(ctx context.Context, id ID) (InfluencerAnalytics, error) {
	return read[InfluencerAnalytics](ctx, s.c, path(endpoints.InfluencerAnalytics, map[string]string{"id": id.String()}), nil)
}

// PaymentService starts card payments.
type PaymentService struct{ c *Client }

// Config returns the publishable payment settings.
func (s *PaymentService) Config() PaymentsConfig { return s.c.payments }

type paymentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// CreateIntent asks the backend for a payment intent of amount minor units
// and returns its client secret.
func (s *PaymentService) CreateIntent(ctx context.Context, amount int64) (PaymentIntent, error) {
	m := mutation.Create(s.c.authed, nil, endpoints.MustLookup(endpoints.CampaignPayment),
		mutationConfig[paymentRequest, PaymentIntent](s.c))
	return mutate(ctx, m, paymentRequest{Amount: amount, Currency: s.c.payments.Currency})
}
