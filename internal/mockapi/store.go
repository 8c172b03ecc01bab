package mockapi

import (
	"cmp"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/platform"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidLogin = errors.New("incorrect email or password")
)

// User is an account on the stub backend.
type User struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name"`
	Username    string        `json:"username,omitempty"`
	CompanyName string        `json:"company_name,omitempty"`
	Kind        identity.Kind `json:"user_type"`
	password    string
}

type campaignRecord struct {
	owner string
	platform.Campaign
}

// Store keeps every resource in memory. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	nextID    int
	users     map[string]*User // by lower-cased email
	campaigns map[platform.ID]*campaignRecord
	creators  []platform.Creator
	rosters   map[platform.ID][]platform.CampaignCreator
	chats     map[string][]platform.ChatMessage
}

// NewStore creates a store seeded with creators.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{
		now:       now,
		nextID:    100,
		users:     make(map[string]*User),
		campaigns: make(map[platform.ID]*campaignRecord),
		rosters:   make(map[platform.ID][]platform.CampaignCreator),
		chats:     make(map[string][]platform.ChatMessage),
		creators:  seedCreators(),
	}
	return s
}

func (s *Store) id() platform.ID {
	s.nextID++
	return platform.ID(strconv.Itoa(s.nextID))
}

func (s *Store) timestamp() string { return s.now().UTC().Format(time.RFC3339) }

// AddUser registers an account.
func (s *Store) AddUser(u User, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.users[key]; ok {
		return nil, ErrEmailTaken
	}
	u.ID = "u-" + s.id().String()
	u.password = password
	s.users[key] = &u
	return &u, nil
}

// Authenticate checks an email and password.
func (s *Store) Authenticate(email, password string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok || u.password != password {
		return nil, ErrInvalidLogin
	}
	return u, nil
}

// Campaigns lists owner's campaigns, newest first.
func (s *Store) Campaigns(owner string) []platform.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []platform.Campaign{}
	for _, rec := range s.campaigns {
		if rec.owner == owner {
			out = append(out, s.withReach(rec.Campaign))
		}
	}
	slices.SortFunc(out, func(a, b platform.Campaign) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// Campaign returns one of owner's campaigns.
func (s *Store) Campaign(owner string, id platform.ID) (platform.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.campaigns[id]
	if !ok || rec.owner != owner {
		return platform.Campaign{}, ErrNotFound
	}
	return s.withReach(rec.Campaign), nil
}

func (s *Store) withReach(c platform.Campaign) platform.Campaign {
	c.InfluencersReached = len(s.rosters[c.ID])
	return c
}

// CreateCampaign stores a new draft campaign.
func (s *Store) CreateCampaign(owner, brand string, in platform.CampaignInput) platform.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := applyInput(platform.Campaign{
		ID:        s.id(),
		Status:    platform.CampaignDraft,
		CreatedAt: s.timestamp(),
		BrandName: brand,
	}, in)
	s.campaigns[c.ID] = &campaignRecord{owner: owner, Campaign: c}
	return c
}

// UpdateCampaign replaces a campaign's editable fields.
func (s *Store) UpdateCampaign(owner string, id platform.ID, in platform.CampaignInput) (platform.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.campaigns[id]
	if !ok || rec.owner != owner {
		return platform.Campaign{}, ErrNotFound
	}
	rec.Campaign = applyInput(rec.Campaign, in)
	return s.withReach(rec.Campaign), nil
}

// SetStatus moves a campaign to status.
func (s *Store) SetStatus(owner string, id platform.ID, status platform.CampaignStatus) (platform.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.campaigns[id]
	if !ok || rec.owner != owner {
		return platform.Campaign{}, ErrNotFound
	}
	rec.Status = status
	return s.withReach(rec.Campaign), nil
}

// DeleteCampaign removes a campaign with its roster and chats.
func (s *Store) DeleteCampaign(owner string, id platform.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.campaigns[id]
	if !ok || rec.owner != owner {
		return ErrNotFound
	}
	delete(s.campaigns, id)
	delete(s.rosters, id)
	prefix := id.String() + "/"
	for k := range s.chats {
		if strings.HasPrefix(k, prefix) {
			delete(s.chats, k)
		}
	}
	return nil
}

func applyInput(c platform.Campaign, in platform.CampaignInput) platform.Campaign {
	c.Title = in.Title
	c.Description = in.Description
	if in.BrandName != "" {
		c.BrandName = in.BrandName
	}
	c.CampaignType = in.CampaignType
	c.Budget = in.Budget
	c.StartDate = in.StartDate
	c.EndDate = in.EndDate
	c.TargetAudience = in.TargetAudience.Value
	c.ContentRequirements = in.ContentRequirements.Value
	c.Deliverables = in.Deliverables.Value
	return c
}

// Roster returns the creators attached to one of owner's campaigns.
func (s *Store) Roster(owner string, campaignID platform.ID) ([]platform.CampaignCreator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.campaigns[campaignID]; !ok || rec.owner != owner {
		return nil, ErrNotFound
	}
	return append([]platform.CampaignCreator{}, s.rosters[campaignID]...), nil
}

// Invite adds creators to a campaign. Creators already on the roster are
// skipped; unknown creators are an error.
func (s *Store) Invite(owner string, campaignID platform.ID, creatorIDs []platform.ID) ([]platform.CampaignCreator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.campaigns[campaignID]
	if !ok || rec.owner != owner {
		return nil, ErrNotFound
	}
	for _, cid := range creatorIDs {
		creator, ok := s.creator(cid)
		if !ok {
			return nil, ErrNotFound
		}
		if slices.ContainsFunc(s.rosters[campaignID], func(cc platform.CampaignCreator) bool { return cc.CreatorID == cid }) {
			continue
		}
		s.rosters[campaignID] = append(s.rosters[campaignID], platform.CampaignCreator{
			ID:          s.id(),
			CampaignID:  campaignID,
			CreatorID:   cid,
			OfferedRate: creator.BaseRate,
			Status:      "invited",
			InvitedAt:   s.timestamp(),
		})
		key := chatKey(campaignID, cid)
		s.chats[key] = append(s.chats[key], platform.ChatMessage{
			ID:        s.id(),
			Role:      "assistant",
			Content:   "Hi " + creator.FullName + ", we'd love to have you on " + rec.Title + ".",
			Timestamp: s.now().Unix(),
		})
	}
	return append([]platform.CampaignCreator{}, s.rosters[campaignID]...), nil
}

// Chat returns the negotiation transcript for a roster entry.
func (s *Store) Chat(owner string, campaignID, creatorID platform.ID) ([]platform.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.campaigns[campaignID]; !ok || rec.owner != owner {
		return nil, ErrNotFound
	}
	msgs, ok := s.chats[chatKey(campaignID, creatorID)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]platform.ChatMessage{}, msgs...), nil
}

func chatKey(campaignID, creatorID platform.ID) string {
	return campaignID.String() + "/" + creatorID.String()
}

func (s *Store) creator(id platform.ID) (platform.Creator, bool) {
	for _, c := range s.creators {
		if c.ID == id {
			return c, true
		}
	}
	return platform.Creator{}, false
}

// SearchQuery filters creator search.
type SearchQuery struct {
	Text         string
	Category     string
	Location     string
	MinFollowers int64
	MaxFollowers int64
	Limit        int
}

// Search scores creators against the query terms. Scores are the fraction
// of terms found in the creator's profile text.
func (s *Store) Search(q SearchQuery) ([]platform.Creator, []float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(q.Text))
	type hit struct {
		c     platform.Creator
		score float64
	}
	var hits []hit
	for _, c := range s.creators {
		if q.Category != "" && !strings.EqualFold(c.Category, q.Category) {
			continue
		}
		if q.Location != "" && !strings.Contains(strings.ToLower(c.Location), strings.ToLower(q.Location)) {
			continue
		}
		followers := reach(c)
		if q.MinFollowers > 0 && followers < q.MinFollowers {
			continue
		}
		if q.MaxFollowers > 0 && followers > q.MaxFollowers {
			continue
		}

		score := 0.0
		if len(terms) > 0 {
			text := strings.ToLower(strings.Join([]string{c.FullName, c.Username, c.Bio, c.Category, c.Location}, " "))
			matched := 0
			for _, t := range terms {
				if strings.Contains(text, t) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			score = float64(matched) / float64(len(terms))
		}
		hits = append(hits, hit{c: c, score: score})
	}

	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(b.score, a.score) })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	creators := make([]platform.Creator, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		creators[i] = h.c
		scores[i] = h.score
	}
	return creators, scores
}

// Dashboard summarises owner's account.
func (s *Store) Dashboard(owner string) platform.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st platform.DashboardStats
	var engagement float64
	for _, rec := range s.campaigns {
		if rec.owner != owner {
			continue
		}
		st.TotalCampaigns++
		if rec.Status == platform.CampaignActive {
			st.ActiveCampaigns++
		}
		if rec.Status == platform.CampaignActive || rec.Status == platform.CampaignCompleted {
			st.TotalSpend += rec.Budget
		}
		for _, cc := range s.rosters[rec.ID] {
			st.TotalCreators++
			if c, ok := s.creator(cc.CreatorID); ok {
				engagement += c.EngagementRate
			}
		}
	}
	if st.TotalCreators > 0 {
		st.AvgEngagementRate = engagement / float64(st.TotalCreators)
	}
	return st
}

// CampaignAnalytics derives performance numbers from the roster.
func (s *Store) CampaignAnalytics(owner string, id platform.ID) (platform.CampaignAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.campaigns[id]
	if !ok || rec.owner != owner {
		return platform.CampaignAnalytics{}, ErrNotFound
	}
	a := platform.CampaignAnalytics{CampaignID: id, Spend: rec.Budget}
	var rate float64
	for _, cc := range s.rosters[id] {
		c, ok := s.creator(cc.CreatorID)
		if !ok {
			continue
		}
		a.Reach += reach(c)
		rate += c.EngagementRate
	}
	if n := len(s.rosters[id]); n > 0 {
		a.EngagementRate = rate / float64(n)
	}
	a.Impressions = a.Reach * 3
	a.Engagements = int64(float64(a.Impressions) * a.EngagementRate / 100)
	return a, nil
}

// InfluencerAnalytics reports a creator across every campaign.
func (s *Store) InfluencerAnalytics(id platform.ID) (platform.InfluencerAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creator(id)
	if !ok {
		return platform.InfluencerAnalytics{}, ErrNotFound
	}
	a := platform.InfluencerAnalytics{
		CreatorID:      id,
		Followers:      reach(c),
		EngagementRate: c.EngagementRate,
	}
	for _, roster := range s.rosters {
		for _, cc := range roster {
			if cc.CreatorID == id {
				a.Campaigns++
				a.Earnings += cc.OfferedRate
			}
		}
	}
	return a, nil
}

func reach(c platform.Creator) int64 {
	var n int64
	for _, f := range []*int64{c.InstagramFollowers, c.YouTubeSubscribers, c.TikTokFollowers, c.TwitterFollowers} {
		if f != nil {
			n += *f
		}
	}
	return n
}

func seedCreators() []platform.Creator {
	str := func(s string) *string { return &s }
	num := func(n int64) *int64 { return &n }
	return []platform.Creator{
		{
			ID: "7", Email: "asha@example.com", Username: "asha_k", FullName: "Asha Kapoor",
			Bio: "Clean beauty and skincare routines", Location: "Mumbai", Category: "beauty",
			InstagramHandle: str("asha.k"), InstagramFollowers: num(184000),
			BaseRate: 25000, EngagementRate: 4.2, Languages: []string{"en", "hi"},
			ContentTypes: []string{"reels", "stories"}, IsVerified: true, IsActive: true,
		},
		{
			ID: "8", Email: "rohan@example.com", Username: "rohan_fits", FullName: "Rohan Mehta",
			Bio: "Home workouts and fitness nutrition", Location: "Pune", Category: "fitness",
			YouTubeHandle: str("rohanfits"), YouTubeSubscribers: num(1240000),
			BaseRate: 60000, EngagementRate: 3.1, Languages: []string{"en", "hi", "mr"},
			ContentTypes: []string{"videos"}, IsVerified: true, IsActive: true,
		},
		{
			ID: "9", Email: "meera@example.com", Username: "meera.eats", FullName: "Meera Singh",
			Bio: "Street food and vegan recipes", Location: "Delhi", Category: "food",
			InstagramHandle: str("meera.eats"), InstagramFollowers: num(56000),
			TikTokHandle: str("meeraeats"), TikTokFollowers: num(21000),
			BaseRate: 12000, EngagementRate: 6.8, Languages: []string{"en", "hi", "pa"},
			ContentTypes: []string{"reels", "posts"}, IsActive: true,
		},
		{
			ID: "10", Email: "kabir@example.com", Username: "kabir.tech", FullName: "Kabir Rao",
			Bio: "Gadget reviews and tech explainers", Location: "Bengaluru", Category: "tech",
			YouTubeHandle: str("kabirtech"), YouTubeSubscribers: num(410000),
			TwitterHandle: str("kabir_rao"), TwitterFollowers: num(38000),
			BaseRate: 40000, EngagementRate: 2.4, Languages: []string{"en", "kn"},
			ContentTypes: []string{"videos", "threads"}, IsVerified: true, IsActive: true,
		},
	}
}
