package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a resource identifier. The backend sends some ids as numbers and
// others as strings; both decode into ID.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Envelope is the backend's standard response wrapper.
type Envelope[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status"`
	Success bool   `json:"success"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginated is a page of T.
type Paginated[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted, CampaignCancelled:
		return true
	}
	return false
}

// Campaign is a brand campaign.
type Campaign struct {
	ID                  ID             `json:"id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	BrandName           string         `json:"brand_name,omitempty"`
	CampaignType        string         `json:"campaign_type"`
	Budget              float64        `json:"budget"`
	StartDate           string         `json:"start_date"`
	EndDate             string         `json:"end_date"`
	TargetAudience      string         `json:"target_audience"`
	ContentRequirements string         `json:"content_requirements"`
	Deliverables        string         `json:"deliverables"`
	Status              CampaignStatus `json:"status"`
	CreatedAt           string         `json:"created_at"`
	InfluencersReached  int            `json:"influencers_reached"`
}

// TextValue is the {"value": ...} wrapper the campaign form submits free text in.
type TextValue struct {
	Value string `json:"value"`
}

// CampaignInput is the create and update payload.
type CampaignInput struct {
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	BrandName           string    `json:"brand_name"`
	CampaignType        string    `json:"campaign_type"`
	Budget              float64   `json:"budget"`
	StartDate           string    `json:"start_date"`
	EndDate             string    `json:"end_date"`
	TargetAudience      TextValue `json:"target_audience"`
	ContentRequirements TextValue `json:"content_requirements"`
	Deliverables        TextValue `json:"deliverables"`
}

// Creator is a creator profile as returned by search.
type Creator struct {
	ID                 ID       `json:"id"`
	Email              string   `json:"email"`
	Username           string   `json:"username"`
	FullName           string   `json:"full_name"`
	Bio                string   `json:"bio"`
	Location           string   `json:"location"`
	Category           string   `json:"category"`
	InstagramHandle    *string  `json:"instagram_handle"`
	InstagramFollowers *int64   `json:"instagram_followers"`
	YouTubeHandle      *string  `json:"youtube_handle"`
	YouTubeSubscribers *int64   `json:"youtube_subscribers"`
	TikTokHandle       *string  `json:"tiktok_handle"`
	TikTokFollowers    *int64   `json:"tiktok_followers"`
	TwitterHandle      *string  `json:"twitter_handle"`
	TwitterFollowers   *int64   `json:"twitter_followers"`
	BaseRate           float64  `json:"base_rate"`
	EngagementRate     float64  `json:"engagement_rate"`
	Languages          []string `json:"languages"`
	ContentTypes       []string `json:"content_types"`
	IsVerified         bool     `json:"is_verified"`
	IsActive           bool     `json:"is_active"`
	ProfileImageURL    string   `json:"profile_image_url"`
	MediaKitURL        string   `json:"media_kit_url"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`

	// MatchScore is the search similarity as a whole percentage, nil when
	// the search returned no score for this creator.
	MatchScore *int `json:"match_score"`
}

// CampaignCreator is a creator's participation in a campaign.
type CampaignCreator struct {
	ID                    ID      `json:"id"`
	CampaignID            ID      `json:"campaign_id"`
	CreatorID             ID      `json:"creator_id"`
	OfferedRate           float64 `json:"offered_rate"`
	NegotiatedRate        float64 `json:"negotiated_rate"`
	FinalRate             float64 `json:"final_rate"`
	DeliverablesTotal     int     `json:"deliverables_total"`
	DeliverablesCompleted int     `json:"deliverables_completed"`
	Status                string  `json:"status"`
	InvitedAt             string  `json:"invited_at"`
	AcceptedAt            string  `json:"accepted_at"`
	CompletedAt           string  `json:"completed_at"`
}

// ChatMessage is one turn of a negotiation conversation.
type ChatMessage struct {
	ID        ID     `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the message time. Timestamps are Unix seconds.
func (m ChatMessage) Time() time.Time { return time.Unix(m.Timestamp, 0) }

// DashboardStats summarises a brand's account.
type DashboardStats struct {
	TotalCampaigns    int     `json:"total_campaigns"`
	ActiveCampaigns   int     `json:"active_campaigns"`
	TotalCreators     int     `json:"total_creators"`
	TotalSpend        float64 `json:"total_spend"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// CampaignAnalytics reports a single campaign's performance.
type CampaignAnalytics struct {
	CampaignID     ID      `json:"campaign_id"`
	Reach          int64   `json:"reach"`
	Impressions    int64   `json:"impressions"`
	Engagements    int64   `json:"engagements"`
	EngagementRate float64 `json:"engagement_rate"`
	Spend          float64 `json:"spend"`
}

// InfluencerAnalytics reports a creator's performance across campaigns.
type InfluencerAnalytics struct {
	CreatorID      ID      `json:"creator_id"`
	Followers      int64   `json:"followers"`
	EngagementRate float64 `json:"engagement_rate"`
	Campaigns      int     `json:"campaigns"`
	Earnings       float64 `json:"earnings"`
}

// PaymentIntent is the client half of a card payment.
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}

// FormatCount renders follower counts the way the creator cards do: 1.2M, 3.4K.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	}
	return strconv.FormatInt(n, 10)
}
