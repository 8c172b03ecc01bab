package identity

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// MinPasswordLength is the shortest password accepted at sign up.
const MinPasswordLength = 6

// Registration is a sign up payload.
type Registration interface {
	Kind() Kind
	// Validate returns messages keyed by field, or nil when the payload is
	// acceptable.
	Validate() map[string][]string
}

// BrandRegistration signs up a brand user.
type BrandRegistration struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
	Role        string `json:"role"`
	Password    string `json:"password"`
	Username    string `json:"username"`
}

func (BrandRegistration) Kind() Kind { return KindBrand }

func (r BrandRegistration) Validate() map[string][]string {
	v := validator{}
	v.required("email", r.Email, "Email is required")
	v.email(r.Email)
	v.required("full_name", r.FullName, "Full name is required")
	v.required("company_name", r.CompanyName, "Company name is required")
	if len(r.Password) < MinPasswordLength {
		v.add("password", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return v.result()
}

// CreatorRegistration signs up a creator with their public profile.
type CreatorRegistration struct {
	Email           string   `json:"email"`
	Username        string   `json:"username"`
	FullName        string   `json:"full_name"`
	PhoneNumber     string   `json:"phone_number"`
	Bio             string   `json:"bio"`
	Location        string   `json:"location"`
	Category        string   `json:"category"`
	InstagramHandle string   `json:"instagram_handle,omitempty"`
	YouTubeHandle   string   `json:"youtube_handle,omitempty"`
	TikTokHandle    string   `json:"tiktok_handle,omitempty"`
	TwitterHandle   string   `json:"twitter_handle,omitempty"`
	BaseRate        float64  `json:"base_rate"`
	EngagementRate  float64  `json:"engagement_rate"`
	Languages       []string `json:"languages"`
	ContentTypes    []string `json:"content_types"`
	Password        string   `json:"password,omitempty"`
}

func (CreatorRegistration) Kind() Kind { return KindCreator }

func (r CreatorRegistration) Validate() map[string][]string {
	v := validator{}
	v.required("email", r.Email, "Email is required")
	v.email(r.Email)
	v.required("username", r.Username, "Username is required")
	v.required("full_name", r.FullName, "Full name is required")
	v.required("phone_number", r.PhoneNumber, "Phone number is required")
	if r.PhoneNumber != "" && len(r.PhoneNumber) < 10 {
		v.add("phone_number", "Please enter a valid phone number")
	}
	v.required("bio", r.Bio, "Bio is required")
	v.required("location", r.Location, "Location is required")
	v.required("category", r.Category, "Category is required")
	if r.BaseRate <= 0 {
		v.add("base_rate", "Base rate is required and must be greater than 0")
	}
	if r.EngagementRate <= 0 {
		v.add("engagement_rate", "Engagement rate is required and must be greater than 0")
	}
	if len(r.Languages) == 0 {
		v.add("languages", "At least one language is required")
	}
	if len(r.ContentTypes) == 0 {
		v.add("content_types", "At least one content type is required")
	}
	if r.InstagramHandle == "" && r.YouTubeHandle == "" && r.TikTokHandle == "" && r.TwitterHandle == "" {
		v.add("handles", "At least one social media handle is required")
	}
	return v.result()
}

// GenerateUsername derives a username from the local part of email plus a
// numeric suffix.
func GenerateUsername(email string, suffix int) string {
	local, _, _ := strings.Cut(email, "@")
	return fmt.Sprintf("%s%d", nonAlphanumeric.ReplaceAllString(local, ""), suffix)
}

type validator map[string][]string

func (v validator) add(field, msg string) { v[field] = append(v[field], msg) }

func (v validator) required(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, msg)
	}
}

func (v validator) email(value string) {
	if value != "" && !emailPattern.MatchString(value) {
		v.add("email", "Please enter a valid email address")
	}
}

func (v validator) result() map[string][]string {
	if len(v) == 0 {
		return nil
	}
	return v
}
