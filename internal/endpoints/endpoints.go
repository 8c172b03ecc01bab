// Package endpoints holds the backend path templates and the substitution
// rules used to turn a template plus a payload into a dispatchable URL.
//
// Templates use a single placeholder syntax, {name}. Legacy :name segments are
// accepted and normalized before resolution.
package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Logical endpoint names.
const (
	Login               = "login"
	Register            = "register"
	RegisterCreator     = "register-creator"
	CreatorsList        = "creators-list"
	Campaigns           = "campaigns"
	CampaignDetails     = "campaign-details"
	CreateCampaign      = "create-campaign"
	UpdateCampaign      = "update-campaign"
	DeleteCampaign      = "delete-campaign"
	CampaignCreators    = "campaign-creators"
	CampaignStatus      = "campaign-status"
	CampaignInvite      = "campaign-invite"
	CampaignChat        = "campaign-chat"
	CampaignPayment     = "campaign-payment"
	CampaignAnalytics   = "campaign-analytics"
	InfluencerAnalytics = "influencer-analytics"
	DashboardStats      = "dashboard-stats"
)

var templates = map[string]string{
	Login:               "/auth/login",
	Register:            "/auth/register/user",
	RegisterCreator:     "/auth/register/creator",
	CreatorsList:        "/creators/search",
	Campaigns:           "/campaigns/",
	CampaignDetails:     "/campaigns/{id}",
	CreateCampaign:      "/campaigns",
	UpdateCampaign:      "/campaigns/{id}",
	DeleteCampaign:      "/campaigns/{id}",
	CampaignCreators:    "/campaigns/{campaign_id}/creators",
	CampaignStatus:      "/campaigns/{id}/status",
	CampaignInvite:      "/campaigns/{campaign_id}/invite",
	CampaignChat:        "/campaigns/{campaign_id}/creators/{creator_id}/chat",
	CampaignPayment:     "/campaigns/payment",
	CampaignAnalytics:   "/analytics/campaigns/{id}",
	InfluencerAnalytics: "/analytics/influencers/{id}",
	DashboardStats:      "/analytics/dashboard",
}

// ErrMissingParam is returned when a template placeholder has no value.
var ErrMissingParam = errors.New("missing url parameter")

// ErrUnknownEndpoint is returned by Lookup for names not in the map.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

var (
	legacyParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)
	braceParam  = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Lookup returns the path template registered under name.
func Lookup(name string) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return t, nil
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) string {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns every registered logical name.
func Names() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	return names
}

// Normalize rewrites :name placeholders to {name}.
func Normalize(template string) string {
	return legacyParam.ReplaceAllString(template, "{$1}")
}

// Placeholders lists the placeholder names of a template in order of appearance.
func Placeholders(template string) []string {
	matches := braceParam.FindAllStringSubmatch(Normalize(template), -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Resolve substitutes every placeholder in template with the matching entry
// of params. Any placeholder left without a value is an error; nothing is
// dispatched with a literal placeholder in it.
func Resolve(template string, params map[string]string) (string, error) {
	template = Normalize(template)

	var missing []string
	resolved := braceParam.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok || v == "" {
			missing = append(missing, name)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s in %q", ErrMissingParam, strings.Join(missing, ", "), template)
	}
	return resolved, nil
}

// Paramer is implemented by payloads that know their own URL parameters.
type Paramer interface {
	URLParams() map[string]string
}

// ParamsOf derives URL parameters from a write payload. A bare scalar binds
// to "id"; maps contribute their scalar entries; anything else is encoded to
// JSON and its top-level scalar fields are used.
func ParamsOf(v any) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	if p, ok := v.(Paramer); ok {
		return p.URLParams()
	}
	if s, ok := scalarString(v); ok {
		return map[string]string{"id": s}
	}

	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]string{}
	}
	out := map[string]string{}
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String, gjson.Number:
			out[key.String()] = value.String()
		case gjson.True, gjson.False:
			out[key.String()] = strconv.FormatBool(value.Bool())
		}
		return true
	})
	return out
}

func scalarString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	}
	return "", false
}

// WithQuery appends an encoded query string to path. Empty values are kept
// out so cache keys stay stable.
func WithQuery(path string, q url.Values) string {
	clean := url.Values{}
	for k, vs := range q {
		for _, v := range vs {
			if v != "" {
				clean.Add(k, v)
			}
		}
	}
	if len(clean) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + clean.Encode()
}
