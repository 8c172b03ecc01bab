// Package creatorlink provides the public API for embedding the platform
// client. This is the stable API for external consumers.
package creatorlink

import (
	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/platform"
	"github.com/tjfontaine/creatorlink/internal/runtime"
	"github.com/tjfontaine/creatorlink/internal/session"
)

// Client is the assembled platform client.
// See internal/runtime.Client for full documentation.
type Client = runtime.Client

// Option is a functional option for configuring a Client.
type Option = runtime.Option

// Re-exported domain types.
type (
	Identity            = identity.Identity
	BrandRegistration   = identity.BrandRegistration
	CreatorRegistration = identity.CreatorRegistration
	Navigator           = session.Navigator
	NavigatorFunc       = session.NavigatorFunc
	Routes              = session.Routes

	Campaign       = platform.Campaign
	CampaignInput  = platform.CampaignInput
	CampaignStatus = platform.CampaignStatus
	Creator        = platform.Creator
	SearchParams   = platform.SearchParams
	DashboardStats = platform.DashboardStats
)

// New creates a new Client with the given options.
// Example:
//
//	c, err := creatorlink.New(ctx,
//	    creatorlink.WithFileConfig("creatorlink.yaml"),
//	    creatorlink.WithSQLiteTokens("./data/creatorlink.db"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithFileConfig = runtime.WithFileConfig

	// Token storage
	WithTokenStore   = runtime.WithTokenStore
	WithMemoryTokens = runtime.WithMemoryTokens
	WithSQLiteTokens = runtime.WithSQLiteTokens

	// Session
	WithNavigator = runtime.WithNavigator
	WithRoutes    = runtime.WithRoutes

	// Advanced options
	WithHTTPClient = runtime.WithHTTPClient
	WithLogger     = runtime.WithLogger
)

// DefaultRoutes returns the platform's public route table.
var DefaultRoutes = session.DefaultRoutes
