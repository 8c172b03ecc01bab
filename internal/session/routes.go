package session

import "strings"

// Routes classifies paths and names the redirect targets.
type Routes struct {
	// PublicExact lists paths that are public only as an exact match.
	PublicExact []string

	// PublicPrefixes lists path prefixes that are public, along with
	// everything below them.
	PublicPrefixes []string

	// Landing is the public landing page and the logout target.
	Landing string

	// Login is where anonymous visitors of protected paths are sent.
	Login string

	// Home is where authenticated visitors of Landing are sent.
	Home string
}

// DefaultRoutes returns the platform's route table.
func DefaultRoutes() Routes {
	return Routes{
		PublicExact:    []string{"/"},
		PublicPrefixes: []string{"/login", "/signup"},
		Landing:        "/",
		Login:          "/login",
		Home:           "/dashboard",
	}
}

// IsPublic reports whether path can be rendered without an identity.
func (r Routes) IsPublic(path string) bool {
	path = cleanPath(path)
	for _, p := range r.PublicExact {
		if path == p {
			return true
		}
	}
	for _, p := range r.PublicPrefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// cleanPath drops the query string and fragment.
func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}
