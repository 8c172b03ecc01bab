// Package testutil replays recorded backend traffic for package tests.
package testutil

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// RecordEnv switches cassettes to recording when set to "record".
const RecordEnv = "VCR_MODE"

// Cassette returns an HTTP client that replays testdata/fixtures/<name>.yaml
// and is closed when the test ends.
//
// With VCR_MODE=record the requests reach the backend on the transport's
// default base URL (start one with `mockapi`) and the cassette is rewritten.
func Cassette(t *testing.T, name string) *http.Client {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv(RecordEnv) == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), mode, nil)
	if err != nil {
		t.Fatalf("open cassette %s: %v", name, err)
	}
	r.SetMatcher(MatchRequest)
	r.AddFilter(ScrubCredentials)

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("close cassette %s: %v", name, err)
		}
	})
	return &http.Client{Transport: r}
}

// MatchRequest matches a live request to a recorded one by method, path and
// query values. Host, query order, headers and bodies are ignored, so search
// parameters may be encoded in any order.
func MatchRequest(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method {
		return false
	}
	u, err := url.Parse(i.URL)
	if err != nil {
		return false
	}
	return r.URL.Path == u.Path && r.URL.Query().Encode() == u.Query().Encode()
}

// ScrubCredentials drops bearer tokens and cookies before a cassette is
// written.
func ScrubCredentials(i *cassette.Interaction) error {
	delete(i.Request.Headers, "Authorization")
	delete(i.Request.Headers, "Cookie")
	delete(i.Response.Headers, "Set-Cookie")
	return nil
}
