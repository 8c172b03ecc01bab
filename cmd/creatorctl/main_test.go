package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/mockapi"
	"github.com/tjfontaine/creatorlink/pkg/creatorlink"
)

type harness struct {
	t      *testing.T
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := mockapi.New(mockapi.Options{
		JWTSecret: "cli-test",
		TokenTTL:  time.Hour,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if _, err := srv.Store.AddUser(mockapi.User{
		Email:    "brand@glow.in",
		FullName: "Glow Cosmetics",
		Kind:     identity.KindBrand,
	}, "secret123"); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	t.Setenv("CREATORLINK_API__BASE_URL", ts.URL)
	t.Setenv("CREATORLINK_TOKENS__STORE", "sqlite")
	t.Setenv("CREATORLINK_TOKENS__SQLITE__PATH", filepath.Join(dir, "tokens.db"))
	return &harness{t: t, config: filepath.Join(dir, "missing.yaml")}
}

// run executes one creatorctl invocation, as a fresh process would.
func (h *harness) run(args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	a := &app{out: &out, errOut: &errOut}
	argv := append([]string{"creatorctl", "--config", h.config, "--log-level", "error"}, args...)
	err = a.root().Run(context.Background(), argv)
	return out.String(), errOut.String(), err
}

func TestCreatorctl_SessionAcrossInvocations(t *testing.T) {
	h := newHarness(t)

	_, stderr, err := h.run("campaigns", "list")
	if !errors.Is(err, errNotSignedIn) {
		t.Fatalf("campaigns list while signed out: err = %v", err)
	}
	if !strings.Contains(stderr, "-> /login") {
		t.Errorf("stderr = %q, want login redirect", stderr)
	}

	out, _, err := h.run("login", "--email", "brand@glow.in", "--password", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in as brand@glow.in (brand)") {
		t.Errorf("login output = %q", out)
	}

	out, _, err = h.run("campaigns", "create", "--title", "Diwali Glow", "--budget", "50000")
	if err != nil {
		t.Fatalf("campaigns create: %v", err)
	}
	if !strings.Contains(out, "Diwali Glow") {
		t.Errorf("create output = %q", out)
	}

	out, _, err = h.run("--json", "campaigns", "list")
	if err != nil {
		t.Fatalf("campaigns list: %v", err)
	}
	var list []creatorlink.Campaign
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].Title != "Diwali Glow" || list[0].Budget != 50000 {
		t.Errorf("list = %+v", list)
	}

	out, _, err = h.run("whoami")
	if err != nil || !strings.Contains(out, "brand@glow.in") {
		t.Errorf("whoami = %q, %v", out, err)
	}

	if _, _, err := h.run("logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, _, _ = h.run("whoami")
	if !strings.Contains(out, "Not signed in") {
		t.Errorf("whoami after logout = %q", out)
	}
}

func TestCreatorctl_VoiceAgentFromEnv(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("voice")
	if err != nil || !strings.Contains(out, "not configured") {
		t.Errorf("voice without id = %q, %v", out, err)
	}

	t.Setenv("CREATORLINK_VOICE__AGENT_ID", "agent_7f3c")
	out, _, err = h.run("--json", "voice")
	if err != nil {
		t.Fatalf("voice: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil || got["agent_id"] != "agent_7f3c" {
		t.Errorf("voice output = %q, %v", out, err)
	}
}

func TestCreatorctl_ValidationMessages(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run("login", "--email", "brand@glow.in", "--password", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	_, _, err := h.run("campaigns", "create",
		"--title", "Backwards",
		"--budget", "10",
		"--start", "2026-05-01",
		"--end", "2026-04-01",
	)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := describe(err)
	if !strings.Contains(msg, "end_date: End date must be after start date") {
		t.Errorf("describe() = %q", msg)
	}
}

func TestCreatorctl_UnknownStatusRejected(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run("login", "--email", "brand@glow.in", "--password", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, _, err := h.run("campaigns", "status", "101", "archived")
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestAudience(t *testing.T) {
	ig, yt := int64(5200), int64(1_240_000)
	c := creatorlink.Creator{InstagramFollowers: &ig, YouTubeSubscribers: &yt}
	if got := audience(c); got != yt {
		t.Errorf("audience() = %d, want %d", got, yt)
	}
	if got := audience(creatorlink.Creator{}); got != 0 {
		t.Errorf("audience(empty) = %d", got)
	}
}
