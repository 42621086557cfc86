package token

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"timebase-node/errcode"
	"timebase-node/x/clock"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type countMem struct{ collects int }

func (m *countMem) Stats() (uint64, uint64) { return 0, 1 }
func (m *countMem) Collect()                { m.collects++ }

type lamp struct {
	on      bool
	history []bool
}

func (l *lamp) Set(on bool) { l.on = on; l.history = append(l.history, on) }

// authServer answers /oauth/token. Grants listed in reject get a 401.
type authServer struct {
	mu     sync.Mutex
	grants []string
	reject map[string]bool
	body   string // overrides the success body when set
	auth   []string
}

func (a *authServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/oauth/token" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g := r.PostForm.Get("grant_type")
	a.mu.Lock()
	a.grants = append(a.grants, g)
	a.auth = append(a.auth, r.Header.Get("Authorization"))
	a.mu.Unlock()
	if a.reject[g] {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
		return
	}
	if a.body != "" {
		io.WriteString(w, a.body)
		return
	}
	fmt.Fprintf(w, `{"access_token":"acc-%d","refresh_token":"ref-%d","expires_in":3600}`, len(a.grants), len(a.grants))
}

func newManager(t *testing.T, a *authServer, cfg Config) (*Manager, *clock.FakeClock, *countMem, *lamp) {
	t.Helper()
	srv := httptest.NewServer(a)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	if cfg.ClientID == "" {
		cfg.ClientID, cfg.ClientSecret = "web", "secret"
	}
	clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	mem, busy := &countMem{}, &lamp{}
	return New(srv.Client(), cfg, clk, mem, busy, quiet()), clk, mem, busy
}

func TestPasswordGrant(t *testing.T) {
	a := &authServer{}
	m, clk, mem, busy := newManager(t, a, Config{Username: "u", Password: "p"})

	if err := m.Acquire(context.Background(), ""); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	st := m.State()
	if st.AccessToken != "acc-1" || st.RefreshToken != "ref-1" {
		t.Fatalf("state = %+v", st)
	}
	if want := clk.Now().Add(time.Hour); !st.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", st.ExpiresAt, want)
	}
	if a.grants[0] != "password" {
		t.Fatalf("grant = %q", a.grants[0])
	}
	if a.auth[0] != "Basic d2ViOnNlY3JldA==" {
		t.Fatalf("Authorization = %q", a.auth[0])
	}
	if mem.collects != 2 {
		t.Fatalf("collects = %d, want 2", mem.collects)
	}
	if busy.on || len(busy.history) != 2 || !busy.history[0] {
		t.Fatalf("busy history = %v", busy.history)
	}
}

func TestEnsureReusesValidToken(t *testing.T) {
	a := &authServer{}
	m, clk, _, _ := newManager(t, a, Config{})
	ctx := context.Background()

	tok, err := m.Ensure(ctx)
	if err != nil || tok != "acc-1" {
		t.Fatalf("Ensure = %q, %v", tok, err)
	}
	clk.Advance(59 * time.Minute)
	if tok, _ := m.Ensure(ctx); tok != "acc-1" {
		t.Fatalf("second Ensure = %q", tok)
	}
	if len(a.grants) != 1 {
		t.Fatalf("requests = %d, want 1", len(a.grants))
	}
}

func TestEnsureRefreshesExpiredToken(t *testing.T) {
	a := &authServer{}
	m, clk, _, _ := newManager(t, a, Config{})
	ctx := context.Background()

	if _, err := m.Ensure(ctx); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Hour)
	tok, err := m.Ensure(ctx)
	if err != nil || tok != "acc-2" {
		t.Fatalf("Ensure = %q, %v", tok, err)
	}
	if a.grants[1] != "refresh_token" {
		t.Fatalf("grants = %v", a.grants)
	}
}

func TestRefreshFailureFallsBackToPassword(t *testing.T) {
	a := &authServer{reject: map[string]bool{"refresh_token": true}}
	m, _, _, _ := newManager(t, a, Config{RefreshToken: "stale"})

	tok, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if tok != "acc-2" {
		t.Fatalf("token = %q", tok)
	}
	if len(a.grants) != 2 || a.grants[0] != "refresh_token" || a.grants[1] != "password" {
		t.Fatalf("grants = %v", a.grants)
	}
}

func TestRejectedGrantLeavesStateUnset(t *testing.T) {
	a := &authServer{reject: map[string]bool{"password": true}}
	m, _, mem, busy := newManager(t, a, Config{})

	err := m.Acquire(context.Background(), "")
	if !errcode.Is(err, errcode.Rejected) {
		t.Fatalf("err = %v, want rejected", err)
	}
	if m.State().AccessToken != "" || m.State().RefreshToken != "" {
		t.Fatalf("state = %+v", m.State())
	}
	if mem.collects != 2 || busy.on {
		t.Fatalf("collects = %d, busy = %v", mem.collects, busy.on)
	}
	if _, err := m.Ensure(context.Background()); !errcode.Is(err, errcode.NoToken) {
		t.Fatalf("Ensure err = %v, want no_token", err)
	}
}

func TestMalformedBody(t *testing.T) {
	for _, body := range []string{`not json`, `{"access_token":"a","refresh_token":"r"}`} {
		a := &authServer{body: body}
		m, _, _, _ := newManager(t, a, Config{})
		if err := m.Acquire(context.Background(), ""); !errcode.Is(err, errcode.Decode) {
			t.Fatalf("%s: err = %v, want decode", body, err)
		}
		if m.State().AccessToken != "" {
			t.Fatalf("%s: state set", body)
		}
	}
}

func TestTransportFailure(t *testing.T) {
	a := &authServer{}
	srv := httptest.NewServer(a)
	base := srv.URL
	srv.Close()
	m := New(http.DefaultClient, Config{BaseURL: base}, clock.Fake(time.Unix(0, 0)), &countMem{}, nil, quiet())
	if err := m.Acquire(context.Background(), ""); !errcode.Is(err, errcode.Transport) {
		t.Fatalf("err = %v, want transport", err)
	}
}
