// Package token keeps the bearer credential used for uploads.
//
// Two grants are supported against {base}/oauth/token: a password grant and a
// refresh grant. The manager is owned by the sampling loop and is not safe for
// concurrent use.
package token

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"timebase-node/errcode"
	"timebase-node/types"
	"timebase-node/x/clock"
	"timebase-node/x/memx"
)

// Doer is the part of *http.Client the manager needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	// RefreshToken, if set, is tried before the first password grant.
	RefreshToken string
}

type Manager struct {
	http  Doer
	cfg   Config
	clk   clock.Clock
	mem   memx.Reclaimer
	busy  types.Indicator
	log   *slog.Logger
	state types.TokenState
}

func New(h Doer, cfg Config, clk clock.Clock, mem memx.Reclaimer, busy types.Indicator, log *slog.Logger) *Manager {
	if busy == nil {
		busy = types.NopIndicator{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Manager{http: h, cfg: cfg, clk: clk, mem: mem, busy: busy, log: log.With("svc", "token")}
}

// State returns the held token state.
func (m *Manager) State() types.TokenState { return m.state }

type grantResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"expires_in"`
}

// Acquire runs a password grant when refresh is empty and a refresh grant
// otherwise. On success the state is replaced; on any failure it is reset.
func (m *Manager) Acquire(ctx context.Context, refresh string) error {
	m.state = types.TokenState{}
	m.busy.Set(true)
	m.mem.Collect()
	defer func() {
		m.busy.Set(false)
		m.mem.Collect()
	}()

	form := url.Values{}
	grant := "password"
	if refresh == "" {
		form.Set("grant_type", "password")
		form.Set("scope", "trust")
		form.Set("username", m.cfg.Username)
		form.Set("password", m.cfg.Password)
	} else {
		grant = "refresh_token"
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refresh)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return errcode.Wrap(errcode.Error, "token.request", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := m.http.Do(req)
	if err != nil {
		m.log.Warn("grant failed", "grant", grant, "err", err)
		return errcode.Wrap(errcode.Transport, "token."+grant, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errcode.Wrap(errcode.Transport, "token."+grant, err)
	}
	if res.StatusCode/100 != 2 {
		m.log.Warn("grant rejected", "grant", grant, "status", res.StatusCode, "body", string(body))
		return errcode.New(errcode.Rejected, "token."+grant, strconv.Itoa(res.StatusCode))
	}

	var g grantResponse
	if err := json.Unmarshal(body, &g); err != nil {
		return errcode.Wrap(errcode.Decode, "token."+grant, err)
	}
	if g.AccessToken == "" || g.RefreshToken == "" || g.ExpiresIn == nil {
		return errcode.New(errcode.Decode, "token."+grant, "incomplete grant response")
	}

	m.state = types.TokenState{
		RefreshToken: g.RefreshToken,
		AccessToken:  g.AccessToken,
		ExpiresAt:    m.clk.Now().Add(time.Duration(*g.ExpiresIn) * time.Second),
	}
	m.log.Info("token acquired", "grant", grant, "expires_in", *g.ExpiresIn)
	return nil
}

// Ensure returns a valid access token, requesting one only when the held
// token is absent or expired. A refresh grant is tried first when a refresh
// token is known; a password grant follows if that fails.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	if m.state.Valid(m.clk.Now()) {
		return m.state.AccessToken, nil
	}
	refresh := m.state.RefreshToken
	if refresh == "" {
		refresh = m.cfg.RefreshToken
	}
	if refresh != "" {
		if err := m.Acquire(ctx, refresh); err == nil {
			return m.state.AccessToken, nil
		}
	}
	if err := m.Acquire(ctx, ""); err != nil {
		return "", &errcode.E{C: errcode.NoToken, Op: "token.ensure", Err: err}
	}
	return m.state.AccessToken, nil
}
