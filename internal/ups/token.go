package ups

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/labelsweep/internal/common"
	"github.com/noah-isme/labelsweep/internal/obs"
)

const maxAuthBodyDiagnostic = 2048

// TokenProvider performs the UPS OAuth client-credentials exchange and caches
// the bearer token in memory for the rest of the run. The token never leaves
// this type except as the return value of Token, is never persisted and never
// logged. The mutex is held across a refresh, so concurrent callers arriving
// during an exchange wait for the one in flight instead of issuing their own.
type TokenProvider struct {
	HTTP         *http.Client
	URL          string
	ClientID     string
	ClientSecret string
	Logger       *zerolog.Logger

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// Token returns the cached bearer token, fetching a fresh one when none is
// cached or the previous one was invalidated.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	return p.fetchLocked(ctx)
}

// Invalidate discards the cached token, but only when stale still is the
// current one. A caller reacting to a 401 on a token that has already been
// replaced must not throw away the fresh token.
func (p *TokenProvider) Invalidate(stale string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stale == p.token {
		p.token = ""
	}
}

func (p *TokenProvider) fetchLocked(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", common.NewAppError(common.CodeAuthFailed, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.ClientID, p.ClientSecret)

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		obs.ObserveTokenRefresh("failed")
		return "", common.NewAppError(common.CodeAuthFailed, "token exchange", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxAuthBodyDiagnostic))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		obs.ObserveTokenRefresh("failed")
		// body kept for diagnostics; credentials are never part of it
		return "", common.NewAppError(common.CodeAuthFailed,
			fmt.Sprintf("token exchange returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		obs.ObserveTokenRefresh("failed")
		return "", common.NewAppError(common.CodeAuthFailed, "decode token response", err)
	}
	if payload.AccessToken == "" {
		obs.ObserveTokenRefresh("failed")
		return "", common.NewAppError(common.CodeAuthFailed, "token response missing access_token", nil)
	}

	p.token = payload.AccessToken
	p.fetchedAt = time.Now()
	obs.ObserveTokenRefresh("ok")
	if p.Logger != nil {
		p.Logger.Info().Time("fetched_at", p.fetchedAt).Msg("access token refreshed")
	}
	return p.token, nil
}
