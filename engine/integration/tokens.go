package integration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const grantAuthorizationCode = "authorization_code"

// TokenClient talks to provider authorize and token endpoints.
type TokenClient struct {
	httpClient *http.Client
	now        func() time.Time
}

type TokenClientOption func(*TokenClient)

func WithHTTPClient(c *http.Client) TokenClientOption {
	return func(tc *TokenClient) { tc.httpClient = c }
}

func WithClock(now func() time.Time) TokenClientOption {
	return func(tc *TokenClient) { tc.now = now }
}

func NewTokenClient(timeout time.Duration, opts ...TokenClientOption) *TokenClient {
	tc := &TokenClient{
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

func (c *TokenClient) Now() time.Time {
	return c.now()
}

// NewState returns 16 random bytes, hex encoded.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCodeURL builds the provider authorize URL. verifier is empty unless the
// provider uses PKCE.
func (c *TokenClient) AuthCodeURL(p *Provider, state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	if p.ResponseType != "" && p.ResponseType != "code" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", p.ResponseType))
	}
	if p.NeedsOfflineConsent() {
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.oauth2Config().AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens.
func (c *TokenClient) Exchange(ctx context.Context, p *Provider, code, verifier string) (*Grant, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	if p.GrantType != "" && p.GrantType != grantAuthorizationCode {
		opts = append(opts, oauth2.SetAuthURLParam("grant_type", p.GrantType))
	}
	tok, err := p.oauth2Config().Exchange(c.withClient(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange with %s failed: %w", p.CustomToolID, err)
	}
	return c.grant(tok, p), nil
}

// Refresh redeems a refresh token. The returned grant carries the refresh
// token the provider answered with, which is the old one unless it rotated.
func (c *TokenClient) Refresh(ctx context.Context, cand *RefreshCandidate) (*Grant, error) {
	p := cand.provider()
	src := p.oauth2Config().TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: cand.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh for connection %s failed: %w", cand.ConnectionID, err)
	}
	return c.grant(tok, p), nil
}

func (c *TokenClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *TokenClient) grant(tok *oauth2.Token, p *Provider) *Grant {
	g := &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    ComputeExpiry(tok, p.ttl(), c.now()),
	}
	if v, ok := tok.Extra("instance_url").(string); ok {
		g.InstanceURL = v
	}
	return g
}

// ComputeExpiry turns a token response into an absolute expiry. Responses
// with issued_at (milliseconds) expire ttl later, responses with expires_in
// expire that many seconds after now, anything else returns nil.
func ComputeExpiry(tok *oauth2.Token, ttl time.Duration, now time.Time) *time.Time {
	if issued, ok := extraInt(tok, "issued_at"); ok {
		at := time.UnixMilli(issued).Add(ttl).UTC()
		return &at
	}
	if secs, ok := extraInt(tok, "expires_in"); ok && secs > 0 {
		at := now.Add(time.Duration(secs) * time.Second).UTC()
		return &at
	}
	return nil
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
