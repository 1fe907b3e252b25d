package integration

import (
	"strings"
	"time"

	"github.com/captep/studio/engine/core"
	"golang.org/x/oauth2"
)

// DefaultTokenTTL is the lifetime of tokens from providers that report
// issued_at instead of expires_in.
const DefaultTokenTTL = 2 * time.Hour

// Provider is the OAuth configuration of one tool provider. Adding a row is
// how a new provider is onboarded.
type Provider struct {
	CustomToolID    string   `db:"custom_tool_id"`
	Name            string   `db:"name"`
	Service         string   `db:"service"`
	ClientID        string   `db:"client_id"`
	ClientSecret    string   `db:"client_secret"`
	AuthorizeURL    string   `db:"authorize_url"`
	TokenURL        string   `db:"token_url"`
	RedirectURL     string   `db:"redirect_url"`
	ResponseType    string   `db:"response_type"`
	Scopes          []string `db:"scopes"`
	PKCE            bool     `db:"pkce"`
	GrantType       string   `db:"grant_type"`
	OfflineAccess   bool     `db:"offline_access"`
	TokenTTLSeconds int64    `db:"token_ttl_seconds"`
}

// NeedsOfflineConsent reports whether the authorize URL must ask for a
// refresh token explicitly.
func (p *Provider) NeedsOfflineConsent() bool {
	if p.OfflineAccess {
		return true
	}
	return strings.Contains(strings.ToLower(p.AuthorizeURL), "accounts.google.com")
}

func (p *Provider) ttl() time.Duration {
	if p.TokenTTLSeconds > 0 {
		return time.Duration(p.TokenTTLSeconds) * time.Second
	}
	return DefaultTokenTTL
}

func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthorizeURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Connection is a stored OAuth grant. ExpiresAt is absolute; nil means the
// token must be treated as expired.
type Connection struct {
	ID           core.ID    `db:"id"             json:"id"`
	CustomToolID string     `db:"custom_tool_id" json:"custom_tool_id"`
	AccessToken  string     `db:"access_token"   json:"-"`
	RefreshToken *string    `db:"refresh_token"  json:"-"`
	InstanceURL  *string    `db:"instance_url"   json:"instance_url,omitempty"`
	ExpiresAt    *time.Time `db:"expire_in"      json:"expire_in,omitempty"`
	Name         *string    `db:"name"           json:"name,omitempty"`
	CreatedBy    *string    `db:"created_by"     json:"created_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"     json:"updated_at"`
}

func (c *Connection) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || !c.ExpiresAt.After(now)
}

// RefreshCandidate is a connection joined with the provider credentials
// needed to refresh it.
type RefreshCandidate struct {
	ConnectionID    core.ID    `db:"id"`
	CustomToolID    string     `db:"custom_tool_id"`
	RefreshToken    string     `db:"refresh_token"`
	InstanceURL     *string    `db:"instance_url"`
	ExpiresAt       *time.Time `db:"expire_in"`
	ClientID        string     `db:"client_id"`
	ClientSecret    string     `db:"client_secret"`
	TokenURL        string     `db:"token_url"`
	TokenTTLSeconds int64      `db:"token_ttl_seconds"`
}

// Due reports whether the token expires within buffer of now.
func (c *RefreshCandidate) Due(now time.Time, buffer time.Duration) bool {
	return c.ExpiresAt == nil || !c.ExpiresAt.After(now.Add(buffer))
}

func (c *RefreshCandidate) provider() *Provider {
	return &Provider{
		CustomToolID:    c.CustomToolID,
		ClientID:        c.ClientID,
		ClientSecret:    c.ClientSecret,
		TokenURL:        c.TokenURL,
		TokenTTLSeconds: c.TokenTTLSeconds,
	}
}

// Grant is the outcome of a code exchange or refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	InstanceURL  string
	ExpiresAt    *time.Time
}

// PendingAuthorization is remembered between the authorize redirect and the
// provider callback, keyed by state.
type PendingAuthorization struct {
	Platform  string    `json:"platform"`
	Verifier  string    `json:"verifier,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorizationResult is what the popup reports back to the opener.
type AuthorizationResult struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

const SuccessMessage = "Successfully Integrated"

// RefreshOutcome classifies what happened to one connection in a batch.
type RefreshOutcome string

const (
	OutcomeSkipped        RefreshOutcome = "skipped"
	OutcomeRefreshed      RefreshOutcome = "refreshed"
	OutcomeReauthRequired RefreshOutcome = "reauth_required"
	OutcomeTransient      RefreshOutcome = "transient_failure"
)

type RefreshResult struct {
	ConnectionID core.ID        `json:"connection_id"`
	Outcome      RefreshOutcome `json:"outcome"`
	// Expired is true when the token in storage is no longer usable.
	Expired bool   `json:"expired"`
	Error   string `json:"error,omitempty"`
}

type RefreshReport struct {
	Results []RefreshResult `json:"results"`
}

func (r *RefreshReport) With(outcome RefreshOutcome) []RefreshResult {
	var out []RefreshResult
	for _, res := range r.Results {
		if res.Outcome == outcome {
			out = append(out, res)
		}
	}
	return out
}
