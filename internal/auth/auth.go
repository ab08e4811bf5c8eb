// Package auth provides the Google OAuth2 web flow for orai.
//
// Tokens are never written to disk: the callback handler hands the exchanged
// credentials to the session store, and every provider call builds its token
// source from those credentials.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// DefaultScopes grant read, label changes and send, plus the identity
// needed to key the owner.
var DefaultScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
}

// StateCookieName carries the CSRF state between login and callback.
const StateCookieName = "oauthState"

// Authenticator wraps the OAuth2 client configuration.
type Authenticator struct {
	config *oauth2.Config
}

// New creates an authenticator for the given client.
func New(clientID, clientSecret, redirectURL string) *Authenticator {
	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       DefaultScopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// WithEndpoint overrides the token endpoints. Used against fake servers.
func (a *Authenticator) WithEndpoint(ep oauth2.Endpoint) *Authenticator {
	a.config.Endpoint = ep
	return a
}

// AuthURL returns the consent URL. Offline access with forced consent makes
// the provider issue a refresh token on every login.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for credentials.
func (a *Authenticator) Exchange(ctx context.Context, code string) (types.Credentials, error) {
	if code == "" {
		return types.Credentials{}, fmt.Errorf("%w: missing authorization code", types.ErrValidation)
	}
	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return types.Credentials{}, fmt.Errorf("exchange code: %w", err)
	}
	return FromToken(tok), nil
}

// TokenSource returns a refreshing token source for creds. Refreshed tokens
// live only as long as the source; they are not written back to the store.
func (a *Authenticator) TokenSource(ctx context.Context, creds types.Credentials) oauth2.TokenSource {
	return a.config.TokenSource(ctx, ToToken(creds))
}

// FromToken converts an oauth2 token into credentials.
func FromToken(tok *oauth2.Token) types.Credentials {
	return types.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// ToToken converts credentials into an oauth2 token.
func ToToken(c types.Credentials) *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// NewState generates a random CSRF state value.
func NewState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// StateCookie returns the short-lived cookie holding state.
func StateCookie(state string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	}
}

// ErrStateMismatch is returned when the callback state does not match the
// state cookie.
var ErrStateMismatch = errors.New("oauth state mismatch")

// CheckState compares the callback state against the cookie value.
func CheckState(cookieValue, queryValue string) error {
	if cookieValue == "" || cookieValue != queryValue {
		return fmt.Errorf("%w: %w", types.ErrValidation, ErrStateMismatch)
	}
	return nil
}
