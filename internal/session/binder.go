package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Hexploration-Inc/orai/internal/types"
)

// CookieName is the cookie that carries the signed session id.
const CookieName = "sessionId"

// Claims is the signed cookie payload.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Binder issues signed session cookies and resolves them back to the
// credentials held in a Store.
type Binder struct {
	store  *Store
	secret []byte
	issuer string
	secure bool
	now    func() time.Time
}

// NewBinder creates a binder signing with secret. secure controls the
// cookie Secure attribute.
func NewBinder(store *Store, secret string, secure bool) *Binder {
	return &Binder{
		store:  store,
		secret: []byte(secret),
		issuer: "orai",
		secure: secure,
		now:    time.Now,
	}
}

// Store returns the underlying credential store.
func (b *Binder) Store() *Store {
	return b.store
}

// Issue signs sessionID into a cookie value.
func (b *Binder) Issue(sessionID string) (string, error) {
	if len(b.secret) == 0 {
		return "", errors.New("missing secret")
	}
	if sessionID == "" {
		return "", errors.New("missing session id")
	}
	now := b.now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.store.TTL())),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(b.secret)
}

// Resolve verifies a cookie value and returns the bound request scope.
// A missing or bad signature, an expired token and an unknown session all
// yield types.ErrUnauthorized.
func (b *Binder) Resolve(cookieValue string) (types.RequestScope, error) {
	if cookieValue == "" {
		return types.RequestScope{}, types.ErrUnauthorized
	}
	sid, err := b.verify(cookieValue)
	if err != nil {
		return types.RequestScope{}, fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
	}
	e, ok := b.store.Get(sid)
	if !ok {
		return types.RequestScope{}, types.ErrUnauthorized
	}
	return types.RequestScope{
		SessionID:   sid,
		OwnerID:     e.OwnerID,
		Email:       e.Email,
		Credentials: e.Credentials,
	}, nil
}

// SessionID extracts the session id from a cookie value without consulting
// the store.
func (b *Binder) SessionID(cookieValue string) (string, error) {
	return b.verify(cookieValue)
}

func (b *Binder) verify(cookieValue string) (string, error) {
	parsed, err := jwt.ParseWithClaims(cookieValue, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return b.secret, nil
	}, jwt.WithIssuer(b.issuer), jwt.WithTimeFunc(b.now))
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return "", jwt.ErrSignatureInvalid
	}
	return claims.SessionID, nil
}

// Cookie returns the session cookie for value.
func (b *Binder) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(b.store.TTL().Seconds()),
	}
}

// ClearCookie returns a cookie that removes the session cookie.
func (b *Binder) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}
