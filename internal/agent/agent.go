// Package agent provides the minimal consumer-side contract for the
// (out-of-scope) agent-signature authentication middleware: given a
// request it extracts the `uid` claim from an already-verified bearer
// JWT, falling back to IP-based identity when no token is present. A
// devmode HS256 issuer is included for local testing, the way the
// teacher issues its own access tokens in utils/jwt.go.
package agent

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the shape of the opaque agent identity token: just enough
// to identify who is calling, nothing the engine needs to look up.
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// ErrNoToken means no X-Agent-Token header was present; not an error
// condition by itself, since the caller then falls back to IP identity.
var ErrNoToken = errors.New("agent: no token presented")

// Identity is the resolved caller, either an authenticated agent or an
// anonymous IP-keyed caller.
type Identity struct {
	UID     string
	IsAgent bool
}

// Issuer signs devmode HS256 tokens for local testing. Production
// tokens are issued by the external signature-verification middleware;
// this engine only ever reads them.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) Issue(uid string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verifier parses and validates the bearer token attached by the
// signature-verification middleware.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("agent: unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, errors.New("agent: invalid token")
	}
	return claims, nil
}

// Resolve extracts the agent identity from r's X-Agent-Token bearer
// header when present and valid, else falls back to the IP identity
// (first X-Forwarded-For hop, else X-Real-IP, else "unknown"), per
// spec.md §4.1's identity-key rule.
func (v *Verifier) Resolve(r *http.Request) Identity {
	if token := bearerToken(r); token != "" {
		if claims, err := v.Parse(token); err == nil {
			return Identity{UID: claims.UID, IsAgent: true}
		}
	}
	return Identity{UID: clientIP(r), IsAgent: false}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("X-Agent-Token")
	if h == "" {
		return ""
	}
	if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return h
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
