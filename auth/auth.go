// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package auth resolves identity of callers of the tracker HTTP API.

Users are authenticated with HS256 signed JWT bearer tokens. Subject of the
token is the owner id, tenant and owner type are carried in custom claims.
Executor callbacks are not authenticated by user tokens. Their tenant is
resolved from "subdomain" query parameter or X-Tenant header and, when
configured, a shared secret is expected in X-Callback-Token header.
*/
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TenantQueryParam is the callback query parameter carrying tenant.
	TenantQueryParam = "subdomain"

	// TenantHeader is the callback header carrying tenant.
	TenantHeader = "X-Tenant"

	// CallbackTokenHeader is the header carrying callback shared secret.
	CallbackTokenHeader = "X-Callback-Token"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity of authenticated caller.
type Identity struct {
	Tenant    string
	OwnerId   string
	OwnerType string
}

// Claims of tracker JWT tokens.
type Claims struct {
	Tenant    string `json:"tenant"`
	OwnerType string `json:"owner_type,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies JWT tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAuthenticator creates Authenticator for given HMAC secret. Tokens issued
// by Issue are valid for ttl.
func NewAuthenticator(secret []byte, issuer string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue signs new token for given identity.
func (a *Authenticator) Issue(id Identity) (string, error) {
	if id.Tenant == "" || id.OwnerId == "" {
		return "", fmt.Errorf("tenant and owner id are required")
	}
	now := time.Now()
	claims := Claims{
		Tenant:    id.Tenant,
		OwnerType: id.OwnerType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.OwnerId,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.secret)
}

// Parse verifies given token and returns identity it carries.
func (a *Authenticator) Parse(token string) (Identity, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Tenant == "" || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: tenant or subject is empty",
			ErrInvalidToken)
	}
	return Identity{
		Tenant:    claims.Tenant,
		OwnerId:   claims.Subject,
		OwnerType: claims.OwnerType,
	}, nil
}

// Authenticate reads bearer token from Authorization header and parses it.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return Identity{}, ErrMissingToken
	}
	return a.Parse(strings.TrimSpace(token))
}

type ctxKey struct{}

// WithIdentity returns context carrying given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware authenticates requests before passing them to next handler.
// Failed authentication is reported by onErr, which should write 401
// response.
func (a *Authenticator) Middleware(next http.Handler, onErr func(http.ResponseWriter, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			onErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// CallbackTenant resolves tenant of executor callback request. Query
// parameter takes precedence over the header.
func CallbackTenant(r *http.Request) string {
	if tenant := r.URL.Query().Get(TenantQueryParam); tenant != "" {
		return tenant
	}
	return r.Header.Get(TenantHeader)
}

// CheckCallbackToken reports whether request carries expected callback token.
// Empty expected token disables the check.
func CheckCallbackToken(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	got := r.Header.Get(CallbackTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
