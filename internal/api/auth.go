package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("missing authentication token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrSubjectDenied = errors.New("token subject does not match user")
)

// AuthFunc decides whether the caller may act as userID. Returning false or
// an error rejects the request with 401.
type AuthFunc func(ctx context.Context, userID string, r *http.Request) (bool, error)

// authorize runs the callback for every method except GET, HEAD and OPTIONS.
func (rt *Router) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		userID := chi.URLParam(r, "userID")
		ok, err := rt.auth(r.Context(), userID, r)
		if err != nil || !ok {
			rt.log.Warn("authorization rejected").
				Str("user", userID).
				Str("path", r.URL.Path).
				Err(err).
				Send()
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Claims are the JWT claims accepted by JWTAuthorizer.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthorizer returns an AuthFunc that accepts HS256 bearer tokens signed
// with secret whose subject equals the route's userID. A non-empty issuer is
// also enforced.
func JWTAuthorizer(secret []byte, issuer string) AuthFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(_ context.Context, userID string, r *http.Request) (bool, error) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			return false, err
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(raw, claims, keyFunc)
		if err != nil {
			return false, errors.Join(ErrInvalidToken, err)
		}
		if !token.Valid {
			return false, ErrInvalidToken
		}
		if claims.Subject == "" || claims.Subject != userID {
			return false, ErrSubjectDenied
		}
		return true, nil
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Other schemes are rejected.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "Bearer" {
		return "", ErrMissingToken
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", ErrInvalidToken
	}
	if raw = strings.TrimSpace(raw); raw == "" {
		return "", ErrMissingToken
	}
	return raw, nil
}
