package session

import (
	"context"
	"errors"
	"fmt"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strings"
	"time"
)

type contextKey struct{}

func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// CurrentIdentity returns the user the request was authenticated as.
func CurrentIdentity(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

type Claims struct {
	jwt.RegisteredClaims
}

// JWTSession verifies HS256 bearer tokens whose subject is the user id.
type JWTSession struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewJWTSession(secret string, ttl time.Duration) *JWTSession {
	return &JWTSession{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "snapgram",
	}
}

func (s *JWTSession) Issue(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTSession) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}

// Middleware attaches the identity of a valid bearer token to the request
// context. Requests without one pass through anonymous.
func (s *JWTSession) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			// Browsers cannot set headers on websocket handshakes
			tokenString = r.URL.Query().Get("access_token")
		}
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := s.Verify(tokenString)
		if err != nil {
			log.Infof("Rejected session token: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID)))
	})
}
