package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "pixtracker"

// CaptureClaims identify a capture device.
type CaptureClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// CaptureTokens issues and validates HS256 tokens for capture devices.
type CaptureTokens struct {
	secret []byte
	now    func() time.Time
}

// NewCaptureTokens creates a token service signing with secret.
func NewCaptureTokens(secret string) *CaptureTokens {
	return &CaptureTokens{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for deviceID valid for ttl.
func (s *CaptureTokens) Issue(deviceID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &CaptureClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("Issue: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims.
func (s *CaptureTokens) Validate(tokenString string) (*CaptureClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CaptureClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("Validate: parsing token: %w", err)
	}

	claims, ok := token.Claims.(*CaptureClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, fmt.Errorf("Validate: invalid token claims")
	}
	return claims, nil
}

// CaptureAuth requires a valid Bearer token. A nil service disables the
// check, for single-device local setups.
func CaptureAuth(tokens *CaptureTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				WriteError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext returns the authenticated capture device, if any.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}
