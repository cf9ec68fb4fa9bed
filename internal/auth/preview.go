package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const previewAudience = "preview"

// PreviewClaims scope a token to reading one session's preview.
type PreviewClaims struct {
	UserID    uint64 `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SignPreviewToken issues a short-lived token that only the preview route accepts.
func SignPreviewToken(userID uint64, sessionID, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := PreviewClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Audience:  jwt.ClaimStrings{previewAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return tok, exp, err
}

// ParsePreviewToken returns the user and session a preview token was issued for.
func ParsePreviewToken(tokenStr, secret string) (uint64, string, error) {
	claims := &PreviewClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(previewAudience),
	)
	if err != nil || !tok.Valid || claims.UserID == 0 || claims.SessionID == "" {
		return 0, "", ErrInvalidToken
	}
	return claims.UserID, claims.SessionID, nil
}
