package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	// TokenTTL is how long an issued room token stays valid.
	TokenTTL = 2 * time.Hour

	tokenIssuer   = "p2p-video-chat"
	tokenAudience = "video-call-users"
	tokenType     = "room-access"
)

// RoomClaims binds a user identity to exactly one room.
type RoomClaims struct {
	RoomID string `json:"roomID"`
	UserID string `json:"userID"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies room access tokens. Validity is computable
// from the token's own signed contents plus current time; the service keeps
// no per-token state.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a service signing with secret. An empty secret is
// replaced by a random per-process one, which means tokens do not survive a
// restart in that mode.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if secret == "" {
		secret = randomSecret()
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token granting userID access to roomID.
func (s *TokenService) Issue(roomID, userID string) (string, error) {
	now := time.Now()
	claims := RoomClaims{
		RoomID: roomID,
		UserID: userID,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and checks a token, returning nil for anything invalid:
// bad signature, expiry, issuer/audience mismatch, wrong token type, or
// malformed input. A nil result is an expected outcome, not an error.
func (s *TokenService) Verify(tokenString string) *RoomClaims {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil
	}
	if !claims.VerifyIssuer(tokenIssuer, true) || !claims.VerifyAudience(tokenAudience, true) {
		return nil
	}
	if claims.Type != tokenType {
		return nil
	}
	return claims
}

func randomSecret() string {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("auth: cannot read random secret: %v", err))
	}
	return hex.EncodeToString(buf)
}
