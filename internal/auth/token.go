// Package auth mints the per-room tokens clients present to the realtime
// layer. A token carries the identity's resolved scopes at issue time; it is
// short-lived because grants and revocations only reach the realtime layer
// when the client fetches a fresh token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomsync/api/internal/util"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// RoomClaims are the claims in a room access token.
type RoomClaims struct {
	RoomID string   `json:"roomId"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// IssueRoomToken signs an HS256 token granting identity the scopes on the
// room for ttl.
func IssueRoomToken(secret []byte, identity, roomID string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RoomClaims{
		RoomID: roomID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ID:        util.NewID("jti"),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign room token: %w", err)
	}
	return token, nil
}

// ParseRoomToken verifies the signature and expiry and returns the claims.
func ParseRoomToken(secret []byte, token string) (RoomClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &RoomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return RoomClaims{}, ErrExpiredToken
		}
		return RoomClaims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return RoomClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.RoomID == "" {
		return RoomClaims{}, ErrInvalidToken
	}
	return *claims, nil
}
