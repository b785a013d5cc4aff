package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims are carried by shopper session tokens. UserTier selects the
// rate-limit budget: default, premium or partner.
type JWTClaims struct {
	UserID   string `json:"uid"`
	UserTier string `json:"tier"`
	jwt.RegisteredClaims
}

// RateLimitInfo describes the caller's budget in the current window.
// ResetTime is a unix timestamp in seconds.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"resetAt"`
}
