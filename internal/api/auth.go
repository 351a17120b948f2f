package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"soleil-forecast/config"
)

const (
	subjectKey  = "subject"
	tokenIssuer = "soleil-forecast"
)

// IssueToken signs a bearer token for subject, valid for ttl from now.
func IssueToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("auth.jwt_secret is not configured")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authRequired accepts HTTP basic credentials for the admin user or a bearer
// token signed with the configured secret. With neither configured every
// request is let through.
func authRequired(cfg config.AuthConfig) gin.HandlerFunc {
	if cfg.AdminPassword == "" && cfg.JWTSecret == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			if subject, err := verifyToken(cfg.JWTSecret, token); err == nil {
				c.Set(subjectKey, subject)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Invalid bearer token."))
			return
		}

		if user, pass, ok := c.Request.BasicAuth(); ok && cfg.AdminPassword != "" &&
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.AdminUser)) == 1 &&
			subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.AdminPassword)) == 1 {
			c.Set(subjectKey, user)
			c.Next()
			return
		}

		c.Header("WWW-Authenticate", `Basic realm="soleil-forecast"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Authentication required."))
	}
}

func verifyToken(secret, raw string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("bearer tokens are disabled")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	return claims.Subject, nil
}
