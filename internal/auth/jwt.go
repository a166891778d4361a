package auth

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"ipg-server/internal/shared/config"
	"ipg-server/internal/shared/errors"
)

const MaxNameLength = 32

// NormalizeName trims a display name and rejects empty or oversized ones.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", errors.Validationf("name must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

func GenerateJWT(name, provider, subject string) (string, error) {
	cfg := config.GlobalConfig
	if cfg == nil || cfg.Auth.JWTSecret == "" {
		return "", fmt.Errorf("cannot generate JWT: secret is not configured")
	}

	now := time.Now()
	claims := Claims{
		Name:     name,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Auth.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Auth.JWTSecret))
}

func ValidateJWT(tokenString string) (*Claims, error) {
	cfg := config.GlobalConfig
	if cfg == nil || cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("cannot validate JWT: secret is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
