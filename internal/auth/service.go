// Package auth guards the admin endpoints: a single operator password,
// stored as a bcrypt hash, is exchanged for a short-lived HS256 token.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/bandi-sentinel/internal/logger"
)

const adminSubject = "admin"

var (
	ErrInvalidCreds  = errors.New("invalid credentials")
	ErrLoginDisabled = errors.New("admin login disabled: ADMIN_PASSWORD_HASH is not set")
)

type LoginRequest struct {
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	secret       []byte
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

// NewService builds the admin auth service. An empty secret is replaced by
// a random one that lives as long as the process.
func NewService(secret, passwordHash string) (*Service, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate JWT fallback secret: %w", err)
		}
		key = []byte(base64.RawURLEncoding.EncodeToString(buf))
		logger.Log.Warn("[auth] JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	}
	return &Service{
		secret:       key,
		passwordHash: strings.TrimSpace(passwordHash),
		ttl:          12 * time.Hour,
		now:          time.Now,
	}, nil
}

// Login checks the operator password and issues a token.
func (s *Service) Login(req LoginRequest) (*AuthResponse, error) {
	if s.passwordHash == "" {
		return nil, ErrLoginDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResponse{Token: token, ExpiresAt: exp}, nil
}

// Verify parses a token and returns its id.
func (s *Service) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidCreds
	}
	if claims.Subject != adminSubject {
		return "", ErrInvalidCreds
	}
	return claims.ID, nil
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}
	return string(hash), nil
}
