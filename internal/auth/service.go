package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("authorization required")
	ErrInvalidToken = errors.New("invalid admin token")
)

// Service guards the admin API with a single static bearer token.
type Service struct {
	tokenSum   [sha256.Size]byte
	enabled    bool
	headerName string
}

// NewService returns a guard for token. An empty token disables the admin API.
func NewService(token string) *Service {
	token = strings.TrimSpace(token)
	return &Service{
		tokenSum:   sha256.Sum256([]byte(token)),
		enabled:    token != "",
		headerName: "Authorization",
	}
}

// Enabled reports whether an admin token is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// ValidateToken compares in constant time over fixed-length digests.
func (s *Service) ValidateToken(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if !s.Enabled() {
		return ErrInvalidToken
	}
	sum := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(sum[:], s.tokenSum[:]) != 1 {
		return ErrInvalidToken
	}
	return nil
}
