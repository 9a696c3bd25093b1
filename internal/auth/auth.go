// Package auth issues and verifies caller tokens for operators and respondents.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wedding-ops/internal/models"
)

// Roles
const (
	RoleOperator   = "operator"
	RoleRespondent = "respondent"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsOperator reports whether the caller may run privileged writes
func (p Principal) IsOperator() bool {
	return p.Role == RoleOperator
}

// RequireOperator returns ErrUnauthorized unless p is an operator
func RequireOperator(p Principal) error {
	if !p.IsOperator() {
		return models.ErrUnauthorized
	}
	return nil
}

// Claims is the JWT payload
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. The secret must not be empty.
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// Issue signs a token for userID with the given role
func (i *Issuer) Issue(userID, role string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	if role != RoleOperator && role != RoleRespondent {
		return "", fmt.Errorf("issue token: unknown role %q", role)
	}
	now := i.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses a token and returns its principal
func (i *Issuer) Verify(tokenStr string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: claims.UserID, Role: claims.Role}, nil
}
