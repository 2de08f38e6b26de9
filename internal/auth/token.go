package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/staff-profile/internal/domain"
)

// ErrMissingSubject is returned when a token carries neither `_id` nor `sub`.
var ErrMissingSubject = errors.New("token has no subject identifier")

// Decoder turns a stored bearer token into session claims. Without a secret it
// only decodes the payload, the way browser clients read their own token; with a
// secret it also verifies the HS256 signature and the registered time claims.
type Decoder struct {
	secret []byte
	parser *jwt.Parser
}

// NewDecoder builds a decoder. An empty secret disables verification.
func NewDecoder(secret string) *Decoder {
	d := &Decoder{parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))}
	if secret != "" {
		d.secret = []byte(secret)
	}
	return d
}

// Verifying reports whether signatures are checked.
func (d *Decoder) Verifying() bool {
	return len(d.secret) > 0
}

// Decode parses the token and extracts the session claims.
func (d *Decoder) Decode(tokenStr string) (*domain.SessionClaims, error) {
	if tokenStr == "" {
		return nil, errors.New("empty token")
	}

	claims := jwt.MapClaims{}
	if d.Verifying() {
		parsed, err := d.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return d.secret, nil
		})
		if err != nil {
			return nil, err
		}
		if !parsed.Valid {
			return nil, errors.New("invalid token claims")
		}
	} else {
		if _, _, err := d.parser.ParseUnverified(tokenStr, claims); err != nil {
			return nil, err
		}
	}

	return claimsFromMap(claims)
}

func claimsFromMap(claims jwt.MapClaims) (*domain.SessionClaims, error) {
	subjectID := toString(claims["_id"])
	if subjectID == "" {
		subjectID = toString(claims["sub"])
	}
	if subjectID == "" {
		return nil, ErrMissingSubject
	}

	out := &domain.SessionClaims{
		SubjectID: subjectID,
		Subject:   domain.SubjectType(toString(claims["subject"])),
		Role:      toString(claims["role"]),
		Email:     toString(claims["email"]),
		Raw:       map[string]any(claims),
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	}
	return ""
}

// TokenManager signs and validates HS256 tokens in the backend's claim layout.
// The client only decodes tokens; this exists for the in-process fake backend and
// for tests.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes the JWT payload issued by the staff backend.
type Claims struct {
	StaffID string             `json:"_id"`
	Subject domain.SubjectType `json:"subject,omitempty"`
	Role    string             `json:"role,omitempty"`
	Email   string             `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for a staff member.
func (tm *TokenManager) GenerateToken(staffID, role, email string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		StaffID: staffID,
		Subject: domain.SubjectTypeStaff,
		Role:    role,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
