package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or not issued by this provider.
var ErrInvalidToken = errors.New("invalid token")

// RoleAdmin is the only role carried by admin tokens.
const RoleAdmin = "admin"

// AdminClaims holds JWT claims for an admin session token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenProvider issues and validates admin session JWTs using RS256 or ES256.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
	nowF       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		nowF:       time.Now,
	}
}

// NewEphemeralTokenProvider signs with a freshly generated ES256 key.
func NewEphemeralTokenProvider(issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	key, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(key, key.Public(), issuer, audience, ttl), nil
}

// Issue signs an admin token for subject. Returns the token and its expiry.
func (p *TokenProvider) Issue(subject string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.nowF().UTC()
	expiresAt := now.Add(p.ttl)
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: RoleAdmin,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses tokenString (signature, exp, iss, aud, role) and returns its subject.
func (p *TokenProvider) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
