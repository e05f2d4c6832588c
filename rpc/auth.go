package rpc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"viewledger/crypto"
)

var (
	errMissingBearer = errors.New("missing bearer token")
	errNoSecret      = errors.New("auth secret not configured")
)

type AuthConfig struct {
	HMACSecret []byte
	Issuer     string
	Audience   []string
	ClockSkew  time.Duration
}

// Authenticator verifies HS256 caller tokens. The token subject is the
// caller's bech32 identity.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	secret := []byte(strings.TrimSpace(string(cfg.HMACSecret)))
	if len(secret) == 0 {
		return nil, errNoSecret
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: secret}, nil
}

// Identity validates the Authorization header value and returns the caller.
func (a *Authenticator) Identity(header string) ([20]byte, error) {
	var zero [20]byte
	tokenString := extractBearer(header)
	if tokenString == "" {
		return zero, errMissingBearer
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return zero, err
	}
	if err := validateClaims(claims, a.cfg.Issuer, a.cfg.Audience); err != nil {
		return zero, err
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return zero, err
	}
	caller, err := crypto.ParseIdentity(subject)
	if err != nil {
		return zero, fmt.Errorf("invalid subject: %w", err)
	}
	return caller, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func validateClaims(claims jwt.MapClaims, issuer string, audience []string) error {
	if issuer != "" {
		if value, err := claims.GetIssuer(); err != nil || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if len(audience) == 0 {
		return nil
	}
	presented, err := claims.GetAudience()
	if err != nil {
		return err
	}
	for _, want := range audience {
		for _, got := range presented {
			if got == want {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// SignToken issues an HS256 token naming subject as the caller.
func SignToken(secret []byte, issuer string, audience []string, subject [20]byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errNoSecret
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Subject:   crypto.FormatIdentity(subject),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if len(audience) > 0 {
		claims.Audience = jwt.ClaimStrings(audience)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
