// Package jwt signs and verifies the OAuth access and refresh tokens issued
// to third-party clients.
package jwt

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

const (
	// TypeAccess and TypeRefresh discriminate token kinds so a refresh token
	// can never be presented as an access token.
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	kidCurrent  = "current"
	kidPrevious = "previous"
)

// Claims are the custom claims carried by both token kinds.
type Claims struct {
	Type   string `json:"type"`
	Scope  string `json:"scope,omitempty"`
	Email  string `json:"email,omitempty"`
	Family string `json:"family,omitempty"`
}

// Signer issues HS256 tokens under a current secret and, during a rotation
// window, still verifies tokens signed with the previous secret.
type Signer struct {
	current    []byte
	previous   []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSigner builds a signer. previousSecret may be empty when no rotation is
// in progress. issuer is the public base URL, used as both iss and aud.
func NewSigner(secret, previousSecret, issuer string, accessTTL, refreshTTL time.Duration) *Signer {
	s := &Signer{
		current:    []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
	if previousSecret != "" {
		s.previous = []byte(previousSecret)
	}
	return s
}

// SignAccess issues an access token for the client, bound to the end user's
// email captured at consent.
func (s *Signer) SignAccess(clientID, email, scope string) (string, error) {
	return s.sign(clientID, Claims{Type: TypeAccess, Scope: scope, Email: email}, s.accessTTL)
}

// SignRefresh issues a refresh token tagged with its rotation family.
func (s *Signer) SignRefresh(clientID, email, scope, family string) (string, error) {
	return s.sign(clientID, Claims{Type: TypeRefresh, Scope: scope, Email: email, Family: family}, s.refreshTTL)
}

func (s *Signer) sign(clientID string, custom Claims, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: s.current},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", kidCurrent),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   clientID,
		Issuer:    s.issuer,
		Audience:  gojwt.Audience{s.issuer},
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// VerifyAccess validates an access token against the current-or-previous
// secret and rejects refresh tokens presented as access tokens.
func (s *Signer) VerifyAccess(token string) (*gojwt.Claims, *Claims, error) {
	std, custom, err := s.verify(token)
	if err != nil {
		return nil, nil, err
	}
	if custom.Type != TypeAccess {
		return nil, nil, fmt.Errorf("token is not an access token")
	}
	return std, custom, nil
}

// VerifyRefresh validates a refresh token against the current-or-previous
// secret and requires the refresh type tag.
func (s *Signer) VerifyRefresh(token string) (*gojwt.Claims, *Claims, error) {
	std, custom, err := s.verify(token)
	if err != nil {
		return nil, nil, err
	}
	if custom.Type != TypeRefresh {
		return nil, nil, fmt.Errorf("token is not a refresh token")
	}
	return std, custom, nil
}

func (s *Signer) verify(token string) (*gojwt.Claims, *Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(s.current, &std, &custom); err != nil {
		if s.previous == nil {
			return nil, nil, fmt.Errorf("verify token: %w", err)
		}
		std, custom = gojwt.Claims{}, Claims{}
		if err := parsed.Claims(s.previous, &std, &custom); err != nil {
			return nil, nil, fmt.Errorf("verify token: %w", err)
		}
	}

	if err := std.Validate(gojwt.Expected{
		Issuer:      s.issuer,
		AnyAudience: gojwt.Audience{s.issuer},
		Time:        time.Now().UTC(),
	}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}

	return &std, &custom, nil
}
