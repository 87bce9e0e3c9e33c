// Package auth mints the short-lived ES256 tokens App Store Connect expects.
package auth

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Audience is the fixed aud claim for the App Store Connect API.
	Audience = "appstoreconnect-v1"
	// TokenLifetime is the exp offset. The API rejects tokens living longer than 20 minutes.
	TokenLifetime = 20 * time.Minute
)

// claims is the token payload. App Store Connect documents aud as a plain
// string; the embedded RegisteredClaims would encode it as an array.
type claims struct {
	Audience string `json:"aud"`
	jwt.RegisteredClaims
}

// TokenSource signs a fresh token for every request.
type TokenSource struct {
	issuerID string
	keyID    string
	key      *ecdsa.PrivateKey
	now      func() time.Time
}

// New parses the PEM private key (.p8, PKCS#8 or SEC 1) up front so that a bad
// key fails before any network call.
func New(issuerID, keyID, privateKeyPEM string) (*TokenSource, error) {
	if issuerID == "" {
		return nil, fmt.Errorf("issuer id is required")
	}
	if keyID == "" {
		return nil, fmt.Errorf("key id is required")
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse .p8 private key: %w", err)
	}

	return &TokenSource{
		issuerID: issuerID,
		keyID:    keyID,
		key:      key,
		now:      time.Now,
	}, nil
}

// Token returns a signed JWT valid for TokenLifetime.
func (ts *TokenSource) Token() (string, error) {
	now := ts.now()
	c := claims{
		Audience: Audience,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, c)
	token.Header["kid"] = ts.keyID

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("failed to encode JWT: %w", err)
	}
	return signed, nil
}
