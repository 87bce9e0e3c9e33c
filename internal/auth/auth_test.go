package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestToken_Claims(t *testing.T) {
	key, pemKey := testKey(t)

	ts, err := New("issuer-1", "KEY123", pemKey)
	require.NoError(t, err)

	fixed := time.Unix(1_700_000_000, 0)
	ts.now = func() time.Time { return fixed }

	signed, err := ts.Token()
	require.NoError(t, err)

	got := &claims{}
	parsed, err := jwt.ParseWithClaims(signed, got, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(func() time.Time { return fixed }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "KEY123", parsed.Header["kid"])
	assert.Equal(t, "issuer-1", got.Issuer)
	assert.Equal(t, Audience, got.Audience)
	assert.Equal(t, fixed.Unix(), got.IssuedAt.Unix())
	assert.Equal(t, fixed.Add(20*time.Minute).Unix(), got.ExpiresAt.Unix())
}

func TestToken_AudienceIsString(t *testing.T) {
	_, pemKey := testKey(t)
	ts, err := New("issuer-1", "KEY123", pemKey)
	require.NoError(t, err)

	signed, err := ts.Token()
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, "appstoreconnect-v1", raw["aud"])
	assert.Equal(t, "issuer-1", raw["iss"])
}

func TestToken_FreshPerCall(t *testing.T) {
	_, pemKey := testKey(t)
	ts, err := New("issuer-1", "KEY123", pemKey)
	require.NoError(t, err)

	calls := 0
	ts.now = func() time.Time {
		calls++
		return time.Unix(int64(1_700_000_000+calls), 0)
	}

	a, err := ts.Token()
	require.NoError(t, err)
	b, err := ts.Token()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNew_Errors(t *testing.T) {
	_, pemKey := testKey(t)

	_, err := New("", "KEY", pemKey)
	assert.Error(t, err)

	_, err = New("iss", "", pemKey)
	assert.Error(t, err)

	_, err = New("iss", "KEY", "not a key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key")
}
