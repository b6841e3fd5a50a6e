package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService() (TokenService, error) {
	return NewTokenService(
		15*time.Minute,
		"test-issuer",
		"test-audience",
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		testSecret,
	)
}

func rsaKeyPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return string(priv), string(pub)
}

func TestNewTokenService(t *testing.T) {
	priv, pub := rsaKeyPair(t)

	tests := []struct {
		name          string
		useRSAKeys    bool
		privateKeyPEM string
		publicKeyPEM  string
		secretKey     string
		expectError   bool
	}{
		{
			name:      "valid symmetric key configuration",
			secretKey: testSecret,
		},
		{
			name:        "missing secret key",
			expectError: true,
		},
		{
			name:          "valid rsa configuration",
			useRSAKeys:    true,
			privateKeyPEM: priv,
			publicKeyPEM:  pub,
		},
		{
			name:          "missing public key",
			useRSAKeys:    true,
			privateKeyPEM: priv,
			expectError:   true,
		},
		{
			name:          "garbage private key",
			useRSAKeys:    true,
			privateKeyPEM: "not a pem block",
			publicKeyPEM:  pub,
			expectError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(time.Hour, "test-issuer", "test-audience", tt.useRSAKeys, tt.privateKeyPEM, tt.publicKeyPEM, tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, service)
		})
	}
}

func TestAdminJWTRoundTrip(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	token, expiresAt, err := service.GenerateAdminJWT(7, "admin", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := service.ValidateAdminJWT(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestAdminJWTWithRSAKeys(t *testing.T) {
	priv, pub := rsaKeyPair(t)
	service, err := NewTokenService(time.Hour, "magpie", "magpie-admin", true, priv, pub, "")
	require.NoError(t, err)

	token, _, err := service.GenerateAdminJWT(1, "root", "admin")
	require.NoError(t, err)

	claims, err := service.ValidateAdminJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)

	hmacService, err := createTestTokenService()
	require.NoError(t, err)
	_, err = hmacService.ValidateAdminJWT(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAdminJWTExpired(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":   1,
		"username": "admin",
		"role":     "admin",
		"iat":      past.Add(-time.Hour).Unix(),
		"exp":      past.Unix(),
		"iss":      "test-issuer",
		"aud":      "test-audience",
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := service.ValidateAdminJWT(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Nil(t, claims)
}

func TestTokenSecurity(t *testing.T) {
	service1, err := NewTokenService(15*time.Minute, "issuer1", "audience1", false, "", "", "test-secret-key-1-for-jwt-signing-32-chars")
	require.NoError(t, err)
	service2, err := NewTokenService(15*time.Minute, "issuer2", "audience2", false, "", "", "test-secret-key-2-for-jwt-signing-32-chars")
	require.NoError(t, err)

	token1, _, err := service1.GenerateAdminJWT(123, "admin", "admin")
	require.NoError(t, err)
	token2, _, err := service2.GenerateAdminJWT(123, "admin", "admin")
	require.NoError(t, err)

	assert.NotEqual(t, token1, token2)

	claims, err := service1.ValidateAdminJWT(token2)
	assert.Error(t, err)
	assert.Nil(t, claims)

	claims, err = service2.ValidateAdminJWT(token1)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestOpaqueTokenFormats(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	apiToken, err := service.GenerateAPIToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(apiToken, "mgp_"))
	assert.Len(t, apiToken, 68)
	assert.NoError(t, ValidateAPITokenFormat(apiToken))

	session, err := service.GenerateSessionToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session, "session_"))
	assert.Len(t, session, 72)
	assert.NoError(t, ValidateSessionTokenFormat(session))

	hex64 := strings.Repeat("ab", 32)
	tests := []struct {
		name  string
		check func(string) error
		token string
	}{
		{"api token too short", ValidateAPITokenFormat, "mgp_" + hex64[:63]},
		{"api token uppercase hex", ValidateAPITokenFormat, "mgp_" + strings.ToUpper(hex64)},
		{"api token wrong prefix", ValidateAPITokenFormat, "tok_" + hex64},
		{"api token non hex", ValidateAPITokenFormat, "mgp_" + strings.Repeat("zz", 32)},
		{"session token as api token", ValidateAPITokenFormat, "session_" + hex64},
		{"session token too long", ValidateSessionTokenFormat, "session_" + hex64 + "0"},
		{"empty session token", ValidateSessionTokenFormat, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.check(tt.token), ErrTokenInvalidFormat)
		})
	}
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	const numGoroutines = 10
	tokens := make(chan string, numGoroutines)
	errs := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			token, err := service.GenerateSessionToken()
			if err != nil {
				errs <- err
				return
			}
			tokens <- token
		}()
	}

	generated := make(map[string]bool)
	for i := 0; i < numGoroutines; i++ {
		select {
		case token := <-tokens:
			assert.False(t, generated[token], "Duplicate token generated")
			generated[token] = true
		case err := <-errs:
			t.Errorf("Error generating token: %v", err)
		}
	}
	assert.Len(t, generated, numGoroutines)
}

func TestTokenValidationEdgeCases(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "single character", token: "a"},
		{name: "non-JWT string", token: "this is not a jwt token"},
		{name: "JWT with wrong number of parts", token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJ1c2VySWQiOjF9"},
		{name: "api token", token: "mgp_" + strings.Repeat("0", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAdminJWT(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	salt, err := NewPasswordSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 32)

	hash, err := HashPassword("correct horse", salt)
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "correct horse", salt))
	assert.False(t, VerifyPassword(hash, "correct horse ", salt))

	otherSalt, err := NewPasswordSalt()
	require.NoError(t, err)
	assert.False(t, VerifyPassword(hash, "correct horse", otherSalt))
}

func BenchmarkGenerateAdminJWT(b *testing.B) {
	service, err := createTestTokenService()
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := service.GenerateAdminJWT(1, "admin", "admin"); err != nil {
			b.Fatal(err)
		}
	}
}
