package businessflow_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/magpie/app/dto"
	"github.com/amirphl/magpie/app/services"
	businessflow "github.com/amirphl/magpie/business_flow"
	"github.com/amirphl/magpie/models"
	"github.com/amirphl/magpie/repository"
	testutil "github.com/amirphl/magpie/testing"
	"github.com/amirphl/magpie/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authHarness struct {
	db        *testutil.TestDB
	fixtures  *testutil.TestFixtures
	adminRepo repository.AdminRepository
	tokenRepo repository.APITokenRepository
	tokens    services.TokenService

	auth      businessflow.AuthFlow
	adminAuth businessflow.AdminAuthFlow
	apiTokens businessflow.APITokenFlow
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()

	db := testutil.NewTestDB(t)
	log := quietLogger()
	tokens, err := services.NewTokenService(time.Hour, "magpie-test", "magpie-admin", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)

	adminRepo := repository.NewAdminRepository(db.DB)
	tokenRepo := repository.NewAPITokenRepository(db.DB)
	opLogs := businessflow.NewOperationLogFlow(repository.NewOperationLogRepository(db.DB), log)

	return &authHarness{
		db:        db,
		fixtures:  testutil.NewTestFixtures(db),
		adminRepo: adminRepo,
		tokenRepo: tokenRepo,
		tokens:    tokens,
		auth:      businessflow.NewAuthFlow(tokenRepo, adminRepo, tokens, log),
		adminAuth: businessflow.NewAdminAuthFlow(adminRepo, tokens, nil, opLogs, 24*time.Hour, log),
		apiTokens: businessflow.NewAPITokenFlow(tokenRepo, tokens, opLogs, log),
	}
}

func TestParseCredential(t *testing.T) {
	hex64 := strings.Repeat("a", 64)
	tests := []struct {
		header string
		kind   businessflow.CredentialKind
		value  string
	}{
		{"", businessflow.CredentialNone, ""},
		{"Bearer ", businessflow.CredentialNone, ""},
		{"bearer", businessflow.CredentialNone, ""},
		{"BEARER\t mgp_" + hex64, businessflow.CredentialAPIToken, "mgp_" + hex64},
		{"Bearerish.jwt.value", businessflow.CredentialAdminJWT, "Bearerish.jwt.value"},
		{"Bearer mgp_" + hex64, businessflow.CredentialAPIToken, "mgp_" + hex64},
		{"mgp_" + hex64, businessflow.CredentialAPIToken, "mgp_" + hex64},
		{"bearer session_" + hex64, businessflow.CredentialSessionToken, "session_" + hex64},
		{"Bearer eyJhbGciOi.payload.sig", businessflow.CredentialAdminJWT, "eyJhbGciOi.payload.sig"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			cred := businessflow.ParseCredential(tt.header)
			assert.Equal(t, tt.kind, cred.Kind)
			assert.Equal(t, tt.value, cred.Value)
		})
	}
}

func TestAuthFlow_APIToken(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()

	token, err := h.fixtures.CreateTestAPIToken("extension")
	require.NoError(t, err)

	t.Run("RecordsUsage", func(t *testing.T) {
		record, err := h.auth.VerifyAPIToken(ctx, token.Token, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, token.ID, record.ID)

		stored, err := h.tokenRepo.ByID(ctx, token.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.UsageCount)
		require.NotNil(t, stored.LastUsedIP)
		assert.Equal(t, "10.0.0.1", *stored.LastUsedIP)
		assert.NotNil(t, stored.LastUsedAt)
	})

	t.Run("FormatCheckedBeforeLookup", func(t *testing.T) {
		_, err := h.auth.VerifyAPIToken(ctx, "mgp_short", "")
		assert.True(t, businessflow.IsInvalidFormat(err))

		_, err = h.auth.VerifyAPIToken(ctx, "mgp_"+strings.Repeat("0", 64), "")
		assert.True(t, businessflow.IsInvalidToken(err))
	})

	t.Run("PrincipalFromHeader", func(t *testing.T) {
		p, err := h.auth.AuthenticateTokenOrAdmin(ctx, "Bearer "+token.Token, "10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, businessflow.PrincipalAPIToken, p.Kind)
		require.NotNil(t, p.TokenID)
		assert.Equal(t, token.ID, *p.TokenID)
		assert.Nil(t, p.UserID)
		assert.False(t, p.IsAdmin())
	})

	t.Run("NotAcceptedOnAdminEndpoints", func(t *testing.T) {
		_, err := h.auth.AuthenticateAdmin(ctx, "Bearer "+token.Token)
		require.Error(t, err)
		assert.True(t, businessflow.IsForbidden(err))
	})

	t.Run("RevokedIsRejected", func(t *testing.T) {
		revoked, err := h.fixtures.CreateTestAPIToken("old")
		require.NoError(t, err)
		require.NoError(t, h.fixtures.RevokeTestAPIToken(revoked))

		_, err = h.auth.VerifyAPIToken(ctx, revoked.Token, "")
		assert.True(t, businessflow.IsTokenRevoked(err))

		_, err = h.auth.AuthenticateTokenOrAdmin(ctx, "Bearer "+revoked.Token, "")
		assert.True(t, businessflow.IsAuthFailure(err))
		assert.Equal(t, "AUTH_INVALID", businessflow.ErrorCodeOf(err))
	})

	t.Run("MissingHeader", func(t *testing.T) {
		_, err := h.auth.AuthenticateTokenOrAdmin(ctx, "", "")
		assert.True(t, businessflow.IsAuthFailure(err))
	})
}

func TestAuthFlow_AdminSessionAndJWT(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()

	admin, err := h.fixtures.CreateTestAdmin()
	require.NoError(t, err)

	login, err := h.adminAuth.Login(ctx, &dto.AdminLoginRequest{
		Username: testutil.TestAdminUsername,
		Password: testutil.TestAdminPassword,
	}, testMetadata())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", login.Session.TokenType)
	assert.NotNil(t, login.Admin.LastLoginAt)

	t.Run("SessionToken", func(t *testing.T) {
		p, err := h.auth.AuthenticateAdmin(ctx, "Bearer "+login.Session.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, businessflow.PrincipalSession, p.Kind)
		assert.True(t, p.IsAdmin())
		assert.Equal(t, admin.ID, *p.UserID)
	})

	t.Run("AdminJWT", func(t *testing.T) {
		p, err := h.auth.AuthenticateTokenOrAdmin(ctx, "Bearer "+login.Session.AccessToken, "")
		require.NoError(t, err)
		assert.Equal(t, businessflow.PrincipalAdminJWT, p.Kind)
		assert.Equal(t, testutil.TestAdminUsername, p.Username)

		assert.Nil(t, h.auth.VerifyAdminJWT("garbage"))
	})

	t.Run("NonAdminRoleJWT", func(t *testing.T) {
		jwt, _, err := h.tokens.GenerateAdminJWT(admin.ID, "viewer", "viewer")
		require.NoError(t, err)
		assert.Nil(t, h.auth.VerifyAdminJWT(jwt))

		_, err = h.auth.AuthenticateAdmin(ctx, "Bearer "+jwt)
		assert.True(t, businessflow.IsAuthFailure(err))
	})

	t.Run("ExpiredSession", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Minute)
		require.NoError(t, h.adminRepo.SetSession(ctx, admin.ID, &login.Session.SessionToken, &past))

		_, err := h.auth.VerifySessionToken(ctx, login.Session.SessionToken)
		assert.True(t, businessflow.IsSessionExpired(err))
	})

	t.Run("SuspendedAdmin", func(t *testing.T) {
		future := time.Now().UTC().Add(time.Hour)
		require.NoError(t, h.adminRepo.SetSession(ctx, admin.ID, &login.Session.SessionToken, &future))
		require.NoError(t, h.db.DB.Model(&models.Admin{}).Where("id = ?", admin.ID).
			Update("status", models.AdminStatusSuspended).Error)
		defer h.db.DB.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("status", models.AdminStatusActive)

		_, err := h.auth.VerifySessionToken(ctx, login.Session.SessionToken)
		assert.True(t, businessflow.IsUserSuspended(err))
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, err := h.auth.VerifySessionToken(ctx, "session_"+strings.Repeat("f", 64))
		assert.True(t, businessflow.IsInvalidToken(err))

		_, err = h.auth.VerifySessionToken(ctx, "session_xyz")
		assert.True(t, businessflow.IsInvalidFormat(err))
	})
}

func TestAdminAuthFlow(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()

	created, err := h.adminAuth.CreateAdmin(ctx, &dto.CreateAdminRequest{Username: "owner", Password: "long-enough-pw"}, testMetadata())
	require.NoError(t, err)
	assert.Equal(t, "owner", created.Username)
	assert.Equal(t, models.AdminRole, created.Role)

	t.Run("OnlyOneAdmin", func(t *testing.T) {
		_, err := h.adminAuth.CreateAdmin(ctx, &dto.CreateAdminRequest{Username: "second", Password: "long-enough-pw"}, testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsAdminExists(err))
	})

	t.Run("CreateValidatesInput", func(t *testing.T) {
		_, err := h.adminAuth.CreateAdmin(ctx, &dto.CreateAdminRequest{Username: "ab", Password: "long-enough-pw"}, testMetadata())
		assert.True(t, businessflow.IsValidation(err))
		_, err = h.adminAuth.CreateAdmin(ctx, &dto.CreateAdminRequest{Username: "owner2", Password: "short"}, testMetadata())
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := h.adminAuth.Login(ctx, &dto.AdminLoginRequest{Username: "owner", Password: "nope-nope"}, testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsAuthFailure(err))

		var failed int64
		require.NoError(t, h.db.DB.Model(&models.OperationLog{}).
			Where("action = ?", models.OperationAdminLoginFailed).Count(&failed).Error)
		assert.Equal(t, int64(1), failed)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := h.adminAuth.Login(ctx, &dto.AdminLoginRequest{Username: "ghost", Password: "long-enough-pw"}, testMetadata())
		assert.True(t, businessflow.IsAuthFailure(err))
	})

	t.Run("CaptchaDisabled", func(t *testing.T) {
		resp, err := h.adminAuth.InitCaptcha(ctx)
		require.NoError(t, err)
		assert.False(t, resp.Enabled)
	})

	t.Run("LogoutClearsSession", func(t *testing.T) {
		login, err := h.adminAuth.Login(ctx, &dto.AdminLoginRequest{Username: "owner", Password: "long-enough-pw"}, testMetadata())
		require.NoError(t, err)

		actor, err := h.auth.AuthenticateAdmin(ctx, "Bearer "+login.Session.SessionToken)
		require.NoError(t, err)
		require.NoError(t, h.adminAuth.Logout(ctx, actor, testMetadata()))

		_, err = h.auth.AuthenticateAdmin(ctx, "Bearer "+login.Session.SessionToken)
		assert.True(t, businessflow.IsAuthFailure(err))
	})

	t.Run("ChangePassword", func(t *testing.T) {
		actor := &businessflow.Principal{Kind: businessflow.PrincipalAdminJWT, UserID: utils.ToPtr(created.ID), Username: "owner", Role: models.AdminRole}

		err := h.adminAuth.ChangePassword(ctx, actor, &dto.ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "brand-new-pw"}, testMetadata())
		assert.True(t, businessflow.IsAuthFailure(err))

		require.NoError(t, h.adminAuth.ChangePassword(ctx, actor, &dto.ChangePasswordRequest{CurrentPassword: "long-enough-pw", NewPassword: "brand-new-pw"}, testMetadata()))

		_, err = h.adminAuth.Login(ctx, &dto.AdminLoginRequest{Username: "owner", Password: "long-enough-pw"}, testMetadata())
		assert.True(t, businessflow.IsAuthFailure(err))
		_, err = h.adminAuth.Login(ctx, &dto.AdminLoginRequest{Username: "owner", Password: "brand-new-pw"}, testMetadata())
		assert.NoError(t, err)
	})

	t.Run("TokenActorCannotLogout", func(t *testing.T) {
		actor := &businessflow.Principal{Kind: businessflow.PrincipalAPIToken, TokenID: utils.ToPtr(uint(1))}
		err := h.adminAuth.Logout(ctx, actor, testMetadata())
		assert.True(t, businessflow.IsForbidden(err))
	})
}

func TestAPITokenFlow(t *testing.T) {
	h := newAuthHarness(t)
	ctx := context.Background()

	created, err := h.apiTokens.Create(ctx, &dto.CreateAPITokenRequest{Name: "  extension  "}, adminActor(), testMetadata())
	require.NoError(t, err)
	assert.Equal(t, "extension", created.Name)
	assert.NoError(t, services.ValidateAPITokenFormat(created.Token))
	assert.NotEmpty(t, created.Message)

	t.Run("ListMasksValue", func(t *testing.T) {
		list, err := h.apiTokens.List(ctx)
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.NotEqual(t, created.Token, list.Items[0].Token)
		assert.Contains(t, list.Items[0].Token, "*")
	})

	t.Run("CreatedTokenAuthenticates", func(t *testing.T) {
		_, err := h.auth.VerifyAPIToken(ctx, created.Token, "")
		assert.NoError(t, err)
	})

	t.Run("RevokeIsOneWay", func(t *testing.T) {
		revoked, err := h.apiTokens.Revoke(ctx, created.ID, adminActor(), testMetadata())
		require.NoError(t, err)
		assert.Equal(t, string(models.APITokenStatusRevoked), revoked.Status)
		assert.NotNil(t, revoked.RevokedAt)

		_, err = h.apiTokens.Revoke(ctx, created.ID, adminActor(), testMetadata())
		require.Error(t, err)
		assert.True(t, businessflow.IsTokenRevoked(err))

		_, err = h.auth.VerifyAPIToken(ctx, created.Token, "")
		assert.True(t, businessflow.IsTokenRevoked(err))
	})

	t.Run("RevokeUnknown", func(t *testing.T) {
		_, err := h.apiTokens.Revoke(ctx, 424242, adminActor(), testMetadata())
		assert.True(t, businessflow.IsNotFound(err))
	})

	t.Run("NameRequired", func(t *testing.T) {
		_, err := h.apiTokens.Create(ctx, &dto.CreateAPITokenRequest{Name: " "}, adminActor(), testMetadata())
		assert.True(t, businessflow.IsValidation(err))
	})
}
