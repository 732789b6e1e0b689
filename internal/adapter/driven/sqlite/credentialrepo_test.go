package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
	"github.com/ericfisherdev/adpanel/internal/domain/port/driven"
)

func TestCredentialRepo_UpsertAndGetActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	err := repo.Upsert(ctx, model.Credential{
		Provider:     model.ProviderMeta,
		AccessToken:  "EAAB-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expires,
		AccountID:    "act_42",
		Scopes:       []string{"ads_management", "ads_read"},
		IsActive:     true,
	})
	require.NoError(t, err)

	cred, err := repo.GetActive(ctx, model.ProviderMeta)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, model.ProviderMeta, cred.Provider)
	assert.Equal(t, "EAAB-access", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	require.NotNil(t, cred.ExpiresAt)
	assert.True(t, expires.Equal(*cred.ExpiresAt))
	assert.Equal(t, "act_42", cred.AccountID)
	assert.Equal(t, []string{"ads_management", "ads_read"}, cred.Scopes)
	assert.True(t, cred.IsActive)
	assert.False(t, cred.UpdatedAt.IsZero())
}

func TestCredentialRepo_TokensEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.Credential{
		Provider:     model.ProviderTikTok,
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
		IsActive:     true,
	}))

	var access, refresh string
	err := db.Reader.QueryRowContext(ctx,
		`SELECT access_token, refresh_token FROM credentials WHERE provider = ?`, "tiktok",
	).Scan(&access, &refresh)
	require.NoError(t, err)
	assert.NotContains(t, access, "plain-access")
	assert.NotContains(t, refresh, "plain-refresh")
}

func TestCredentialRepo_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.Credential{Provider: model.ProviderMeta, AccessToken: "old", IsActive: true}))
	require.NoError(t, repo.Upsert(ctx, model.Credential{Provider: model.ProviderMeta, AccessToken: "new", IsActive: true}))

	creds, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "new", creds[0].AccessToken)
	assert.Nil(t, creds[0].ExpiresAt)
}

func TestCredentialRepo_GetActiveMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	cred, err := repo.GetActive(context.Background(), model.ProviderTikTok)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialRepo_Deactivate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.Credential{Provider: model.ProviderMeta, AccessToken: "tok", IsActive: true}))
	require.NoError(t, repo.Deactivate(ctx, model.ProviderMeta))

	cred, err := repo.GetActive(ctx, model.ProviderMeta)
	require.NoError(t, err)
	assert.Nil(t, cred, "inactive credential must not be returned")

	creds, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.False(t, creds[0].IsActive)
}

func TestCredentialRepo_DeactivateNonexistent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey)

	err := repo.Deactivate(context.Background(), model.ProviderTikTok)
	assert.NoError(t, err, "deactivating a missing credential should not error")
}

func TestCredentialRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	err := repo.Upsert(ctx, model.Credential{Provider: model.ProviderMeta, AccessToken: "tok", IsActive: true})
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.GetActive(ctx, model.ProviderMeta)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.List(ctx)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestCredentialRepo_WrongKeyFailsDecrypt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testKey).Upsert(ctx,
		model.Credential{Provider: model.ProviderMeta, AccessToken: "tok", IsActive: true}))

	other := NewCredentialRepo(db, []byte("fedcba9876543210fedcba9876543210"))
	_, err := other.GetActive(ctx, model.ProviderMeta)
	assert.Error(t, err)
}
