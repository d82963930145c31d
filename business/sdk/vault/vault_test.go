package vault_test

import (
	"context"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/sdk/vault"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T, masterKey string) *vault.Vault {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	v, err := vault.New(vault.Config{
		Log:           log,
		MasterKey:     masterKey,
		CacheCapacity: 10,
		CacheTTL:      time.Minute,
	})
	require.NoError(t, err)

	return v
}

func testMasterKey(fill byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return hex.EncodeToString(key)
}

func Test_New_MasterKey(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	tests := []struct {
		name      string
		masterKey string
	}{
		{"not hex", "zz-not-hex"},
		{"too short", hex.EncodeToString(make([]byte, 16))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vault.New(vault.Config{Log: log, MasterKey: tt.masterKey})
			require.ErrorIs(t, err, vault.ErrMasterKey)
		})
	}
}

func Test_Vault_RoundTrip(t *testing.T) {
	v := testVault(t, testMasterKey(0x42))

	enc, err := v.Encrypt("postgresql://tenant:pw@db.internal:5432/acme")
	require.NoError(t, err)
	require.NotContains(t, enc, "tenant:pw")

	dec, err := v.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "postgresql://tenant:pw@db.internal:5432/acme", dec)
}

func Test_Vault_DistinctCiphertexts(t *testing.T) {
	v := testVault(t, testMasterKey(0x42))

	first, err := v.Encrypt("same plaintext")
	require.NoError(t, err)

	second, err := v.Encrypt("same plaintext")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func Test_Vault_Tampered(t *testing.T) {
	v := testVault(t, testMasterKey(0x42))

	enc, err := v.Encrypt("secret material")
	require.NoError(t, err)

	tampered := []byte(enc)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	_, err = v.Decrypt(string(tampered))
	require.ErrorIs(t, err, vault.ErrAuthentication)

	_, err = v.Decrypt("@@not-base64@@")
	require.ErrorIs(t, err, vault.ErrAuthentication)

	_, err = v.Decrypt("c2hvcnQ")
	require.ErrorIs(t, err, vault.ErrAuthentication)
}

func Test_Vault_KeyMismatch(t *testing.T) {
	v1 := testVault(t, testMasterKey(0x42))
	v2 := testVault(t, testMasterKey(0x43))

	enc, err := v1.Encrypt("secret material")
	require.NoError(t, err)

	_, err = v2.Decrypt(enc)
	require.ErrorIs(t, err, vault.ErrAuthentication)
}

func Test_Vault_Credentials(t *testing.T) {
	ctx := context.Background()
	v := testVault(t, testMasterKey(0x42))

	d := descriptor.MustParse("shared-schema:tenant_acme")

	enc, err := v.EncryptCredentials(d, "s3cr3t")
	require.NoError(t, err)
	require.NotEqual(t, d.String(), enc.Descriptor)
	require.NotEqual(t, "s3cr3t", enc.Secret)

	tenantID := uuid.New()

	creds, err := v.DecryptCredentials(ctx, tenantID, enc)
	require.NoError(t, err)
	require.True(t, creds.Descriptor.Equal(d))
	require.Equal(t, "s3cr3t", creds.Secret)

	// Second read comes from the cache and must match.
	cached, err := v.DecryptCredentials(ctx, tenantID, enc)
	require.NoError(t, err)
	require.True(t, cached.Descriptor.Equal(d))
	require.Equal(t, "s3cr3t", cached.Secret)
}

func Test_Vault_Rotate(t *testing.T) {
	ctx := context.Background()
	v := testVault(t, testMasterKey(0x42))

	tenantID := uuid.New()

	oldEnc, err := v.EncryptCredentials(descriptor.Shared(), "old")
	require.NoError(t, err)

	_, err = v.DecryptCredentials(ctx, tenantID, oldEnc)
	require.NoError(t, err)

	d := descriptor.MustParse("postgresql://app:pw@db.internal:5432/acme")

	newEnc, err := v.Rotate(ctx, tenantID, d, "new")
	require.NoError(t, err)

	// Rotation evicts the cache entry so the new material is served.
	creds, err := v.DecryptCredentials(ctx, tenantID, newEnc)
	require.NoError(t, err)
	require.True(t, creds.Descriptor.Equal(d))
	require.Equal(t, "new", creds.Secret)
}
