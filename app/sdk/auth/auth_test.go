package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/app/sdk/auth"
	"github.com/schoolplane/platform/business/types/role"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

const testKID = "test-kid"

type keyLookup struct {
	privatePEM string
	publicPEM  string
}

func (kl keyLookup) PrivateKey(kid string) (string, error) {
	return kl.privatePEM, nil
}

func (kl keyLookup) PublicKey(kid string) (string, error) {
	return kl.publicPEM, nil
}

func newKeyLookup(t *testing.T) keyLookup {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	return keyLookup{
		privatePEM: string(privatePEM),
		publicPEM:  string(publicPEM),
	}
}

func newTestAuth(t *testing.T) *auth.Auth {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	a, err := auth.New(auth.Config{
		Log:       log,
		KeyLookup: newKeyLookup(t),
		Issuer:    "https://schoolplane.com/auth/",
	})
	require.NoError(t, err)

	return a
}

func Test_Token_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	userID := uuid.New()

	token, err := a.GenerateToken(testKID, userID, role.Operator)
	require.NoError(t, err)

	claims, err := a.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, role.Operator.String(), claims.Role)
	require.Equal(t, a.Issuer(), claims.Issuer)
}

func Test_Authenticate_BadInput(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	_, err := a.Authenticate(ctx, "not-a-bearer-token")
	require.Error(t, err)

	_, err = a.Authenticate(ctx, "Bearer garbage.token.value")
	require.Error(t, err)
}

func Test_Authenticate_TamperedToken(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	token, err := a.GenerateToken(testKID, uuid.New(), role.Admin)
	require.NoError(t, err)

	tampered := token[:len(token)-2]

	_, err = a.Authenticate(ctx, "Bearer "+tampered)
	require.Error(t, err)
}

func Test_Authorize(t *testing.T) {
	ctx := context.Background()
	a := newTestAuth(t)

	tests := []struct {
		name    string
		role    role.Role
		obj     string
		act     string
		allowed bool
	}{
		{"admin tenants create", role.Admin, auth.ObjectTenants, auth.ActionCreate, true},
		{"admin tenants rotate", role.Admin, auth.ObjectTenants, auth.ActionRotate, true},
		{"admin users delete", role.Admin, auth.ObjectUsers, auth.ActionDelete, true},
		{"operator tenants read", role.Operator, auth.ObjectTenants, auth.ActionRead, true},
		{"operator tenants lifecycle", role.Operator, auth.ObjectTenants, auth.ActionLifecycle, true},
		{"operator tenants create", role.Operator, auth.ObjectTenants, auth.ActionCreate, false},
		{"operator tenants rotate", role.Operator, auth.ObjectTenants, auth.ActionRotate, false},
		{"operator users read", role.Operator, auth.ObjectUsers, auth.ActionRead, false},
		{"operator users create", role.Operator, auth.ObjectUsers, auth.ActionCreate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := auth.Claims{Role: tt.role.String()}

			err := a.Authorize(ctx, claims, tt.obj, tt.act)
			if tt.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, auth.ErrForbidden)
		})
	}
}

func Test_ExtractHost(t *testing.T) {
	require.Equal(t, "acme.schoolplane.com", auth.ExtractHost("acme.schoolplane.com:3000"))
	require.Equal(t, "acme.schoolplane.com", auth.ExtractHost("acme.schoolplane.com"))
	require.Equal(t, "localhost", auth.ExtractHost("localhost:3000"))
}
