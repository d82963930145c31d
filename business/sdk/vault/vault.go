// Package vault protects tenant connection credentials at rest. Values are
// sealed with AES-256-GCM under a key derived once from the master secret,
// and decrypted credentials are held in a bounded TTL cache so the resolver
// does not pay the decryption cost on every request.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/types/descriptor"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/viccon/sturdyc"
	"golang.org/x/crypto/pbkdf2"
)

// Set of error variables for vault operations. ErrAuthentication indicates
// tampered or corrupt ciphertext, or a key mismatch; it must alert operators
// and is never retryable.
var (
	ErrMasterKey      = errors.New("master key malformed")
	ErrAuthentication = errors.New("ciphertext failed authentication")
)

// The key derivation is deterministic so the same master secret always
// yields the same encryption key across processes.
const (
	masterKeyBytes = 32
	kdfIterations  = 100_000
	kdfSalt        = "control-plane-static-salt"
)

// Credentials represents the decrypted connection material for one tenant.
type Credentials struct {
	Descriptor descriptor.Descriptor
	Secret     string
}

// EncryptedCredentials represents the sealed connection material as stored
// on the tenant row.
type EncryptedCredentials struct {
	Descriptor string
	Secret     string
}

// Config represents the information needed to construct a vault.
type Config struct {
	Log *logger.Logger

	// MasterKey is the hex encoding of a 32 byte master secret.
	MasterKey string

	CacheCapacity int
	CacheTTL      time.Duration
}

// Vault seals and unseals tenant credentials.
type Vault struct {
	log   *logger.Logger
	aead  cipher.AEAD
	cache *sturdyc.Client[Credentials]
}

// New constructs a vault, deriving the encryption key from the master
// secret. The derivation is CPU bound and runs once per process.
func New(cfg Config) (*Vault, error) {
	keyMaterial, err := hex.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", ErrMasterKey)
	}

	if len(keyMaterial) != masterKeyBytes {
		return nil, fmt.Errorf("master key is %d bytes, want %d: %w", len(keyMaterial), masterKeyBytes, ErrMasterKey)
	}

	key := pbkdf2.Key(keyMaterial, []byte(kdfSalt), kdfIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = 1000
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Vault{
		log:   cfg.Log,
		aead:  aead,
		cache: sturdyc.New[Credentials](capacity, 16, ttl, 10),
	}, nil
}

// Encrypt seals the plaintext and returns a base64 encoded ciphertext with
// the nonce prepended.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampered data or a key
// mismatch returns ErrAuthentication, never wrong plaintext.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", ErrAuthentication)
	}

	if len(sealed) < v.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short: %w", ErrAuthentication)
	}

	nonce, data := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", ErrAuthentication)
	}

	return string(plaintext), nil
}

// EncryptCredentials validates and seals a descriptor and its secret for
// storage on the tenant row.
func (v *Vault) EncryptCredentials(d descriptor.Descriptor, secret string) (EncryptedCredentials, error) {
	encDescriptor, err := v.Encrypt(d.String())
	if err != nil {
		return EncryptedCredentials{}, fmt.Errorf("encrypt descriptor: %w", err)
	}

	encSecret, err := v.Encrypt(secret)
	if err != nil {
		return EncryptedCredentials{}, fmt.Errorf("encrypt secret: %w", err)
	}

	return EncryptedCredentials{
		Descriptor: encDescriptor,
		Secret:     encSecret,
	}, nil
}

// DecryptCredentials returns the decrypted connection material for a tenant,
// serving from the cache when possible.
func (v *Vault) DecryptCredentials(ctx context.Context, tenantID uuid.UUID, enc EncryptedCredentials) (Credentials, error) {
	key := tenantID.String()

	if creds, exists := v.cache.Get(key); exists {
		return creds, nil
	}

	rawDescriptor, err := v.Decrypt(enc.Descriptor)
	if err != nil {
		v.log.Error(ctx, "vault: decrypt credentials", "tenant_id", tenantID, "err", err)
		return Credentials{}, fmt.Errorf("decrypt descriptor: tenantID[%s]: %w", tenantID, err)
	}

	d, err := descriptor.Parse(rawDescriptor)
	if err != nil {
		return Credentials{}, fmt.Errorf("parse descriptor: tenantID[%s]: %w", tenantID, err)
	}

	secret, err := v.Decrypt(enc.Secret)
	if err != nil {
		v.log.Error(ctx, "vault: decrypt credentials", "tenant_id", tenantID, "err", err)
		return Credentials{}, fmt.Errorf("decrypt secret: tenantID[%s]: %w", tenantID, err)
	}

	creds := Credentials{
		Descriptor: d,
		Secret:     secret,
	}

	v.cache.Set(key, creds)

	return creds, nil
}

// Rotate re-encrypts a tenant's credentials and evicts the cache entry. It
// does not close the tenant's open connection pool; the caller owns that.
func (v *Vault) Rotate(ctx context.Context, tenantID uuid.UUID, d descriptor.Descriptor, secret string) (EncryptedCredentials, error) {
	enc, err := v.EncryptCredentials(d, secret)
	if err != nil {
		return EncryptedCredentials{}, fmt.Errorf("rotate: tenantID[%s]: %w", tenantID, err)
	}

	v.cache.Delete(tenantID.String())

	v.log.Info(ctx, "vault: credentials rotated", "tenant_id", tenantID, "mode", d.Mode())

	return enc, nil
}

// Invalidate drops a tenant's cached credentials.
func (v *Vault) Invalidate(tenantID uuid.UUID) {
	v.cache.Delete(tenantID.String())
}
