// Package keystore implements the auth.KeyLookup interface. This implements
// an in-memory keystore for JWT support.
package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// key represents key information.
type key struct {
	privatePEM string
	publicPEM  string
}

// KeyStore represents an in memory store implementation of the
// KeyLookup interface for use with the auth package.
type KeyStore struct {
	store map[string]key
	mu    sync.RWMutex
}

// New constructs an empty KeyStore ready for use.
func New() *KeyStore {
	return &KeyStore{
		store: make(map[string]key),
	}
}

// LoadByFileSystem loads a set of RSA PEM files rooted inside of a directory.
// The name of each PEM file will be used as the key id. The function returns
// the id of the last key read so a caller can default an active kid.
func (ks *KeyStore) LoadByFileSystem(fsys fs.FS) (string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var lastKID string

	fn := func(fileName string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if dirEntry.IsDir() {
			return nil
		}

		if path.Ext(fileName) != ".pem" {
			return nil
		}

		file, err := fsys.Open(fileName)
		if err != nil {
			return fmt.Errorf("opening key file: %w", err)
		}
		defer file.Close()

		// limit PEM file size to 1 megabyte.
		pemData, err := io.ReadAll(io.LimitReader(file, 1024*1024))
		if err != nil {
			return fmt.Errorf("reading pem file: %w", err)
		}

		publicPEM, err := toPublicPEM(pemData)
		if err != nil {
			return fmt.Errorf("converting private pem to public: %w", err)
		}

		kid := strings.TrimSuffix(dirEntry.Name(), ".pem")

		ks.store[kid] = key{
			privatePEM: string(pemData),
			publicPEM:  publicPEM,
		}

		lastKID = kid

		return nil
	}

	if err := fs.WalkDir(fsys, ".", fn); err != nil {
		return "", fmt.Errorf("walking directory: %w", err)
	}

	return lastKID, nil
}

// PrivateKey searches the key store for a given kid and returns the
// private key.
func (ks *KeyStore) PrivateKey(kid string) (string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	k, found := ks.store[kid]
	if !found {
		return "", fmt.Errorf("kid lookup failed: %s", kid)
	}

	return k.privatePEM, nil
}

// PublicKey searches the key store for a given kid and returns the
// public key.
func (ks *KeyStore) PublicKey(kid string) (string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	k, found := ks.store[kid]
	if !found {
		return "", fmt.Errorf("kid lookup failed: %s", kid)
	}

	return k.publicPEM, nil
}

func toPublicPEM(privatePEM []byte) (string, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return "", fmt.Errorf("invalid pem data")
	}

	var privateKey *rsa.PrivateKey

	switch block.Type {
	case "RSA PRIVATE KEY":
		pk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("parsing pkcs1 private key: %w", err)
		}
		privateKey = pk

	case "PRIVATE KEY":
		pk, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("parsing pkcs8 private key: %w", err)
		}

		rsaKey, ok := pk.(*rsa.PrivateKey)
		if !ok {
			return "", fmt.Errorf("key is not rsa")
		}
		privateKey = rsaKey

	default:
		return "", fmt.Errorf("unsupported pem block type: %s", block.Type)
	}

	asn1Bytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}

	publicBlock := pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: asn1Bytes,
	}

	return string(pem.EncodeToMemory(&publicBlock)), nil
}
