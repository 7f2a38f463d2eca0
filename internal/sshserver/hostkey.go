package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
)

// GenerateHostKey returns a PEM encoded ed25519 private key and its
// authorized_keys form.
func GenerateHostKey() (privateKeyPEM, publicKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	sshPub, err := gossh.NewPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("create ssh public key: %w", err)
	}
	privateKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return privateKeyPEM, gossh.MarshalAuthorizedKey(sshPub), nil
}

// WriteHostKey generates a key pair at path and path.pub. Existing files
// are only replaced when overwrite is set.
func WriteHostKey(path string, overwrite bool) (gossh.Signer, error) {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("host key %s already exists", path)
		}
	}
	priv, pub, err := GenerateHostKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(path+".pub", pub, 0o644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	return ParseHostKey(priv)
}

// LoadOrCreateHostKey reads the host key at path, generating one first if
// the file does not exist. created reports whether a key was generated.
func LoadOrCreateHostKey(path string) (signer gossh.Signer, created bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		signer, err = WriteHostKey(path, false)
		return signer, err == nil, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("read host key: %w", err)
	}
	signer, err = ParseHostKey(data)
	return signer, false, err
}

// ParseHostKey parses a PEM encoded private key.
func ParseHostKey(privateKeyPEM []byte) (gossh.Signer, error) {
	signer, err := gossh.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

// Fingerprint is the SHA256 fingerprint clients show for the key.
func Fingerprint(signer gossh.Signer) string {
	return gossh.FingerprintSHA256(signer.PublicKey())
}
