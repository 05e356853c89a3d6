package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"packsync-go/internal/config"
	"packsync-go/internal/keys"
)

// KeyFile keeps a signing key pair on disk. The public key is stored in
// plaintext; the private key is encrypted with the user's passphrase using
// age's scrypt-based passphrase encryption.
type KeyFile struct {
	publicKeyPath  string
	privateKeyPath string

	// workFactor overrides age's scrypt work factor when non-zero.
	workFactor int
}

var _ Provider = (*KeyFile)(nil)

// NewKeyFile creates a KeyFile from configuration.
func NewKeyFile(cfg config.IdentityConfig) *KeyFile {
	return &KeyFile{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

func (k *KeyFile) Type() string        { return "keyfile" }
func (k *KeyFile) DisplayName() string { return "Encrypted key file" }
func (k *KeyFile) Available() bool     { return k.IsConfigured() }

func (k *KeyFile) Inputs() []Input {
	return []Input{{Name: "passphrase", Label: "Passphrase", Secret: true}}
}

func (k *KeyFile) RequestIdentities(ctx context.Context, inputs map[string]string) ([]Identity, error) {
	passphrase, err := requireInput(inputs, "passphrase")
	if err != nil {
		return nil, err
	}
	id, err := k.Unlock(passphrase)
	if err != nil {
		return nil, err
	}
	return []Identity{id}, nil
}

// Setup generates a new Ed25519 key pair and stores it with Import.
func (k *KeyFile) Setup(passphrase string) (keys.PublicKey, error) {
	priv, pub, err := keys.GenerateKeyPair(keys.Ed25519, 0)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	if err := k.Import(priv, passphrase); err != nil {
		return nil, err
	}
	return pub, nil
}

// Import writes priv to disk, replacing any existing key pair.
func (k *KeyFile) Import(priv keys.PrivateKey, passphrase string) error {
	pubText, err := FormatPublicKey(priv.GetPublic())
	if err != nil {
		return fmt.Errorf("encoding public key: %w", err)
	}
	privText, err := FormatPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}

	// Ensure key directories exist.
	if err := os.MkdirAll(filepath.Dir(k.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(k.publicKeyPath, []byte(pubText+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(k.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if k.workFactor > 0 {
		recipient.SetWorkFactor(k.workFactor)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, privText+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}
	return nil
}

// PublicKey reads the plaintext public key. It does not need the passphrase.
func (k *KeyFile) PublicKey() (keys.PublicKey, error) {
	data, err := os.ReadFile(k.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	return ParsePublicKey(string(data))
}

// Unlock decrypts the private key with passphrase and returns an Identity
// holding it.
func (k *KeyFile) Unlock(passphrase string) (Identity, error) {
	privData, err := os.ReadFile(k.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(privData), scrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	keyText, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	priv, err := ParsePrivateKey(string(keyText), EncodingMultibase)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return WrapPrivateKey(priv), nil
}

// IsConfigured returns true if both key files exist.
func (k *KeyFile) IsConfigured() bool {
	if _, err := os.Stat(k.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(k.privateKeyPath); err != nil {
		return false
	}
	return true
}
