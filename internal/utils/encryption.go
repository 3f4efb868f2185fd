package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Seal encrypts data with XChaCha20-Poly1305. The random nonce is prepended
// to the returned ciphertext.
func Seal(data, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("create nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

// Open reverses Seal.
func Open(sealed, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

// EncryptToFile seals data and writes it to outputPath. It writes to a temp
// file in the same directory first and renames it into place, so readers
// never observe a partial file.
func EncryptToFile(outputPath string, data, key []byte) error {
	if !filepath.IsAbs(outputPath) {
		return fmt.Errorf("output path must be absolute: %s", outputPath)
	}
	sealed, err := Seal(data, key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// removes the temp file on every failure path; a no-op after rename
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write encrypted data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("set permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("move encrypted file to final location: %w", err)
	}
	return nil
}

// DecryptFile reads a file written by EncryptToFile.
func DecryptFile(inputPath string, key []byte) ([]byte, error) {
	sealed, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read encrypted file %s: %w", inputPath, err)
	}
	return Open(sealed, key)
}
