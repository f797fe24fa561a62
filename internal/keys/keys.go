package keys

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rotabak/internal/config"
	"rotabak/internal/crypto"

	"filippo.io/age"
)

// Generate prints a new age key pair. The public key goes into
// settings.report.age_public_key; the private key is needed to read reports.
func Generate(out io.Writer) (*age.X25519Identity, error) {
	fmt.Fprintln(out, "Generating age public and private key pair...")

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	fmt.Fprintln(out, "\n=== Age Key Pair Generated ===")
	fmt.Fprintf(out, "Public key:  %s\n", identity.Recipient().String())
	fmt.Fprintf(out, "Private key: %s\n", identity.String())
	fmt.Fprintln(out, "\n!! Keep your private key secure !!")

	return identity, nil
}

// LoadIdentity reads an age private key file.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return identity, nil
}

// Test round-trips a sample file through the configured report public key
// and the given private key.
func Test(cfg *config.Config, privateKeyPath string, out io.Writer) error {
	fmt.Fprintln(out, "Testing age key pair compatibility...")

	publicKey := cfg.Settings.Report.AgePublicKey
	if publicKey == "" {
		return fmt.Errorf("settings.report.age_public_key is not set")
	}
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return fmt.Errorf("failed to parse public key from config: %w", err)
	}
	fmt.Fprintf(out, "Public key from config: %s\n", publicKey)

	identity, err := LoadIdentity(privateKeyPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Private key loaded from: %s\n", privateKeyPath)

	tempDir, err := os.MkdirTemp("", "rotabak_key_test_*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	testContent := "rotabak - Key Pair Test - " + time.Now().Format(time.RFC3339)
	testFile := filepath.Join(tempDir, "test.txt")
	if err := os.WriteFile(testFile, []byte(testContent), 0o644); err != nil {
		return fmt.Errorf("failed to create test file: %w", err)
	}

	encryptedFile := testFile + ".age"
	if err := crypto.Encrypt(testFile, encryptedFile, recipient); err != nil {
		return fmt.Errorf("encryption failed: %w", err)
	}
	fmt.Fprintln(out, "Encryption successful")

	decryptedFile := filepath.Join(tempDir, "test_decrypted.txt")
	if err := crypto.Decrypt(encryptedFile, decryptedFile, identity); err != nil {
		return fmt.Errorf("decryption failed: %w\nThis means the private key does not match the public key in config", err)
	}
	fmt.Fprintln(out, "Decryption successful")

	decryptedContent, err := os.ReadFile(decryptedFile)
	if err != nil {
		return fmt.Errorf("failed to read decrypted file: %w", err)
	}
	if string(decryptedContent) != testContent {
		return fmt.Errorf("content mismatch: decrypted content does not match original")
	}

	fmt.Fprintln(out, "Content verification successful")
	return nil
}
