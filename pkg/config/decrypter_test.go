package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ilguido/jidl/pkg/errors"
)

// encryptValue produces a secret the way the deployment tooling does:
// PBKDF2-HMAC-SHA1 key derivation, AES-128/CBC, PKCS#5 padding, all
// fields base64.
func encryptValue(t *testing.T, pass, plain string) (text, salt, iv string) {
	t.Helper()

	saltBytes := make([]byte, 8)
	ivBytes := make([]byte, aes.BlockSize)
	if _, err := rand.Read(saltBytes); err != nil {
		t.Fatalf("salt: %v", err)
	}
	if _, err := rand.Read(ivBytes); err != nil {
		t.Fatalf("iv: %v", err)
	}

	key := pbkdf2.Key([]byte(pass), saltBytes, pbkdf2Iterations, 16, sha1.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append([]byte(plain), make([]byte, pad)...)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, ivBytes).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out),
		base64.StdEncoding.EncodeToString(saltBytes),
		base64.StdEncoding.EncodeToString(ivBytes)
}

func TestDecrypterPassthrough(t *testing.T) {
	// Plain text values carry no salt and no IV, with or without a
	// shared password.
	for _, d := range []*Decrypter{NewDecrypter(""), NewDecrypter("pass")} {
		got, err := d.Decrypt("plaintext", "", "")
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != "plaintext" {
			t.Errorf("Decrypt = %q", got)
		}
	}
}

func TestDecrypterRoundTrip(t *testing.T) {
	const pass = "sharedpass"
	const secret = "s3cret device password"

	text, salt, iv := encryptValue(t, pass, secret)

	got, err := NewDecrypter(pass).Decrypt(text, salt, iv)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != secret {
		t.Errorf("Decrypt = %q, want %q", got, secret)
	}

	// The wrong password yields garbage padding, not the secret.
	if got, err := NewDecrypter("wrong").Decrypt(text, salt, iv); err == nil && got == secret {
		t.Error("wrong password recovered the secret")
	}
}

func TestDecrypterAmbiguousSettings(t *testing.T) {
	text, salt, iv := encryptValue(t, "pass", "secret")

	tests := []struct {
		name string
		d    *Decrypter
		salt string
		iv   string
	}{
		{"salt without iv", NewDecrypter("pass"), salt, ""},
		{"iv without salt", NewDecrypter("pass"), "", iv},
		{"no password", NewDecrypter(""), salt, iv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.d.Decrypt(text, tt.salt, tt.iv)
			if !errors.IsCode(err, errors.ErrCodeAuthMaterial) {
				t.Fatalf("error = %v, want ambiguous settings", err)
			}
		})
	}
}

func TestDecrypterBadInput(t *testing.T) {
	text, salt, iv := encryptValue(t, "pass", "secret")
	d := NewDecrypter("pass")

	tests := []struct {
		name string
		text string
		salt string
		iv   string
	}{
		{"junk base64 value", "!!", salt, iv},
		{"junk base64 salt", text, "!!", iv},
		{"junk base64 iv", text, salt, "!!"},
		{"short iv", text, salt, base64.StdEncoding.EncodeToString([]byte("short"))},
		{"ragged cipher text", base64.StdEncoding.EncodeToString([]byte("xyz")), salt, iv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decrypt(tt.text, tt.salt, tt.iv)
			if !errors.IsCode(err, errors.ErrCodeDecryptFailed) {
				t.Fatalf("error = %v, want decrypt failure", err)
			}
		})
	}
}

func TestDecrypterReady(t *testing.T) {
	if NewDecrypter("").Ready() {
		t.Error("empty password reported ready")
	}
	if !NewDecrypter("pass").Ready() {
		t.Error("set password reported unready")
	}
}
