package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ilguido/jidl/pkg/errors"
)

// pbkdf2Iterations matches the openssl invocation the secrets are
// produced with:
//
//	openssl enc -aes-128-cbc -pbkdf2 -iter 128 -md sha1 -k $pass
const pbkdf2Iterations = 128

// Decrypter recovers AES-128/CBC encrypted configuration values. The
// key is derived from a shared password with PBKDF2-HMAC-SHA1.
type Decrypter struct {
	pass string
}

// NewDecrypter stores the shared password. An empty password leaves
// the decrypter unready; plain text values still pass through.
func NewDecrypter(pass string) *Decrypter {
	return &Decrypter{pass: pass}
}

// Ready reports whether a password is set.
func (d *Decrypter) Ready() bool {
	return d != nil && d.pass != ""
}

// Decrypt recovers a value. With neither salt nor IV the text is
// returned as is; with exactly one of them, or both but no password,
// the settings are rejected as ambiguous. All three inputs are base64.
func (d *Decrypter) Decrypt(text, salt, iv string) (string, error) {
	if salt == "" && iv == "" {
		return text, nil
	}
	if salt == "" || iv == "" || !d.Ready() {
		return "", errors.New(errors.ErrCodeAuthMaterial,
			"ambiguous decryption settings").Err()
	}

	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecryptFailed, "decoding salt").Err()
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecryptFailed, "decoding IV").Err()
	}
	cipherText, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecryptFailed, "decoding value").Err()
	}

	key := pbkdf2.Key([]byte(d.pass), saltBytes, pbkdf2Iterations, 16, sha1.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeDecryptFailed, "building cipher").Err()
	}
	if len(ivBytes) != block.BlockSize() {
		return "", errors.Newf(errors.ErrCodeDecryptFailed,
			"IV length %d, want %d", len(ivBytes), block.BlockSize()).Err()
	}
	if len(cipherText) == 0 || len(cipherText)%block.BlockSize() != 0 {
		return "", errors.Newf(errors.ErrCodeDecryptFailed,
			"cipher text length %d is not a block multiple", len(cipherText)).Err()
	}

	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, ivBytes).CryptBlocks(plain, cipherText)

	plain, err = unpadPKCS5(plain, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func unpadPKCS5(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n < 1 || n > blockSize || n > len(data) {
		return nil, errors.New(errors.ErrCodeDecryptFailed, "bad padding").Err()
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New(errors.ErrCodeDecryptFailed, "bad padding").Err()
		}
	}
	return data[:len(data)-n], nil
}
